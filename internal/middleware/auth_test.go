package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"opsboard/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func newRouter(allowed ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", RequireRole(secret, allowed...), func(c *gin.Context) {
		a := CurrentActor(c)
		c.String(http.StatusOK, a.ID+"/"+a.Role)
	})
	return r
}

func call(r *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireRole(t *testing.T) {
	managerToken, err := IssueToken("M1", model.RoleManager, secret)
	require.NoError(t, err)
	employeeToken, err := IssueToken("E1", model.RoleEmployee, secret)
	require.NoError(t, err)
	foreignToken, err := IssueToken("M1", model.RoleManager, []byte("other"))
	require.NoError(t, err)

	r := newRouter(model.RoleManager, model.RoleAdmin)

	w := call(r, "Bearer "+managerToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "M1/manager", w.Body.String())

	assert.Equal(t, http.StatusForbidden, call(r, "Bearer "+employeeToken).Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, managerToken).Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, "Bearer "+foreignToken).Code)

	assert.Equal(t, http.StatusOK, call(newRouter(), "Bearer "+employeeToken).Code, "no roles listed admits any role")
}

func TestParseToken_RejectsUnknownRoleAndMissingSubject(t *testing.T) {
	guest, err := IssueToken("G1", "guest", secret)
	require.NoError(t, err)
	_, err = ParseToken(guest, secret)
	assert.ErrorIs(t, err, ErrInvalidToken)

	anonymous, err := IssueToken("", model.RoleAdmin, secret)
	require.NoError(t, err)
	_, err = ParseToken(anonymous, secret)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: model.RoleAdmin}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseToken(none, secret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
