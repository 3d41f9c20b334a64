package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
	MinLimit     = 1
)

// Params is a normalized page request. Build it with New or Parse so Offset matches Page and Limit.
type Params struct {
	Page   int
	Limit  int
	Offset int
}

// New clamps page and limit into range; zero values fall back to the defaults.
func New(page, limit int) Params {
	if page < 1 {
		page = DefaultPage
	}
	if limit < MinLimit {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Params{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}

// Parse reads ?page= and ?limit=. Malformed values are treated as missing.
func Parse(c *gin.Context) Params {
	page, _ := strconv.Atoi(c.DefaultQuery("page", strconv.Itoa(DefaultPage)))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(DefaultLimit)))
	return New(page, limit)
}

// Scope applies the page window to a gorm query.
func (p Params) Scope(db *gorm.DB) *gorm.DB {
	if p.Limit == 0 {
		p = New(p.Page, p.Limit)
	}
	return db.Offset(p.Offset).Limit(p.Limit)
}
