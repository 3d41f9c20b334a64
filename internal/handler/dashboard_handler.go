package handler

import (
	"net/http"
	"time"

	"opsboard/internal/middleware"
	"opsboard/internal/model"
	"opsboard/internal/projection"
	"opsboard/internal/service"
	"opsboard/pkg/response"

	"github.com/gin-gonic/gin"
)

// DashboardHandler serves the caller role's live dashboard. Reads come from the in-memory
// snapshot, never from the store.
type DashboardHandler struct {
	dashboards   *service.DashboardService
	readyTimeout time.Duration
}

func NewDashboardHandler(dashboards *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboards: dashboards, readyTimeout: 5 * time.Second}
}

func (h *DashboardHandler) RegisterRoutes(router *gin.RouterGroup, secret []byte) {
	group := router.Group("/api/dashboard")
	group.Use(middleware.RequireRole(secret))
	{
		group.GET("/requests", h.ListRequests)
		group.GET("/requests/:id", h.GetRequest)
		group.GET("/projection", h.GetProjection)
		group.GET("/status", h.GetStatus)
		group.POST("/resync", h.Resync)
	}
}

// dashboard returns the caller's dashboard once its first load is done.
func (h *DashboardHandler) dashboard(c *gin.Context) (*service.Dashboard, bool) {
	d, err := h.dashboards.Dashboard(middleware.CurrentActor(c).Role)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	select {
	case <-d.Ready():
		return d, true
	case <-time.After(h.readyTimeout):
	case <-c.Request.Context().Done():
	}
	c.JSON(http.StatusServiceUnavailable, response.Error(http.StatusServiceUnavailable, "dashboard is still loading"))
	return nil, false
}

func visible(actor service.Actor, r model.ApprovalRequest) bool {
	f := projection.ForRole(actor.Role, actor.ID)
	return f.Requests != nil && f.Requests(r)
}

// ListRequests returns the approval requests the caller may see, newest first
func (h *DashboardHandler) ListRequests(c *gin.Context) {
	d, ok := h.dashboard(c)
	if !ok {
		return
	}
	actor := middleware.CurrentActor(c)

	res := make([]service.ApprovalResponse, 0)
	for _, r := range d.GetAll() {
		if visible(actor, r) {
			res = append(res, service.NewApprovalResponse(r))
		}
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

func (h *DashboardHandler) GetRequest(c *gin.Context) {
	d, ok := h.dashboard(c)
	if !ok {
		return
	}

	r, found := d.GetByID(c.Param("id"))
	if !found || !visible(middleware.CurrentActor(c), r) {
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, "approval request not found"))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, service.NewApprovalResponse(r)))
}

// GetProjection returns the unified list of orders and requests for the caller
func (h *DashboardHandler) GetProjection(c *gin.Context) {
	d, ok := h.dashboard(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, d.Projection(middleware.CurrentActor(c).ID)))
}

// GetStatus reports whether the dashboard is following the change feed
func (h *DashboardHandler) GetStatus(c *gin.Context) {
	d, err := h.dashboards.Dashboard(middleware.CurrentActor(c).Role)
	if err != nil {
		writeError(c, err)
		return
	}

	status := gin.H{"role": d.Role(), "healthy": true}
	select {
	case <-d.Ready():
		status["ready"] = true
	default:
		status["ready"] = false
	}
	if healthy, feedErr := d.Healthy(); !healthy {
		status["healthy"] = false
		if feedErr != nil {
			status["error"] = feedErr.Error()
		}
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, status))
}

// Resync drops the caller role's snapshots and reloads them from the store
func (h *DashboardHandler) Resync(c *gin.Context) {
	d, err := h.dashboards.Dashboard(middleware.CurrentActor(c).Role)
	if err != nil {
		writeError(c, err)
		return
	}
	d.Resync()

	c.JSON(http.StatusAccepted, response.Success(http.StatusAccepted, gin.H{"role": d.Role()}))
}
