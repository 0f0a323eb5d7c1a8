package task

import (
	"io"
	"net/http"

	"aura-payments/pkg/db/pagination"
	"aura-payments/pkg/errutil"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/admin/jobs", h.List)
	r.POST("/admin/jobs/:name", h.Trigger)
}

func (h *Handler) List(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		_ = c.Error(errutil.BadRequest("invalid pagination", err))
		return
	}

	jobs, info, err := h.svc.Jobs(c.Request.Context(), c.Query("task"), page)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": jobs, "page_info": info})
}

func (h *Handler) Trigger(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 64<<10))
	if err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	info, err := h.svc.Trigger(c.Request.Context(), c.Param("name"), payload)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": info.ID, "queue": info.Queue})
}
