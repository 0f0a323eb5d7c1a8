package refund

import (
	"net/http"

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
	r.POST("/admin/orders/:order_id/refunds", h.Issue)
	r.GET("/admin/refunds/:id", h.Get)
}

func (h *Handler) Issue(c *gin.Context) {
	var req IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}
	req.OrderID = c.Param("order_id")

	rf, err := h.svc.Issue(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	status := http.StatusCreated
	if rf.Status == StatusRequested {
		status = http.StatusAccepted
	}
	c.JSON(status, rf)
}

func (h *Handler) Get(c *gin.Context) {
	rf, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rf)
}
