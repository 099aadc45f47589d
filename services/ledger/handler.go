package ledger

import (
	"net/http"

	"offerwall/pkg/db/pagination"
	"offerwall/pkg/errutil"
	"offerwall/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

type earningsResponse struct {
	Earnings []*Earning           `json:"earnings"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

func (h *Handler) Earnings(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		_ = c.Error(errutil.Unauthorized("authentication required", nil))
		return
	}

	var p pagination.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		_ = c.Error(errutil.BadRequest("invalid pagination", err))
		return
	}

	out, info, err := h.service.ListEarnings(c.Request.Context(), userID, p)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, earningsResponse{Earnings: out, PageInfo: info})
}

// Verify reconciles the caller's own earnings chain.
func (h *Handler) Verify(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		_ = c.Error(errutil.Unauthorized("authentication required", nil))
		return
	}

	report, err := h.service.VerifyChain(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, report)
}
