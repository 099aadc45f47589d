package user

import (
	"net/http"

	"offerwall/pkg/errutil"
	"offerwall/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	directory *Directory
}

func NewHandler(d *Directory) *Handler {
	return &Handler{directory: d}
}

type updatePayoutAddressRequest struct {
	PayoutAddress string `json:"payout_address" binding:"required,max=255"`
}

// Me returns the caller's profile and ledger totals.
func (h *Handler) Me(c *gin.Context) {
	id, ok := middleware.UserID(c)
	if !ok {
		_ = c.Error(errutil.Unauthorized("authentication required", nil))
		return
	}

	u, err := h.directory.Get(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, u)
}

func (h *Handler) UpdatePayoutAddress(c *gin.Context) {
	id, ok := middleware.UserID(c)
	if !ok {
		_ = c.Error(errutil.Unauthorized("authentication required", nil))
		return
	}

	var req updatePayoutAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("payout_address is required", err))
		return
	}

	u, err := h.directory.UpdatePayoutAddress(c.Request.Context(), id, req.PayoutAddress)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, u)
}
