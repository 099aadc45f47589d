package settlement

import (
	"fmt"
	"net/http"

	"offerwall/pkg/errutil"
	"offerwall/pkg/middleware"
	"offerwall/services/attempt"
	"offerwall/services/offer"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type Handler struct {
	engine *Engine
}

func NewHandler(e *Engine) *Handler {
	return &Handler{engine: e}
}

type completeResponse struct {
	Message string          `json:"message"`
	Amount  decimal.Decimal `json:"amount"`
	Balance decimal.Decimal `json:"balance"`
}

// Complete is the in-app completion path. It runs the same settlement as a
// provider postback, but a repeat completion is reported to the user as a
// conflict.
func (h *Handler) Complete(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		_ = c.Error(errutil.Unauthorized("authentication required", nil))
		return
	}

	offerID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		_ = c.Error(errutil.NotFound("Offer not found", offer.ErrOfferNotFound))
		return
	}

	res, err := h.engine.Settle(c.Request.Context(), Signal{
		UserID:  userID,
		OfferID: offerID,
		Status:  attempt.StatusCompleted,
		Source:  SourceDirect,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	if res.Reason == ReasonAlreadySettled {
		_ = c.Error(errutil.Conflict("Offer already completed", attempt.ErrInvalidTransition))
		return
	}

	c.JSON(http.StatusOK, completeResponse{
		Message: fmt.Sprintf("Offer completed! You earned $%s", res.Amount.StringFixed(2)),
		Amount:  res.Amount,
		Balance: res.Balance,
	})
}
