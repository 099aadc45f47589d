package attempt

import (
	"net/http"
	"time"

	"offerwall/pkg/errutil"
	"offerwall/pkg/middleware"
	"offerwall/services/offer"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type Handler struct {
	tracker *Tracker
}

func NewHandler(t *Tracker) *Handler {
	return &Handler{tracker: t}
}

type startResponse struct {
	AttemptID    snowflake.ID    `json:"attempt_id"`
	OfferID      snowflake.ID    `json:"offer_id"`
	Status       Status          `json:"status"`
	RewardAmount decimal.Decimal `json:"reward_amount"`
	StartedAt    time.Time       `json:"started_at"`
}

func (h *Handler) Start(c *gin.Context) {
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

	a, err := h.tracker.Start(c.Request.Context(), userID, offerID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, startResponse{
		AttemptID:    a.ID,
		OfferID:      a.OfferID,
		Status:       a.Status,
		RewardAmount: a.RewardAmount,
		StartedAt:    a.StartedAt,
	})
}

func (h *Handler) Mine(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		_ = c.Error(errutil.Unauthorized("authentication required", nil))
		return
	}

	out, err := h.tracker.ListByUser(c.Request.Context(), userID, ListFilter{Status: Status(c.Query("status"))})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"offers": out})
}
