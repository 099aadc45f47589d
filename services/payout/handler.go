package payout

import (
	"net/http"

	"offerwall/pkg/db/pagination"
	"offerwall/pkg/errutil"
	"offerwall/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

type requestBody struct {
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method"`
	Destination string          `json:"destination"`
}

type requestResponse struct {
	Message string  `json:"message"`
	Payout  *Payout `json:"payout"`
}

type historyResponse struct {
	Payouts  []*Payout            `json:"payouts"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

func (h *Handler) Request(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		_ = c.Error(errutil.Unauthorized("authentication required", nil))
		return
	}

	var body requestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	p, err := h.service.RequestPayout(c.Request.Context(), userID, Request{
		Amount:      body.Amount,
		Method:      Method(body.Method),
		Destination: body.Destination,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, requestResponse{
		Message: "Payout of $" + p.Amount.StringFixed(2) + " requested",
		Payout:  p,
	})
}

func (h *Handler) History(c *gin.Context) {
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

	out, info, err := h.service.History(c.Request.Context(), userID, p)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, historyResponse{Payouts: out, PageInfo: info})
}

func (h *Handler) Info(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		_ = c.Error(errutil.Unauthorized("authentication required", nil))
		return
	}

	info, err := h.service.Info(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, info)
}
