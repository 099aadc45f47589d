package callback

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// Postback always answers 200 with the provider's literal ack body.
// Providers retry on anything else, so errors are carried in the text.
func (h *Handler) Postback(c *gin.Context) {
	ack := h.service.Ingest(c.Request.Context(), c.Param("provider"), c.Request.URL.Query())
	c.String(http.StatusOK, ack)
}

func (h *Handler) Lootably(c *gin.Context) {
	ack := h.service.Ingest(c.Request.Context(), ProviderLootably, c.Request.URL.Query())
	c.String(http.StatusOK, ack)
}
