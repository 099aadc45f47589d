package offer

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	catalog *Catalog
}

func NewHandler(c *Catalog) *Handler {
	return &Handler{catalog: c}
}

type listQuery struct {
	Provider string `form:"provider"`
	Category string `form:"category"`
	Page     int    `form:"page,default=1"`
	Limit    int    `form:"limit,default=20"`
}

type listResponse struct {
	Offers []*Offer `json:"offers"`
	Total  int64    `json:"total"`
	Page   int      `json:"page"`
	Limit  int      `json:"limit"`
}

func (h *Handler) List(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		q = listQuery{Page: 1, Limit: defaultPageLimit}
	}

	offers, total, err := h.catalog.List(c.Request.Context(), ListFilter{
		Provider: q.Provider,
		Category: q.Category,
		Page:     q.Page,
		Limit:    q.Limit,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	if offers == nil {
		offers = []*Offer{}
	}
	c.JSON(http.StatusOK, listResponse{Offers: offers, Total: total, Page: max(q.Page, 1), Limit: pageLimit(q.Limit)})
}

func (h *Handler) Get(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		_ = c.Error(notFound())
		return
	}

	o, err := h.catalog.Get(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, o)
}

func (h *Handler) Categories(c *gin.Context) {
	out, err := h.catalog.Categories(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": out})
}

func (h *Handler) Providers(c *gin.Context) {
	out, err := h.catalog.Providers(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}
