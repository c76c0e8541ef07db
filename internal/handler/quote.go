package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tripflow/internal/domain"
	"tripflow/internal/service"
)

// QuoteHandler handles HTTP requests for fare quotes.
type QuoteHandler struct {
	quotes *service.QuoteService
}

// NewQuoteHandler creates a new QuoteHandler.
func NewQuoteHandler(quotes *service.QuoteService) *QuoteHandler {
	return &QuoteHandler{quotes: quotes}
}

// GetQuote handles GET /v1/quotes
func (h *QuoteHandler) GetQuote(c *gin.Context) {
	zone := c.Query("zone")
	product := c.Query("product")
	if product == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "product is required"})
		return
	}

	quote, err := h.quotes.GetQuote(c.Request.Context(), zone, domain.ProductCategory(product))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, quote)
}
