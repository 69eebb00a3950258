package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/pkg/metrics"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/seo"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type scoreRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Keywords    string `json:"keywords"` // comma-separated
}

// handleScoreText scores ad-hoc listing copy without persisting
// anything, so sellers can iterate on drafts.
//
// POST /seo/score
func (s *Server) handleScoreText(c *gin.Context) {
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	metrics.SeoScoresTotal.WithLabelValues("adhoc").Inc()
	c.JSON(http.StatusOK, seo.ScoreProduct(req.Title, req.Description, req.Keywords))
}

// handleProductSEO scores a stored product's listing copy.
//
// GET /products/:id/seo
func (s *Server) handleProductSEO(c *gin.Context) {
	id, ok := parsePathID(c)
	if !ok {
		return
	}
	product, err := s.store.GetProductForUser(c.Request.Context(), id, getUserID(c))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		s.logger.Error("get product failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get product failed"})
		return
	}

	metrics.SeoScoresTotal.WithLabelValues("product").Inc()
	c.JSON(http.StatusOK, gin.H{
		"product_id": product.ID,
		"title":      product.Title,
		"score":      seo.ScoreProduct(product.Title, product.Description, product.Keywords),
	})
}
