package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/model"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/rank"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type createKeywordRequest struct {
	ProductID uint   `json:"product_id" binding:"required"`
	Phrase    string `json:"phrase" binding:"required"`
	Country   string `json:"country"`
	Device    string `json:"device"`
}

type keywordResponse struct {
	ID            uint       `json:"id"`
	ProductID     uint       `json:"product_id"`
	Phrase        string     `json:"phrase"`
	Country       string     `json:"country"`
	Device        string     `json:"device"`
	CurrentRank   *int       `json:"current_rank"`
	PreviousRank  *int       `json:"previous_rank"`
	LastCheckedAt *time.Time `json:"last_checked_at"`
	Status        string     `json:"status,omitempty"`
	StatusMessage string     `json:"status_message,omitempty"`
}

func (s *Server) toKeywordResponse(c *gin.Context, kw *model.Keyword) keywordResponse {
	resp := keywordResponse{
		ID:            kw.ID,
		ProductID:     kw.ProductID,
		Phrase:        kw.Phrase,
		Country:       kw.Country,
		Device:        kw.Device,
		CurrentRank:   kw.CurrentRank,
		PreviousRank:  kw.PreviousRank,
		LastCheckedAt: kw.LastCheckedAt,
	}
	if s.status != nil {
		resp.Status, resp.StatusMessage = s.status.Get(c.Request.Context(), kw.ID)
	}
	return resp
}

// handleListKeywords lists the user's keywords, optionally filtered by
// product.
//
// GET /keywords?product_id=3
func (s *Server) handleListKeywords(c *gin.Context) {
	userID := getUserID(c)

	var (
		keywords []model.Keyword
		err      error
	)
	if productID := parseQueryInt(c, "product_id", 0); productID > 0 {
		keywords, err = s.store.GetKeywordsByProduct(c.Request.Context(), uint(productID), userID)
	} else {
		keywords, err = s.store.GetKeywordsByUser(c.Request.Context(), userID)
	}
	if err != nil {
		s.logger.Error("list keywords failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list keywords failed"})
		return
	}

	out := make([]keywordResponse, 0, len(keywords))
	for i := range keywords {
		out = append(out, s.toKeywordResponse(c, &keywords[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleCreateKeyword(c *gin.Context) {
	userID := getUserID(c)

	var req createKeywordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := s.store.GetProductForUser(c.Request.Context(), req.ProductID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		s.logger.Error("get product failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get product failed"})
		return
	}

	count, err := s.store.CountKeywordsByUser(c.Request.Context(), userID)
	if err != nil {
		s.logger.Error("count keywords failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count keywords failed"})
		return
	}
	maxKeywords := s.cfg.App.MaxKeywordsUser
	if maxKeywords <= 0 {
		maxKeywords = 50
	}
	if count >= int64(maxKeywords) {
		c.JSON(http.StatusForbidden, gin.H{"error": "keyword limit reached"})
		return
	}

	kw, err := s.ranks.AddKeyword(c.Request.Context(), userID, req.ProductID, req.Phrase, rank.QueryOptions{
		Country: strings.TrimSpace(req.Country),
		Device:  strings.TrimSpace(req.Device),
	})
	if err != nil {
		if errors.Is(err, rank.ErrEmptyPhrase) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "keyword phrase is empty"})
			return
		}
		s.logger.Error("create keyword failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create keyword failed"})
		return
	}
	c.JSON(http.StatusCreated, s.toKeywordResponse(c, kw))
}

func (s *Server) handleDeleteKeyword(c *gin.Context) {
	id, ok := parsePathID(c)
	if !ok {
		return
	}
	if err := s.store.DeleteKeyword(c.Request.Context(), id, getUserID(c)); err != nil {
		s.logger.Error("delete keyword failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete keyword failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// handleRefreshKeyword refreshes one keyword's rank now. A refresh
// already in flight for the same keyword is a conflict, not an error
// to retry silently.
//
// POST /keywords/:id/refresh
func (s *Server) handleRefreshKeyword(c *gin.Context) {
	id, ok := parsePathID(c)
	if !ok {
		return
	}
	userID := getUserID(c)

	kw, err := s.store.GetKeyword(c.Request.Context(), id)
	if err != nil || kw.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "keyword not found"})
		return
	}

	obs, err := s.ranks.RefreshKeywordRank(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, rank.ErrAlreadyRefreshing) {
			c.JSON(http.StatusConflict, gin.H{"error": "refresh already in progress"})
			return
		}
		s.logger.Error("refresh keyword failed",
			slog.Uint64("keyword_id", uint64(id)),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"keyword_id": id,
		"position":   obs.Position,
		"url_found":  obs.URLFound,
		"mode":       obs.Mode,
		"fetched_at": obs.FetchedAt,
	})
}

// handleRefreshAll refreshes every keyword the user tracks and reports
// partial success.
//
// POST /keywords/refresh
func (s *Server) handleRefreshAll(c *gin.Context) {
	result, err := s.ranks.RefreshAllKeywords(c.Request.Context(), getUserID(c))
	if err != nil {
		s.logger.Error("bulk refresh failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "bulk refresh failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

type historyEntry struct {
	Position  *int      `json:"position"`
	URLFound  string    `json:"url_found"`
	Mode      string    `json:"mode"`
	FetchedAt time.Time `json:"fetched_at"`
}

// handleKeywordHistory returns a keyword's observations in
// chronological order plus the change between the last two.
//
// GET /keywords/:id/history?limit=50
func (s *Server) handleKeywordHistory(c *gin.Context) {
	id, ok := parsePathID(c)
	if !ok {
		return
	}
	userID := getUserID(c)

	kw, err := s.store.GetKeyword(c.Request.Context(), id)
	if err != nil || kw.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "keyword not found"})
		return
	}

	limit := parseQueryInt(c, "limit", 0)
	history, err := s.store.GetRankHistory(c.Request.Context(), id, limit)
	if err != nil {
		s.logger.Error("load history failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load history failed"})
		return
	}

	entries := make([]historyEntry, 0, len(history))
	for _, obs := range history {
		entries = append(entries, historyEntry{
			Position:  obs.Position,
			URLFound:  obs.URLFound,
			Mode:      obs.Mode,
			FetchedAt: obs.FetchedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"keyword_id": id,
		"phrase":     kw.Phrase,
		"history":    entries,
		"change":     rank.CalculateRankChange(history),
	})
}

// GET /stats/ranks
func (s *Server) handleRankStats(c *gin.Context) {
	stats, err := s.ranks.UserRankStats(c.Request.Context(), getUserID(c))
	if err != nil {
		s.logger.Error("rank stats failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rank stats failed"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
