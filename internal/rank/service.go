package rank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/model"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/pkg/metrics"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/pkg/queue"
)

var (
	// ErrAlreadyRefreshing is returned when a refresh for the same
	// keyword is already in flight. Callers should retry later.
	ErrAlreadyRefreshing = errors.New("keyword refresh already in flight")

	// ErrEmptyPhrase rejects keyword creation before any external call.
	ErrEmptyPhrase = errors.New("keyword phrase is empty")
)

// Storage is the persistence surface the rank service depends on.
// Observations are append-only; history is returned chronologically.
type Storage interface {
	GetKeyword(ctx context.Context, id uint) (*model.Keyword, error)
	GetKeywordsByUser(ctx context.Context, userID uint) ([]model.Keyword, error)
	CreateKeyword(ctx context.Context, kw *model.Keyword) error
	UpdateKeywordRanks(ctx context.Context, kw *model.Keyword) error
	CreateRankObservation(ctx context.Context, obs *model.RankObservation) error
	GetProduct(ctx context.Context, id uint) (*model.Product, error)
	GetUser(ctx context.Context, id uint) (*model.User, error)
}

// Notifier delivers rank-change alerts.
type Notifier interface {
	NotifyRankChange(ctx context.Context, alert RankAlert) error
}

// AlertDeduper suppresses repeat alerts for the same keyword and
// direction within a time window.
type AlertDeduper interface {
	ShouldSend(ctx context.Context, keywordID uint, direction string) (bool, error)
}

// AlertSettings are the caller-supplied alerting thresholds.
type AlertSettings struct {
	ImprovementThreshold int // positions gained, default 5
	DeclineThreshold     int // positions lost, default 10
	NotifyImprovements   bool
	NotifyDeclines       bool
}

// RankAlert describes a threshold-crossing rank change.
type RankAlert struct {
	KeywordID    uint
	Phrase       string
	ProductTitle string
	ProductURL   string
	Email        string

	Direction string // "improvement" / "decline"
	Priority  string // "medium" / "high"
	OldRank   int
	NewRank   int
	Delta     int // old - new, positive = improvement
}

// RankStats aggregates a user's keyword positions.
type RankStats struct {
	TotalKeywords int     `json:"total_keywords"`
	Improved      int     `json:"improved"`
	Declined      int     `json:"declined"`
	TopTen        int     `json:"top_ten"`
	AverageRank   float64 `json:"average_rank"`
}

// RefreshFailure is one keyword that failed during a bulk refresh.
type RefreshFailure struct {
	KeywordID uint   `json:"keyword_id"`
	Phrase    string `json:"phrase"`
	Reason    string `json:"reason"`
}

// BulkRefreshResult reports partial success for a bulk refresh: the
// batch never aborts on one bad keyword.
type BulkRefreshResult struct {
	Total     int              `json:"total"`
	Refreshed int              `json:"refreshed"`
	Skipped   int              `json:"skipped"`
	Failures  []RefreshFailure `json:"failures,omitempty"`
}

// Service coordinates rank refreshes: provider calls, persistence,
// per-keyword serialization and alerting.
type Service struct {
	store    Storage
	provider Provider
	queue    *queue.Queue
	settings AlertSettings
	logger   *slog.Logger

	notifier Notifier
	deduper  AlertDeduper

	mu       sync.Mutex
	inFlight map[uint]struct{}
}

// NewService creates a rank service. queue may be nil; bulk refreshes
// then run sequentially in the caller's goroutine.
func NewService(store Storage, provider Provider, q *queue.Queue, settings AlertSettings, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		provider: provider,
		queue:    q,
		settings: settings,
		logger:   logger,
		inFlight: make(map[uint]struct{}),
	}
}

// SetNotifier wires alert delivery. deduper may be nil, in which case
// every qualifying alert is sent.
func (s *Service) SetNotifier(n Notifier, d AlertDeduper) {
	s.notifier = n
	s.deduper = d
}

// tryAcquire marks a keyword as in flight. Check and insert are atomic
// so concurrent refreshes for the same keyword cannot both proceed.
func (s *Service) tryAcquire(keywordID uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inFlight[keywordID]; ok {
		return false
	}
	s.inFlight[keywordID] = struct{}{}
	return true
}

func (s *Service) release(keywordID uint) {
	s.mu.Lock()
	delete(s.inFlight, keywordID)
	s.mu.Unlock()
}

// RefreshKeywordRank fetches the keyword's current position, appends an
// observation and rolls the keyword's current/previous ranks. A second
// concurrent call for the same keyword fails fast with
// ErrAlreadyRefreshing; distinct keywords refresh independently.
func (s *Service) RefreshKeywordRank(ctx context.Context, keywordID uint) (*model.RankObservation, error) {
	if !s.tryAcquire(keywordID) {
		metrics.RefreshConflictTotal.Inc()
		return nil, fmt.Errorf("keyword %d: %w", keywordID, ErrAlreadyRefreshing)
	}
	defer s.release(keywordID)

	kw, err := s.store.GetKeyword(ctx, keywordID)
	if err != nil {
		return nil, fmt.Errorf("load keyword %d: %w", keywordID, err)
	}
	product, err := s.store.GetProduct(ctx, kw.ProductID)
	if err != nil {
		return nil, fmt.Errorf("load product %d: %w", kw.ProductID, err)
	}

	obs, err := s.provider.FetchPosition(ctx, kw.Phrase, product.URL, QueryOptions{
		Country: kw.Country,
		Device:  kw.Device,
	})
	if err != nil {
		metrics.RankChecksTotal.WithLabelValues("live", "error").Inc()
		return nil, fmt.Errorf("fetch position: %w", err)
	}

	obs.KeywordID = kw.ID
	if err := s.store.CreateRankObservation(ctx, obs); err != nil {
		return nil, fmt.Errorf("persist observation: %w", err)
	}

	oldRank := kw.CurrentRank
	now := time.Now()
	kw.PreviousRank = kw.CurrentRank
	kw.CurrentRank = obs.Position
	kw.LastCheckedAt = &now
	if err := s.store.UpdateKeywordRanks(ctx, kw); err != nil {
		return nil, fmt.Errorf("update keyword ranks: %w", err)
	}

	metrics.RankChecksTotal.WithLabelValues(obs.Mode, "ok").Inc()
	s.logger.Info("keyword rank refreshed",
		slog.Uint64("keyword_id", uint64(kw.ID)),
		slog.String("phrase", kw.Phrase),
		slog.String("mode", obs.Mode))

	s.evaluateAlert(ctx, kw, product, oldRank, obs.Position)
	return obs, nil
}

// AddKeyword validates and creates a keyword, then runs one immediate
// refresh. The refresh failing is non-fatal; the keyword still exists
// with no rank.
func (s *Service) AddKeyword(ctx context.Context, userID, productID uint, phrase string, opts QueryOptions) (*model.Keyword, error) {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return nil, ErrEmptyPhrase
	}
	opts.applyDefaults()

	kw := &model.Keyword{
		UserID:    userID,
		ProductID: productID,
		Phrase:    phrase,
		Country:   opts.Country,
		Device:    opts.Device,
	}
	if err := s.store.CreateKeyword(ctx, kw); err != nil {
		return nil, fmt.Errorf("create keyword: %w", err)
	}

	if _, err := s.RefreshKeywordRank(ctx, kw.ID); err != nil {
		s.logger.Warn("initial refresh failed, keyword created without rank",
			slog.Uint64("keyword_id", uint64(kw.ID)),
			slog.String("error", err.Error()))
	}
	return kw, nil
}

// CalculateRankChange computes the delta between the last two
// observations of a chronologically-ordered history. Fewer than two
// observations, or either position absent, yields 0.
func CalculateRankChange(history []model.RankObservation) int {
	if len(history) < 2 {
		return 0
	}
	prev := history[len(history)-2].Position
	cur := history[len(history)-1].Position
	if prev == nil || cur == nil {
		return 0
	}
	return *prev - *cur
}

// ShouldAlert decides whether a rank change crosses an alert threshold.
// delta = old - new, so positive means the listing moved up. Either
// rank being absent suppresses alerting entirely.
func ShouldAlert(oldRank, newRank *int, settings AlertSettings) (RankAlert, bool) {
	if oldRank == nil || newRank == nil {
		return RankAlert{}, false
	}
	delta := *oldRank - *newRank

	if settings.NotifyImprovements && delta >= settings.ImprovementThreshold {
		return RankAlert{
			Direction: "improvement",
			Priority:  "medium",
			OldRank:   *oldRank,
			NewRank:   *newRank,
			Delta:     delta,
		}, true
	}
	if settings.NotifyDeclines && delta <= -settings.DeclineThreshold {
		return RankAlert{
			Direction: "decline",
			Priority:  "high",
			OldRank:   *oldRank,
			NewRank:   *newRank,
			Delta:     delta,
		}, true
	}
	return RankAlert{}, false
}

// evaluateAlert sends a notification when the rank change crosses a
// threshold. Delivery problems are logged, never surfaced: the refresh
// itself already succeeded.
func (s *Service) evaluateAlert(ctx context.Context, kw *model.Keyword, product *model.Product, oldRank, newRank *int) {
	alert, ok := ShouldAlert(oldRank, newRank, s.settings)
	if !ok || s.notifier == nil {
		return
	}

	alert.KeywordID = kw.ID
	alert.Phrase = kw.Phrase
	alert.ProductTitle = product.Title
	alert.ProductURL = product.URL

	user, err := s.store.GetUser(ctx, kw.UserID)
	if err != nil {
		s.logger.Warn("load user for alert failed",
			slog.Uint64("user_id", uint64(kw.UserID)),
			slog.String("error", err.Error()))
		return
	}
	alert.Email = user.Email

	if s.deduper != nil {
		send, err := s.deduper.ShouldSend(ctx, kw.ID, alert.Direction)
		if err != nil {
			s.logger.Warn("alert dedup check failed, sending anyway",
				slog.String("error", err.Error()))
		} else if !send {
			metrics.AlertsSuppressedTotal.Inc()
			s.logger.Debug("alert suppressed by dedup window",
				slog.Uint64("keyword_id", uint64(kw.ID)),
				slog.String("direction", alert.Direction))
			return
		}
	}

	if err := s.notifier.NotifyRankChange(ctx, alert); err != nil {
		s.logger.Warn("rank alert delivery failed",
			slog.Uint64("keyword_id", uint64(kw.ID)),
			slog.String("error", err.Error()))
		return
	}
	metrics.AlertsSentTotal.WithLabelValues(alert.Direction).Inc()
}

// UserRankStats aggregates position stats across a user's keywords.
func (s *Service) UserRankStats(ctx context.Context, userID uint) (*RankStats, error) {
	keywords, err := s.store.GetKeywordsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load keywords: %w", err)
	}

	stats := &RankStats{TotalKeywords: len(keywords)}
	sum, ranked := 0, 0
	for _, kw := range keywords {
		if kw.CurrentRank != nil {
			sum += *kw.CurrentRank
			ranked++
			if *kw.CurrentRank <= 10 {
				stats.TopTen++
			}
		}
		if kw.CurrentRank != nil && kw.PreviousRank != nil {
			delta := *kw.PreviousRank - *kw.CurrentRank
			if delta > 0 {
				stats.Improved++
			} else if delta < 0 {
				stats.Declined++
			}
		}
	}
	if ranked > 0 {
		stats.AverageRank = float64(sum) / float64(ranked)
	}
	return stats, nil
}

// RefreshAllKeywords refreshes every keyword of a user through the
// worker queue with bounded concurrency. Partial success: individual
// failures are collected, keywords already in flight are skipped, and
// the batch always runs to completion.
func (s *Service) RefreshAllKeywords(ctx context.Context, userID uint) (*BulkRefreshResult, error) {
	keywords, err := s.store.GetKeywordsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load keywords: %w", err)
	}

	res := &BulkRefreshResult{Total: len(keywords)}
	var mu sync.Mutex
	var wg sync.WaitGroup

	record := func(kw model.Keyword, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err == nil:
			res.Refreshed++
		case errors.Is(err, ErrAlreadyRefreshing):
			res.Skipped++
		default:
			res.Failures = append(res.Failures, RefreshFailure{
				KeywordID: kw.ID,
				Phrase:    kw.Phrase,
				Reason:    err.Error(),
			})
		}
	}

	for _, kw := range keywords {
		kw := kw

		if s.queue == nil {
			_, err := s.RefreshKeywordRank(ctx, kw.ID)
			record(kw, err)
			continue
		}

		wg.Add(1)
		job := func(jobCtx context.Context) error {
			defer wg.Done()
			_, err := s.RefreshKeywordRank(jobCtx, kw.ID)
			record(kw, err)
			if errors.Is(err, ErrAlreadyRefreshing) {
				return nil
			}
			return err
		}
		if err := s.queue.EnqueueBlocking(ctx, job); err != nil {
			wg.Done()
			record(kw, fmt.Errorf("enqueue refresh: %w", err))
		}
	}
	wg.Wait()

	s.logger.Info("bulk refresh finished",
		slog.Uint64("user_id", uint64(userID)),
		slog.Int("total", res.Total),
		slog.Int("refreshed", res.Refreshed),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", len(res.Failures)))
	return res, nil
}
