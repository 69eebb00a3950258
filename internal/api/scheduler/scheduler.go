package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/model"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/pkg/metrics"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/pkg/queue"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/pkg/statuscache"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/rank"
)

// KeywordSource lists keywords whose last check is older than a cutoff.
type KeywordSource interface {
	GetDueKeywords(ctx context.Context, cutoff time.Time, limit int) ([]model.Keyword, error)
}

// Refresher performs one keyword rank refresh.
type Refresher interface {
	RefreshKeywordRank(ctx context.Context, keywordID uint) (*model.RankObservation, error)
}

// Config controls the scheduling loop.
type Config struct {
	Tick          time.Duration // poll interval
	CheckInterval time.Duration // how old a check must be before a keyword is due
	BatchSize     int           // max keywords enqueued per tick
}

// Scheduler periodically finds due keywords and feeds them to the
// refresh worker pool. The per-keyword in-flight guard in the rank
// service makes re-enqueueing an already queued keyword harmless.
type Scheduler struct {
	store  KeywordSource
	ranks  Refresher
	queue  *queue.Queue
	status *statuscache.Cache
	logger *slog.Logger
	cfg    Config
}

func New(store KeywordSource, ranks Refresher, q *queue.Queue, status *statuscache.Cache, logger *slog.Logger, cfg Config) *Scheduler {
	if cfg.Tick <= 0 {
		cfg.Tick = 15 * time.Minute
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 24 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	q.SetErrorHandler(func(err error, job queue.Job) {
		logger.Error("keyword refresh failed", slog.String("error", err.Error()))
	})

	return &Scheduler{
		store:  store,
		ranks:  ranks,
		queue:  q,
		status: status,
		logger: logger,
		cfg:    cfg,
	}
}

// Run blocks until ctx is canceled, enqueueing due keywords every tick.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started",
		slog.String("tick", s.cfg.Tick.String()),
		slog.String("check_interval", s.cfg.CheckInterval.String()),
		slog.Int("batch_size", s.cfg.BatchSize),
	)

	// First pass immediately so a restart does not wait a full tick.
	s.EnqueueDueKeywords(ctx)

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	statsTicker := time.NewTicker(1 * time.Minute)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.EnqueueDueKeywords(ctx)
		case <-statsTicker.C:
			s.logQueueStats()
		}
	}
}

// EnqueueDueKeywords schedules one refresh pass over due keywords.
func (s *Scheduler) EnqueueDueKeywords(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.CheckInterval)
	keywords, err := s.store.GetDueKeywords(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("load due keywords failed", slog.String("error", err.Error()))
		return
	}
	if len(keywords) == 0 {
		return
	}

	s.logger.Info("enqueueing due keywords", slog.Int("count", len(keywords)))
	for _, kw := range keywords {
		if ctx.Err() != nil {
			return
		}
		s.enqueueRefresh(ctx, kw.ID)
	}
	metrics.QueueDepth.Set(float64(s.queue.Len()))
}

func (s *Scheduler) enqueueRefresh(ctx context.Context, keywordID uint) {
	err := s.queue.EnqueueBlocking(ctx, func(ctx context.Context) error {
		return s.refreshOne(ctx, keywordID)
	})
	if err != nil {
		s.logger.Warn("enqueue refresh blocked or canceled",
			slog.Uint64("keyword_id", uint64(keywordID)),
			slog.String("error", err.Error()),
			slog.Int("queue_len", s.queue.Len()),
		)
	}
}

func (s *Scheduler) refreshOne(ctx context.Context, keywordID uint) error {
	s.setStatus(ctx, keywordID, statuscache.StatusRunning, "")

	obs, err := s.ranks.RefreshKeywordRank(ctx, keywordID)
	if err != nil {
		if errors.Is(err, rank.ErrAlreadyRefreshing) {
			// Another caller got there first, its outcome stands.
			return nil
		}
		s.setStatus(ctx, keywordID, statuscache.StatusFailed, err.Error())
		return err
	}

	message := "not found in results"
	if obs.Position != nil {
		message = fmt.Sprintf("position %d (%s)", *obs.Position, obs.Mode)
	}
	s.setStatus(ctx, keywordID, statuscache.StatusOK, message)
	return nil
}

func (s *Scheduler) setStatus(ctx context.Context, keywordID uint, status, message string) {
	if s.status == nil {
		return
	}
	if err := s.status.Set(ctx, keywordID, status, message); err != nil {
		s.logger.Warn("set refresh status failed",
			slog.Uint64("keyword_id", uint64(keywordID)),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Scheduler) logQueueStats() {
	stats := s.queue.Stats()
	metrics.QueueDepth.Set(float64(s.queue.Len()))
	s.logger.Info("queue statistics",
		slog.Int("pending", s.queue.Len()),
		slog.Int("capacity", s.queue.Cap()),
		slog.Int64("total_enqueued", stats.TotalEnqueued),
		slog.Int64("total_processed", stats.TotalProcessed),
		slog.Int64("total_succeeded", stats.TotalSucceeded),
		slog.Int64("total_failed", stats.TotalFailed),
		slog.Int64("total_dropped", stats.TotalDropped),
		slog.Int64("total_panics", stats.TotalPanics),
	)
}
