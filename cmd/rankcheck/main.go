package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/config"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/pkg/logger"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/rank"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/store"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// rankcheck runs one refresh pass from the command line: either every
// keyword of one user, or every keyword that is due. Useful for cron
// setups that do not keep the API server running.
func main() {
	userID := flag.Uint("user", 0, "refresh all keywords of this user (0 = all due keywords)")
	limit := flag.Int("limit", 500, "max keywords per pass when refreshing due keywords")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	appLogger := logger.NewDefault(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		appLogger.Error("open database failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	st := store.New(db)

	provider := rank.NewSerpClient(cfg.Search, appLogger)
	svc := rank.NewService(st, provider, nil, rank.AlertSettings{
		ImprovementThreshold: cfg.Alerts.ImprovementThreshold,
		DeclineThreshold:     cfg.Alerts.DeclineThreshold,
		NotifyImprovements:   cfg.Alerts.NotifyImprovements,
		NotifyDeclines:       cfg.Alerts.NotifyDeclines,
	}, appLogger)

	start := time.Now()
	if *userID > 0 {
		result, err := svc.RefreshAllKeywords(ctx, uint(*userID))
		if err != nil {
			appLogger.Error("refresh failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		fmt.Printf("user %d: %d keywords, %d refreshed, %d skipped, %d failed (%s)\n",
			*userID, result.Total, result.Refreshed, result.Skipped, len(result.Failures), time.Since(start).Round(time.Millisecond))
		for _, f := range result.Failures {
			fmt.Printf("  keyword %d %q: %s\n", f.KeywordID, f.Phrase, f.Reason)
		}
		return
	}

	cutoff := time.Now().Add(-cfg.App.CheckInterval)
	keywords, err := st.GetDueKeywords(ctx, cutoff, *limit)
	if err != nil {
		appLogger.Error("load due keywords failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var refreshed, failed int
	for _, kw := range keywords {
		if ctx.Err() != nil {
			break
		}
		obs, err := svc.RefreshKeywordRank(ctx, kw.ID)
		if err != nil {
			if errors.Is(err, rank.ErrAlreadyRefreshing) {
				continue
			}
			failed++
			appLogger.Warn("refresh failed",
				slog.Uint64("keyword_id", uint64(kw.ID)),
				slog.String("phrase", kw.Phrase),
				slog.String("error", err.Error()),
			)
			continue
		}
		refreshed++
		if obs.Position != nil {
			fmt.Printf("keyword %d %q: position %d (%s)\n", kw.ID, kw.Phrase, *obs.Position, obs.Mode)
		} else {
			fmt.Printf("keyword %d %q: not found\n", kw.ID, kw.Phrase)
		}
	}
	fmt.Printf("%d due keywords, %d refreshed, %d failed (%s)\n",
		len(keywords), refreshed, failed, time.Since(start).Round(time.Millisecond))
}
