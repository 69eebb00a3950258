package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	st := New(db)
	if err := st.AutoMigrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}

func seedKeyword(t *testing.T, st *Store) *model.Keyword {
	t.Helper()
	ctx := context.Background()

	user := &model.User{Email: "seller@example.com", Password: "x", Role: "seller"}
	if err := st.db.WithContext(ctx).Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	product := &model.Product{
		UserID: user.ID,
		Title:  "Algebra Task Cards",
		URL:    "https://example.com/algebra-task-cards",
	}
	if err := st.CreateProduct(ctx, product); err != nil {
		t.Fatalf("create product: %v", err)
	}
	kw := &model.Keyword{
		UserID:    user.ID,
		ProductID: product.ID,
		Phrase:    "algebra task cards",
		Country:   "us",
		Device:    "desktop",
	}
	if err := st.CreateKeyword(ctx, kw); err != nil {
		t.Fatalf("create keyword: %v", err)
	}
	return kw
}

func TestCreateRankObservation_PositionRoundTrip(t *testing.T) {
	st := newTestStore(t)
	kw := seedKeyword(t, st)
	ctx := context.Background()

	pos := 7
	base := time.Now().Truncate(time.Second)
	found := &model.RankObservation{
		KeywordID: kw.ID,
		Position:  &pos,
		URLFound:  "https://example.com/algebra-task-cards",
		Mode:      "live",
		FetchedAt: base,
	}
	missing := &model.RankObservation{
		KeywordID: kw.ID,
		Mode:      "demo",
		FetchedAt: base.Add(time.Minute),
	}
	if err := st.CreateRankObservation(ctx, found); err != nil {
		t.Fatalf("create found observation: %v", err)
	}
	if err := st.CreateRankObservation(ctx, missing); err != nil {
		t.Fatalf("create missing observation: %v", err)
	}

	history, err := st.GetRankHistory(ctx, kw.ID, 0)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history len = %d, want 2", len(history))
	}
	if history[0].Position == nil || *history[0].Position != 7 {
		t.Fatalf("first position = %v, want 7", history[0].Position)
	}
	if history[0].URLFound != found.URLFound {
		t.Errorf("url_found = %q, want %q", history[0].URLFound, found.URLFound)
	}
	if history[1].Position != nil {
		t.Fatalf("not-found position = %d, want nil", *history[1].Position)
	}
	if history[1].Mode != "demo" {
		t.Errorf("mode = %q, want demo", history[1].Mode)
	}
}

func TestGetRankHistory_ChronologicalOrder(t *testing.T) {
	st := newTestStore(t)
	kw := seedKeyword(t, st)
	ctx := context.Background()

	// Inserted newest first; reads must still come back oldest first.
	base := time.Now().Truncate(time.Second)
	positions := []int{3, 8, 12}
	for i, p := range positions {
		p := p
		obs := &model.RankObservation{
			KeywordID: kw.ID,
			Position:  &p,
			Mode:      "live",
			FetchedAt: base.Add(-time.Duration(i) * time.Hour),
		}
		if err := st.CreateRankObservation(ctx, obs); err != nil {
			t.Fatalf("create observation %d: %v", i, err)
		}
	}

	history, err := st.GetRankHistory(ctx, kw.ID, 0)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history len = %d, want 3", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].FetchedAt.Before(history[i-1].FetchedAt) {
			t.Fatalf("history out of order at %d: %v before %v", i, history[i].FetchedAt, history[i-1].FetchedAt)
		}
	}
	// Oldest insert carried position 12.
	if history[0].Position == nil || *history[0].Position != 12 {
		t.Fatalf("oldest position = %v, want 12", history[0].Position)
	}

	limited, err := st.GetRankHistory(ctx, kw.ID, 2)
	if err != nil {
		t.Fatalf("get limited history: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limited len = %d, want 2", len(limited))
	}
}

func TestUpdateKeywordRanks_NilOverwritesRank(t *testing.T) {
	st := newTestStore(t)
	kw := seedKeyword(t, st)
	ctx := context.Background()

	rank := 5
	now := time.Now().Truncate(time.Second)
	kw.CurrentRank = &rank
	kw.LastCheckedAt = &now
	if err := st.UpdateKeywordRanks(ctx, kw); err != nil {
		t.Fatalf("set initial rank: %v", err)
	}

	// The product dropped out of the results: current goes nil and the
	// old rank rolls into previous. Save would silently skip the nil.
	later := now.Add(time.Hour)
	kw.PreviousRank = &rank
	kw.CurrentRank = nil
	kw.LastCheckedAt = &later
	if err := st.UpdateKeywordRanks(ctx, kw); err != nil {
		t.Fatalf("update to nil rank: %v", err)
	}

	got, err := st.GetKeyword(ctx, kw.ID)
	if err != nil {
		t.Fatalf("reload keyword: %v", err)
	}
	if got.CurrentRank != nil {
		t.Fatalf("current rank = %d, want nil", *got.CurrentRank)
	}
	if got.PreviousRank == nil || *got.PreviousRank != 5 {
		t.Fatalf("previous rank = %v, want 5", got.PreviousRank)
	}
	if got.LastCheckedAt == nil {
		t.Fatalf("last checked at = nil, want set")
	}
}

func TestDeleteProduct_CascadesKeywordsObservationsSales(t *testing.T) {
	st := newTestStore(t)
	kw := seedKeyword(t, st)
	ctx := context.Background()

	pos := 9
	obs := &model.RankObservation{KeywordID: kw.ID, Position: &pos, Mode: "live", FetchedAt: time.Now()}
	if err := st.CreateRankObservation(ctx, obs); err != nil {
		t.Fatalf("create observation: %v", err)
	}
	sales := []model.Sale{{UserID: kw.UserID, ProductID: kw.ProductID, Date: time.Now(), Units: 2, Revenue: 900}}
	if err := st.CreateSales(ctx, sales); err != nil {
		t.Fatalf("create sales: %v", err)
	}

	if err := st.DeleteProduct(ctx, kw.ProductID, kw.UserID); err != nil {
		t.Fatalf("delete product: %v", err)
	}

	if _, err := st.GetKeyword(ctx, kw.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("keyword err = %v, want record not found", err)
	}
	history, err := st.GetRankHistory(ctx, kw.ID, 0)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("observations survived delete: %d", len(history))
	}
	var saleCount int64
	if err := st.db.Model(&model.Sale{}).Where("product_id = ?", kw.ProductID).Count(&saleCount).Error; err != nil {
		t.Fatalf("count sales: %v", err)
	}
	if saleCount != 0 {
		t.Fatalf("sales survived delete: %d", saleCount)
	}
}
