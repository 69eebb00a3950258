// Package store implements MySQL persistence for users, products,
// keywords, rank observations and sales via gorm.
package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/model"
)

// Store wraps a gorm connection. It satisfies rank.Storage and carries
// the extra queries the HTTP layer needs.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the schema for all tracked models.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(
		&model.User{},
		&model.Product{},
		&model.Keyword{},
		&model.RankObservation{},
		&model.Sale{},
	)
}

func (s *Store) GetUser(ctx context.Context, id uint) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetProduct(ctx context.Context, id uint) (*model.Product, error) {
	var p model.Product
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProductForUser loads a product only when it belongs to the user.
func (s *Store) GetProductForUser(ctx context.Context, id, userID uint) (*model.Product, error) {
	var p model.Product
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProducts(ctx context.Context, userID uint) ([]model.Product, error) {
	products := []model.Product{}
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id DESC").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, p *model.Product) error {
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *Store) UpdateProduct(ctx context.Context, p *model.Product) error {
	return s.db.WithContext(ctx).Save(p).Error
}

// DeleteProduct removes a product and cascades to its keywords, their
// observations and the product's sales, all in one transaction.
func (s *Store) DeleteProduct(ctx context.Context, id, userID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p model.Product
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&p).Error; err != nil {
			return err
		}

		var keywordIDs []uint
		if err := tx.Model(&model.Keyword{}).Where("product_id = ?", id).Pluck("id", &keywordIDs).Error; err != nil {
			return err
		}
		if len(keywordIDs) > 0 {
			if err := tx.Where("keyword_id IN ?", keywordIDs).Delete(&model.RankObservation{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", keywordIDs).Delete(&model.Keyword{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("product_id = ?", id).Delete(&model.Sale{}).Error; err != nil {
			return err
		}
		return tx.Delete(&p).Error
	})
}

func (s *Store) GetKeyword(ctx context.Context, id uint) (*model.Keyword, error) {
	var kw model.Keyword
	if err := s.db.WithContext(ctx).First(&kw, id).Error; err != nil {
		return nil, err
	}
	return &kw, nil
}

func (s *Store) GetKeywordsByUser(ctx context.Context, userID uint) ([]model.Keyword, error) {
	keywords := []model.Keyword{}
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&keywords).Error; err != nil {
		return nil, err
	}
	return keywords, nil
}

func (s *Store) GetKeywordsByProduct(ctx context.Context, productID, userID uint) ([]model.Keyword, error) {
	keywords := []model.Keyword{}
	if err := s.db.WithContext(ctx).
		Where("product_id = ? AND user_id = ?", productID, userID).
		Order("id").Find(&keywords).Error; err != nil {
		return nil, err
	}
	return keywords, nil
}

func (s *Store) CountKeywordsByUser(ctx context.Context, userID uint) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Keyword{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) CreateKeyword(ctx context.Context, kw *model.Keyword) error {
	return s.db.WithContext(ctx).Create(kw).Error
}

// UpdateKeywordRanks persists the rank roll of one refresh. Updates is
// used instead of Save so nil ranks overwrite correctly.
func (s *Store) UpdateKeywordRanks(ctx context.Context, kw *model.Keyword) error {
	return s.db.WithContext(ctx).Model(&model.Keyword{}).
		Where("id = ?", kw.ID).
		Updates(map[string]interface{}{
			"current_rank":    kw.CurrentRank,
			"previous_rank":   kw.PreviousRank,
			"last_checked_at": kw.LastCheckedAt,
		}).Error
}

// DeleteKeyword removes a keyword and its observations.
func (s *Store) DeleteKeyword(ctx context.Context, id, userID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var kw model.Keyword
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&kw).Error; err != nil {
			return err
		}
		if err := tx.Where("keyword_id = ?", id).Delete(&model.RankObservation{}).Error; err != nil {
			return err
		}
		return tx.Delete(&kw).Error
	})
}

// GetDueKeywords returns keywords never checked, or last checked before
// the cutoff, capped at limit. The scheduler drains these each tick.
func (s *Store) GetDueKeywords(ctx context.Context, cutoff time.Time, limit int) ([]model.Keyword, error) {
	keywords := []model.Keyword{}
	if err := s.db.WithContext(ctx).
		Where("last_checked_at IS NULL OR last_checked_at < ?", cutoff).
		Order("last_checked_at").
		Limit(limit).
		Find(&keywords).Error; err != nil {
		return nil, err
	}
	return keywords, nil
}

func (s *Store) CreateRankObservation(ctx context.Context, obs *model.RankObservation) error {
	return s.db.WithContext(ctx).Create(obs).Error
}

// GetRankHistory returns observations oldest first so history diffs and
// charts read chronologically. limit <= 0 returns everything.
func (s *Store) GetRankHistory(ctx context.Context, keywordID uint, limit int) ([]model.RankObservation, error) {
	history := []model.RankObservation{}
	q := s.db.WithContext(ctx).Where("keyword_id = ?", keywordID).Order("fetched_at")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&history).Error; err != nil {
		return nil, err
	}
	return history, nil
}

// CreateSales inserts imported sales rows in one batch.
func (s *Store) CreateSales(ctx context.Context, sales []model.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&sales).Error; err != nil {
		return fmt.Errorf("insert sales: %w", err)
	}
	return nil
}
