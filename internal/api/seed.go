package api

import (
	"context"
	"errors"

	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/model"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// SeedDemoData creates a demo seller with one listing and two tracked
// keywords. With no search API key configured the demo provider
// synthesizes positions, so a fresh install has something to show.
// Idempotent across restarts.
func (s *Server) SeedDemoData(ctx context.Context) error {
	const demoEmail = "demo@sellerhub.local"

	var user model.User
	err := s.db.WithContext(ctx).Where("email = ?", demoEmail).First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		hash, hashErr := bcrypt.GenerateFromPassword([]byte("demo-seller"), bcrypt.DefaultCost)
		if hashErr != nil {
			return hashErr
		}
		user = model.User{
			Email:     demoEmail,
			Password:  string(hash),
			StoreName: "Demo Teaching Store",
			Role:      "seller",
		}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			return err
		}
	}

	var product model.Product
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND url = ?", user.ID, "https://www.teacherspayteachers.com/Product/algebra-task-cards-demo").
		First(&product).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		product = model.Product{
			UserID:      user.ID,
			Title:       "Algebra Task Cards for Middle School Math Practice",
			Description: "Students learn algebra with these printable task cards. Perfect for classroom practice and review. Each set covers essential skill areas for middle school math.",
			URL:         "https://www.teacherspayteachers.com/Product/algebra-task-cards-demo",
			Keywords:    "algebra,task cards,middle school math",
			Price:       4.50,
		}
		if err := s.db.WithContext(ctx).Create(&product).Error; err != nil {
			return err
		}
	}

	for _, phrase := range []string{"algebra task cards", "middle school math practice"} {
		var kw model.Keyword
		err := s.db.WithContext(ctx).
			Where("product_id = ? AND phrase = ?", product.ID, phrase).
			First(&kw).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		kw = model.Keyword{
			UserID:    user.ID,
			ProductID: product.ID,
			Phrase:    phrase,
			Country:   "us",
			Device:    "desktop",
		}
		if err := s.db.WithContext(ctx).Create(&kw).Error; err != nil {
			return err
		}
	}

	return nil
}
