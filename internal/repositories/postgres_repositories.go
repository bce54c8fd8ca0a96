package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang-cart-sync/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type cartRepository struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) CartRepository {
	return &cartRepository{db: db}
}

func (r *cartRepository) GetByUserID(ctx context.Context, userID string) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return &cart, nil
}

func (r *cartRepository) Save(ctx context.Context, cart *models.Cart) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"items", "updated_at"}),
		}).
		Create(cart).Error
	if err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func (r *cartRepository) Delete(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Cart{}).Error; err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

func (r *cartRepository) ListIdle(ctx context.Context, before time.Time, limit int) ([]string, error) {
	var userIDs []string
	err := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("updated_at < ?", before).
		Order("updated_at").
		Limit(limit).
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return nil, fmt.Errorf("list idle carts: %w", err)
	}
	return userIDs, nil
}
