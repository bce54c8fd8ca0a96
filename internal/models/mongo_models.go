package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Service model - MongoDB (bookable doorstep service catalog)
type Service struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CategoryID    primitive.ObjectID `bson:"category_id" json:"category_id"`
	Name          string             `bson:"name" json:"name"`
	Description   string             `bson:"description" json:"description"`
	Price         float64            `bson:"price" json:"price"`
	DiscountPrice *float64           `bson:"discount_price,omitempty" json:"discount_price"`
	ImageUrls     []string           `bson:"image_urls" json:"image_urls"`
	DurationMins  int                `bson:"duration_mins" json:"duration_mins"`
	IsAvailable   bool               `bson:"is_available" json:"is_available"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
}

// CurrentPrice is the discounted price when one is set.
func (s *Service) CurrentPrice() float64 {
	if s.DiscountPrice != nil && *s.DiscountPrice > 0 {
		return *s.DiscountPrice
	}
	return s.Price
}

// CoverImage is the first image, if any.
func (s *Service) CoverImage() string {
	if len(s.ImageUrls) == 0 {
		return ""
	}
	return s.ImageUrls[0]
}
