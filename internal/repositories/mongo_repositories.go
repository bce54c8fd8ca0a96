package repositories

import (
	"context"
	"errors"
	"fmt"

	"golang-cart-sync/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type serviceRepository struct {
	collection *mongo.Collection
}

func NewServiceRepository(db *mongo.Database) ServiceRepository {
	return &serviceRepository{
		collection: db.Collection("services"),
	}
}

// GetByID only returns services that can currently be booked.
func (r *serviceRepository) GetByID(ctx context.Context, id string) (*models.Service, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrServiceNotFound
	}

	var service models.Service
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID, "is_available": true}).Decode(&service)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrServiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}
	return &service, nil
}
