package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// CartLine is one service line stored in a cart. Quantity is always >= 1.
type CartLine struct {
	ServiceID string  `json:"serviceId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price,omitempty"`
	Name      string  `json:"name,omitempty"`
	ImageURL  string  `json:"imageUrl,omitempty"`
}

// CartLines is stored as a JSONB array
type CartLines []CartLine

func (l CartLines) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

func (l *CartLines) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(bytes, l)
}

// Cart model - PostgreSQL, one row per user
type Cart struct {
	UserID    string    `gorm:"primaryKey" json:"user_id"`
	Items     CartLines `gorm:"type:jsonb" json:"items"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Find returns the index of serviceID in the cart, or -1.
func (c *Cart) Find(serviceID string) int {
	for i, line := range c.Items {
		if line.ServiceID == serviceID {
			return i
		}
	}
	return -1
}

// Total is the sum of price * quantity over all lines.
func (c *Cart) Total() float64 {
	var total float64
	for _, line := range c.Items {
		total += line.Price * float64(line.Quantity)
	}
	return total
}
