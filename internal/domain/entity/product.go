package entity

import "time"

type PriceType string

const (
	PriceFixed   PriceType = "fixed"
	PriceRequest PriceType = "request"
)

type Availability string

const (
	InStock    Availability = "in_stock"
	OutOfStock Availability = "out_of_stock"
)

// Product is a saree listing as stored in the "sarees" collection.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ImageURL    string    `json:"imageUrl"`
	Category    string    `json:"category,omitempty"`
	PriceType   PriceType `json:"priceType"`
	Price       *float64  `json:"price,omitempty"` // set only for fixed prices
	StockLevel  int       `json:"stockLevel"`
	PitchCount  int       `json:"pitchCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`

	// TimestampInferred marks a CreatedAt filled from the snapshot read time.
	TimestampInferred bool `json:"timestampInferred,omitempty"`
}

func (p Product) Availability() Availability {
	if p.StockLevel > 0 {
		return InStock
	}
	return OutOfStock
}

func (p Product) RecordID() string { return p.ID }

// Clone returns p with its own copy of Price.
func (p Product) Clone() Product {
	p.Price = cloneFloat(p.Price)
	return p
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
