package models

import (
	"fmt"
	"slices"
	"time"
)

type Product struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Slug          string    `json:"slug"`
	Description   string    `json:"description"`
	Images        []string  `json:"images,omitempty"`
	PriceCents    int       `json:"price_cents"`
	Stock         int       `json:"stock"`
	DesignerID    *int64    `json:"designer_id,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	IsFeatured    bool      `json:"is_featured"`
	SourceOrderID *int64    `json:"source_order_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (p *Product) InStock(quantity int) bool {
	return quantity > 0 && p.Stock >= quantity
}

func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	c := *p
	c.Images = slices.Clone(p.Images)
	c.Tags = slices.Clone(p.Tags)
	c.DesignerID = cloneInt64(p.DesignerID)
	c.SourceOrderID = cloneInt64(p.SourceOrderID)
	return &c
}

// FormatCents renders an amount in rupees, e.g. 45000 -> "₹450.00".
func FormatCents(cents int) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s₹%d.%02d", sign, cents/100, cents%100)
}
