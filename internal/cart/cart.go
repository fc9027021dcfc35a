// Package cart holds the store cart aggregate for a browsing session.
package cart

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/restitch/restitch/internal/models"
)

const MaxQuantity = 10

var (
	ErrInvalidQuantity = errors.New("quantity must be between 1 and 10")
	ErrOutOfStock      = errors.New("not enough stock")
	ErrNotInCart       = errors.New("product not in cart")
)

// Cart maps product ids to quantities. The zero value is an empty cart.
type Cart struct {
	Items map[int64]int `json:"items"`
}

func New() *Cart {
	return &Cart{Items: map[int64]int{}}
}

func (c *Cart) Clone() *Cart {
	if c == nil {
		return New()
	}
	cloned := maps.Clone(c.Items)
	if cloned == nil {
		cloned = map[int64]int{}
	}
	return &Cart{Items: cloned}
}

// Add increases the quantity of product, refusing to exceed its stock.
func (c *Cart) Add(product *models.Product, quantity int) error {
	if product == nil {
		return fmt.Errorf("product is required")
	}
	if quantity < 1 || quantity > MaxQuantity {
		return ErrInvalidQuantity
	}
	if c.Items == nil {
		c.Items = map[int64]int{}
	}
	next := c.Items[product.ID] + quantity
	if next > MaxQuantity {
		return ErrInvalidQuantity
	}
	if !product.InStock(next) {
		return fmt.Errorf("%w: %d available", ErrOutOfStock, product.Stock)
	}
	c.Items[product.ID] = next
	return nil
}

func (c *Cart) Remove(productID int64) error {
	if _, ok := c.Items[productID]; !ok {
		return ErrNotInCart
	}
	delete(c.Items, productID)
	return nil
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

func (c *Cart) ProductIDs() []int64 {
	ids := slices.Collect(maps.Keys(c.Items))
	slices.Sort(ids)
	return ids
}

type Line struct {
	Product       *models.Product `json:"product"`
	Quantity      int             `json:"quantity"`
	SubtotalCents int             `json:"subtotal_cents"`
}

type Summary struct {
	Lines      []Line `json:"lines"`
	TotalCents int    `json:"total_cents"`
	Total      string `json:"total"`
}

// Summarize prices the cart. Products missing from lookup are skipped.
func (c *Cart) Summarize(lookup func(id int64) (*models.Product, bool)) Summary {
	summary := Summary{Lines: []Line{}}
	for _, id := range c.ProductIDs() {
		product, ok := lookup(id)
		if !ok {
			continue
		}
		quantity := c.Items[id]
		line := Line{
			Product:       product,
			Quantity:      quantity,
			SubtotalCents: product.PriceCents * quantity,
		}
		summary.Lines = append(summary.Lines, line)
		summary.TotalCents += line.SubtotalCents
	}
	summary.Total = models.FormatCents(summary.TotalCents)
	return summary
}
