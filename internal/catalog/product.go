// Package catalog holds the jewelry inventory and the rules for deciding
// whether a shopper's stated preferences fit a single piece.
package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	GenderMale   = "male"
	GenderFemale = "female"
	GenderUnisex = "unisex"
)

// Product is a single sellable piece.
type Product struct {
	ID          string    `json:"id"`
	SKU         string    `json:"sku"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Metal       string    `json:"metal"`
	Stones      []string  `json:"stones"`
	Gender      string    `json:"gender"`
	PriceCents  int64     `json:"price_cents"`
	Description string    `json:"description"`
	InStock     bool      `json:"in_stock"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks the fields every stored product must carry and
// normalizes gender, defaulting to unisex.
func (p *Product) Validate() error {
	p.Name = strings.TrimSpace(p.Name)
	p.Category = strings.TrimSpace(p.Category)
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	}
	if p.Category == "" {
		return fmt.Errorf("%w: category is required", ErrInvalidProduct)
	}
	if p.PriceCents < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	}
	switch g := strings.ToLower(strings.TrimSpace(p.Gender)); g {
	case "", GenderUnisex:
		p.Gender = GenderUnisex
	case GenderMale, GenderFemale:
		p.Gender = g
	default:
		return fmt.Errorf("%w: unknown gender %q", ErrInvalidProduct, p.Gender)
	}
	return nil
}

// Price renders the price in dollars, e.g. "$1,250" or "$89.50".
func (p Product) Price() string {
	return FormatCents(p.PriceCents)
}

// FormatCents renders an amount of cents as dollars with thousands separators.
func FormatCents(cents int64) string {
	dollars := cents / 100
	rem := cents % 100
	s := fmt.Sprintf("%d", dollars)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if rem != 0 {
		return fmt.Sprintf("$%s.%02d", b.String(), rem)
	}
	return "$" + b.String()
}

// Document is the text indexed in the vector store for this product.
func (p Product) Document() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s). Category: %s.", p.Name, p.ID, p.Category)
	if p.Metal != "" {
		fmt.Fprintf(&b, " Metal: %s.", p.Metal)
	}
	if len(p.Stones) > 0 {
		fmt.Fprintf(&b, " Stones: %s.", strings.Join(p.Stones, ", "))
	}
	if p.Gender != "" && p.Gender != GenderUnisex {
		fmt.Fprintf(&b, " Designed for: %s.", p.Gender)
	}
	fmt.Fprintf(&b, " Price: %s.", p.Price())
	if d := strings.TrimSpace(p.Description); d != "" {
		fmt.Fprintf(&b, " %s", d)
	}
	return b.String()
}

// LoadProducts decodes a JSON array of products and validates each one.
func LoadProducts(r io.Reader) ([]Product, error) {
	var products []Product
	if err := json.NewDecoder(r).Decode(&products); err != nil {
		return nil, fmt.Errorf("catalog: decode products: %w", err)
	}
	for i := range products {
		if err := products[i].Validate(); err != nil {
			return nil, fmt.Errorf("catalog: product %d (%s): %w", i, products[i].ID, err)
		}
	}
	return products, nil
}
