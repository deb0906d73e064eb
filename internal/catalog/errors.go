package catalog

import "errors"

var (
	// ErrProductNotFound is returned when no product has the requested id
	ErrProductNotFound = errors.New("product not found")

	// ErrInvalidProduct is returned when a product fails validation
	ErrInvalidProduct = errors.New("invalid product")
)
