package model

import "github.com/google/uuid"

// Supplier is the directory view of a candidate supplier. The directory
// itself is owned elsewhere; the matcher only reads these attributes.
type Supplier struct {
	ID               uuid.UUID
	Name             string
	Category         string
	Capabilities     []string
	ActiveOrderCount int
}

// SupplierMatch is one ranked matcher result.
type SupplierMatch struct {
	SupplierID   uuid.UUID
	SupplierName string
	Score        float64
	Reasons      []string
}
