package models

import "math"

// Container is a catalog entry. Read-only at runtime.
type Container struct {
	ID          string   `json:"id" db:"id"`
	Barcode     string   `json:"barcode" db:"barcode"`
	Label       string   `json:"label" db:"label"`
	ValueCents  int64    `json:"value_cents" db:"value_cents"`
	WeightGrams *float64 `json:"weight_grams,omitempty" db:"weight_grams"`
}

type ContainerResponse struct {
	Barcode     string   `json:"barcode"`
	Label       string   `json:"label"`
	Value       float64  `json:"value"`
	WeightGrams *float64 `json:"weight_grams,omitempty"`
}

func (c *Container) ToContainerResponse() ContainerResponse {
	return ContainerResponse{
		Barcode:     c.Barcode,
		Label:       c.Label,
		Value:       CentsToAmount(c.ValueCents),
		WeightGrams: c.WeightGrams,
	}
}

// AmountToCents rounds a decimal amount to integer cents.
func AmountToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
