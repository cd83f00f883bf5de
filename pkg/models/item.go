// Package models contains domain models for ecotrace.
package models

// Category is a standardized emission category for assessed items.
type Category string

const (
	CategoryFood        Category = "Food"
	CategoryTransport   Category = "Transport"
	CategoryEnergy      Category = "Energy"
	CategoryClothing    Category = "Clothing"
	CategoryElectronics Category = "Electronics"
	CategoryHousehold   Category = "Household"
	CategoryOther       Category = "Other"
)

// Categories lists all valid item categories.
var Categories = []Category{
	CategoryFood,
	CategoryTransport,
	CategoryEnergy,
	CategoryClothing,
	CategoryElectronics,
	CategoryHousehold,
	CategoryOther,
}

// ParseCategory normalizes a category string, falling back to Other for
// anything the model invents outside the known set.
func ParseCategory(s string) Category {
	for _, c := range Categories {
		if string(c) == s {
			return c
		}
	}
	return CategoryOther
}

// Item is a single user-submitted item to assess. Immutable once submitted.
type Item struct {
	Name     string  `json:"item_name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
}

// Classification is the oracle's category assignment for an item.
type Classification struct {
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
}

// DefaultClassification is returned when classification degrades.
func DefaultClassification() Classification {
	return Classification{Category: CategoryOther, Confidence: 0.0}
}

// EstimationResult is the oracle's CO2e estimate for an item.
type EstimationResult struct {
	CO2eKg     float64 `json:"co2e_kg"`
	FactorUsed float64 `json:"factor_used"`
	Source     string  `json:"source"`
}

// DefaultEstimation is returned when estimation degrades.
func DefaultEstimation() EstimationResult {
	return EstimationResult{CO2eKg: 0, FactorUsed: 0, Source: "Error"}
}
