package models

// ItemResult is the outcome of one successfully completed item pipeline.
type ItemResult struct {
	Item        string   `json:"item"`
	Category    Category `json:"category"`
	CO2eKg      float64  `json:"co2e_kg"`
	Suggestions []string `json:"suggestions"`
}

// BatchResult aggregates the outcomes of one assessment batch. Failed items
// are omitted from Results; TotalCO2eKg sums only the entries present.
type BatchResult struct {
	Status      string       `json:"status"`
	Results     []ItemResult `json:"results"`
	TotalCO2eKg float64      `json:"total_co2e_kg"`
}
