package models

// Quote is an inspirational sustainability quote with an actionable tip.
type Quote struct {
	Quote  string `json:"quote"`
	Author string `json:"author"`
	Tip    string `json:"tip"`
}

// DefaultQuote is returned when quote generation degrades.
func DefaultQuote() Quote {
	return Quote{
		Quote:  "The greatest threat to our planet is the belief that someone else will save it.",
		Author: "Robert Swan",
		Tip:    "Reduce, Reuse, Recycle.",
	}
}
