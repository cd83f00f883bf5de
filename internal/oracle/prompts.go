package oracle

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/thebtf/ecotrace/pkg/models"
)

// SuggestionExperiment is the registered A/B experiment for the suggestion
// prompt phrasing.
const SuggestionExperiment = "suggestion_prompt_v2"

// SuggestionVariants are the phrasings assignable in the experiment.
var SuggestionVariants = []string{"control", "goal_focused"}

// buildQuotePrompt asks the model for a sustainability quote and tip.
func buildQuotePrompt() string {
	var sb strings.Builder
	sb.WriteString("Generate an inspiring quote about nature, sustainability, or climate change from a famous person.\n")
	sb.WriteString("Also provide one short, actionable sustainability tip.\n\n")
	sb.WriteString("Return ONLY JSON.\n")
	sb.WriteString(`Example: { "quote": "The Earth is what we all have in common.", "author": "Wendell Berry", "tip": "Turn off lights when leaving a room." }`)
	return sb.String()
}

// buildClassifyPrompt asks the model to bucket an item into a category.
func buildClassifyPrompt(itemName string) string {
	var sb strings.Builder
	sb.WriteString("Classify the following item into one of these categories:\n")
	sb.WriteString("[Food, Transport, Energy, Clothing, Electronics, Household, Other].\n\n")
	sb.WriteString(fmt.Sprintf("Item: %s\n\n", itemName))
	sb.WriteString("Return ONLY JSON:\n")
	sb.WriteString(`{ "category": "CategoryName", "confidence": 0.95 }`)
	return sb.String()
}

// buildEstimatePrompt asks the model for a grounded CO2e estimate.
func buildEstimatePrompt(item models.Item, category models.Category, snippets string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Research real-world CO2 emission factors for the product: %s (Category: %s).\n", item.Name, category))
	sb.WriteString(fmt.Sprintf("Quantity: %g %s\n", item.Quantity, item.Unit))
	if snippets != "" {
		sb.WriteString(fmt.Sprintf("Search results:\n%s\n", snippets))
	}
	sb.WriteString("\nCalculate the total CO2e in kg.\n")
	sb.WriteString("Return ONLY JSON:\n")
	sb.WriteString(`{ "co2e_kg": number, "factor_used": number, "source": "string" }`)
	return sb.String()
}

// buildSuggestPrompt asks the model for personalized alternatives. The
// variant selects the experiment phrasing.
func buildSuggestPrompt(itemName string, userCtx *models.UserContext, variant string) string {
	prefs := map[string]string{}
	goals := []models.Goal{}
	if userCtx != nil {
		prefs = userCtx.Preferences
		goals = userCtx.Goals
	}
	prefsJSON, _ := json.Marshal(prefs)
	goalsJSON, _ := json.Marshal(goals)

	var sb strings.Builder
	switch variant {
	case "goal_focused":
		sb.WriteString(fmt.Sprintf("The user wants to hit their CO2e reduction goals: %s.\n", goalsJSON))
		sb.WriteString(fmt.Sprintf("Give 3 short eco-friendly alternatives for the product: %s that move them toward those goals.\n", itemName))
		sb.WriteString(fmt.Sprintf("User Preferences: %s\n", prefsJSON))
	default:
		sb.WriteString(fmt.Sprintf("Give 3 short eco-friendly alternatives for the product: %s.\n", itemName))
		sb.WriteString(fmt.Sprintf("User Preferences: %s\n", prefsJSON))
		sb.WriteString(fmt.Sprintf("User Goals: %s\n", goalsJSON))
	}
	sb.WriteString("\nReturn ONLY JSON list of strings.\n")
	sb.WriteString(`Example: { "suggestions": ["alt1", "alt2", "alt3"] }`)
	return sb.String()
}
