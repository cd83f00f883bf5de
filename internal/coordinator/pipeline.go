package coordinator

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/ecotrace/internal/oracle"
	"github.com/thebtf/ecotrace/pkg/models"
)

// runPipeline processes one item through the sequential stage machine:
// classify, then estimate and suggest, then persist, then record history.
// Oracle degradation is absorbed into defaults; only store failures (or a
// panic) fail the run.
//
// Estimation and suggestion have independent inputs (the classification
// and the batch context snapshot respectively), so they run concurrently;
// both complete before persistence.
func (c *Coordinator) runPipeline(ctx context.Context, userID string, item models.Item, userCtx *models.UserContext) (result *models.ItemResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()

	cls := c.oracle.Classify(ctx, item.Name)
	log.Debug().
		Str("user", userID).
		Str("item", item.Name).
		Str("category", string(cls.Category)).
		Float64("confidence", cls.Confidence).
		Bool("degraded", cls.Degraded).
		Msg("Item classified")

	var (
		estimate    oracle.EstimationOutcome
		suggestions oracle.SuggestionOutcome
		wg          sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		estimate = c.oracle.Estimate(ctx, item, cls.Category)
	}()
	go func() {
		defer wg.Done()
		suggestions = c.oracle.Suggest(ctx, item.Name, userCtx, userID)
	}()
	wg.Wait()

	if _, err := c.sink.InsertRecord(ctx, userID, item, cls.Classification, estimate.CO2eKg, suggestions.Suggestions); err != nil {
		return nil, fmt.Errorf("persist footprint: %w", err)
	}

	// Post-processing: short-term history, then the durable memory log.
	// The memory-log append must complete before the item counts as done;
	// its failure fails the item loudly rather than dropping the entry.
	c.sessions.AppendHistory(userID, models.RoleUser,
		fmt.Sprintf("User added %g %s of %s", item.Quantity, item.Unit, item.Name))
	c.sessions.AppendHistory(userID, models.RoleAssistant,
		fmt.Sprintf("Calculated %g kg CO2e", estimate.CO2eKg))

	memoryLine := fmt.Sprintf("Processed %s: %gkg CO2e", item.Name, estimate.CO2eKg)
	if err := c.contexts.AppendMemoryLog(ctx, userID, models.RoleSystem, memoryLine); err != nil {
		return nil, fmt.Errorf("record memory log: %w", err)
	}

	return &models.ItemResult{
		Item:        item.Name,
		Category:    cls.Category,
		CO2eKg:      estimate.CO2eKg,
		Suggestions: suggestions.Suggestions,
	}, nil
}
