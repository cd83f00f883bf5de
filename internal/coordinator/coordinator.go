// Package coordinator orchestrates multi-stage item assessment: it fans
// per-item pipelines out over a batch, isolates per-item failures, and
// synchronizes results into session and long-term memory.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/ecotrace/internal/oracle"
	"github.com/thebtf/ecotrace/pkg/models"
)

// Oracle is the inference boundary. Every call returns a usable result;
// degradation is expressed in the result type, never as an error.
type Oracle interface {
	Classify(ctx context.Context, itemName string) oracle.ClassificationResult
	Estimate(ctx context.Context, item models.Item, category models.Category) oracle.EstimationOutcome
	Suggest(ctx context.Context, itemName string, userCtx *models.UserContext, userID string) oracle.SuggestionOutcome
}

// ContextStore is the long-term memory boundary.
type ContextStore interface {
	FetchContext(ctx context.Context, userID string) (*models.UserContext, error)
	AppendMemoryLog(ctx context.Context, userID string, role models.Role, content string) error
}

// FootprintSink durably records computed footprints.
type FootprintSink interface {
	InsertRecord(ctx context.Context, userID string, item models.Item, cls models.Classification, co2eKg float64, suggestions []string) (int64, error)
}

// SessionStore is the short-term conversational memory boundary.
type SessionStore interface {
	AppendHistory(userID string, role models.Role, content string)
}

// Broadcaster publishes assessment progress events. Optional.
type Broadcaster interface {
	Broadcast(data interface{})
}

// Coordinator runs assessment batches.
type Coordinator struct {
	oracle      Oracle
	contexts    ContextStore
	sink        FootprintSink
	sessions    SessionStore
	events      Broadcaster
	maxParallel int
	metrics     *metrics
}

// New creates a coordinator. events may be nil. maxParallel bounds the
// per-batch fan-out; values below 1 default to 8.
func New(o Oracle, contexts ContextStore, sink FootprintSink, sessions SessionStore, events Broadcaster, maxParallel int) *Coordinator {
	if maxParallel < 1 {
		maxParallel = 8
	}
	return &Coordinator{
		oracle:      o,
		contexts:    contexts,
		sink:        sink,
		sessions:    sessions,
		events:      events,
		maxParallel: maxParallel,
		metrics:     newMetrics(),
	}
}

// ItemEvent is broadcast after each item pipeline finishes.
type ItemEvent struct {
	Type     string  `json:"type"`
	UserID   string  `json:"user_id"`
	ItemName string  `json:"item_name"`
	Category string  `json:"category,omitempty"`
	CO2eKg   float64 `json:"co2e_kg,omitempty"`
}

// ProcessBatch fetches the user's context once, runs one pipeline per item
// concurrently, and aggregates the outcomes. Per-item failures are logged
// and dropped; only a context-fetch failure fails the batch, since no
// pipeline can proceed without the context snapshot.
//
// Results preserve input order: each pipeline writes into the slot of its
// input position and failed slots are dropped, so callers see item order
// regardless of completion interleaving.
func (c *Coordinator) ProcessBatch(ctx context.Context, userID string, items []models.Item) (*models.BatchResult, error) {
	start := time.Now()

	userCtx, err := c.contexts.FetchContext(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch user context: %w", err)
	}

	slots := make([]*models.ItemResult, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxParallel)
	for i, item := range items {
		g.Go(func() error {
			result, err := c.runPipeline(gctx, userID, item, userCtx)
			if err != nil {
				// Isolated at the batch boundary: drop the item, keep
				// siblings running.
				log.Error().
					Err(err).
					Str("user", userID).
					Str("item", item.Name).
					Msg("Item pipeline failed, dropping from batch")
				c.metrics.recordItemFailed(gctx)
				c.broadcast(ItemEvent{Type: "item_failed", UserID: userID, ItemName: item.Name})
				return nil
			}
			slots[i] = result
			c.metrics.recordItemDone(gctx, string(result.Category))
			c.broadcast(ItemEvent{
				Type:     "item_processed",
				UserID:   userID,
				ItemName: item.Name,
				Category: string(result.Category),
				CO2eKg:   result.CO2eKg,
			})
			return nil
		})
	}
	// Pipeline errors never propagate into the group; Wait only observes
	// context cancellation.
	_ = g.Wait()

	result := &models.BatchResult{
		Status:  "success",
		Results: make([]models.ItemResult, 0, len(items)),
	}
	for _, slot := range slots {
		if slot == nil {
			continue
		}
		result.Results = append(result.Results, *slot)
		result.TotalCO2eKg += slot.CO2eKg
	}

	c.metrics.recordBatch(ctx, start, len(items))
	log.Info().
		Str("user", userID).
		Int("items", len(items)).
		Int("completed", len(result.Results)).
		Float64("total_co2e_kg", result.TotalCO2eKg).
		Dur("elapsed", time.Since(start)).
		Msg("Batch processed")

	return result, nil
}

func (c *Coordinator) broadcast(event ItemEvent) {
	if c.events != nil {
		c.events.Broadcast(event)
	}
}
