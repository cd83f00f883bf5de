package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/thebtf/ecotrace/internal/oracle"
	"github.com/thebtf/ecotrace/internal/session"
	"github.com/thebtf/ecotrace/pkg/models"
)

// fakeOracle returns scripted results per item name.
type fakeOracle struct {
	classifications map[string]oracle.ClassificationResult
	estimates       map[string]oracle.EstimationOutcome
	suggestions     map[string]oracle.SuggestionOutcome
	panicOn         string
}

func (f *fakeOracle) Classify(ctx context.Context, itemName string) oracle.ClassificationResult {
	if itemName == f.panicOn {
		panic("scripted classify panic")
	}
	if r, ok := f.classifications[itemName]; ok {
		return r
	}
	return oracle.ClassificationResult{Classification: models.DefaultClassification(), Degraded: true}
}

func (f *fakeOracle) Estimate(ctx context.Context, item models.Item, category models.Category) oracle.EstimationOutcome {
	if r, ok := f.estimates[item.Name]; ok {
		return r
	}
	return oracle.EstimationOutcome{EstimationResult: models.DefaultEstimation(), Degraded: true}
}

func (f *fakeOracle) Suggest(ctx context.Context, itemName string, userCtx *models.UserContext, userID string) oracle.SuggestionOutcome {
	if r, ok := f.suggestions[itemName]; ok {
		return r
	}
	return oracle.SuggestionOutcome{Suggestions: []string{}, Degraded: true}
}

// fakeContexts serves a fixed context and records memory-log appends.
type fakeContexts struct {
	mu         sync.Mutex
	fetchErr   error
	appendErr  error
	userCtx    *models.UserContext
	memoryLogs []string
	fetchCalls int
}

func (f *fakeContexts) FetchContext(ctx context.Context, userID string) (*models.UserContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.userCtx != nil {
		return f.userCtx, nil
	}
	return models.EmptyUserContext(), nil
}

func (f *fakeContexts) AppendMemoryLog(ctx context.Context, userID string, role models.Role, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.memoryLogs = append(f.memoryLogs, content)
	return nil
}

// insertedRecord captures one persistence-sink write.
type insertedRecord struct {
	Item     models.Item
	Category models.Category
	CO2eKg   float64
}

// fakeSink records inserts and fails on scripted item names.
type fakeSink struct {
	mu       sync.Mutex
	failOn   map[string]bool
	inserted []insertedRecord
	nextID   int64
}

func (f *fakeSink) InsertRecord(ctx context.Context, userID string, item models.Item, cls models.Classification, co2eKg float64, suggestions []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn[item.Name] {
		return 0, errors.New("scripted write failure")
	}
	f.inserted = append(f.inserted, insertedRecord{Item: item, Category: cls.Category, CO2eKg: co2eKg})
	f.nextID++
	return f.nextID, nil
}

// CoordinatorSuite is a test suite for batch processing.
type CoordinatorSuite struct {
	suite.Suite
	oracle   *fakeOracle
	contexts *fakeContexts
	sink     *fakeSink
	sessions *session.Manager
}

func (s *CoordinatorSuite) SetupTest() {
	s.oracle = &fakeOracle{
		classifications: map[string]oracle.ClassificationResult{},
		estimates:       map[string]oracle.EstimationOutcome{},
		suggestions:     map[string]oracle.SuggestionOutcome{},
	}
	s.contexts = &fakeContexts{}
	s.sink = &fakeSink{failOn: map[string]bool{}}
	s.sessions = session.NewManager()
}

func (s *CoordinatorSuite) coordinator() *Coordinator {
	return New(s.oracle, s.contexts, s.sink, s.sessions, nil, 4)
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorSuite))
}

func (s *CoordinatorSuite) scriptItem(name string, category models.Category, co2e float64) {
	s.oracle.classifications[name] = oracle.ClassificationResult{
		Classification: models.Classification{Category: category, Confidence: 0.9},
	}
	s.oracle.estimates[name] = oracle.EstimationOutcome{
		EstimationResult: models.EstimationResult{CO2eKg: co2e, FactorUsed: co2e, Source: "test"},
	}
	s.oracle.suggestions[name] = oracle.SuggestionOutcome{
		Suggestions: []string{"alternative for " + name},
	}
}

// TestBatchSuccess tests the happy path: all items complete, results keep
// input order, and the total sums all entries.
func (s *CoordinatorSuite) TestBatchSuccess() {
	s.scriptItem("Beef", models.CategoryFood, 27.0)
	s.scriptItem("Train ticket", models.CategoryTransport, 4.5)

	result, err := s.coordinator().ProcessBatch(context.Background(), "user-1", []models.Item{
		{Name: "Beef", Quantity: 1, Unit: "kg"},
		{Name: "Train ticket", Quantity: 1, Unit: "trip"},
	})

	s.Require().NoError(err)
	s.Equal("success", result.Status)
	s.Require().Len(result.Results, 2)
	s.Equal("Beef", result.Results[0].Item)
	s.Equal("Train ticket", result.Results[1].Item)
	s.InDelta(31.5, result.TotalCO2eKg, 1e-9)
	s.Equal(1, s.contexts.fetchCalls, "context is fetched once per batch, not per item")
}

// TestSessionRecordsPerItem tests that each completed item appends exactly
// two session entries and one memory log, with no lost updates.
func (s *CoordinatorSuite) TestSessionRecordsPerItem() {
	s.scriptItem("Beef", models.CategoryFood, 27.0)
	s.scriptItem("Jeans", models.CategoryClothing, 33.4)

	_, err := s.coordinator().ProcessBatch(context.Background(), "user-1", []models.Item{
		{Name: "Beef", Quantity: 1, Unit: "kg"},
		{Name: "Jeans", Quantity: 1, Unit: "piece"},
	})

	s.Require().NoError(err)
	s.Len(s.sessions.History("user-1"), 4)
	s.Len(s.contexts.memoryLogs, 2)
}

// TestOracleDegradationKeepsItem tests that a degraded estimate still
// yields a completed item with the default values.
func (s *CoordinatorSuite) TestOracleDegradationKeepsItem() {
	s.scriptItem("Beef", models.CategoryFood, 27.0)
	// "Mystery" gets no script: classify, estimate, and suggest all degrade.

	result, err := s.coordinator().ProcessBatch(context.Background(), "user-1", []models.Item{
		{Name: "Beef", Quantity: 1, Unit: "kg"},
		{Name: "Mystery", Quantity: 2, Unit: "piece"},
	})

	s.Require().NoError(err)
	s.Require().Len(result.Results, 2)
	s.Equal(models.CategoryOther, result.Results[1].Category)
	s.Zero(result.Results[1].CO2eKg)
	s.Empty(result.Results[1].Suggestions)
	s.InDelta(27.0, result.TotalCO2eKg, 1e-9)
}

// TestPersistFailureDropsItem tests that only a persistence failure
// removes an item from the results.
func (s *CoordinatorSuite) TestPersistFailureDropsItem() {
	s.scriptItem("Beef", models.CategoryFood, 27.0)
	s.scriptItem("Jeans", models.CategoryClothing, 33.4)
	s.sink.failOn["Jeans"] = true

	result, err := s.coordinator().ProcessBatch(context.Background(), "user-1", []models.Item{
		{Name: "Beef", Quantity: 1, Unit: "kg"},
		{Name: "Jeans", Quantity: 1, Unit: "piece"},
	})

	s.Require().NoError(err)
	s.Equal("success", result.Status)
	s.Require().Len(result.Results, 1)
	s.Equal("Beef", result.Results[0].Item)
	s.InDelta(27.0, result.TotalCO2eKg, 1e-9)

	// The failed item recorded nothing downstream of the sink
	s.Len(s.sessions.History("user-1"), 2)
	s.Len(s.contexts.memoryLogs, 1)
}

// TestContextFetchFailureFailsBatch tests the one batch-level failure
// mode: no pipelines run, nothing is written anywhere.
func (s *CoordinatorSuite) TestContextFetchFailureFailsBatch() {
	s.contexts.fetchErr = errors.New("store unavailable")
	s.scriptItem("Beef", models.CategoryFood, 27.0)

	result, err := s.coordinator().ProcessBatch(context.Background(), "user-1", []models.Item{
		{Name: "Beef", Quantity: 1, Unit: "kg"},
	})

	s.Require().Error(err)
	s.Nil(result)
	s.Empty(s.sink.inserted)
	s.Equal(0, s.sessions.UserCount())
}

// TestMemoryLogFailureFailsItem tests that a memory-log write failure
// fails the item loudly instead of silently dropping the entry.
func (s *CoordinatorSuite) TestMemoryLogFailureFailsItem() {
	s.scriptItem("Beef", models.CategoryFood, 27.0)
	s.contexts.appendErr = errors.New("store unavailable")

	result, err := s.coordinator().ProcessBatch(context.Background(), "user-1", []models.Item{
		{Name: "Beef", Quantity: 1, Unit: "kg"},
	})

	s.Require().NoError(err)
	s.Empty(result.Results)
	s.Zero(result.TotalCO2eKg)
}

// TestClassificationPropagatedUnchanged tests that whatever category the
// oracle assigns flows unvalidated into the estimate input and the sink.
func (s *CoordinatorSuite) TestClassificationPropagatedUnchanged() {
	// Deliberately "wrong" category for a t-shirt: the pipeline must not
	// second-guess the oracle.
	s.oracle.classifications["Cotton T-shirt"] = oracle.ClassificationResult{
		Classification: models.Classification{Category: models.CategoryFood, Confidence: 0.1},
	}
	s.oracle.estimates["Cotton T-shirt"] = oracle.EstimationOutcome{
		EstimationResult: models.EstimationResult{CO2eKg: 5, FactorUsed: 5, Source: "test"},
	}
	s.oracle.suggestions["Cotton T-shirt"] = oracle.SuggestionOutcome{Suggestions: []string{}}

	result, err := s.coordinator().ProcessBatch(context.Background(), "user-1", []models.Item{
		{Name: "Cotton T-shirt", Quantity: 1, Unit: "piece"},
	})

	s.Require().NoError(err)
	s.Require().Len(result.Results, 1)
	s.Equal(models.CategoryFood, result.Results[0].Category)
	s.Require().Len(s.sink.inserted, 1)
	s.Equal(models.CategoryFood, s.sink.inserted[0].Category)
}

// TestPanicIsolated tests that a panicking pipeline is converted to a
// dropped item without aborting siblings.
func (s *CoordinatorSuite) TestPanicIsolated() {
	s.scriptItem("Beef", models.CategoryFood, 27.0)
	s.oracle.panicOn = "Cursed"

	result, err := s.coordinator().ProcessBatch(context.Background(), "user-1", []models.Item{
		{Name: "Cursed", Quantity: 1, Unit: "piece"},
		{Name: "Beef", Quantity: 1, Unit: "kg"},
	})

	s.Require().NoError(err)
	s.Require().Len(result.Results, 1)
	s.Equal("Beef", result.Results[0].Item)
}

// TestLargeBatchBoundedFanOut tests that a batch larger than the
// concurrency cap still completes fully.
func TestLargeBatchBoundedFanOut(t *testing.T) {
	fo := &fakeOracle{
		classifications: map[string]oracle.ClassificationResult{},
		estimates:       map[string]oracle.EstimationOutcome{},
		suggestions:     map[string]oracle.SuggestionOutcome{},
	}
	contexts := &fakeContexts{}
	sink := &fakeSink{failOn: map[string]bool{}}
	sessions := session.NewManager()

	items := make([]models.Item, 20)
	for i := range items {
		name := fmt.Sprintf("item-%d", i)
		items[i] = models.Item{Name: name, Quantity: 1, Unit: "piece"}
		fo.classifications[name] = oracle.ClassificationResult{
			Classification: models.Classification{Category: models.CategoryHousehold, Confidence: 0.8},
		}
		fo.estimates[name] = oracle.EstimationOutcome{
			EstimationResult: models.EstimationResult{CO2eKg: 1, FactorUsed: 1, Source: "test"},
		}
		fo.suggestions[name] = oracle.SuggestionOutcome{Suggestions: []string{}}
	}

	c := New(fo, contexts, sink, sessions, nil, 3)
	result, err := c.ProcessBatch(context.Background(), "user-1", items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Results) != 20 {
		t.Fatalf("expected 20 results, got %d", len(result.Results))
	}
	if result.TotalCO2eKg != 20 {
		t.Fatalf("expected total 20, got %f", result.TotalCO2eKg)
	}
	// Input order preserved by slot aggregation
	for i, r := range result.Results {
		if r.Item != fmt.Sprintf("item-%d", i) {
			t.Fatalf("result %d out of order: %s", i, r.Item)
		}
	}
}
