package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/models"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/sanitize"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/scraper"
)

// memStore keeps QueueState in memory with the same copy semantics a JSON
// file store has.
type memStore struct {
	mu sync.Mutex
	st []byte
}

func newMemStore() *memStore {
	data, _ := json.Marshal(&models.QueueState{})
	return &memStore{st: data}
}

func (s *memStore) Load() (*models.QueueState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st models.QueueState
	if err := json.Unmarshal(s.st, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *memStore) Save(st *models.QueueState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.st = data
	s.mu.Unlock()
	return nil
}

func (s *memStore) mustLoad(t *testing.T) *models.QueueState {
	t.Helper()
	st, err := s.Load()
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	return st
}

type memResults struct {
	mu   sync.Mutex
	docs map[models.SearchKind]*models.ResultDocument
	fail bool
}

func newMemResults() *memResults {
	return &memResults{docs: make(map[models.SearchKind]*models.ResultDocument)}
}

func (r *memResults) Load(kind models.SearchKind) (*models.ResultDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.docs[kind], nil
}

func (r *memResults) Save(kind models.SearchKind, doc *models.ResultDocument) error {
	if r.fail {
		return errors.New("disk full")
	}
	r.mu.Lock()
	r.docs[kind] = doc
	r.mu.Unlock()
	return nil
}

func (r *memResults) Path(kind models.SearchKind) string {
	return fmt.Sprintf("data/%s.json", kind)
}

type fakeAdapter struct {
	id         models.SourceName
	candidates []models.RawCandidate
	err        error
	block      chan struct{} // when non-nil, Fetch waits for it to close
	calls      int32
}

func (a *fakeAdapter) ID() models.SourceName { return a.id }

func (a *fakeAdapter) Fetch(ctx context.Context, term, postalCode string) ([]models.RawCandidate, error) {
	atomic.AddInt32(&a.calls, 1)
	if a.block != nil {
		select {
		case <-a.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return a.candidates, a.err
}

type fakePublisher struct {
	ok    bool
	calls int32
}

func (p *fakePublisher) Publish(ctx context.Context, paths []string, message string) bool {
	atomic.AddInt32(&p.calls, 1)
	return p.ok
}

func gearRequest(t *testing.T, sources ...models.SourceName) models.SearchRequest {
	t.Helper()
	req, err := NewRequest("Fender Stratocaster", "10115", models.KindGear, sources)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	return req
}

func candidate(source models.SourceName, id, price string) models.RawCandidate {
	return models.RawCandidate{
		Source:    source,
		ID:        id,
		Title:     "Listing " + id,
		PriceText: price,
		URL:       "https://example.org/" + id,
	}
}

func TestNewRequest_Sanitizes(t *testing.T) {
	req, err := NewRequest("  Fender   Stratocaster ", "101 15", models.KindGear, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if req.Term != "Fender Stratocaster" {
		t.Fatalf("term not normalized: %q", req.Term)
	}
	if req.PostalCode != "10115" {
		t.Fatalf("postal code not cleaned: %q", req.PostalCode)
	}
	if req.ID == "" {
		t.Fatal("expected assigned ID")
	}
}

func TestNewRequest_RejectsHostileTerm(t *testing.T) {
	_, err := NewRequest("<script>alert(1)</script>", "10115", models.KindGear, nil)
	if !errors.Is(err, sanitize.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestTrigger_CompletesGearJob(t *testing.T) {
	store := newMemStore()
	results := newMemResults()
	adapter := &fakeAdapter{id: models.SourceQuoka, candidates: []models.RawCandidate{
		candidate(models.SourceQuoka, "a", "50 €"),
		candidate(models.SourceQuoka, "b", "Price not shown"),
		candidate(models.SourceQuoka, "c", "10 €"),
		candidate(models.SourceQuoka, "d", "30 €"),
	}}
	m := NewManager(store, results, map[models.SourceName]scraper.Adapter{models.SourceQuoka: adapter})

	if err := m.Enqueue(gearRequest(t, models.SourceQuoka)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := m.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	doc := results.docs[models.KindGear]
	if doc == nil {
		t.Fatal("no result document written")
	}
	if len(doc.Listings) != 3 {
		t.Fatalf("expected top 3 listings, got %d", len(doc.Listings))
	}
	want := []string{"10 €", "30 €", "50 €"}
	for i, w := range want {
		if doc.Listings[i].PriceText != w {
			t.Fatalf("position %d: %s, want %s", i, doc.Listings[i].PriceText, w)
		}
	}
	if doc.LastSearch != "Fender Stratocaster" {
		t.Fatalf("lastSearch = %q", doc.LastSearch)
	}

	st := store.mustLoad(t)
	if st.Processing != nil {
		t.Fatal("processing not cleared")
	}
	if len(st.Completed) != 1 || !st.Completed[0].Success || st.Completed[0].ResultCount != 3 {
		t.Fatalf("unexpected history: %+v", st.Completed)
	}
	if st.CurrentProgress != 100 {
		t.Fatalf("progress = %d, want 100", st.CurrentProgress)
	}
}

func TestTrigger_HousingMergeFlagsNew(t *testing.T) {
	store := newMemStore()
	results := newMemResults()
	results.docs[models.KindHousing] = &models.ResultDocument{
		Listings: []models.Listing{{ID: "A"}, {ID: "B"}},
	}
	adapter := &fakeAdapter{id: models.SourceImmowelt, candidates: []models.RawCandidate{
		candidate(models.SourceImmowelt, "B", "900 €"),
		candidate(models.SourceImmowelt, "C", "1100 €"),
	}}
	m := NewManager(store, results, map[models.SourceName]scraper.Adapter{models.SourceImmowelt: adapter})

	req, err := NewRequest("2-Zimmer Wohnung", "10115", models.KindHousing, []models.SourceName{models.SourceImmowelt})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Enqueue(req); err != nil {
		t.Fatal(err)
	}
	if err := m.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	doc := results.docs[models.KindHousing]
	if len(doc.Listings) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(doc.Listings))
	}
	if doc.Listings[0].ID != "B" || doc.Listings[0].IsNew {
		t.Fatalf("B should be old: %+v", doc.Listings[0])
	}
	if doc.Listings[1].ID != "C" || !doc.Listings[1].IsNew {
		t.Fatalf("C should be new: %+v", doc.Listings[1])
	}
	if doc.SearchCriteria == nil || doc.SearchCriteria.PostalCode != "10115" {
		t.Fatalf("searchCriteria missing: %+v", doc.SearchCriteria)
	}
}

func TestTrigger_SingleFlight(t *testing.T) {
	store := newMemStore()
	results := newMemResults()
	block := make(chan struct{})
	adapter := &fakeAdapter{id: models.SourceQuoka, block: block}
	m := NewManager(store, results, map[models.SourceName]scraper.Adapter{models.SourceQuoka: adapter})

	if err := m.Enqueue(gearRequest(t, models.SourceQuoka)); err != nil {
		t.Fatal(err)
	}
	second, err := NewRequest("Boss DD-7", "10115", models.KindGear, []models.SourceName{models.SourceQuoka})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Enqueue(second); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- m.Trigger(context.Background()) }()

	// wait for the first job to be claimed and executing
	deadline := time.After(2 * time.Second)
	for {
		st := store.mustLoad(t)
		if st.Processing != nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("job never claimed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	before := store.mustLoad(t)

	// second trigger while executing must be a no-op
	if err := m.Trigger(context.Background()); err != nil {
		t.Fatalf("concurrent trigger errored: %v", err)
	}

	after := store.mustLoad(t)
	if after.Processing == nil || after.Processing.ID != before.Processing.ID {
		t.Fatalf("processing changed: %+v -> %+v", before.Processing, after.Processing)
	}
	if len(after.Pending) != len(before.Pending) {
		t.Fatalf("pending changed: %d -> %d", len(before.Pending), len(after.Pending))
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first trigger: %v", err)
	}

	if got := atomic.LoadInt32(&adapter.calls); got != 1 {
		t.Fatalf("adapter invoked %d times, want exactly 1", got)
	}

	st := store.mustLoad(t)
	if st.Processing != nil {
		t.Fatal("processing not cleared after completion")
	}
	if len(st.Pending) != 1 || st.Pending[0].Term != "Boss DD-7" {
		t.Fatalf("second job lost: %+v", st.Pending)
	}
}

func TestRecover_ClearsStaleProcessing(t *testing.T) {
	store := newMemStore()
	results := newMemResults()
	adapter := &fakeAdapter{id: models.SourceQuoka}
	m := NewManager(store, results, map[models.SourceName]scraper.Adapter{models.SourceQuoka: adapter})

	// simulate a crash right after the claim was durably written
	req := gearRequest(t, models.SourceQuoka)
	st := store.mustLoad(t)
	st.Processing = &req
	st.CurrentProgress = 5
	if err := store.Save(st); err != nil {
		t.Fatal(err)
	}

	if err := m.Recover(); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	st = store.mustLoad(t)
	if st.Processing != nil {
		t.Fatal("stale processing entry not cleared")
	}
	if len(st.Completed) != 1 || st.Completed[0].Success {
		t.Fatalf("abandoned job not recorded as failed: %+v", st.Completed)
	}
	if st.Completed[0].ID != req.ID {
		t.Fatalf("wrong job recorded: %s", st.Completed[0].ID)
	}

	// the abandoned job must never auto-execute
	if err := m.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if got := atomic.LoadInt32(&adapter.calls); got != 0 {
		t.Fatalf("abandoned job executed %d times, want 0", got)
	}
}

func TestPublishFailure_RequeuesAtFront(t *testing.T) {
	store := newMemStore()
	results := newMemResults()
	adapter := &fakeAdapter{id: models.SourceQuoka, candidates: []models.RawCandidate{
		candidate(models.SourceQuoka, "a", "10 €"),
	}}
	m := NewManager(store, results, map[models.SourceName]scraper.Adapter{models.SourceQuoka: adapter})
	m.SetPublisher(&fakePublisher{ok: false})

	first := gearRequest(t, models.SourceQuoka)
	if err := m.Enqueue(first); err != nil {
		t.Fatal(err)
	}
	other, err := NewRequest("Boss DD-7", "10115", models.KindGear, []models.SourceName{models.SourceQuoka})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Enqueue(other); err != nil {
		t.Fatal(err)
	}

	if err := m.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	st := store.mustLoad(t)
	if st.Processing != nil {
		t.Fatal("processing not cleared after publish failure")
	}
	if len(st.Pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(st.Pending))
	}
	if st.Pending[0].ID != first.ID {
		t.Fatalf("job not requeued at the front: %+v", st.Pending)
	}
	if len(st.Completed) != 0 {
		t.Fatalf("publish failure must not record completion: %+v", st.Completed)
	}
	// the acquisition itself succeeded and the document is on disk
	if results.docs[models.KindGear] == nil {
		t.Fatal("result document missing")
	}
}

func TestAdapterFailure_IsIsolated(t *testing.T) {
	store := newMemStore()
	results := newMemResults()
	healthy := &fakeAdapter{id: models.SourceQuoka, candidates: []models.RawCandidate{
		candidate(models.SourceQuoka, "a", "10 €"),
	}}
	broken := &fakeAdapter{id: models.SourceKleinanzeigen, err: errors.New("markup changed")}
	m := NewManager(store, results, map[models.SourceName]scraper.Adapter{
		models.SourceQuoka:         healthy,
		models.SourceKleinanzeigen: broken,
	})

	if err := m.Enqueue(gearRequest(t, models.SourceKleinanzeigen, models.SourceQuoka)); err != nil {
		t.Fatal(err)
	}
	if err := m.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	st := store.mustLoad(t)
	if len(st.Completed) != 1 || !st.Completed[0].Success {
		t.Fatalf("job should complete with partial sources: %+v", st.Completed)
	}
	if st.Completed[0].ResultCount != 1 {
		t.Fatalf("resultCount = %d, want 1", st.Completed[0].ResultCount)
	}
}

func TestTotalAdapterFailure_FailsJob(t *testing.T) {
	store := newMemStore()
	results := newMemResults()
	broken := &fakeAdapter{id: models.SourceQuoka, err: errors.New("down")}
	m := NewManager(store, results, map[models.SourceName]scraper.Adapter{models.SourceQuoka: broken})

	if err := m.Enqueue(gearRequest(t, models.SourceQuoka)); err != nil {
		t.Fatal(err)
	}
	if err := m.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger should absorb adapter failures: %v", err)
	}

	st := store.mustLoad(t)
	if st.Processing != nil {
		t.Fatal("failed job still processing")
	}
	if len(st.Completed) != 1 || st.Completed[0].Success {
		t.Fatalf("expected failed history entry: %+v", st.Completed)
	}
	if results.docs[models.KindGear] != nil {
		t.Fatal("no document should be written for a failed job")
	}
}

func TestZeroResults_StillCompletes(t *testing.T) {
	store := newMemStore()
	results := newMemResults()
	empty := &fakeAdapter{id: models.SourceQuoka}
	m := NewManager(store, results, map[models.SourceName]scraper.Adapter{models.SourceQuoka: empty})

	if err := m.Enqueue(gearRequest(t, models.SourceQuoka)); err != nil {
		t.Fatal(err)
	}
	if err := m.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	st := store.mustLoad(t)
	if len(st.Completed) != 1 || !st.Completed[0].Success {
		t.Fatalf("zero results must complete successfully: %+v", st.Completed)
	}
	doc := results.docs[models.KindGear]
	if doc == nil || doc.Listings == nil || len(doc.Listings) != 0 {
		t.Fatalf("expected empty but present listings: %+v", doc)
	}
}

func TestResultWriteFailure_FailsJob(t *testing.T) {
	store := newMemStore()
	results := newMemResults()
	results.fail = true
	adapter := &fakeAdapter{id: models.SourceQuoka, candidates: []models.RawCandidate{
		candidate(models.SourceQuoka, "a", "10 €"),
	}}
	m := NewManager(store, results, map[models.SourceName]scraper.Adapter{models.SourceQuoka: adapter})

	if err := m.Enqueue(gearRequest(t, models.SourceQuoka)); err != nil {
		t.Fatal(err)
	}

	err := m.Trigger(context.Background())
	if err == nil {
		t.Fatal("persistence failure must surface to the caller")
	}

	st := store.mustLoad(t)
	if st.Processing != nil {
		t.Fatal("processing not cleared")
	}
	if len(st.Completed) != 1 || st.Completed[0].Success {
		t.Fatalf("expected failed history entry: %+v", st.Completed)
	}
}

func TestEnqueue_DropsDuplicates(t *testing.T) {
	store := newMemStore()
	m := NewManager(store, newMemResults(), nil)

	req := gearRequest(t, models.SourceQuoka)
	if err := m.Enqueue(req); err != nil {
		t.Fatal(err)
	}
	dup, err := NewRequest("Fender Stratocaster", "10115", models.KindGear, []models.SourceName{models.SourceQuoka})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Enqueue(dup); err != nil {
		t.Fatal(err)
	}

	st := store.mustLoad(t)
	if len(st.Pending) != 1 {
		t.Fatalf("duplicate not dropped: %d pending", len(st.Pending))
	}
}

func TestPause_SkipsTrigger(t *testing.T) {
	store := newMemStore()
	adapter := &fakeAdapter{id: models.SourceQuoka}
	m := NewManager(store, newMemResults(), map[models.SourceName]scraper.Adapter{models.SourceQuoka: adapter})

	if err := m.Enqueue(gearRequest(t, models.SourceQuoka)); err != nil {
		t.Fatal(err)
	}

	m.Pause()
	if err := m.Trigger(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&adapter.calls); got != 0 {
		t.Fatalf("paused queue executed a job")
	}

	m.Resume()
	if err := m.Trigger(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&adapter.calls); got != 1 {
		t.Fatalf("resume did not allow execution, calls = %d", got)
	}
}

func TestCompletedHistory_CapsAtTen(t *testing.T) {
	store := newMemStore()
	adapter := &fakeAdapter{id: models.SourceQuoka, candidates: []models.RawCandidate{
		candidate(models.SourceQuoka, "a", "10 €"),
	}}
	m := NewManager(store, newMemResults(), map[models.SourceName]scraper.Adapter{models.SourceQuoka: adapter})

	for i := 0; i < 12; i++ {
		req, err := NewRequest(fmt.Sprintf("Search number %02d", i), "10115", models.KindGear,
			[]models.SourceName{models.SourceQuoka})
		if err != nil {
			t.Fatal(err)
		}
		if err := m.Enqueue(req); err != nil {
			t.Fatal(err)
		}
		if err := m.Trigger(context.Background()); err != nil {
			t.Fatalf("Trigger %d: %v", i, err)
		}
	}

	st := store.mustLoad(t)
	if len(st.Completed) != models.MaxCompletedSearches {
		t.Fatalf("history length %d, want %d", len(st.Completed), models.MaxCompletedSearches)
	}
	// most recent first, oldest evicted
	if st.Completed[0].Term != "Search number 11" {
		t.Fatalf("newest entry = %q", st.Completed[0].Term)
	}
	if st.Completed[len(st.Completed)-1].Term != "Search number 02" {
		t.Fatalf("oldest kept entry = %q", st.Completed[len(st.Completed)-1].Term)
	}
}

func TestAdapterTimeout_IsAnOrdinaryFailure(t *testing.T) {
	store := newMemStore()
	results := newMemResults()
	stuck := &fakeAdapter{id: models.SourceKleinanzeigen, block: make(chan struct{})}
	healthy := &fakeAdapter{id: models.SourceQuoka, candidates: []models.RawCandidate{
		candidate(models.SourceQuoka, "a", "10 €"),
	}}
	m := NewManager(store, results, map[models.SourceName]scraper.Adapter{
		models.SourceKleinanzeigen: stuck,
		models.SourceQuoka:         healthy,
	})
	m.SetAdapterTimeout(50 * time.Millisecond)

	if err := m.Enqueue(gearRequest(t, models.SourceKleinanzeigen, models.SourceQuoka)); err != nil {
		t.Fatal(err)
	}
	if err := m.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	st := store.mustLoad(t)
	if len(st.Completed) != 1 || !st.Completed[0].Success {
		t.Fatalf("timeout must not fail the job: %+v", st.Completed)
	}
	if st.Completed[0].ResultCount != 1 {
		t.Fatalf("resultCount = %d, want 1", st.Completed[0].ResultCount)
	}
}
