// Package queue implements the single-worker acquisition queue: claim one
// pending search, fan out to the source adapters, normalize, rank, persist,
// publish. At most one job executes at a time; the durable Processing field
// is the guard.
package queue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/models"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/normalize"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/publish"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/rank"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/sanitize"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/scraper"
)

// Store is the durable home of QueueState. Every state transition is saved
// through it, so a crash always leaves a recoverable snapshot.
type Store interface {
	Load() (*models.QueueState, error)
	Save(*models.QueueState) error
}

// ResultStore persists the published result documents.
type ResultStore interface {
	Load(kind models.SearchKind) (*models.ResultDocument, error)
	Save(kind models.SearchKind, doc *models.ResultDocument) error
	Path(kind models.SearchKind) string
}

// History records run bookkeeping. Optional; the queue runs without it.
type History interface {
	CreateRun(run *models.SearchRun) (int64, error)
	UpdateRun(run *models.SearchRun) error
	Log(runID *int64, level models.LogLevel, message string, source models.SourceName) error
}

// Archiver retains listings beyond the last published document. Optional.
type Archiver interface {
	ArchiveListings(ctx context.Context, req models.SearchRequest, listings []models.Listing) error
}

// Progress milestones, reported monotonically. Observability only.
const (
	progressClaimed      = 5
	progressFetching     = 25
	progressFirstResults = 40
	progressFetched      = 60
	progressNormalized   = 65
	progressRanked       = 85
	progressWritten      = 90
	progressRecorded     = 95
	progressDone         = 100
)

type Manager struct {
	store    Store
	results  ResultStore
	adapters map[models.SourceName]scraper.Adapter

	publisher      publish.Publisher
	history        History
	archive        Archiver
	onProgress     func(pct int, msg string)
	adapterTimeout time.Duration
	topK           int

	mu     sync.Mutex // serializes every load-modify-save transition
	paused bool
}

func NewManager(store Store, results ResultStore, adapters map[models.SourceName]scraper.Adapter) *Manager {
	return &Manager{
		store:          store,
		results:        results,
		adapters:       adapters,
		publisher:      publish.NewNoopPublisher(),
		adapterTimeout: 45 * time.Second,
		topK:           rank.DefaultTopK,
	}
}

func (m *Manager) SetPublisher(p publish.Publisher) { m.publisher = p }
func (m *Manager) SetHistory(h History)             { m.history = h }
func (m *Manager) SetArchiver(a Archiver)           { m.archive = a }

func (m *Manager) SetAdapterTimeout(d time.Duration) {
	if d > 0 {
		m.adapterTimeout = d
	}
}

func (m *Manager) SetProgressFunc(fn func(pct int, msg string)) { m.onProgress = fn }

// NewRequest is the only way a SearchRequest comes into existence: raw input
// passes sanitization here or not at all.
func NewRequest(term, postalCode string, kind models.SearchKind, sources []models.SourceName) (models.SearchRequest, error) {
	cleanTerm, err := sanitize.Term(term)
	if err != nil {
		return models.SearchRequest{}, err
	}
	cleanCode, err := sanitize.PostalCode(postalCode)
	if err != nil {
		return models.SearchRequest{}, err
	}

	return models.SearchRequest{
		ID:          uuid.New().String(),
		Term:        cleanTerm,
		PostalCode:  cleanCode,
		Kind:        kind,
		Sources:     sources,
		RequestedAt: time.Now(),
	}, nil
}

// Enqueue appends a request. A search identical to one already pending or
// executing is dropped so scheduled re-submissions do not pile up.
func (m *Manager) Enqueue(req models.SearchRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.store.Load()
	if err != nil {
		return fmt.Errorf("load queue state: %w", err)
	}

	if st.Processing != nil && sameSearch(*st.Processing, req) {
		return nil
	}
	for _, p := range st.Pending {
		if sameSearch(p, req) {
			return nil
		}
	}

	st.Pending = append(st.Pending, req)
	return m.store.Save(st)
}

// Requeue is the only sanctioned path back onto the queue: the request goes
// to the front and any matching Processing entry is cleared.
func (m *Manager) Requeue(req models.SearchRequest, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.store.Load()
	if err != nil {
		return fmt.Errorf("load queue state: %w", err)
	}

	if st.Processing != nil && st.Processing.ID == req.ID {
		st.Processing = nil
	}
	st.Pending = append([]models.SearchRequest{req}, st.Pending...)
	st.CurrentProgress = 0
	st.StatusMessage = fmt.Sprintf("requeued: %s", reason)

	log.Printf("job %s requeued: %s", req.ID, reason)
	return m.store.Save(st)
}

func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
	log.Println("queue paused")
}

func (m *Manager) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = false
	log.Println("queue resumed")
}

func (m *Manager) IsPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Recover clears a Processing entry left behind by a crash. The job is
// recorded as failed, never resumed: a half-executed job has unknown side
// effects and re-submission is the caller's call.
func (m *Manager) Recover() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.store.Load()
	if err != nil {
		return fmt.Errorf("load queue state: %w", err)
	}
	if st.Processing == nil {
		return nil
	}

	req := *st.Processing
	log.Printf("clearing abandoned job %s (%q)", req.ID, req.Term)

	st.RecordCompleted(models.CompletedSearch{
		SearchRequest: req,
		CompletedAt:   time.Now(),
		Success:       false,
		StatusMessage: "abandoned after restart",
	})
	st.Processing = nil
	st.CurrentProgress = 0
	st.StatusMessage = "recovered abandoned job"

	return m.store.Save(st)
}

// Trigger claims the queue head and runs it to completion or failure. When a
// job is already executing, or the queue is paused or empty, the call is a
// no-op. Only persistence failures come back as errors.
func (m *Manager) Trigger(ctx context.Context) error {
	m.mu.Lock()

	if m.paused {
		m.mu.Unlock()
		log.Println("queue paused, trigger skipped")
		return nil
	}

	st, err := m.store.Load()
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("load queue state: %w", err)
	}

	if st.Processing != nil {
		m.mu.Unlock()
		log.Printf("job %s already executing, trigger is a no-op", st.Processing.ID)
		return nil
	}

	if len(st.Pending) == 0 {
		st.LastChecked = time.Now()
		st.StatusMessage = "idle"
		err := m.store.Save(st)
		m.mu.Unlock()
		return err
	}

	req := st.Pending[0]
	st.Pending = st.Pending[1:]
	st.Processing = &req
	st.CurrentProgress = 0
	st.StatusMessage = fmt.Sprintf("claimed %q", req.Term)
	st.LastChecked = time.Now()

	if err := m.store.Save(st); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("persist claim: %w", err)
	}
	m.mu.Unlock()

	return m.execute(ctx, req)
}

func (m *Manager) execute(ctx context.Context, req models.SearchRequest) error {
	run := &models.SearchRun{
		SearchID:  req.ID,
		Term:      req.Term,
		Kind:      req.Kind,
		StartedAt: time.Now(),
		Status:    models.RunStatusRunning,
	}
	var runID *int64
	if m.history != nil {
		if id, err := m.history.CreateRun(run); err != nil {
			log.Printf("create run record failed: %v", err)
		} else {
			run.ID = id
			runID = &id
		}
	}

	m.report(progressClaimed, fmt.Sprintf("starting %q", req.Term))
	m.report(progressFetching, fmt.Sprintf("querying %d sources", len(req.Sources)))

	raw, invoked, failed := m.fetchAll(ctx, req, runID)
	run.SourcesFailed = failed
	run.ErrorsCount = failed
	m.report(progressFetched, fmt.Sprintf("%d raw candidates collected", len(raw)))

	if invoked > 0 && failed == invoked {
		return m.fail(req, run, fmt.Errorf("all %d sources failed", invoked))
	}

	listings := normalize.Candidates(raw)
	m.report(progressNormalized, fmt.Sprintf("%d listings normalized", len(listings)))

	doc := m.buildDocument(req, listings)
	m.report(progressRanked, fmt.Sprintf("%d listings selected", len(doc.Listings)))

	if err := m.results.Save(req.Kind, doc); err != nil {
		if ferr := m.fail(req, run, err); ferr != nil {
			return ferr
		}
		// a failed result write is a persistence failure: surface it
		return fmt.Errorf("write result document: %w", err)
	}
	m.report(progressWritten, "result document written")

	run.ResultsFound = len(doc.Listings)

	if m.archive != nil {
		if err := m.archive.ArchiveListings(ctx, req, doc.Listings); err != nil {
			log.Printf("listing archive failed (non-fatal): %v", err)
		}
	}
	m.report(progressRecorded, "run recorded")

	paths := []string{m.results.Path(req.Kind)}
	if ok := m.publisher.Publish(ctx, paths, commitMessage(req, len(doc.Listings))); !ok {
		// acquisition succeeded, only the publish did not: back to the front
		m.finishRun(run, models.RunStatusRequeued)
		return m.Requeue(req, "publish failed")
	}

	m.finishRun(run, models.RunStatusCompleted)

	err := m.transition(func(st *models.QueueState) {
		st.RecordCompleted(models.CompletedSearch{
			SearchRequest: req,
			CompletedAt:   time.Now(),
			ResultCount:   len(doc.Listings),
			Success:       true,
		})
		st.Processing = nil
		st.CurrentProgress = progressDone
		st.StatusMessage = fmt.Sprintf("completed %q: %d listings", req.Term, len(doc.Listings))
		st.LastChecked = time.Now()
	})
	if err != nil {
		return fmt.Errorf("persist completion: %w", err)
	}

	m.notify(progressDone, "done")
	log.Printf("job %s completed: %d listings", req.ID, len(doc.Listings))
	return nil
}

func (m *Manager) buildDocument(req models.SearchRequest, listings []models.Listing) *models.ResultDocument {
	now := time.Now()
	doc := &models.ResultDocument{LastUpdated: now, LastChecked: now}

	switch req.Kind {
	case models.KindHousing:
		previous, err := m.results.Load(models.KindHousing)
		if err != nil {
			// stale beats crashed: treat the unreadable document as absent
			log.Printf("previous document unreadable, flagging everything new: %v", err)
			previous = nil
		}
		doc.Listings = rank.MergeWithPrevious(listings, previous)
		doc.SearchCriteria = &models.SearchCriteria{Term: req.Term, PostalCode: req.PostalCode}
	default:
		doc.Listings = rank.TopCheapest(listings, m.topK)
		doc.LastSearch = req.Term
	}

	if doc.Listings == nil {
		doc.Listings = []models.Listing{}
	}
	return doc
}

type adapterResult struct {
	source     models.SourceName
	candidates []models.RawCandidate
	err        error
}

// fetchAll queries every requested source concurrently. One adapter's error,
// timeout or panic contributes zero candidates and never delays the rest.
// Results are assembled in req.Sources order so output is deterministic.
func (m *Manager) fetchAll(ctx context.Context, req models.SearchRequest, runID *int64) (raw []models.RawCandidate, invoked, failed int) {
	results := make(chan adapterResult, len(req.Sources))
	var wg sync.WaitGroup

	for _, source := range req.Sources {
		adapter, ok := m.adapters[source]
		if !ok {
			m.logRun(runID, models.LogLevelWarn, "no adapter configured", source)
			continue
		}
		invoked++
		wg.Add(1)
		go func(source models.SourceName, adapter scraper.Adapter) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results <- adapterResult{source: source, err: fmt.Errorf("adapter panic: %v", r)}
				}
			}()

			actx, cancel := context.WithTimeout(ctx, m.adapterTimeout)
			defer cancel()

			candidates, err := adapter.Fetch(actx, req.Term, req.PostalCode)
			results <- adapterResult{source: source, candidates: candidates, err: err}
		}(source, adapter)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	bySource := make(map[models.SourceName][]models.RawCandidate)
	reported := false
	for res := range results {
		if res.err != nil {
			failed++
			log.Printf("source %s failed: %v", res.source, res.err)
			m.logRun(runID, models.LogLevelError, res.err.Error(), res.source)
			continue
		}
		m.logRun(runID, models.LogLevelInfo, fmt.Sprintf("%d candidates", len(res.candidates)), res.source)
		bySource[res.source] = res.candidates

		if !reported && len(res.candidates) > 0 {
			m.report(progressFirstResults, fmt.Sprintf("first results from %s", res.source))
			reported = true
		}
	}

	for _, source := range req.Sources {
		raw = append(raw, bySource[source]...)
	}
	return raw, invoked, failed
}

// fail dequeues the job and records it as failed. Retrying is an explicit
// re-submission by the caller, never automatic.
func (m *Manager) fail(req models.SearchRequest, run *models.SearchRun, cause error) error {
	log.Printf("job %s failed: %v", req.ID, cause)
	m.finishRun(run, models.RunStatusFailed)

	err := m.transition(func(st *models.QueueState) {
		st.RecordCompleted(models.CompletedSearch{
			SearchRequest: req,
			CompletedAt:   time.Now(),
			Success:       false,
			StatusMessage: cause.Error(),
		})
		st.Processing = nil
		st.StatusMessage = fmt.Sprintf("failed %q: %v", req.Term, cause)
		st.LastChecked = time.Now()
	})
	if err != nil {
		return fmt.Errorf("persist failure: %w", err)
	}
	return nil
}

// transition applies one load-modify-save cycle under the manager lock.
func (m *Manager) transition(mutate func(st *models.QueueState)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.store.Load()
	if err != nil {
		return err
	}
	mutate(st)
	return m.store.Save(st)
}

// report persists a progress update. Progress is observability only, so a
// failed save is logged and the job carries on.
func (m *Manager) report(pct int, msg string) {
	err := m.transition(func(st *models.QueueState) {
		st.CurrentProgress = pct
		st.StatusMessage = msg
	})
	if err != nil {
		log.Printf("progress update failed: %v", err)
	}
	m.notify(pct, msg)
}

func (m *Manager) notify(pct int, msg string) {
	if m.onProgress != nil {
		m.onProgress(pct, msg)
	}
}

func (m *Manager) finishRun(run *models.SearchRun, status models.RunStatus) {
	if m.history == nil || run.ID == 0 {
		return
	}
	now := time.Now()
	run.FinishedAt = &now
	run.Status = status
	if err := m.history.UpdateRun(run); err != nil {
		log.Printf("update run record failed: %v", err)
	}
}

func (m *Manager) logRun(runID *int64, level models.LogLevel, message string, source models.SourceName) {
	if m.history == nil {
		return
	}
	if err := m.history.Log(runID, level, message, source); err != nil {
		log.Printf("run log failed: %v", err)
	}
}

func sameSearch(a, b models.SearchRequest) bool {
	return a.Term == b.Term && a.PostalCode == b.PostalCode && a.Kind == b.Kind
}

func commitMessage(req models.SearchRequest, count int) string {
	return fmt.Sprintf("Update %s results for %q (%d listings)", req.Kind, req.Term, count)
}
