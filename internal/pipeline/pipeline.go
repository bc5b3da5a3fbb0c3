// Package pipeline drives recognition runs: one run per session at a time,
// pages processed in order, with cooperative cancellation and fail-fast on
// the first engine error.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/AleksandrSemykin/reflow-ocr/internal/document"
	"github.com/AleksandrSemykin/reflow-ocr/internal/engine"
	"github.com/AleksandrSemykin/reflow-ocr/internal/events"
	"github.com/AleksandrSemykin/reflow-ocr/internal/models"
	"github.com/AleksandrSemykin/reflow-ocr/internal/preprocess"
	"github.com/AleksandrSemykin/reflow-ocr/internal/storage"
)

var (
	// ErrNoPages is returned when a session has nothing to recognize.
	ErrNoPages = errors.New("session has no pages")
	// ErrRunActive is returned when a recognition run is already in flight
	// for the session.
	ErrRunActive = errors.New("recognition already running for session")
)

// Run is one in-flight recognition attempt for a session.
type Run struct {
	ID         string
	SessionID  string
	StartedAt  time.Time
	Total      int
	prevStatus models.SessionStatus
	completed  atomic.Int32
	cancelled  atomic.Bool
	done       chan struct{}
}

// Completed reports how many pages have finished so far.
func (r *Run) Completed() int { return int(r.completed.Load()) }

// Cancelled reports whether a cancel was requested.
func (r *Run) Cancelled() bool { return r.cancelled.Load() }

// Done is closed when the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} { return r.done }

// Options configures a Pipeline.
type Options struct {
	// Workers bounds concurrent runs across all sessions. Submissions past
	// the bound wait in submission order.
	Workers int
	// EngineTimeout bounds one engine call per page.
	EngineTimeout time.Duration
	// Languages is the recognition language hint passed to engines.
	Languages []string
}

// pending is a claimed run waiting for a pool worker.
type pending struct {
	run     *Run
	session *models.Session
}

// Pipeline owns the run lifecycle. At most one run per session exists at any
// moment; runs across sessions share a bounded worker pool.
type Pipeline struct {
	store  *storage.Store
	bus    *events.Bus
	engine engine.Engine
	pre    preprocess.Preprocessor
	pool   *ants.Pool
	opts   Options

	mu      sync.Mutex
	runs    map[string]*Run
	pending []pending

	wake chan struct{}
	quit chan struct{}
}

// New builds a pipeline over the shared store and event bus. Callers own the
// pool lifetime through Close.
func New(store *storage.Store, bus *events.Bus, eng engine.Engine, pre preprocess.Preprocessor, opts Options) (*Pipeline, error) {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.EngineTimeout <= 0 {
		opts.EngineTimeout = 2 * time.Minute
	}
	if pre == nil {
		pre = preprocess.Noop{}
	}
	pool, err := ants.NewPool(opts.Workers)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	p := &Pipeline{
		store:  store,
		bus:    bus,
		engine: eng,
		pre:    pre,
		pool:   pool,
		opts:   opts,
		runs:   make(map[string]*Run),
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
	}
	go p.dispatch()
	return p, nil
}

// Close releases the worker pool. In-flight and queued runs finish first.
func (p *Pipeline) Close() {
	p.mu.Lock()
	active := make([]*Run, 0, len(p.runs))
	for _, run := range p.runs {
		active = append(active, run)
	}
	p.mu.Unlock()
	for _, run := range active {
		<-run.done
	}
	close(p.quit)
	p.pool.Release()
}

// dispatch feeds claimed runs to the pool in start order. The blocking
// submit lives here, so a saturated pool delays the dispatcher and never a
// caller of Start.
func (p *Pipeline) dispatch() {
	for {
		p.mu.Lock()
		var next pending
		ok := len(p.pending) > 0
		if ok {
			next = p.pending[0]
			p.pending = p.pending[1:]
		}
		p.mu.Unlock()

		if !ok {
			select {
			case <-p.wake:
				continue
			case <-p.quit:
				return
			}
		}

		run, session := next.run, next.session
		if err := p.pool.Submit(func() { p.execute(run, session) }); err != nil {
			slog.Error("submitting recognition run", "session_id", run.SessionID, "run_id", run.ID, "err", err)
			terminal := p.fail(run, fmt.Sprintf("submitting recognition run: %v", err))
			p.removeRun(run)
			close(run.done)
			p.bus.Publish(terminal)
		}
	}
}

// ActiveRun returns the in-flight run for a session, if any.
func (p *Pipeline) ActiveRun(sessionID string) (*Run, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	run, ok := p.runs[sessionID]
	return run, ok
}

// Start launches a recognition run for the session and returns its id
// without waiting for a worker: the session enters processing immediately
// and the run queues for the pool in start order. A session with a run
// already in flight gets ErrRunActive, and one with no pages gets ErrNoPages.
func (p *Pipeline) Start(sessionID string) (string, error) {
	session, err := p.store.Get(sessionID)
	if err != nil {
		return "", err
	}
	if len(session.Pages) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoPages, sessionID)
	}

	p.mu.Lock()
	if _, exists := p.runs[sessionID]; exists {
		p.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrRunActive, sessionID)
	}
	run := &Run{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		StartedAt: time.Now().UTC(),
		Total:     len(session.Pages),
		done:      make(chan struct{}),
	}
	p.runs[sessionID] = run
	p.mu.Unlock()

	prev, err := p.store.SetStatus(sessionID, models.StatusProcessing)
	if err != nil {
		p.removeRun(run)
		return "", err
	}
	run.prevStatus = prev

	p.bus.Publish(events.Event{
		Type:      events.RecognitionStarted,
		SessionID: sessionID,
		RunID:     run.ID,
		Total:     run.Total,
	})

	p.mu.Lock()
	p.pending = append(p.pending, pending{run: run, session: session})
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return run.ID, nil
}

// Cancel requests cooperative cancellation of the session's active run.
// It returns false when no run is in flight. The run observes the flag at
// the next page boundary; Cancel never interrupts an engine call.
func (p *Pipeline) Cancel(sessionID string) bool {
	p.mu.Lock()
	run, ok := p.runs[sessionID]
	p.mu.Unlock()
	if !ok {
		return false
	}
	run.cancelled.Store(true)
	return true
}

func (p *Pipeline) removeRun(run *Run) {
	p.mu.Lock()
	if p.runs[run.SessionID] == run {
		delete(p.runs, run.SessionID)
	}
	p.mu.Unlock()
}

// execute works the run to a terminal state. Exactly one terminal event is
// published, after the run slot is released, so observing it guarantees the
// session accepts a new run. The session never stays in processing without
// a live run, panics included.
func (p *Pipeline) execute(run *Run, session *models.Session) {
	var terminal events.Event
	defer func() {
		if r := recover(); r != nil {
			slog.Error("recognition run panicked", "session_id", run.SessionID, "run_id", run.ID, "panic", r)
			terminal = p.fail(run, fmt.Sprintf("internal error: %v", r))
		}
		p.removeRun(run)
		close(run.done)
		p.bus.Publish(terminal)
	}()

	pages := append([]models.Page(nil), session.Pages...)
	sort.Slice(pages, func(i, j int) bool { return pages[i].Index < pages[j].Index })

	docPages := make([]document.Page, 0, len(pages))
	for _, page := range pages {
		if run.cancelled.Load() {
			terminal = p.cancelOut(run)
			return
		}

		blocks, err := p.recognizePage(run.SessionID, page)
		if err != nil {
			slog.Warn("recognition failed",
				"session_id", run.SessionID,
				"run_id", run.ID,
				"page_index", page.Index,
				"err", err)
			terminal = p.fail(run, fmt.Sprintf("page %d: %v", page.Index, err))
			return
		}

		docPages = append(docPages, document.Page{
			Index:  page.Index,
			Width:  page.Metadata.Width,
			Height: page.Metadata.Height,
			Blocks: blocks,
		})
		completed := int(run.completed.Add(1))
		p.bus.Publish(events.Event{
			Type:      events.PageCompleted,
			SessionID: run.SessionID,
			RunID:     run.ID,
			Stage:     events.StagePage,
			Completed: completed,
			Total:     run.Total,
		})
	}

	if run.cancelled.Load() {
		terminal = p.cancelOut(run)
		return
	}

	doc := document.New(languageHint(p.opts.Languages), docPages)
	if err := doc.Validate(); err != nil {
		terminal = p.fail(run, fmt.Sprintf("engine produced invalid geometry: %v", err))
		return
	}
	if _, err := p.store.SetDocument(run.SessionID, doc); err != nil {
		terminal = p.fail(run, fmt.Sprintf("committing document: %v", err))
		return
	}
	slog.Info("recognition finished",
		"session_id", run.SessionID,
		"run_id", run.ID,
		"pages", run.Total,
		"duration", time.Since(run.StartedAt).Round(time.Millisecond))
	terminal = events.Event{
		Type:      events.RecognitionFinished,
		SessionID: run.SessionID,
		RunID:     run.ID,
		Completed: run.Total,
		Total:     run.Total,
	}
}

// recognizePage reads, preprocesses, and recognizes one page under the
// engine timeout.
func (p *Pipeline) recognizePage(sessionID string, page models.Page) ([]document.Block, error) {
	data, err := p.store.ReadPage(sessionID, page.ID)
	if err != nil {
		return nil, fmt.Errorf("reading page image: %w", err)
	}
	processed, err := p.pre.Process(data)
	if err != nil {
		return nil, fmt.Errorf("preprocessing: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.opts.EngineTimeout)
	defer cancel()
	return p.engine.Recognize(ctx, engine.PageImage{
		Data:     processed,
		MimeType: page.Metadata.MimeType,
		Width:    page.Metadata.Width,
		Height:   page.Metadata.Height,
		Index:    page.Index,
	}, engine.Options{Languages: p.opts.Languages})
}

// fail moves the session to error, keeping any document from a prior run,
// and returns the terminal event to publish.
func (p *Pipeline) fail(run *Run, message string) events.Event {
	if _, err := p.store.SetError(run.SessionID, message); err != nil {
		slog.Error("recording run failure", "session_id", run.SessionID, "err", err)
	}
	return events.Event{
		Type:      events.RecognitionFailed,
		SessionID: run.SessionID,
		RunID:     run.ID,
		Completed: run.Completed(),
		Total:     run.Total,
		Message:   message,
	}
}

// cancelOut restores the pre-run status, discards all partial output, and
// returns the terminal event to publish.
func (p *Pipeline) cancelOut(run *Run) events.Event {
	if _, err := p.store.SetStatus(run.SessionID, run.prevStatus); err != nil {
		slog.Error("restoring status after cancel", "session_id", run.SessionID, "err", err)
	}
	slog.Info("recognition cancelled",
		"session_id", run.SessionID,
		"run_id", run.ID,
		"completed", run.Completed(),
		"total", run.Total)
	return events.Event{
		Type:      events.RecognitionCancelled,
		SessionID: run.SessionID,
		RunID:     run.ID,
		Completed: run.Completed(),
		Total:     run.Total,
	}
}

func languageHint(languages []string) string {
	if len(languages) == 0 {
		return ""
	}
	hint := languages[0]
	for _, lang := range languages[1:] {
		hint += "+" + lang
	}
	return hint
}
