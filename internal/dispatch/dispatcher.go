// Package dispatch serializes semantic requests per file and fans them out
// across files. It is the only component that calls the translation unit
// cache, so the cache's same-path serialization contract holds by
// construction.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"ccd/internal/buffers"
	"ccd/internal/completion"
	"ccd/internal/diagnostics"
	ccderr "ccd/internal/errors"
	"ccd/internal/flags"
	"ccd/internal/frontend"
	"ccd/internal/logging"
	"ccd/internal/tucache"
)

type requestKind int

const (
	kindCompletion requestKind = iota
	kindDiagnostics
)

func (k requestKind) String() string {
	if k == kindCompletion {
		return "completion"
	}
	return "diagnostics"
}

// CompletionResult is the answer to a completion request.
type CompletionResult struct {
	RequestID  string                 `json:"requestId"`
	Outcome    string                 `json:"outcome"`
	Candidates []completion.Candidate `json:"candidates"`
}

// DiagnosticsResult is the answer to a diagnostics request.
type DiagnosticsResult struct {
	RequestID   string                   `json:"requestId"`
	Outcome     string                   `json:"outcome"`
	Diagnostics []diagnostics.Diagnostic `json:"diagnostics"`
}

type taskResult struct {
	outcome    tucache.Outcome
	candidates []completion.Candidate
	diags      []diagnostics.Diagnostic
	err        error
}

type task struct {
	id    string
	kind  requestKind
	gen   uint64
	path  string
	snap  *buffers.Snapshot
	line  int
	col   int
	limit int

	// Buffered so the worker never blocks on a caller that timed out.
	result chan taskResult
}

// fileQueue is the serialized work stream for one file. closed marks the
// file as closed; the queue goroutine reaps itself once no work remains.
type fileQueue struct {
	ch     chan *task
	wake   chan struct{}
	closed bool
}

// Recorder receives one record per served request. The stats store
// implements it.
type Recorder interface {
	RecordRequest(file, kind, outcome string, duration time.Duration, errCode string)
}

// Options configures a Dispatcher.
type Options struct {
	Workers        int
	QueueSize      int
	RequestTimeout time.Duration
}

// Dispatcher owns one queue goroutine per open file. Requests for the same
// file execute in arrival order; requests for different files run in
// parallel up to the worker limit.
type Dispatcher struct {
	fe       frontend.Frontend
	resolver *flags.Resolver
	cache    *tucache.Cache
	engine   *completion.Engine
	logger   *logging.Logger

	sem       *semaphore.Weighted
	queueSize int
	timeout   time.Duration
	recorder  Recorder

	mu     sync.Mutex
	queues map[string]*fileQueue
	gens   map[string][2]uint64
	closed bool

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a dispatcher wired to the given pipeline components.
func New(fe frontend.Frontend, resolver *flags.Resolver, cache *tucache.Cache, engine *completion.Engine, opts Options, logger *logging.Logger) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 32
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 20 * time.Second
	}
	return &Dispatcher{
		fe:        fe,
		resolver:  resolver,
		cache:     cache,
		engine:    engine,
		logger:    logger,
		sem:       semaphore.NewWeighted(int64(opts.Workers)),
		queueSize: opts.QueueSize,
		timeout:   opts.RequestTimeout,
		queues:    make(map[string]*fileQueue),
		gens:      make(map[string][2]uint64),
		done:      make(chan struct{}),
	}
}

// SetRecorder attaches a request recorder. Call before serving requests.
func (d *Dispatcher) SetRecorder(r Recorder) {
	d.recorder = r
}

// RequestCompletion runs the completion pipeline for the cursor position.
// A newer completion request for the same file supersedes this one; the
// superseded caller gets Cancelled even though any parse it triggered still
// lands in the cache.
func (d *Dispatcher) RequestCompletion(ctx context.Context, path string, snap *buffers.Snapshot, line, col, limit int) (*CompletionResult, error) {
	t, err := d.submit(ctx, kindCompletion, path, snap, line, col, limit)
	if err != nil {
		return nil, err
	}
	res, err := d.await(ctx, t)
	if err != nil {
		return nil, err
	}
	return &CompletionResult{
		RequestID:  t.id,
		Outcome:    res.outcome.String(),
		Candidates: res.candidates,
	}, nil
}

// RequestDiagnostics parses (or reuses) the translation unit for path and
// returns its collected diagnostics.
func (d *Dispatcher) RequestDiagnostics(ctx context.Context, path string, snap *buffers.Snapshot) (*DiagnosticsResult, error) {
	t, err := d.submit(ctx, kindDiagnostics, path, snap, 0, 0, 0)
	if err != nil {
		return nil, err
	}
	res, err := d.await(ctx, t)
	if err != nil {
		return nil, err
	}
	return &DiagnosticsResult{
		RequestID:   t.id,
		Outcome:     res.outcome.String(),
		Diagnostics: res.diags,
	}, nil
}

// NotifyFileClosed releases the translation unit for path and supersedes any
// queued requests for it. The next request after close performs a full parse.
func (d *Dispatcher) NotifyFileClosed(path string) error {
	norm, err := buffers.Normalize(path)
	if err != nil {
		return ccderr.New(ccderr.InternalError, "cannot normalize path", err)
	}

	d.mu.Lock()
	if _, ok := d.gens[norm]; ok {
		g := d.gens[norm]
		g[kindCompletion]++
		g[kindDiagnostics]++
		d.gens[norm] = g
	}
	if q, ok := d.queues[norm]; ok {
		q.closed = true
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}
	d.mu.Unlock()

	d.cache.Evict(norm)
	d.logger.Debug("file closed", map[string]interface{}{"file": norm})
	return nil
}

// NotifyFlagsChanged drops cached flag discovery for pathOrDir and its
// descendants, and evicts their translation units, so the next request
// re-resolves flags and parses fresh.
func (d *Dispatcher) NotifyFlagsChanged(pathOrDir string) {
	dir := d.resolver.Invalidate(pathOrDir)
	evicted := d.cache.EvictUnder(dir)
	d.logger.Info("compile flags invalidated", map[string]interface{}{
		"path":    pathOrDir,
		"evicted": evicted,
	})
}

// Close stops all queue workers. In-flight tasks finish first.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	close(d.done)
	d.wg.Wait()
}

func (d *Dispatcher) submit(ctx context.Context, kind requestKind, path string, snap *buffers.Snapshot, line, col, limit int) (*task, error) {
	norm, err := buffers.Normalize(path)
	if err != nil {
		return nil, ccderr.New(ccderr.InternalError, "cannot normalize path", err)
	}
	if snap == nil {
		snap = buffers.EmptySnapshot()
	}

	t := &task{
		id:     uuid.New().String(),
		kind:   kind,
		path:   norm,
		snap:   snap,
		line:   line,
		col:    col,
		limit:  limit,
		result: make(chan taskResult, 1),
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ccderr.New(ccderr.InternalError, "dispatcher is closed", nil)
	}
	queue, ok := d.queues[norm]
	if !ok {
		queue = &fileQueue{
			ch:   make(chan *task, d.queueSize),
			wake: make(chan struct{}, 1),
		}
		d.queues[norm] = queue
		d.wg.Add(1)
		go d.processQueue(norm, queue)
	}
	// A request after close reopens the file's queue.
	queue.closed = false

	// The generation bump and the enqueue happen under one lock so queue
	// order matches generation order, and a rejected request never
	// supersedes anything.
	g := d.gens[norm]
	g[kind]++
	t.gen = g[kind]
	select {
	case queue.ch <- t:
		d.gens[norm] = g
		d.mu.Unlock()
	default:
		d.mu.Unlock()
		return nil, ccderr.New(ccderr.QueueFull, "request queue full for file", nil).
			WithDetails(map[string]interface{}{"file": norm, "capacity": d.queueSize})
	}

	d.logger.Debug("request enqueued", map[string]interface{}{
		"requestId": t.id,
		"kind":      kind.String(),
		"file":      norm,
	})
	select {
	case <-ctx.Done():
		// Already superseded or abandoned; the worker will discard it.
		return nil, callerErr(ctx.Err())
	default:
	}
	return t, nil
}

func (d *Dispatcher) await(ctx context.Context, t *task) (taskResult, error) {
	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case res := <-t.result:
		return res, res.err
	case <-timer.C:
		return taskResult{}, ccderr.New(ccderr.Timeout, "request deadline exceeded", nil).
			WithDetails(map[string]interface{}{"requestId": t.id, "timeoutMs": d.timeout.Milliseconds()})
	case <-ctx.Done():
		return taskResult{}, callerErr(ctx.Err())
	}
}

func callerErr(err error) error {
	if err == context.DeadlineExceeded {
		return ccderr.New(ccderr.Timeout, "request deadline exceeded", err)
	}
	return ccderr.New(ccderr.Cancelled, "request abandoned by caller", err)
}

func (d *Dispatcher) processQueue(path string, q *fileQueue) {
	defer d.wg.Done()
	for {
		select {
		case t := <-q.ch:
			d.execute(t)
		case <-q.wake:
		case <-d.done:
			return
		}
		if d.reapIfDrained(path, q) {
			return
		}
	}
}

// reapIfDrained removes a closed file's queue once no work remains, so a
// long-lived daemon does not keep a goroutine per file ever touched. A later
// request for the same file starts a fresh queue.
func (d *Dispatcher) reapIfDrained(path string, q *fileQueue) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !q.closed || len(q.ch) > 0 {
		return false
	}
	if d.queues[path] == q {
		delete(d.queues, path)
		delete(d.gens, path)
	}
	return true
}

func (d *Dispatcher) execute(t *task) {
	if d.stale(t) {
		t.result <- taskResult{err: supersededErr(t)}
		return
	}

	// The worker outlives the caller's deadline by a grace window so a slow
	// parse still lands in the cache for the next request.
	wctx, cancel := context.WithTimeout(context.Background(), 2*d.timeout)
	defer cancel()

	if err := d.sem.Acquire(wctx, 1); err != nil {
		t.result <- taskResult{err: ccderr.New(ccderr.Timeout, "no worker slot available", err)}
		return
	}
	defer d.sem.Release(1)

	start := time.Now()
	res := d.run(wctx, t)

	// Supersession is decided at delivery: the cache was already updated by
	// whatever parse this request triggered.
	if d.stale(t) {
		res = taskResult{err: supersededErr(t)}
	}
	t.result <- res

	elapsed := time.Since(start)
	fields := map[string]interface{}{
		"requestId":  t.id,
		"kind":       t.kind.String(),
		"file":       t.path,
		"durationMs": elapsed.Milliseconds(),
	}
	outcome, errCode := "", ""
	if res.err != nil {
		errCode = string(ccderr.CodeOf(res.err))
		fields["error"] = errCode
		d.logger.Debug("request failed", fields)
	} else {
		outcome = res.outcome.String()
		fields["outcome"] = outcome
		d.logger.Debug("request served", fields)
	}
	if d.recorder != nil && errCode != string(ccderr.Cancelled) {
		d.recorder.RecordRequest(t.path, t.kind.String(), outcome, elapsed, errCode)
	}
}

func (d *Dispatcher) run(ctx context.Context, t *task) taskResult {
	fl, err := d.resolver.Resolve(t.path)
	if err != nil {
		return taskResult{err: err}
	}

	entry, outcome, err := d.cache.Ensure(ctx, t.path, fl, t.snap)
	if err != nil {
		return taskResult{outcome: outcome, err: err}
	}
	defer d.cache.Release(entry)

	switch t.kind {
	case kindCompletion:
		cands, err := d.engine.Complete(ctx, d.fe, entry.Handle, t.path, t.snap, t.line, t.col, t.limit)
		if err != nil {
			if ccderr.Is(err, ccderr.LibraryFault) {
				// A faulting unit is not trusted for further queries.
				d.cache.Evict(t.path)
			}
			return taskResult{outcome: outcome, err: err}
		}
		return taskResult{outcome: outcome, candidates: cands}
	default:
		return taskResult{outcome: outcome, diags: diagnostics.Collect(t.path, entry.Diagnostics)}
	}
}

// stale reports whether a newer request of the same kind arrived for the file.
func (d *Dispatcher) stale(t *task) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gens[t.path][t.kind] != t.gen
}

func supersededErr(t *task) error {
	return ccderr.New(ccderr.Cancelled, "superseded by a newer request", nil).
		WithDetails(map[string]interface{}{"requestId": t.id})
}
