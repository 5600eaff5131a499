package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/collate/internal/apperr"
)

// DefaultTeardownTimeout bounds how long Close waits for an active run.
const DefaultTeardownTimeout = 1500 * time.Millisecond

var (
	// ErrAlreadyRunning is returned by Start while a run is active.
	ErrAlreadyRunning = fmt.Errorf("merge already in progress: %w", apperr.ErrConflict)
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("merge: coordinator closed")
)

// Result is the outcome of one run as reported to a Listener.
type Result struct {
	RunID      uint64   `json:"run_id"`
	Success    bool     `json:"success"`
	State      State    `json:"state"`
	Message    string   `json:"message"`
	OutputPath string   `json:"output_path,omitempty"`
	Checksum   string   `json:"checksum,omitempty"`
	Bytes      int      `json:"bytes,omitempty"`
	Skipped    []string `json:"skipped,omitempty"`
}

// Listener receives run notifications. Calls for one coordinator come from
// a single goroutine, in emission order.
type Listener interface {
	Progress(runID uint64, percent int)
	Finished(r Result)
}

// Funcs adapts plain functions to Listener. Nil fields are skipped.
type Funcs struct {
	OnProgress func(runID uint64, percent int)
	OnFinished func(r Result)
}

func (f Funcs) Progress(runID uint64, percent int) {
	if f.OnProgress != nil {
		f.OnProgress(runID, percent)
	}
}

func (f Funcs) Finished(r Result) {
	if f.OnFinished != nil {
		f.OnFinished(r)
	}
}

// Status is a point-in-time view of the coordinator.
type Status struct {
	Running  bool    `json:"running"`
	RunID    uint64  `json:"run_id,omitempty"`
	Progress int     `json:"progress"`
	Last     *Result `json:"last,omitempty"`
}

type event struct {
	percent int
	outcome *Outcome
}

type run struct {
	id       uint64
	pipeline *Pipeline
	cancel   context.CancelFunc
	done     chan struct{}
}

// Coordinator runs at most one Pipeline at a time.
type Coordinator struct {
	listener     Listener
	logger       *slog.Logger
	teardown     time.Duration
	pipelineOpts []PipelineOption

	mu       sync.Mutex
	nextID   uint64
	current  *run
	progress int
	last     *Result
	closed   bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithListener sets the receiver of progress and outcome notifications.
func WithListener(l Listener) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.listener = l
		}
	}
}

// WithLogger sets the logger for the coordinator and its pipelines.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTeardownTimeout bounds the wait in Close.
func WithTeardownTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.teardown = d
		}
	}
}

// WithPipelineOptions applies opts to every pipeline the coordinator starts.
func WithPipelineOptions(opts ...PipelineOption) Option {
	return func(c *Coordinator) {
		c.pipelineOpts = append(c.pipelineOpts, opts...)
	}
}

// NewCoordinator creates an idle coordinator.
func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		listener: Funcs{},
		logger:   slog.Default(),
		teardown: DefaultTeardownTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches a run over paths, writing into outputDir. While a run is
// active it returns ErrAlreadyRunning and changes nothing.
func (c *Coordinator) Start(paths []string, outputDir string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrClosed
	}
	if c.current != nil {
		c.logger.Info("merge: start rejected, run in progress", slog.Uint64("run_id", c.current.id))
		return 0, ErrAlreadyRunning
	}

	c.nextID++
	id := c.nextID
	events := make(chan event, 16)

	opts := append([]PipelineOption{WithPipelineLogger(c.logger)}, c.pipelineOpts...)
	opts = append(opts, WithProgress(func(percent int) {
		events <- event{percent: percent}
	}))
	p := NewPipeline(paths, outputDir, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{id: id, pipeline: p, cancel: cancel, done: make(chan struct{})}
	c.current = r
	c.progress = 0

	// The worker only talks to the relay through events.
	go func() {
		defer close(events)
		o := p.Run(ctx)
		events <- event{outcome: &o}
	}()
	go c.relay(r, events)

	c.logger.Info("merge: started",
		slog.Uint64("run_id", id),
		slog.Int("files", len(paths)),
		slog.String("output_dir", outputDir))
	return id, nil
}

func (c *Coordinator) relay(r *run, events <-chan event) {
	defer close(r.done)
	for ev := range events {
		if ev.outcome == nil {
			c.deliverProgress(r, ev.percent)
			continue
		}
		c.deliverOutcome(r, *ev.outcome)
	}
}

func (c *Coordinator) deliverProgress(r *run, percent int) {
	c.mu.Lock()
	if c.current != r {
		c.mu.Unlock()
		return
	}
	c.progress = percent
	c.mu.Unlock()
	c.listener.Progress(r.id, percent)
}

func (c *Coordinator) deliverOutcome(r *run, o Outcome) {
	c.mu.Lock()
	if c.current != r {
		c.mu.Unlock()
		c.logger.Debug("merge: discarding stale result", slog.Uint64("run_id", r.id))
		return
	}
	res := Result{
		RunID:      r.id,
		Success:    o.State == Completed,
		State:      o.State,
		Message:    o.Message,
		OutputPath: o.OutputPath,
		Checksum:   o.Checksum,
		Bytes:      o.Bytes,
		Skipped:    o.Skipped,
	}
	c.current = nil
	c.last = &res
	c.mu.Unlock()

	r.cancel()
	c.logger.Info("merge: finished",
		slog.Uint64("run_id", r.id),
		slog.String("state", o.State.String()),
		slog.String("message", o.Message))
	c.listener.Finished(res)
}

// Cancel requests cancellation of the active run. It reports whether a run
// was active.
func (c *Coordinator) Cancel() bool {
	c.mu.Lock()
	r := c.current
	c.mu.Unlock()
	if r == nil {
		return false
	}
	r.pipeline.Cancel()
	r.cancel()
	return true
}

// Wait blocks until the active run, if any, has delivered its outcome or
// ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	r := c.current
	c.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the current view of the coordinator.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Status{Progress: c.progress}
	if c.current != nil {
		s.Running = true
		s.RunID = c.current.id
	}
	if c.last != nil {
		last := *c.last
		s.Last = &last
	}
	return s
}

// Close cancels any active run and waits for it up to the teardown bound.
// A run that outlives the bound is detached: its goroutine is abandoned and
// anything it still reports is discarded. Start fails after Close.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	r := c.current
	c.mu.Unlock()
	if r == nil {
		return
	}

	r.pipeline.Cancel()
	r.cancel()

	timer := time.NewTimer(c.teardown)
	defer timer.Stop()
	select {
	case <-r.done:
	case <-timer.C:
		c.mu.Lock()
		if c.current == r {
			c.current = nil
		}
		c.mu.Unlock()
		c.logger.Warn("merge: worker did not stop in time, detaching",
			slog.Uint64("run_id", r.id),
			slog.Duration("timeout", c.teardown))
	}
}
