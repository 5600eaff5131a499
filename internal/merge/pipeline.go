// Package merge concatenates selected files into one timestamped artifact.
//
// A Pipeline performs one run and is then spent. A Coordinator runs at most
// one Pipeline at a time on a background goroutine and relays its progress
// and outcome to a Listener.
package merge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/starford/collate/internal/checksum"
	"github.com/starford/collate/internal/storage"
)

// State is the pipeline lifecycle state.
type State int32

const (
	Idle State = iota
	Running
	Completed
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{Idle, Running, Completed, Failed, Cancelled} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("merge: unknown state %q", string(b))
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

const (
	// NothingToMerge is the informational message for an empty input list.
	NothingToMerge = "nothing to merge"

	// OutputPrefix and OutputExt frame the timestamp in output names.
	OutputPrefix = "collated_files_"
	OutputExt    = ".txt"

	// TimestampLayout is the output name timestamp format.
	TimestampLayout = "2006-01-02_15-04-05"
)

// OutputName returns the artifact name for a run written at t.
func OutputName(t time.Time) string {
	return OutputPrefix + t.Format(TimestampLayout) + OutputExt
}

// Banner returns the delimiter written before each file's content.
func Banner(name string) string {
	return "\n\n========== [" + name + "] ==========\n\n"
}

// Outcome is the terminal result of a run.
type Outcome struct {
	State State
	// Message is the output path on success, NothingToMerge for an empty
	// list, or a human-readable reason otherwise.
	Message    string
	OutputPath string
	Checksum   string
	Bytes      int
	Skipped    []string
}

// Pipeline merges one ordered list of files into one output file.
type Pipeline struct {
	paths     []string
	outputDir string

	state     atomic.Int32
	cancelled atomic.Bool

	progress func(percent int)
	now      func() time.Time
	logger   *slog.Logger
	open     func(name string) (io.ReadCloser, error)

	last int
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithProgress sets the progress sink. It is called synchronously on the
// goroutine running the pipeline.
func WithProgress(fn func(percent int)) PipelineOption {
	return func(p *Pipeline) { p.progress = fn }
}

// WithClock overrides the time source used for the output name.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithPipelineLogger sets the logger.
func WithPipelineLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

func withOpener(open func(string) (io.ReadCloser, error)) PipelineOption {
	return func(p *Pipeline) { p.open = open }
}

// NewPipeline creates an idle pipeline. paths is copied.
func NewPipeline(paths []string, outputDir string, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		paths:     append([]string(nil), paths...),
		outputDir: outputDir,
		now:       time.Now,
		logger:    slog.Default(),
		open: func(name string) (io.ReadCloser, error) {
			return os.Open(name)
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Cancel requests cooperative cancellation. It is observed before each file
// and once more before the output is written.
func (p *Pipeline) Cancel() {
	p.cancelled.Store(true)
}

func (p *Pipeline) cancelRequested(ctx context.Context) bool {
	return p.cancelled.Load() || ctx.Err() != nil
}

func (p *Pipeline) emit(percent int) {
	if percent < p.last {
		percent = p.last
	}
	p.last = percent
	if p.progress != nil {
		p.progress(percent)
	}
}

func (p *Pipeline) finish(o Outcome) Outcome {
	p.state.Store(int32(o.State))
	return o
}

// Run executes the pipeline. A pipeline runs once; later calls report
// failure without doing any work.
func (p *Pipeline) Run(ctx context.Context) Outcome {
	if !p.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return Outcome{State: Failed, Message: "merge: pipeline already started"}
	}

	p.emit(0)
	total := len(p.paths)
	if total == 0 {
		p.emit(100)
		return p.finish(Outcome{State: Completed, Message: NothingToMerge})
	}

	var (
		buf       bytes.Buffer
		processed int
		skipped   []string
	)
	for _, path := range p.paths {
		if p.cancelRequested(ctx) {
			p.emit(processed * 100 / total)
			p.logger.Info("merge: cancelled", slog.Int("processed", processed), slog.Int("total", total))
			return p.finish(Outcome{State: Cancelled, Message: "merge cancelled", Skipped: skipped})
		}

		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			p.logger.Warn("merge: file missing, skipped", slog.String("path", path))
			skipped = append(skipped, path)
			processed++
			p.emit(processed * 100 / total)
			continue
		}

		data, err := p.read(path)
		if err != nil {
			p.logger.Error("merge: read failed", slog.String("path", path), slog.String("error", err.Error()))
			p.emit(100)
			return p.finish(Outcome{
				State:   Failed,
				Message: fmt.Sprintf("could not read file %s: %v", path, err),
				Skipped: skipped,
			})
		}

		buf.WriteString(Banner(filepath.Base(path)))
		buf.Write(data)
		processed++
		p.emit(processed * 100 / total)
	}

	if p.cancelRequested(ctx) {
		p.logger.Info("merge: cancelled before saving")
		return p.finish(Outcome{State: Cancelled, Message: "merge cancelled before saving", Skipped: skipped})
	}

	name := OutputName(p.now())
	outPath := filepath.Join(p.outputDir, name)
	if abs, err := filepath.Abs(outPath); err == nil {
		outPath = abs
	}
	if err := p.write(name, buf.Bytes()); err != nil {
		p.logger.Error("merge: write failed", slog.String("path", outPath), slog.String("error", err.Error()))
		p.emit(100)
		return p.finish(Outcome{
			State:   Failed,
			Message: fmt.Sprintf("could not create output file %s: %v", outPath, err),
			Skipped: skipped,
		})
	}

	p.emit(100)
	sum := checksum.Sum(buf.Bytes())
	p.logger.Info("merge: completed",
		slog.String("path", outPath),
		slog.Int("files", processed-len(skipped)),
		slog.Int("bytes", buf.Len()),
		slog.String("checksum", checksum.Short(sum)))
	return p.finish(Outcome{
		State:      Completed,
		Message:    outPath,
		OutputPath: outPath,
		Checksum:   sum,
		Bytes:      buf.Len(),
		Skipped:    skipped,
	})
}

func (p *Pipeline) read(path string) ([]byte, error) {
	f, err := p.open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (p *Pipeline) write(name string, content []byte) error {
	store, err := storage.NewFS(p.outputDir)
	if err != nil {
		return err
	}
	return store.Write(name, content)
}
