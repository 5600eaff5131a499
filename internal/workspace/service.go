// Package workspace owns the selection tree and the merge coordinator and
// serializes every operation the HTTP, MCP, and CLI surfaces perform on them.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/starford/collate/internal/apperr"
	"github.com/starford/collate/internal/importlist"
	"github.com/starford/collate/internal/merge"
	"github.com/starford/collate/internal/scan"
	"github.com/starford/collate/internal/selection"
	"github.com/starford/collate/internal/storage"
)

// Source kinds reported in Info.
const (
	SourceNone      = "none"
	SourceDirectory = "directory"
	SourceImport    = "import"
)

var (
	// ErrNoSource is returned by StartMerge before anything was loaded.
	ErrNoSource = fmt.Errorf("please load a folder first: %w", apperr.ErrInvalidInput)
	// ErrNoSelection is returned by StartMerge when no file is checked.
	ErrNoSelection = fmt.Errorf("please select at least one file to merge: %w", apperr.ErrInvalidInput)
	// ErrMergeRunning is returned when the tree would be replaced mid-merge.
	ErrMergeRunning = fmt.Errorf("tree is locked while a merge runs: %w", apperr.ErrConflict)
)

// Notifier receives tree and merge events, typically an SSE broker.
type Notifier interface {
	PublishTreeChange(addrs []selection.Address)
	PublishInvalidated()
	PublishProgress(runID uint64, percent int)
	PublishFinished(r merge.Result)
}

// Info summarizes what the tree was loaded from.
type Info struct {
	Source    string `json:"source"`
	Path      string `json:"path,omitempty"`
	Files     int    `json:"files"`
	Checked   int    `json:"checked"`
	OutputDir string `json:"output_dir"`
}

// LoadReport is returned by Scan and Import.
type LoadReport struct {
	Info
	Diagnostics []string `json:"diagnostics,omitempty"`
}

// Service coordinates the selection tree and merge runs.
type Service struct {
	mu     sync.Mutex
	tree   *selection.Tree
	source string
	path   string

	coord            *merge.Coordinator
	outputDir        string
	respectGitignore bool
	logger           *slog.Logger
	notifier         Notifier
	listeners        []merge.Listener
	coordOpts        []merge.Option
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithNotifier forwards tree and merge events to n.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithMergeListener adds a listener for merge progress and outcomes.
func WithMergeListener(l merge.Listener) Option {
	return func(s *Service) {
		if l != nil {
			s.listeners = append(s.listeners, l)
		}
	}
}

// WithRespectGitignore makes Scan honor .gitignore and .ignore files.
func WithRespectGitignore(on bool) Option {
	return func(s *Service) { s.respectGitignore = on }
}

// WithCoordinatorOptions passes opts to the merge coordinator.
func WithCoordinatorOptions(opts ...merge.Option) Option {
	return func(s *Service) { s.coordOpts = append(s.coordOpts, opts...) }
}

// NewService creates a service with an empty tree that writes merges into
// outputDir.
func NewService(outputDir string, opts ...Option) *Service {
	s := &Service{
		outputDir: outputDir,
		source:    SourceNone,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tree = selection.New(selection.WithLogger(s.logger), selection.WithObserver(treeObserver{s}))

	copts := []merge.Option{merge.WithLogger(s.logger), merge.WithListener(mergeRelay{s})}
	s.coord = merge.NewCoordinator(append(copts, s.coordOpts...)...)
	return s
}

type treeObserver struct{ s *Service }

func (o treeObserver) NodesChanged(addrs []selection.Address, _ selection.Aspect) {
	if o.s.notifier != nil {
		o.s.notifier.PublishTreeChange(addrs)
	}
}

func (o treeObserver) TreeInvalidated() {
	if o.s.notifier != nil {
		o.s.notifier.PublishInvalidated()
	}
}

type mergeRelay struct{ s *Service }

func (r mergeRelay) Progress(runID uint64, percent int) {
	if r.s.notifier != nil {
		r.s.notifier.PublishProgress(runID, percent)
	}
	for _, l := range r.s.listeners {
		l.Progress(runID, percent)
	}
}

func (r mergeRelay) Finished(res merge.Result) {
	for _, l := range r.s.listeners {
		l.Finished(res)
	}
	if r.s.notifier != nil {
		r.s.notifier.PublishFinished(res)
	}
}

func (s *Service) infoLocked() Info {
	return Info{
		Source:    s.source,
		Path:      s.path,
		Files:     s.tree.FileCount(),
		Checked:   len(s.tree.CheckedFilePaths()),
		OutputDir: s.outputDir,
	}
}

// Info returns a summary of the current tree.
func (s *Service) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infoLocked()
}

func (s *Service) guardReplace() error {
	if s.coord.Status().Running {
		return ErrMergeRunning
	}
	return nil
}

// Scan replaces the tree with the contents of dir.
func (s *Service) Scan(ctx context.Context, dir string) (*LoadReport, error) {
	if dir == "" {
		return nil, fmt.Errorf("workspace: path is required: %w", apperr.ErrInvalidInput)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("workspace: resolve %s: %w", dir, apperr.ErrInvalidInput)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("workspace: %s: %w", abs, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("workspace: stat %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace: %s is not a directory: %w", abs, apperr.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guardReplace(); err != nil {
		return nil, err
	}

	diags, err := s.populateLocked(ctx, abs)
	if err != nil {
		return nil, err
	}
	s.source, s.path = SourceDirectory, abs

	report := &LoadReport{Info: s.infoLocked(), Diagnostics: diags}
	s.logger.Info("workspace: scanned",
		slog.String("path", abs),
		slog.Int("files", report.Files),
		slog.Int("diagnostics", len(diags)))
	return report, nil
}

func (s *Service) populateLocked(ctx context.Context, abs string) ([]string, error) {
	var errs []error
	if s.respectGitignore {
		res, err := scan.Walk(ctx, abs)
		if err != nil {
			return nil, err
		}
		s.tree.PopulateFromListing(res.Root, res.Files)
		errs = res.Errors
	} else {
		errs = s.tree.PopulateFromDirectory(abs)
	}
	diags := make([]string, 0, len(errs))
	for _, e := range errs {
		diags = append(diags, e.Error())
	}
	return diags, nil
}

// Import replaces the tree with the files listed in the JSON document at
// path. Every imported file starts checked.
func (s *Service) Import(_ context.Context, path string) (*LoadReport, error) {
	if path == "" {
		return nil, fmt.Errorf("workspace: path is required: %w", apperr.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guardReplace(); err != nil {
		return nil, err
	}

	paths, diags := importlist.Load(path)
	for _, d := range diags {
		s.logger.Warn("workspace: import", slog.String("diagnostic", d))
	}
	s.tree.PopulateFromFlatFileList(paths)
	s.source, s.path = SourceImport, path
	if abs, err := filepath.Abs(path); err == nil {
		s.path = abs
	}

	report := &LoadReport{Info: s.infoLocked(), Diagnostics: diags}
	s.logger.Info("workspace: imported",
		slog.String("path", s.path),
		slog.Int("files", report.Files),
		slog.Int("diagnostics", len(diags)))
	return report, nil
}

// Rescan reloads a directory source and keeps every file and empty folder
// that was checked and still exists checked. Import sources are left alone.
func (s *Service) Rescan(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source != SourceDirectory {
		return nil
	}
	if err := s.guardReplace(); err != nil {
		return err
	}

	prev := append(s.tree.CheckedFilePaths(), s.tree.CheckedEmptyFolders()...)
	if _, err := s.populateLocked(ctx, s.path); err != nil {
		return err
	}
	restored := 0
	if len(prev) > 0 {
		restored = s.tree.CheckPaths(prev)
	}
	s.logger.Info("workspace: rescanned",
		slog.String("path", s.path),
		slog.Int("files", s.tree.FileCount()),
		slog.Int("restored", restored))
	return nil
}

func (s *Service) resolveLocked(addr selection.Address) error {
	if _, ok := s.tree.Node(addr); !ok {
		return fmt.Errorf("workspace: node %s: %w", addr, apperr.ErrNotFound)
	}
	return nil
}

// Toggle flips the node at addr.
func (s *Service) Toggle(addr selection.Address) (selection.CheckState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(addr) == 0 {
		return selection.Unchecked, fmt.Errorf("workspace: root is not checkable: %w", apperr.ErrInvalidInput)
	}
	if err := s.resolveLocked(addr); err != nil {
		return selection.Unchecked, err
	}
	s.tree.Toggle(addr)
	st, _ := s.tree.State(addr)
	return st, nil
}

// SetChecked sets the node at addr to checked or unchecked.
func (s *Service) SetChecked(addr selection.Address, checked bool) (selection.CheckState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(addr) == 0 {
		return selection.Unchecked, fmt.Errorf("workspace: root is not checkable: %w", apperr.ErrInvalidInput)
	}
	if err := s.resolveLocked(addr); err != nil {
		return selection.Unchecked, err
	}
	target := selection.Unchecked
	if checked {
		target = selection.Checked
	}
	s.tree.SetChecked(addr, target)
	st, _ := s.tree.State(addr)
	return st, nil
}

// SelectByExtension checks the files with extension ext under the folder at
// addr, directly or with recursive through the whole subtree. A file
// address selects within the file's folder. It returns the number of
// checked files afterwards.
func (s *Service) SelectByExtension(addr selection.Address, ext string, recursive bool) (int, error) {
	if selection.NormalizeExtension(ext) == "" {
		return 0, fmt.Errorf("workspace: extension is required: %w", apperr.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if recursive {
		s.tree.SelectByExtensionRecursive(addr, ext)
	} else {
		s.tree.SelectByExtension(addr, ext)
	}
	return len(s.tree.CheckedFilePaths()), nil
}

// SetAll checks or unchecks every node.
func (s *Service) SetAll(checked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target := selection.Unchecked
	if checked {
		target = selection.Checked
	}
	s.tree.SetAllStates(target)
}

// Checked returns the checked file paths in tree order.
func (s *Service) Checked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.CheckedFilePaths()
}

// Extensions lists the extensions of the direct files in the folder at addr.
func (s *Service) Extensions(addr selection.Address) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.tree.Node(addr)
	if !ok {
		return nil, fmt.Errorf("workspace: node %s: %w", addr, apperr.ErrNotFound)
	}
	if v.Kind != selection.Folder {
		return nil, fmt.Errorf("workspace: node %s is not a folder: %w", addr, apperr.ErrInvalidInput)
	}
	exts := s.tree.Extensions(addr)
	if exts == nil {
		exts = []string{}
	}
	return exts, nil
}

// Snapshot returns a view of the whole tree.
func (s *Service) Snapshot() selection.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Snapshot()
}

// Node returns a view of the subtree at addr.
func (s *Service) Node(addr selection.Address) (selection.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.tree.Node(addr)
	if !ok {
		return selection.View{}, fmt.Errorf("workspace: node %s: %w", addr, apperr.ErrNotFound)
	}
	return v, nil
}

// StartMerge merges the checked files into outputDir, or the configured
// output directory when outputDir is empty.
func (s *Service) StartMerge(outputDir string) (uint64, error) {
	s.mu.Lock()
	if s.source == SourceNone {
		s.mu.Unlock()
		return 0, ErrNoSource
	}
	paths := s.tree.CheckedFilePaths()
	s.mu.Unlock()

	if len(paths) == 0 {
		return 0, ErrNoSelection
	}
	if outputDir == "" {
		outputDir = s.outputDir
	}
	return s.coord.Start(paths, outputDir)
}

// CancelMerge requests cancellation of the active run.
func (s *Service) CancelMerge() bool {
	return s.coord.Cancel()
}

// MergeStatus reports the coordinator state.
func (s *Service) MergeStatus() merge.Status {
	return s.coord.Status()
}

// WaitMerge blocks until the active run finished or ctx is done.
func (s *Service) WaitMerge(ctx context.Context) error {
	return s.coord.Wait(ctx)
}

// Outputs lists previously merged files in the output directory, newest
// first.
func (s *Service) Outputs() ([]storage.Entry, error) {
	store, err := storage.NewFS(s.outputDir)
	if err != nil {
		return nil, err
	}
	return store.List(merge.OutputPrefix + "*" + merge.OutputExt)
}

// Close stops any active merge.
func (s *Service) Close() {
	s.coord.Close()
}
