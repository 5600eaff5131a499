package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/atotto/clipboard"

	"github.com/starford/collate/internal/merge"
	"github.com/starford/collate/internal/progress"
	"github.com/starford/collate/internal/selection"
	"github.com/starford/collate/internal/workspace"
)

// Selection describes which files a one-shot command checks after a scan.
// An empty Extensions list checks every file.
type Selection struct {
	Extensions []string
	Recursive  bool
}

// MergeOptions control where a one-shot merge writes and what happens after.
type MergeOptions struct {
	OutputDir string
	Copy      bool
}

// ErrMergeCancelled is returned when a one-shot merge is interrupted.
var ErrMergeCancelled = errors.New("merge cancelled")

var copyToClipboard = clipboard.WriteAll

// SplitExtensions splits comma-separated flag values into single extensions.
func SplitExtensions(values []string) []string {
	var out []string
	for _, v := range values {
		for _, ext := range strings.Split(v, ",") {
			if ext = strings.TrimSpace(ext); ext != "" {
				out = append(out, ext)
			}
		}
	}
	return out
}

func (a *application) cliLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
}

func (a *application) scanAndSelect(ctx context.Context, svc *workspace.Service, dir string, sel Selection, logger *slog.Logger) error {
	report, err := svc.Scan(ctx, dir)
	if err != nil {
		return err
	}
	for _, d := range report.Diagnostics {
		logger.Warn("scan", slog.String("diagnostic", d))
	}
	if len(sel.Extensions) == 0 {
		svc.SetAll(true)
		return nil
	}
	for _, ext := range sel.Extensions {
		n, err := svc.SelectByExtension(selection.Address{}, ext, sel.Recursive)
		if err != nil {
			return err
		}
		logger.Debug("selected by extension", slog.String("extension", ext), slog.Int("count", n))
	}
	return nil
}

// RunScan loads dir, applies sel and prints the checked files in merge order.
func RunScan(ctx context.Context, dir string, sel Selection, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	logger := app.cliLogger()

	svc := app.newService(logger)
	defer svc.Close()

	if err := app.scanAndSelect(ctx, svc, dir, sel, logger); err != nil {
		return err
	}
	for _, path := range svc.Checked() {
		fmt.Fprintln(app.stdout, path)
	}
	return nil
}

// RunMerge loads dir, applies sel and merges the result.
func RunMerge(ctx context.Context, dir string, sel Selection, mo MergeOptions, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	logger := app.cliLogger()

	bar := progress.New(app.stderr)
	svc := app.newService(logger, workspace.WithMergeListener(bar))
	defer svc.Close()

	if err := app.scanAndSelect(ctx, svc, dir, sel, logger); err != nil {
		return err
	}
	return app.mergeOnce(ctx, svc, bar, mo, logger)
}

// RunImport loads a JSON file list and merges every listed file.
func RunImport(ctx context.Context, listPath string, mo MergeOptions, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	logger := app.cliLogger()

	bar := progress.New(app.stderr)
	svc := app.newService(logger, workspace.WithMergeListener(bar))
	defer svc.Close()

	report, err := svc.Import(ctx, listPath)
	if err != nil {
		return err
	}
	for _, d := range report.Diagnostics {
		fmt.Fprintln(app.stderr, d)
	}
	return app.mergeOnce(ctx, svc, bar, mo, logger)
}

func (a *application) mergeOnce(ctx context.Context, svc *workspace.Service, bar *progress.Bar, mo MergeOptions, logger *slog.Logger) error {
	if _, err := svc.StartMerge(mo.OutputDir); err != nil {
		return err
	}

	var res merge.Result
	select {
	case res = <-bar.Done():
	case <-ctx.Done():
		logger.Info("interrupted, cancelling merge")
		svc.CancelMerge()
		select {
		case res = <-bar.Done():
		case <-time.After(a.config.Merge.TeardownTimeout):
			return ErrMergeCancelled
		}
	}

	for _, path := range res.Skipped {
		logger.Warn("skipped missing file", slog.String("path", path))
	}

	switch res.State {
	case merge.Cancelled:
		return ErrMergeCancelled
	case merge.Failed:
		return errors.New(res.Message)
	}

	if res.OutputPath == "" {
		fmt.Fprintln(a.stdout, res.Message)
		return nil
	}
	fmt.Fprintln(a.stdout, res.OutputPath)
	logger.Info("merge completed",
		slog.Int("bytes", res.Bytes),
		slog.String("checksum", res.Checksum))

	if mo.Copy {
		if err := copyToClipboard(res.OutputPath); err != nil {
			logger.Warn("could not copy to clipboard", slog.String("error", err.Error()))
		}
	}
	return nil
}
