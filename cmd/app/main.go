package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/collate/internal"
	pkgconfig "github.com/starford/collate/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

func dirArg(cmd *cli.Command) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", fmt.Errorf("%s: expected exactly one argument", cmd.Name)
	}
	return cmd.Args().First(), nil
}

func selectionFlags(cmd *cli.Command) internal.Selection {
	return internal.Selection{
		Extensions: internal.SplitExtensions(cmd.StringSlice("ext")),
		Recursive:  cmd.Bool("recursive"),
	}
}

func mergeFlags(cmd *cli.Command) internal.MergeOptions {
	return internal.MergeOptions{
		OutputDir: cmd.String("out"),
		Copy:      cmd.Bool("copy"),
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, opts...)
}

func runScan(ctx context.Context, cmd *cli.Command) error {
	dir, err := dirArg(cmd)
	if err != nil {
		return err
	}
	opts, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunScan(ctx, dir, selectionFlags(cmd), opts...)
}

func runMerge(ctx context.Context, cmd *cli.Command) error {
	dir, err := dirArg(cmd)
	if err != nil {
		return err
	}
	opts, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return internal.RunMerge(ctx, dir, selectionFlags(cmd), mergeFlags(cmd), opts...)
}

func runImport(ctx context.Context, cmd *cli.Command) error {
	list, err := dirArg(cmd)
	if err != nil {
		return err
	}
	opts, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return internal.RunImport(ctx, list, mergeFlags(cmd), opts...)
}

func main() {
	extFlag := &cli.StringSliceFlag{
		Name:    "ext",
		Aliases: []string{"e"},
		Usage:   "Check files with these extensions (repeatable or comma-separated); all files when omitted",
	}
	recursiveFlag := &cli.BoolFlag{
		Name:    "recursive",
		Aliases: []string{"r"},
		Usage:   "Apply --ext to subfolders too",
	}
	outFlag := &cli.StringFlag{
		Name:    "out",
		Aliases: []string{"o"},
		Usage:   "Output directory; defaults to output.dir from the config",
	}
	copyFlag := &cli.BoolFlag{
		Name:  "copy",
		Usage: "Copy the output path to the clipboard",
	}

	cmd := &cli.Command{
		Name:    "collate",
		Usage:   "Select files from a folder tree and merge them into one text file",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "scan",
				Usage:     "List the files a merge would include",
				ArgsUsage: "<dir>",
				Flags:     []cli.Flag{extFlag, recursiveFlag},
				Action:    runScan,
			},
			{
				Name:      "merge",
				Usage:     "Merge the selected files of a folder",
				ArgsUsage: "<dir>",
				Flags:     []cli.Flag{extFlag, recursiveFlag, outFlag, copyFlag},
				Action:    runMerge,
			},
			{
				Name:      "import",
				Usage:     "Merge every file named in a JSON file list",
				ArgsUsage: "<list.json>",
				Flags:     []cli.Flag{outFlag, copyFlag},
				Action:    runImport,
			},
			{
				Name:   "serve",
				Usage:  "Run the HTTP API with live events",
				Action: runServe,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: runMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
