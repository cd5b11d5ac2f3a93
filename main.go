package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/kwv/meshalign/mesh"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line. Set records which flags were
// given explicitly so they can override the config file.
type AppOptions struct {
	ConfigFile    string
	ReferenceDir  string
	CurrentDir    string
	ReferenceSide string
	CurrentSide   string
	Exclude       string
	SamplePoints  int
	Seed          int64
	MaxIterations int
	Tolerance     float64
	MaxResidual   float64
	AllowScale    bool
	OutputDir     string
	Formats       string
	LogLevel      string
	HttpPort      int
	ViewMode      bool
	WatchMode     bool
	Publish       bool

	Set map[string]bool
}

// Application is the set of run modes main dispatches to.
type Application interface {
	ApplyOptions(opts AppOptions)
	RunAlign(ctx context.Context) error
	RunView(ctx context.Context) error
	RunWatch(ctx context.Context) error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout, NewApp())
	os.Exit(exitCode(err))
}

// exitCode maps run errors to the process exit status. Visualization
// failures do not fail the run.
func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return 0
	case mesh.IsVisualizationError(err):
		mesh.Logger().Warnf("visualization unavailable: %v", err)
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	default:
		mesh.Logger().Errorf("%v", err)
		return 1
	}
}

func run(ctx context.Context, args []string, out io.Writer, app Application) error {
	fs := flag.NewFlagSet("meshalign", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "meshalign.yaml", "Path to configuration file (optional)")
	fs.StringVar(&opts.ReferenceDir, "reference", "", "Directory of reference STL files")
	fs.StringVar(&opts.CurrentDir, "current", "", "Directory of current STL files to align")
	fs.StringVar(&opts.ReferenceSide, "reference-side", "", "Reference anatomy side: left, right or auto")
	fs.StringVar(&opts.CurrentSide, "current-side", "", "Current anatomy side: left, right or auto")
	fs.StringVar(&opts.Exclude, "exclude", "", "Comma-separated filename substrings to skip (e.g. tibia,fibula)")
	fs.IntVar(&opts.SamplePoints, "sample-points", mesh.DefaultSamplePoints, "Points sampled from each mesh surface")
	fs.Int64Var(&opts.Seed, "seed", 0, "Sampling seed (0 = random)")
	fs.IntVar(&opts.MaxIterations, "max-iterations", 1000, "ICP iteration cap")
	fs.Float64Var(&opts.Tolerance, "tolerance", 1e-6, "ICP convergence threshold on mean distance change")
	fs.Float64Var(&opts.MaxResidual, "max-residual", 0, "Warn when the mean residual exceeds this (0 = off)")
	fs.BoolVar(&opts.AllowScale, "allow-scale", false, "Also estimate a uniform scale")
	fs.StringVar(&opts.OutputDir, "output-dir", "", "Write aligned.stl, transform.txt, result.json and views here")
	fs.StringVar(&opts.Formats, "format", "png", "Rendered view formats: png,svg,webp")
	fs.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.IntVar(&opts.HttpPort, "http-port", 8080, "Port for the viewer")
	fs.BoolVar(&opts.ViewMode, "view", false, "Serve the aligned scene over HTTP until interrupted")
	fs.BoolVar(&opts.WatchMode, "watch", false, "Re-run whenever an input STL file changes")
	fs.BoolVar(&opts.Publish, "publish", false, "Publish the run summary to MQTT")

	if err := fs.Parse(args); err != nil {
		return err
	}

	// Positional form: meshalign [flags] REFERENCE_DIR CURRENT_DIR, or
	// meshalign --view DIR to look at one collection.
	switch rest := fs.Args(); {
	case len(rest) == 0:
	case len(rest) == 1 && opts.ViewMode && !opts.WatchMode:
		opts.ReferenceDir = rest[0]
	case len(rest) == 2:
		opts.ReferenceDir, opts.CurrentDir = rest[0], rest[1]
	default:
		fs.Usage()
		return fmt.Errorf("expected REFERENCE_DIR CURRENT_DIR, got %d argument(s)", len(rest))
	}

	opts.Set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { opts.Set[f.Name] = true })
	if opts.ReferenceDir != "" {
		opts.Set["reference"] = true
	}
	if opts.CurrentDir != "" {
		opts.Set["current"] = true
	}

	_, _ = fmt.Fprintf(out, "meshalign version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.WatchMode:
		return app.RunWatch(ctx)
	case opts.ViewMode:
		return app.RunView(ctx)
	default:
		return app.RunAlign(ctx)
	}
}
