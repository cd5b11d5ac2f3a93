package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/kwv/meshalign/mesh"
)

// App encapsulates the application state and dependencies
type App struct {
	Config    *mesh.Config
	State     *mesh.RunState
	Publisher *mesh.Publisher

	// CLI Flags (effectively dependencies)
	opts AppOptions

	// newMQTTClient is swapped out in tests.
	newMQTTClient func(mesh.MQTTConfig) mqtt.Client
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		State:         mesh.NewRunState(),
		newMQTTClient: mesh.NewMQTTClient,
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.opts = opts
}

// loadConfig reads the config file (if present) and overlays every flag
// that was given explicitly.
func (a *App) loadConfig() (*mesh.Config, error) {
	cfg, err := mesh.LoadConfigOrDefault(a.opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	set := a.opts.Set

	if set["reference"] {
		cfg.Reference.Dir = a.opts.ReferenceDir
	}
	if set["current"] {
		cfg.Current.Dir = a.opts.CurrentDir
	}
	if set["reference-side"] {
		side, err := mesh.ParseSide(a.opts.ReferenceSide)
		if err != nil {
			return nil, &mesh.InputError{Op: "parse flag", Path: "--reference-side", Err: err}
		}
		cfg.Reference.Side = side
	}
	if set["current-side"] {
		side, err := mesh.ParseSide(a.opts.CurrentSide)
		if err != nil {
			return nil, &mesh.InputError{Op: "parse flag", Path: "--current-side", Err: err}
		}
		cfg.Current.Side = side
	}
	if set["exclude"] {
		cfg.Exclude = mesh.SplitList(a.opts.Exclude)
	}
	if set["sample-points"] {
		cfg.SamplePoints = a.opts.SamplePoints
	}
	if set["seed"] {
		cfg.Seed = a.opts.Seed
	}
	if set["max-iterations"] {
		cfg.ICP.MaxIterations = a.opts.MaxIterations
	}
	if set["tolerance"] {
		cfg.ICP.ConvergenceThreshold = a.opts.Tolerance
	}
	if set["max-residual"] {
		cfg.ICP.MaxMeanResidual = a.opts.MaxResidual
	}
	if set["allow-scale"] {
		cfg.ICP.AllowScale = a.opts.AllowScale
	}
	if set["output-dir"] {
		cfg.Output.Dir = a.opts.OutputDir
	}
	if set["format"] {
		cfg.Output.Formats = mesh.SplitList(a.opts.Formats)
	}
	if set["log-level"] {
		cfg.LogLevel = a.opts.LogLevel
	}

	validate := cfg.Validate
	if a.previewOnly(cfg) {
		validate = cfg.ValidatePreview
	}
	if err := validate(); err != nil {
		return nil, err
	}
	if err := mesh.SetLogLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	a.Config = cfg
	return cfg, nil
}

// RunAlign runs the pipeline once and writes artifacts when an output
// directory is configured. View rendering problems are logged and do not
// fail the run.
func (a *App) RunAlign(ctx context.Context) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	return a.align(ctx, cfg)
}

func (a *App) align(ctx context.Context, cfg *mesh.Config) error {
	res, err := mesh.Run(ctx, cfg)
	if err != nil {
		a.State.Fail(err)
		return err
	}
	a.State.Update(res, cfg)

	if cfg.Output.Dir != "" {
		if _, err := mesh.SaveArtifacts(cfg.Output.Dir, res, cfg); err != nil {
			return fmt.Errorf("saving artifacts: %w", err)
		}
		if _, err := mesh.SaveViews(cfg.Output.Dir, res, cfg); err != nil {
			mesh.Logger().Warnf("rendering skipped: %v", err)
		}
	}

	if a.opts.Publish {
		if err := a.publish(mesh.Summarize(res, cfg)); err != nil {
			mesh.Logger().Warnf("publishing result: %v", err)
		}
	}
	return nil
}

// publish lazily connects to MQTT and sends the summary.
func (a *App) publish(s mesh.Summary) error {
	if a.Publisher == nil {
		mqttCfg := mesh.ResolveMQTT(a.Config.MQTT)
		client := a.newMQTTClient(mqttCfg)
		if client == nil {
			return fmt.Errorf("MQTT broker not configured")
		}
		if !client.IsConnected() {
			if err := mesh.ConnectMQTT(client, 3); err != nil {
				return err
			}
		}
		a.Publisher = mesh.NewPublisher(client, mqttCfg.PublishPrefix)
	}
	return a.Publisher.PublishSummary(s)
}

// previewOnly reports a view run without a current collection, which shows
// the reference collection alone.
func (a *App) previewOnly(cfg *mesh.Config) bool {
	return a.opts.ViewMode && !a.opts.WatchMode && cfg.Current.Dir == ""
}

// RunView aligns once, then serves the scene over HTTP until ctx is done.
// Without a current collection it serves the reference collection alone.
func (a *App) RunView(ctx context.Context) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if a.previewOnly(cfg) {
		res, err := mesh.Preview(ctx, cfg)
		if err != nil {
			return err
		}
		a.State.Update(res, cfg)
		return a.serve(ctx, cfg)
	}
	if err := a.align(ctx, cfg); err != nil {
		return err
	}
	return a.serve(ctx, cfg)
}

// RunWatch aligns once and again after every change to an input directory.
// Failed runs are logged and the previous result stays on display. The
// viewer runs alongside when --view is given.
func (a *App) RunWatch(ctx context.Context) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if err := a.align(ctx, cfg); err != nil {
		if !mesh.IsInputError(err) {
			return err
		}
		mesh.Logger().Errorf("initial run failed: %v", err)
	}

	watcher, err := mesh.NewWatcher([]string{cfg.Reference.Dir, cfg.Current.Dir}, mesh.DefaultDebounce, func(ctx context.Context) {
		if err := a.align(ctx, cfg); err != nil {
			mesh.Logger().Errorf("run failed: %v", err)
		}
	})
	if err != nil {
		return err
	}

	if !a.opts.ViewMode {
		mesh.Logger().Infof("watching %s and %s, press Ctrl+C to stop", cfg.Reference.Dir, cfg.Current.Dir)
		return watcher.Run(ctx)
	}

	errc := make(chan error, 1)
	go func() { errc <- watcher.Run(ctx) }()
	serveErr := a.serve(ctx, cfg)
	if mesh.IsVisualizationError(serveErr) {
		mesh.Logger().Warnf("viewer unavailable, still watching: %v", serveErr)
		serveErr = nil
	}
	return errors.Join(serveErr, <-errc)
}

// serve runs the viewer until ctx is cancelled. A listener failure is a
// *mesh.VisualizationError.
func (a *App) serve(ctx context.Context, cfg *mesh.Config) error {
	addr := net.JoinHostPort("0.0.0.0", strconv.Itoa(a.opts.HttpPort))
	srv := &http.Server{
		Addr:              addr,
		Handler:           newHTTPServer(a.State, cfg.View),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		mesh.Logger().Infof("[HTTP] viewer on http://%s (Ctrl+C to close)", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return &mesh.VisualizationError{Op: "serve viewer", Err: err}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mesh.Logger().Info("viewer closed")
		return srv.Shutdown(shutdownCtx)
	}
}
