package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	"playamap/internal/config"
	"playamap/internal/engine"
	"playamap/internal/feed"
	appLog "playamap/internal/log"
	"playamap/internal/preview"
	"playamap/internal/timeline"
	"playamap/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	at         string
	preview    bool
	debug      bool
}

func main() {
	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}
	appLog.Info("playamap starting", "version", "0.1.0")

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if !flags.debug {
		appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"calibration", conf.Calibration,
		"refresh", conf.RefreshCron,
		"events", conf.Data.Events,
		"camps", conf.Data.Camps,
		"ics_count", len(conf.Data.ICS),
		"once", flags.once,
		"preview", flags.preview,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	loader, eng, err := setup(ctx, conf)
	if err != nil {
		appLog.Error("startup failed", err)
		os.Exit(1)
	}

	if flags.at != "" {
		t, err := time.Parse(time.RFC3339, flags.at)
		if err != nil {
			appLog.Error("invalid -at; want RFC3339", err, "at", flags.at)
			os.Exit(2)
		}
		eng.SetInstant(t)
	}

	if flags.once {
		if err := runOnce(ctx, conf, eng, flags.preview); err != nil {
			appLog.Error("one-shot run failed", err)
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, conf, loader, eng); err != nil {
		appLog.Error("server failed", err)
		os.Exit(1)
	}
	appLog.Info("playamap exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Load data, print the events active at the cursor and exit")
	flag.StringVar(&cfg.at, "at", "", "Initial cursor instant (RFC3339); defaults to the window start")
	flag.BoolVar(&cfg.preview, "preview", false, "With -once, also write a PNG preview to preview.output_path")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}

// setup loads the data set and builds the engine. A load failure here is
// fatal: there is no previous state to fall back to.
func setup(ctx context.Context, conf *config.Config) (*feed.Loader, *engine.Engine, error) {
	loc := conf.Location()
	window, err := conf.Window()
	if err != nil {
		return nil, nil, err
	}
	cal, err := conf.SelectedCalibration()
	if err != nil {
		return nil, nil, err
	}
	daylight, err := conf.DaylightIn(loc)
	if err != nil {
		return nil, nil, err
	}

	icsSources := make([]feed.Source, 0, len(conf.Data.ICS))
	for _, c := range conf.Data.ICS {
		if c.URL == "" {
			continue
		}
		id := c.ID
		if id == "" {
			if c.Name != "" {
				id = c.Name
			} else {
				id = c.URL
			}
		}
		icsSources = append(icsSources, feed.Source{ID: id, URL: c.URL})
	}

	loader := &feed.Loader{
		Fetcher:    feed.NewFetcher(conf.Data.CacheDir, nil),
		Events:     feed.Source{ID: "events", URL: conf.Data.Events},
		Camps:      feed.Source{ID: "camps", URL: conf.Data.Camps},
		ICS:        icsSources,
		RangeStart: window.Start,
		RangeEnd:   window.End,
		Location:   loc,
	}

	ds, err := loader.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load data: %w", err)
	}

	eng, err := engine.New(engine.Options{
		Calibration: cal,
		Window:      window,
		Steps:       conf.Playback.Steps,
		Step:        conf.Playback.Step,
		Daylight:    daylight,
	}, ds.Events, ds.Camps)
	if err != nil {
		return nil, nil, err
	}
	return loader, eng, nil
}

// runOnce prints the active events at the cursor and optionally captures a
// PNG of the marker chart.
func runOnce(ctx context.Context, conf *config.Config, eng *engine.Engine, withPreview bool) error {
	snap := eng.Snapshot()
	loc := conf.Location()

	fmt.Printf("%s  (%s)\n", snap.Instant.In(loc).Format("Mon Jan 2 15:04 MST"), timeline.CountLabel(len(snap.Active)))
	for _, ae := range snap.Active {
		marker := "  "
		if ae.Located {
			marker = "* "
		}
		fmt.Println(marker + eng.Describe(ae.Event, snap.Instant).String())
	}

	if !withPreview {
		return nil
	}

	// Render the chart to a file next to the PNG and let Chromium open it
	// directly; no HTTP server is needed in one-shot mode.
	htmlPath := conf.Preview.OutputPath + ".html"
	if err := os.MkdirAll(filepath.Dir(htmlPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(htmlPath)
	if err != nil {
		return err
	}
	center := eng.Resolver().Center()
	renderErr := preview.Render(f, snap, preview.ChartOptions{
		Width:  conf.Preview.Width,
		Height: conf.Preview.Height,
		Center: &center,
	})
	if err := f.Close(); err != nil && renderErr == nil {
		renderErr = err
	}
	if renderErr != nil {
		return renderErr
	}

	abs, err := filepath.Abs(htmlPath)
	if err != nil {
		return err
	}
	_, err = preview.CapturePNG(ctx, preview.CaptureOptions{
		URL:        "file://" + abs,
		OutputPath: conf.Preview.OutputPath,
		Width:      conf.Preview.Width,
		Height:     conf.Preview.Height,
		Timeout:    conf.Preview.Timeout,
	})
	if err != nil {
		return err
	}
	appLog.Info("preview written", "path", conf.Preview.OutputPath)
	return nil
}

// serve runs the HTTP server, the playback player and the scheduled data
// reload until ctx is canceled.
func serve(ctx context.Context, conf *config.Config, loader *feed.Loader, eng *engine.Engine) error {
	player := timeline.NewPlayer(eng.Cursor(), conf.Playback.Interval, func(step int) {
		eng.Advance(step)
	})
	defer player.Stop()

	eng.OnChange(func(s engine.Snapshot) {
		appLog.Debug("cursor moved",
			"instant", s.Instant.Format(time.RFC3339),
			"active", len(s.Active),
			"located", s.Located(),
		)
	})

	if conf.RefreshCron != "" {
		sched := cron.New()
		_, err := sched.AddFunc(conf.RefreshCron, func() {
			reload(ctx, loader, eng)
		})
		if err != nil {
			return fmt.Errorf("schedule refresh %q: %w", conf.RefreshCron, err)
		}
		sched.Start()
		defer func() {
			<-sched.Stop().Done()
		}()
		appLog.Info("data refresh scheduled", "spec", conf.RefreshCron)
	}

	srv := &http.Server{
		Addr:              conf.Listen,
		Handler:           web.NewServer(ctx, conf, eng, player).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// reload fetches fresh data and swaps it into the engine. On failure the
// engine keeps serving the previous data set.
func reload(ctx context.Context, loader *feed.Loader, eng *engine.Engine) {
	ds, err := loader.Load(ctx)
	if err != nil {
		appLog.Error("data refresh failed; keeping previous data", err)
		return
	}
	eng.Reload(ds.Events, ds.Camps)
	appLog.Info("data refreshed", "events", len(ds.Events), "camps", len(ds.Camps))
}
