// Package main provides the pagepilot command: it opens a browser, walks a
// scripted list of click targets through the localization cascade, and
// reports how many clicks could be verified.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pagepilot/pagepilot/pkg/browser"
	"github.com/pagepilot/pagepilot/pkg/capture"
	"github.com/pagepilot/pagepilot/pkg/click"
	"github.com/pagepilot/pagepilot/pkg/config"
	"github.com/pagepilot/pagepilot/pkg/geometry"
	"github.com/pagepilot/pagepilot/pkg/input"
	"github.com/pagepilot/pagepilot/pkg/locator"
	"github.com/pagepilot/pagepilot/pkg/metrics"
	"github.com/pagepilot/pagepilot/pkg/session"
	"github.com/pagepilot/pagepilot/pkg/vlm"
)

const version = "0.1.0"

// CLIConfig holds command-line configuration. Non-empty values override
// the config file.
type CLIConfig struct {
	ConfigFile  string
	StartURL    string
	Target      string
	Mode        string
	Model       string
	BaseURL     string
	APIKey      string
	MetricsAddr string
	Timeout     time.Duration
	ShowVersion bool
}

func main() {
	cli := parseFlags()

	if cli.ShowVersion {
		fmt.Printf("pagepilot v%s\n", version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down gracefully...")
		cancel()
	}()

	if err := run(ctx, cli); err != nil {
		cancel()
		log.Printf("Run failed: %v", err)
		os.Exit(1)
	}
	cancel()
}

func parseFlags() *CLIConfig {
	cli := &CLIConfig{}

	flag.StringVar(&cli.ConfigFile, "config", "", "Path to configuration file (YAML)")
	flag.StringVar(&cli.StartURL, "url", "", "Page to open before the first step")
	flag.StringVar(&cli.Target, "target", "", "Single target text to click (overrides config targets)")
	flag.StringVar(&cli.Mode, "mode", "", "Cascade mode: production or shadow")
	flag.StringVar(&cli.Model, "model", "", "Vision model to use")
	flag.StringVar(&cli.BaseURL, "base-url", os.Getenv("OPENAI_BASE_URL"), "Vision API base URL")
	flag.StringVar(&cli.APIKey, "api-key", os.Getenv("OPENAI_API_KEY"), "Vision API key")
	flag.StringVar(&cli.MetricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on (empty disables)")
	flag.DurationVar(&cli.Timeout, "timeout", 10*time.Minute, "Run timeout")
	flag.BoolVar(&cli.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "pagepilot - verified browser clicking\n\n")
		fmt.Fprintf(os.Stderr, "Usage: pagepilot [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Click one button\n")
		fmt.Fprintf(os.Stderr, "  pagepilot -url https://example.com -target \"Accept Cookies\"\n\n")
		fmt.Fprintf(os.Stderr, "  # Scripted run with shadow-mode agreement records\n")
		fmt.Fprintf(os.Stderr, "  pagepilot -config run.yaml -mode shadow -metrics-addr :9090\n\n")
	}

	flag.Parse()
	return cli
}

func run(ctx context.Context, cli *CLIConfig) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}

	if cli.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cli.Timeout)
		defer cancel()
	}

	browserSession, err := browser.Launch(browser.Options{
		Headless:       cfg.Browser.Headless,
		ViewportWidth:  cfg.Browser.Width,
		ViewportHeight: cfg.Browser.Height,
	})
	if err != nil {
		return fmt.Errorf("launching browser: %w", err)
	}
	defer browserSession.Close()

	if err := browserSession.Navigate(cfg.Browser.StartURL, "load"); err != nil {
		return fmt.Errorf("opening %s: %w", cfg.Browser.StartURL, err)
	}

	capturer := capture.NewPageCapturer(browserSession, cfg.Capture.InferenceHeight)

	text := locator.NewTextMatcher(capture.NewDOMTextIndex(browserSession))
	text.SetThreshold(cfg.Cascade.TextConfidence)

	tiers := []locator.Provider{text}
	if cfg.Cascade.LayoutsPath != "" {
		registry, err := locator.LoadRegistry(cfg.Cascade.LayoutsPath)
		if err != nil {
			return fmt.Errorf("loading layouts: %w", err)
		}
		tiers = append(tiers, locator.NewPatternMatcher(registry))
	}

	visionOpts := []vlm.Option{}
	if cfg.VLM.Model != "" {
		visionOpts = append(visionOpts, vlm.WithModel(cfg.VLM.Model))
	}
	if cfg.VLM.BaseURL != "" {
		visionOpts = append(visionOpts, vlm.WithBaseURL(cfg.VLM.BaseURL))
	}
	vision := locator.NewVisionMatcher(vlm.NewClient(cli.APIKey, visionOpts...))
	vision.SetTimeout(cfg.VLMTimeout())
	tiers = append(tiers, vision)

	sinks := metrics.MultiSink{metrics.NewLogSink()}
	if cli.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		sinks = append(sinks, metrics.NewPromSink("pagepilot", registry))
		go serveMetrics(cli.MetricsAddr, registry)
	}

	cascade, err := locator.NewCascade(tiers,
		locator.WithMode(locator.Mode(cfg.Cascade.Mode)),
		locator.WithSink(sinks),
	)
	if err != nil {
		return fmt.Errorf("building cascade: %w", err)
	}

	pointer := input.NewHumanPointer(input.NewPlaywrightDevice(browserSession))
	verifier := click.NewVerifier(text)
	verifier.SetThresholds(cfg.Click.OverlapIoU, cfg.Click.DiffThreshold)
	executorOpts := []click.ExecutorOption{
		click.WithMaxAttempts(cfg.Click.MaxAttempts),
		click.WithSettleDelay(cfg.SettleDelay()),
	}
	if len(cfg.Click.Perturbations) > 0 {
		offsets := make([]geometry.Point, len(cfg.Click.Perturbations))
		for i, p := range cfg.Click.Perturbations {
			offsets[i] = geometry.Point{X: p[0], Y: p[1]}
		}
		executorOpts = append(executorOpts, click.WithPerturbations(offsets))
	}
	executor := click.NewExecutor(pointer, verifier, capturer, executorOpts...)

	runner := session.NewRunner(capturer, cascade, executor,
		session.WithMaxConsecutiveFailures(cfg.Session.MaxConsecutiveFailures),
		session.WithStepDelay(cfg.StepDelay()),
	)

	targets := make([]locator.Target, 0, len(cfg.Session.Targets))
	for _, t := range cfg.Session.Targets {
		if t.Text != "" {
			targets = append(targets, locator.TextTarget(t.Text))
		} else {
			targets = append(targets, locator.DescribedTarget(t.Description))
		}
	}

	log.Printf("Starting run: %d target(s) on %s (mode %s)", len(targets), cfg.Browser.StartURL, cfg.Cascade.Mode)

	stats, runErr := runner.Run(ctx, session.NewScript(targets))
	log.Printf("Run finished: %s", stats.Summary())
	for _, outcome := range stats.Outcomes {
		if outcome.Success {
			log.Printf("  ok   %q via %s (%d attempt(s))", outcome.Target, outcome.Method, outcome.Attempts)
		} else {
			log.Printf("  fail %q: %s", outcome.Target, outcome.Err)
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// loadConfig merges CLI overrides over the config file and re-validates.
func loadConfig(cli *CLIConfig) (*config.Config, error) {
	cfg, err := config.Load(cli.ConfigFile)
	if err != nil {
		return nil, err
	}

	if cli.StartURL != "" {
		cfg.Browser.StartURL = cli.StartURL
	}
	if cli.Mode != "" {
		cfg.Cascade.Mode = cli.Mode
	}
	if cli.Model != "" {
		cfg.VLM.Model = cli.Model
	}
	if cli.BaseURL != "" {
		cfg.VLM.BaseURL = cli.BaseURL
	}
	if cli.Target != "" {
		cfg.Session.Targets = []config.TargetConfig{{Text: cli.Target}}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Browser.StartURL == "" {
		return nil, fmt.Errorf("a start URL is required (use -url or browser.start_url)")
	}
	if len(cfg.Session.Targets) == 0 {
		return nil, fmt.Errorf("at least one target is required (use -target or session.targets)")
	}
	return cfg, nil
}

func serveMetrics(addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("metrics server stopped: %v", err)
	}
}
