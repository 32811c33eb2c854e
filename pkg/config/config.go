// Package config loads the run configuration from a YAML file, applying
// defaults for everything the file leaves out.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full run configuration.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Capture CaptureConfig `yaml:"capture"`
	VLM     VLMConfig     `yaml:"vlm"`
	Cascade CascadeConfig `yaml:"cascade"`
	Click   ClickConfig   `yaml:"click"`
	Session SessionConfig `yaml:"session"`
}

// BrowserConfig controls the managed browser instance.
type BrowserConfig struct {
	Headless bool   `yaml:"headless"`
	Width    int    `yaml:"width"`
	Height   int    `yaml:"height"`
	StartURL string `yaml:"start_url"`
}

// CaptureConfig controls frame preparation.
type CaptureConfig struct {
	// InferenceHeight is the height frames are resized to before
	// localization. Width follows the page aspect ratio.
	InferenceHeight int `yaml:"inference_height"`
}

// VLMConfig points at the vision model endpoint. The API key is always
// taken from the environment, never from the file.
type VLMConfig struct {
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// CascadeConfig controls provider selection.
type CascadeConfig struct {
	// Mode is "production" or "shadow".
	Mode string `yaml:"mode"`

	// TextConfidence is the minimum confidence the text matcher accepts.
	TextConfidence float64 `yaml:"text_confidence"`

	// LayoutsPath points at the site-pattern registry YAML. Empty disables
	// the pattern tier.
	LayoutsPath string `yaml:"layouts_path"`
}

// ClickConfig controls click execution and verification.
type ClickConfig struct {
	MaxAttempts   int     `yaml:"max_attempts"`
	SettleDelayMS int     `yaml:"settle_delay_ms"`
	DiffThreshold float64 `yaml:"diff_threshold"`
	OverlapIoU    float64 `yaml:"overlap_iou"`

	// Perturbations are the screen-space retry offsets as [x, y] pairs,
	// cycled in order. Empty keeps the built-in cardinal sequence.
	Perturbations [][2]float64 `yaml:"perturbations,omitempty"`
}

// SessionConfig controls the run loop.
type SessionConfig struct {
	// MaxConsecutiveFailures stops the session after this many failed
	// steps in a row.
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures"`

	// StepDelayMS is the pause between steps.
	StepDelayMS int `yaml:"step_delay_ms"`

	// Targets is the scripted list of elements to click, in order.
	Targets []TargetConfig `yaml:"targets"`
}

// TargetConfig names one element to click. Exactly one field is set.
type TargetConfig struct {
	Text        string `yaml:"text,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless: true,
			Width:    1280,
			Height:   720,
		},
		Capture: CaptureConfig{
			InferenceHeight: 720,
		},
		VLM: VLMConfig{
			Model:          "gpt-4o",
			TimeoutSeconds: 30,
		},
		Cascade: CascadeConfig{
			Mode:           "production",
			TextConfidence: 0.8,
		},
		Click: ClickConfig{
			MaxAttempts:   3,
			SettleDelayMS: 500,
			DiffThreshold: 0.05,
			OverlapIoU:    0.5,
		},
		Session: SessionConfig{
			MaxConsecutiveFailures: 3,
			StepDelayMS:            1000,
		},
	}
}

// Load reads a YAML config file and merges it over the defaults. Unknown
// keys are rejected so typos surface instead of silently falling back.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the ranges the rest of the system assumes.
func (c *Config) Validate() error {
	if c.Browser.Width <= 0 || c.Browser.Height <= 0 {
		return fmt.Errorf("browser viewport %dx%d must be positive", c.Browser.Width, c.Browser.Height)
	}
	if c.Capture.InferenceHeight <= 0 {
		return fmt.Errorf("inference height %d must be positive", c.Capture.InferenceHeight)
	}
	if c.VLM.TimeoutSeconds <= 0 {
		return fmt.Errorf("vlm timeout %ds must be positive", c.VLM.TimeoutSeconds)
	}
	switch c.Cascade.Mode {
	case "production", "shadow":
	default:
		return fmt.Errorf("cascade mode %q must be production or shadow", c.Cascade.Mode)
	}
	if c.Cascade.TextConfidence < 0 || c.Cascade.TextConfidence > 1 {
		return fmt.Errorf("text confidence %v outside [0,1]", c.Cascade.TextConfidence)
	}
	if c.Click.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts %d must be positive", c.Click.MaxAttempts)
	}
	if c.Click.DiffThreshold <= 0 || c.Click.DiffThreshold > 1 {
		return fmt.Errorf("diff threshold %v outside (0,1]", c.Click.DiffThreshold)
	}
	if c.Click.OverlapIoU <= 0 || c.Click.OverlapIoU > 1 {
		return fmt.Errorf("overlap iou %v outside (0,1]", c.Click.OverlapIoU)
	}
	for i, p := range c.Click.Perturbations {
		if p[0] == 0 && p[1] == 0 {
			return fmt.Errorf("perturbation %d must be a non-zero offset", i)
		}
	}
	if c.Session.MaxConsecutiveFailures <= 0 {
		return fmt.Errorf("max consecutive failures %d must be positive", c.Session.MaxConsecutiveFailures)
	}
	for i, target := range c.Session.Targets {
		if (target.Text == "") == (target.Description == "") {
			return fmt.Errorf("target %d must set exactly one of text or description", i)
		}
	}
	return nil
}

// VLMTimeout returns the vision timeout as a duration.
func (c *Config) VLMTimeout() time.Duration {
	return time.Duration(c.VLM.TimeoutSeconds) * time.Second
}

// SettleDelay returns the post-click settle delay as a duration.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Click.SettleDelayMS) * time.Millisecond
}

// StepDelay returns the between-steps delay as a duration.
func (c *Config) StepDelay() time.Duration {
	return time.Duration(c.Session.StepDelayMS) * time.Millisecond
}
