package locator

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"

	"github.com/pagepilot/pagepilot/pkg/capture"
	"github.com/pagepilot/pagepilot/pkg/geometry"
	"github.com/pagepilot/pagepilot/pkg/logging"
)

// LayoutEntry pins one target on one site to a fixed region. Region values
// are fractions of the inference frame (x1, y1, x2, y2 in [0,1]), so one
// entry covers every window size.
type LayoutEntry struct {
	// Site is a glob over the page host, e.g. "*.amazon.com".
	Site string `yaml:"site"`

	// Target is the target text or description this entry answers.
	Target string `yaml:"target"`

	// Region is the fractional bounding box {x1, y1, x2, y2}.
	Region [4]float64 `yaml:"region"`
}

type compiledEntry struct {
	site   glob.Glob
	target string
	region [4]float64
}

// Registry holds the pre-registered site layouts.
type Registry struct {
	entries []compiledEntry
}

// NewRegistry compiles layout entries, validating globs and regions.
func NewRegistry(entries []LayoutEntry) (*Registry, error) {
	r := &Registry{entries: make([]compiledEntry, 0, len(entries))}
	for i, e := range entries {
		g, err := glob.Compile(strings.ToLower(e.Site))
		if err != nil {
			return nil, fmt.Errorf("layout entry %d: bad site pattern %q: %w", i, e.Site, err)
		}
		if err := validateRegion(e.Region); err != nil {
			return nil, fmt.Errorf("layout entry %d (%s/%s): %w", i, e.Site, e.Target, err)
		}
		r.entries = append(r.entries, compiledEntry{
			site:   g,
			target: strings.ToLower(e.Target),
			region: e.Region,
		})
	}
	return r, nil
}

// LoadRegistry reads a YAML layout file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading layout registry: %w", err)
	}
	var file struct {
		Layouts []LayoutEntry `yaml:"layouts"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing layout registry: %w", err)
	}
	return NewRegistry(file.Layouts)
}

func validateRegion(region [4]float64) error {
	for _, v := range region {
		if v < 0 || v > 1 {
			return fmt.Errorf("region value %v outside [0,1]", v)
		}
	}
	if region[2] <= region[0] || region[3] <= region[1] {
		return fmt.Errorf("region %v has no area", region)
	}
	return nil
}

// Lookup returns the fractional region registered for a host and target.
func (r *Registry) Lookup(host, target string) ([4]float64, bool) {
	host = strings.ToLower(host)
	target = strings.ToLower(target)
	for _, e := range r.entries {
		if e.target == target && e.site.Match(host) {
			return e.region, true
		}
	}
	return [4]float64{}, false
}

// Len returns the number of registered layouts.
func (r *Registry) Len() int { return len(r.entries) }

// PatternMatcher answers from the layout registry: a pure lookup with no
// inference, confidence 1.0 on a hit.
type PatternMatcher struct {
	registry *Registry
	log      *logging.Logger
}

// NewPatternMatcher creates the pattern tier.
func NewPatternMatcher(registry *Registry) *PatternMatcher {
	log, _ := logging.New("locator.pattern")
	return &PatternMatcher{registry: registry, log: log}
}

// Source identifies this provider.
func (m *PatternMatcher) Source() Source { return SourcePattern }

// Locate resolves the frame's page host and looks the target up in the
// registry. Misses are clean: an unknown site or target returns nil.
func (m *PatternMatcher) Locate(ctx context.Context, target Target, frame *capture.Frame) (*Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.registry == nil || m.registry.Len() == 0 {
		return nil, nil
	}

	parsed, err := url.Parse(frame.PageURL)
	if err != nil || parsed.Hostname() == "" {
		return nil, nil
	}

	region, ok := m.registry.Lookup(parsed.Hostname(), target.Query())
	if !ok {
		return nil, nil
	}

	box := geometry.Box{
		X1: region[0] * float64(frame.InferenceWidth),
		Y1: region[1] * float64(frame.InferenceHeight),
		X2: region[2] * float64(frame.InferenceWidth),
		Y2: region[3] * float64(frame.InferenceHeight),
	}
	det, err := NewDetection(box, 1.0, SourcePattern, frame)
	if err != nil {
		m.log.Warnf("registered region for %q on %s is invalid: %v", target, parsed.Hostname(), err)
		return nil, nil
	}
	m.log.Debugf("layout hit for %q on %s at %s", target, parsed.Hostname(), det.Box)
	return det, nil
}
