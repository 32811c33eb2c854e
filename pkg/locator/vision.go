package locator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pagepilot/pagepilot/pkg/capture"
	"github.com/pagepilot/pagepilot/pkg/geometry"
	"github.com/pagepilot/pagepilot/pkg/logging"
)

// DefaultVisionTimeout bounds one vision-model call. A timeout is treated
// as this tier returning not-found, never as a retryable error.
const DefaultVisionTimeout = 30 * time.Second

const findElementPrompt = `Look at this %dx%d screenshot and find the element: "%s"

Return a JSON object with these exact fields:
- "found": true if you can see the element, false otherwise
- "bbox": object with x1, y1, x2, y2 pixel coordinates of the bounding box (from the top-left of the image)
- "confidence": your confidence from 0.0 to 1.0

Example if found:
{"found": true, "bbox": {"x1": 100, "y1": 200, "x2": 200, "y2": 240}, "confidence": 0.95}

Example if NOT found:
{"found": false, "bbox": null, "confidence": 0.0}

Important:
- Coordinates are in pixels of the provided image
- Be precise, the coordinates will be used for clicking
- If you are not confident, set found to false`

// VisionClient is the inference capability the vision tier consumes. The
// collaborator behind it owns the long-lived model handle.
type VisionClient interface {
	Ask(ctx context.Context, prompt string, imagePNG []byte) (string, error)
}

// VisionMatcher is the universal fallback tier. It always attempts to
// answer; a response without a box is the only way it signals not-found.
type VisionMatcher struct {
	client  VisionClient
	timeout time.Duration
	log     *logging.Logger
}

// NewVisionMatcher creates the vision tier with the default call timeout.
func NewVisionMatcher(client VisionClient) *VisionMatcher {
	log, _ := logging.New("locator.vision")
	return &VisionMatcher{
		client:  client,
		timeout: DefaultVisionTimeout,
		log:     log,
	}
}

// SetTimeout overrides the per-call timeout.
func (m *VisionMatcher) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		m.timeout = timeout
	}
}

// Source identifies this provider.
func (m *VisionMatcher) Source() Source { return SourceVision }

// visionPayload is the structured response contract. Anything that does
// not parse into it, or parses with an invalid box, is a miss.
type visionPayload struct {
	Found bool `json:"found"`
	BBox  *struct {
		X1 float64 `json:"x1"`
		Y1 float64 `json:"y1"`
		X2 float64 `json:"x2"`
		Y2 float64 `json:"y2"`
	} `json:"bbox"`
	Confidence float64 `json:"confidence"`
}

// Locate sends the frame and a structured prompt to the vision model and
// parses the response into a validated detection.
func (m *VisionMatcher) Locate(ctx context.Context, target Target, frame *capture.Frame) (*Detection, error) {
	png, err := frame.PNG()
	if err != nil {
		return nil, err
	}

	callCtx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	prompt := fmt.Sprintf(findElementPrompt, frame.InferenceWidth, frame.InferenceHeight, target.Query())
	content, err := m.client.Ask(callCtx, prompt, png)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			m.log.Warnf("vision call for %q timed out after %s", target, m.timeout)
			return nil, nil
		}
		return nil, err
	}

	var payload visionPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		m.log.Warnf("unparsable vision response for %q: %v", target, err)
		return nil, nil
	}
	if !payload.Found || payload.BBox == nil {
		m.log.Debugf("vision reports %q not found", target)
		return nil, nil
	}

	box := geometry.Box{
		X1: payload.BBox.X1,
		Y1: payload.BBox.Y1,
		X2: payload.BBox.X2,
		Y2: payload.BBox.Y2,
	}
	conf := payload.Confidence
	if conf < 0 {
		conf = 0
	} else if conf > 1 {
		conf = 1
	}

	det, err := NewDetection(box, conf, SourceVision, frame)
	if err != nil {
		m.log.Warnf("rejecting vision box for %q: %v", target, err)
		return nil, nil
	}
	m.log.Infof("vision found %q at %s conf=%.2f", target, det.Box, det.Confidence)
	return det, nil
}
