package flow

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Do(method, path, contentType string, body []byte) error
	Status() int
	ResponseField(field string) (any, error)
}

const stagePollInterval = 200 * time.Millisecond

var (
	jpegDocument = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01, 0x01, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0xFF, 0xD9}
	pdfDocument  = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")
)

// RegisterSteps registers liveness flow step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &flowSteps{tc: tc}

	ctx.Step(`^I start a document capture$`, steps.startCapture)
	ctx.Step(`^I cancel the document capture$`, steps.cancelCapture)
	ctx.Step(`^I deliver a JPEG document$`, steps.deliverJPEG)
	ctx.Step(`^I deliver a PDF document$`, steps.deliverPDF)
	ctx.Step(`^I submit for verification$`, steps.submit)
	ctx.Step(`^I reset the flow$`, steps.reset)
	ctx.Step(`^I request the flow state$`, steps.requestState)
	ctx.Step(`^I list my attempts$`, steps.listAttempts)

	ctx.Step(`^the flow should reach stage "([^"]*)" within (\d+) seconds$`, steps.waitForStage)
}

type flowSteps struct {
	tc TestContext
}

func (s *flowSteps) startCapture(ctx context.Context) error {
	return s.tc.Do(http.MethodPost, "/v1/liveness/capture", "", nil)
}

func (s *flowSteps) cancelCapture(ctx context.Context) error {
	return s.tc.Do(http.MethodDelete, "/v1/liveness/capture", "", nil)
}

func (s *flowSteps) deliverJPEG(ctx context.Context) error {
	return s.tc.Do(http.MethodPut, "/v1/liveness/capture/document", "image/jpeg", jpegDocument)
}

func (s *flowSteps) deliverPDF(ctx context.Context) error {
	return s.tc.Do(http.MethodPut, "/v1/liveness/capture/document", "application/pdf", pdfDocument)
}

func (s *flowSteps) submit(ctx context.Context) error {
	return s.tc.Do(http.MethodPost, "/v1/liveness/submit", "", nil)
}

func (s *flowSteps) reset(ctx context.Context) error {
	return s.tc.Do(http.MethodPost, "/v1/liveness/reset", "", nil)
}

func (s *flowSteps) requestState(ctx context.Context) error {
	return s.tc.Do(http.MethodGet, "/v1/liveness/state", "", nil)
}

func (s *flowSteps) listAttempts(ctx context.Context) error {
	return s.tc.Do(http.MethodGet, "/v1/liveness/attempts", "", nil)
}

// waitForStage polls the state endpoint until the flow reports stage.
func (s *flowSteps) waitForStage(ctx context.Context, stage string, seconds int) error {
	deadline := time.Now().Add(time.Duration(seconds) * time.Second)
	var last any
	for time.Now().Before(deadline) {
		if err := s.requestState(ctx); err != nil {
			return err
		}
		if s.tc.Status() != http.StatusOK {
			return fmt.Errorf("state request returned %d", s.tc.Status())
		}
		current, err := s.tc.ResponseField("stage")
		if err != nil {
			return err
		}
		if current == stage {
			return nil
		}
		last = current
		time.Sleep(stagePollInterval)
	}
	return fmt.Errorf("flow did not reach %q within %ds, last stage %v", stage, seconds, last)
}
