package support

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/regionseg/internal/server"
)

const httpTimeout = 30 * time.Second

// theSegmentationServerIsRunning starts a server with test defaults.
func (testCtx *TestContext) theSegmentationServerIsRunning() error {
	return testCtx.startTestHTTPServer(testServerConfig())
}

// theSegmentationServerIsRunningWithLimit starts a rate-limited server.
func (testCtx *TestContext) theSegmentationServerIsRunningWithLimit(perMinute int) error {
	cfg := testServerConfig()
	cfg.RateLimit = server.RateLimitConfig{Enabled: true, RequestsPerMinute: perMinute}
	return testCtx.startTestHTTPServer(cfg)
}

// theSegmentationServerIsRunningWithOverlayDisabled starts a server that
// refuses overlay output.
func (testCtx *TestContext) theSegmentationServerIsRunningWithOverlayDisabled() error {
	cfg := testServerConfig()
	cfg.OverlayEnabled = false
	return testCtx.startTestHTTPServer(cfg)
}

func (testCtx *TestContext) requireServer() error {
	if testCtx.HTTPTestServer == nil {
		return errors.New("no server is running")
	}
	return nil
}

// doRequest sends req and records status, headers and body.
func (testCtx *TestContext) doRequest(req *http.Request) error {
	client := &http.Client{Timeout: httpTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(body)
	testCtx.LastHTTPHeaders = make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		testCtx.LastHTTPHeaders[k] = resp.Header.Get(k)
	}
	return nil
}

// makeHTTPRequest sends a bodiless request to endpoint.
func (testCtx *TestContext) makeHTTPRequest(method, endpoint string) error {
	if err := testCtx.requireServer(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), httpTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, testCtx.HTTPTestServer.URL()+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return testCtx.doRequest(req)
}

// iGET performs a GET request.
func (testCtx *TestContext) iGET(endpoint string) error {
	return testCtx.makeHTTPRequest(http.MethodGet, endpoint)
}

// iMakeAnOPTIONSRequestTo performs a CORS preflight.
func (testCtx *TestContext) iMakeAnOPTIONSRequestTo(endpoint string) error {
	return testCtx.makeHTTPRequest(http.MethodOptions, endpoint)
}

// upload describes one multipart POST.
type upload struct {
	image  string
	labels string
	format string
	sets   []string
}

// uploadImageToEndpoint posts a multipart form with the image in the "image"
// field.
func (testCtx *TestContext) uploadImageToEndpoint(endpoint string, u upload) error {
	if err := testCtx.requireServer(); err != nil {
		return err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := addFormFile(writer, "image", testCtx.Path(u.image)); err != nil {
		return err
	}
	if u.labels != "" {
		if err := addFormFile(writer, "labels", testCtx.Path(u.labels)); err != nil {
			return err
		}
	}
	if u.format != "" {
		_ = writer.WriteField("format", u.format)
	}
	for _, s := range u.sets {
		_ = writer.WriteField("set", s)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close multipart writer: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), httpTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, testCtx.HTTPTestServer.URL()+endpoint, &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return testCtx.doRequest(req)
}

func addFormFile(writer *multipart.Writer, field, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: fixture paths from the scenario temp dir
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	part, err := writer.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	_, err = part.Write(data)
	return err
}

func (testCtx *TestContext) iUploadTo(image, endpoint string) error {
	return testCtx.uploadImageToEndpoint(endpoint, upload{image: image})
}

func (testCtx *TestContext) iUploadToWithFormat(image, endpoint, format string) error {
	return testCtx.uploadImageToEndpoint(endpoint, upload{image: image, format: format})
}

func (testCtx *TestContext) iUploadToWithOption(image, endpoint, set string) error {
	return testCtx.uploadImageToEndpoint(endpoint, upload{image: image, sets: []string{set}})
}

func (testCtx *TestContext) iUploadToWithLabelsAndOption(image, endpoint, labels, set string) error {
	return testCtx.uploadImageToEndpoint(endpoint, upload{image: image, labels: labels, sets: []string{set}})
}

// iPostABatchOf sends the listed images base64-encoded to /segment/batch.
func (testCtx *TestContext) iPostABatchOf(list string) error {
	if err := testCtx.requireServer(); err != nil {
		return err
	}

	var batch server.BatchSegmentRequest
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		data, err := os.ReadFile(testCtx.Path(name))
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
		batch.Images = append(batch.Images, server.BatchImageRequest{Name: name, Data: data})
	}
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), httpTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		testCtx.HTTPTestServer.URL()+"/segment/batch", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return testCtx.doRequest(req)
}

// theResponseStatusShouldBe checks the last HTTP status.
func (testCtx *TestContext) theResponseStatusShouldBe(expectedStatus int) error {
	if testCtx.LastHTTPStatusCode != expectedStatus {
		return fmt.Errorf("expected status %d, got %d\nBody: %s",
			expectedStatus, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

// theResponseShouldContain checks the last HTTP body for text.
func (testCtx *TestContext) theResponseShouldContain(text string) error {
	if !strings.Contains(testCtx.LastHTTPResponse, text) {
		return fmt.Errorf("response does not contain '%s'\nBody: %s", text, testCtx.LastHTTPResponse)
	}
	return nil
}

// theResponseHeaderShouldBe checks a response header value.
func (testCtx *TestContext) theResponseHeaderShouldBe(name, value string) error {
	if got := testCtx.LastHTTPHeaders[http.CanonicalHeaderKey(name)]; got != value {
		return fmt.Errorf("header %s is %q, expected %q", name, got, value)
	}
	return nil
}

func (testCtx *TestContext) parseResponseJSON() (any, error) {
	var data any
	if err := json.Unmarshal([]byte(testCtx.LastHTTPResponse), &data); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w\nBody: %s", err, testCtx.LastHTTPResponse)
	}
	return data, nil
}

// theResponseJSONFieldShouldBe compares the value at a dotted path.
func (testCtx *TestContext) theResponseJSONFieldShouldBe(field, expected string) error {
	data, err := testCtx.parseResponseJSON()
	if err != nil {
		return err
	}
	value, err := lookupJSONPath(data, field)
	if err != nil {
		return err
	}
	if got := fmt.Sprintf("%v", value); got != expected {
		return fmt.Errorf("response field %s is %q, expected %q", field, got, expected)
	}
	return nil
}

// theResponseShouldReportSegments checks result.segments of a /segment/image
// response.
func (testCtx *TestContext) theResponseShouldReportSegments(count int) error {
	data, err := testCtx.parseResponseJSON()
	if err != nil {
		return err
	}
	return checkArrayLength(data, "result.segments", count)
}

// RegisterServerSteps registers HTTP server steps.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the segmentation server is running$`, testCtx.theSegmentationServerIsRunning)
	sc.Step(`^the segmentation server is running with a limit of (\d+) requests? per minute$`,
		testCtx.theSegmentationServerIsRunningWithLimit)
	sc.Step(`^the segmentation server is running with overlay output disabled$`,
		testCtx.theSegmentationServerIsRunningWithOverlayDisabled)

	sc.Step(`^I GET "([^"]*)"$`, testCtx.iGET)
	sc.Step(`^I make an OPTIONS request to "([^"]*)"$`, testCtx.iMakeAnOPTIONSRequestTo)
	sc.Step(`^I upload "([^"]*)" to "([^"]*)"$`, testCtx.iUploadTo)
	sc.Step(`^I upload "([^"]*)" to "([^"]*)" with format "([^"]*)"$`, testCtx.iUploadToWithFormat)
	sc.Step(`^I upload "([^"]*)" to "([^"]*)" with option "([^"]*)"$`, testCtx.iUploadToWithOption)
	sc.Step(`^I upload "([^"]*)" to "([^"]*)" with labels "([^"]*)" and option "([^"]*)"$`,
		testCtx.iUploadToWithLabelsAndOption)
	sc.Step(`^I post a batch of "([^"]*)"$`, testCtx.iPostABatchOf)

	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, testCtx.theResponseShouldContain)
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseHeaderShouldBe)
	sc.Step(`^the response JSON field "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseJSONFieldShouldBe)
	sc.Step(`^the response should report (\d+) segments?$`, testCtx.theResponseShouldReportSegments)
}
