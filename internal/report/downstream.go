package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/drblury/reportflow/internal/runtime/jsoncodec"
)

const (
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderFileName      = "X-Report-FileName"

	schedulePath = "/api/jobs/schedule-notifications"
)

func newClient(client *http.Client, timeout time.Duration) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: timeout}
}

// HTTPArtifactSink uploads rendered reports as multipart form data.
type HTTPArtifactSink struct {
	url    string
	client *http.Client
}

// NewHTTPArtifactSink posts to url. A nil client gets one with timeout.
func NewHTTPArtifactSink(url string, client *http.Client, timeout time.Duration) *HTTPArtifactSink {
	return &HTTPArtifactSink{url: url, client: newClient(client, timeout)}
}

func (s *HTTPArtifactSink) Store(ctx context.Context, payload []byte, fileName, correlationID string) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part := textproto.MIMEHeader{}
	part.Set("Content-Disposition", fmt.Sprintf(`form-data; name="report"; filename=%q`, fileName))
	part.Set("Content-Type", "text/plain; charset=utf-8")
	w, err := mw.CreatePart(part)
	if err != nil {
		return fmt.Errorf("build artifact upload: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("build artifact upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("build artifact upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, &body)
	if err != nil {
		return fmt.Errorf("build artifact upload: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(HeaderCorrelationID, correlationID)
	req.Header.Set(HeaderFileName, fileName)
	return do(s.client, req, "artifact sink")
}

// HTTPScheduler asks the job scheduler to send report notifications.
type HTTPScheduler struct {
	endpoint string
	client   *http.Client
}

// NewHTTPScheduler targets {baseURL}/api/jobs/schedule-notifications.
func NewHTTPScheduler(baseURL string, client *http.Client, timeout time.Duration) *HTTPScheduler {
	return &HTTPScheduler{
		endpoint: strings.TrimRight(baseURL, "/") + schedulePath,
		client:   newClient(client, timeout),
	}
}

func (s *HTTPScheduler) ScheduleNotifications(ctx context.Context, job NotificationJob) error {
	payload, err := jsoncodec.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode notification job: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderCorrelationID, job.CorrelationID)
	return do(s.client, req, "job scheduler")
}

func do(client *http.Client, req *http.Request, target string) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", target, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s: unexpected status %d", target, resp.StatusCode)
	}
	return nil
}
