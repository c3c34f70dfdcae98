package recorder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// Report is the analysis service's JSON response to an upload.
type Report struct {
	Text          string             `json:"text"`
	Emotion       string             `json:"emotion"`
	FriendlyLabel string             `json:"friendly_label"`
	StressScore   float64            `json:"stress_score"`
	Suggestion    Suggestion         `json:"suggestion"`
	AudioFeatures map[string]float64 `json:"audio_features"`
}

// Suggestion is the calming-activity recommendation inside a Report.
type Suggestion struct {
	Title       string `json:"title"`
	Activity    string `json:"activity"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

const defaultUploadTimeout = 60 * time.Second

// HTTPUploader posts payloads to the analysis endpoint as multipart form
// data (file field "audio") and parses the JSON report.
type HTTPUploader struct {
	endpoint string
	client   *http.Client
}

// UploaderOption is a functional option for configuring an HTTPUploader.
type UploaderOption func(*HTTPUploader)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) UploaderOption {
	return func(u *HTTPUploader) { u.client = c }
}

// WithTimeout sets the per-upload timeout on the underlying client.
func WithTimeout(d time.Duration) UploaderOption {
	return func(u *HTTPUploader) { u.client.Timeout = d }
}

// NewHTTPUploader creates an uploader targeting the analyze endpoint, e.g.
// "http://localhost:8080/analyze".
func NewHTTPUploader(endpoint string, opts ...UploaderOption) *HTTPUploader {
	u := &HTTPUploader{
		endpoint: endpoint,
		client:   &http.Client{Timeout: defaultUploadTimeout},
	}
	for _, o := range opts {
		o(u)
	}
	return u
}

// Upload implements Uploader.
func (u *HTTPUploader) Upload(ctx context.Context, p Payload) (*Report, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename=%q`, p.Filename))
	if p.ContentType != "" {
		header.Set("Content-Type", p.ContentType)
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("recorder: create form part: %w", err)
	}
	if _, err := part.Write(p.Data); err != nil {
		return nil, fmt.Errorf("recorder: write form part: %w", err)
	}
	if p.UserID != "" {
		if err := writer.WriteField("user_id", p.UserID); err != nil {
			return nil, fmt.Errorf("recorder: write user_id field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("recorder: finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("recorder: build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("recorder: post %s: %w", u.endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("recorder: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("recorder: analyze returned %d: %s", resp.StatusCode, errorDetail(raw))
	}

	var report Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("recorder: parse report: %w", err)
	}
	return &report, nil
}

// errorDetail pulls the "error" field out of a JSON error body, falling
// back to a truncated raw dump.
func errorDetail(raw []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &e); err == nil && e.Error != "" {
		return e.Error
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200] + "…"
	}
	return s
}

var _ Uploader = (*HTTPUploader)(nil)
