package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTP sends images to a model-serving sidecar.
type HTTP struct {
	url        string
	httpClient *http.Client
}

type prediction struct {
	Label      string   `json:"label"`
	Confidence *float64 `json:"confidence"`
	Error      string   `json:"error,omitempty"`
}

func NewHTTP(url string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTP{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Classify POSTs the raw image and expects {"label": "...", "confidence": 0.x}.
func (h *HTTP) Classify(ctx context.Context, image []byte) (string, float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(image))
	if err != nil {
		return "", 0, fmt.Errorf("error creating classifier request: %w", err)
	}
	req.Header.Set("Content-Type", http.DetectContentType(image))
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("error calling classifier: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, fmt.Errorf("error reading classifier response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("unexpected classifier status %s: %s", resp.Status, bytes.TrimSpace(body))
	}

	var p prediction
	if err := json.Unmarshal(body, &p); err != nil {
		return "", 0, fmt.Errorf("error decoding classifier response: %w", err)
	}
	if p.Error != "" {
		return "", 0, fmt.Errorf("classifier error: %s", p.Error)
	}
	if p.Label == "" || p.Confidence == nil {
		return "", 0, fmt.Errorf("classifier response is missing label or confidence")
	}
	return p.Label, *p.Confidence, nil
}
