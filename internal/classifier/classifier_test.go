package classifier

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

func TestHTTPClassify(t *testing.T) {
	var gotBody []byte
	var gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotType = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"label": "wilting", "confidence": 0.82}`))
	}))
	defer srv.Close()

	label, conf, err := NewHTTP(srv.URL, time.Second).Classify(context.Background(), pngHeader)

	require.NoError(t, err)
	assert.Equal(t, "wilting", label)
	assert.Equal(t, 0.82, conf)
	assert.Equal(t, pngHeader, gotBody)
	assert.Equal(t, "image/png", gotType)
}

func TestHTTPClassifyFailures(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `model crashed`},
		{name: "not json", status: http.StatusOK, body: `healthy`},
		{name: "missing confidence", status: http.StatusOK, body: `{"label": "healthy"}`},
		{name: "reported error", status: http.StatusOK, body: `{"error": "corrupt image"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, _, err := NewHTTP(srv.URL, time.Second).Classify(context.Background(), pngHeader)
			assert.Error(t, err)
		})
	}
}

func TestHTTPClassifyTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, _, err := NewHTTP(srv.URL, 50*time.Millisecond).Classify(context.Background(), pngHeader)
	assert.Error(t, err)
}

func TestDisabled(t *testing.T) {
	_, _, err := Disabled{}.Classify(context.Background(), pngHeader)
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestParseGeminiAnswer(t *testing.T) {
	label, conf, err := parseGeminiAnswer("```json\n{\"label\": \"healthy\", \"confidence\": 0.93}\n```")
	require.NoError(t, err)
	assert.Equal(t, "healthy", label)
	assert.Equal(t, 0.93, conf)

	_, _, err = parseGeminiAnswer("The plant looks fine.")
	assert.Error(t, err)

	_, _, err = parseGeminiAnswer(`{"label": "healthy"}`)
	assert.Error(t, err)
}
