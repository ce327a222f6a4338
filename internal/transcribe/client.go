// Package transcribe talks to the speech-to-text service, either as a
// one-shot HTTP request per recording or as a live websocket stream.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrTranscription marks every failure to turn audio into text.
var ErrTranscription = errors.New("transcription failed")

// Transcriber converts base64-encoded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioBase64, mimeType string) (string, error)
}

type transcribeRequest struct {
	Audio    string `json:"audio"`
	MimeType string `json:"mimeType"`
}

type transcribeResponse struct {
	Text  *string `json:"text"`
	Error string  `json:"error,omitempty"`
}

// HTTPClient is a Transcriber backed by a JSON endpoint.
type HTTPClient struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// ClientOption customises an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(h *HTTPClient) {
		h.http = c
	}
}

// NewHTTPClient creates a client for endpoint. apiKey is sent as a bearer
// token when non-empty.
func NewHTTPClient(endpoint, apiKey string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transcribe posts the audio and returns the recognised text.
func (c *HTTPClient) Transcribe(ctx context.Context, audioBase64, mimeType string) (string, error) {
	if audioBase64 == "" {
		return "", fmt.Errorf("%w: no audio", ErrTranscription)
	}
	body, err := json.Marshal(transcribeRequest{Audio: audioBase64, MimeType: mimeType})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", ErrTranscription, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrTranscription, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscription, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrTranscription, err)
	}
	var out transcribeResponse
	decodeErr := json.Unmarshal(data, &out)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(out.Error)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", fmt.Errorf("%w: status %d: %s", ErrTranscription, resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrTranscription, decodeErr)
	}
	if out.Text == nil {
		return "", fmt.Errorf("%w: response has no text", ErrTranscription)
	}
	return *out.Text, nil
}
