// Package update checks a manifest endpoint for newer application bundles
// and hands them to the hosting shell to download, stage and load.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/vocanote/internal/apperr"
)

// Manifest advertises the latest bundle.
type Manifest struct {
	Version string `json:"version"`
	URL     string `json:"url"`
}

// Normalized returns m with surrounding whitespace trimmed from its fields.
func (m Manifest) Normalized() Manifest {
	m.Version = strings.TrimSpace(m.Version)
	m.URL = strings.TrimSpace(m.URL)
	return m
}

// Validate reports missing fields as apperr.ErrInvalidFormat.
func (m Manifest) Validate() error {
	m = m.Normalized()
	err := validation.ValidateStruct(&m,
		validation.Field(&m.Version, validation.Required),
		validation.Field(&m.URL, validation.Required),
	)
	if err != nil {
		return apperr.InvalidFormat("update: manifest: " + err.Error())
	}
	return nil
}

// FetchManifest GETs the manifest at endpoint, bypassing any HTTP caches.
func FetchManifest(ctx context.Context, client *http.Client, endpoint string, now time.Time) (Manifest, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return Manifest{}, fmt.Errorf("update: parse manifest url: %w", err)
	}
	q := u.Query()
	q.Set("_", strconv.FormatInt(now.UnixMilli(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Manifest{}, fmt.Errorf("update: build manifest request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return Manifest{}, fmt.Errorf("update: fetch manifest: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Manifest{}, fmt.Errorf("update: fetch manifest: status %d", resp.StatusCode)
	}

	var m Manifest
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("update: decode manifest: %w", err)
	}
	m = m.Normalized()
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}
