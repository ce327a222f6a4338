package mcpserver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"
)

const maxRedirects = 5

var errForbiddenTarget = errors.New("target not allowed")

// Names some clouds resolve to their instance metadata service.
var metadataHosts = map[string]bool{
	"metadata.google.internal": true,
	"metadata":                 true,
}

// forbidden reports whether tools must not connect to addr. Link-local
// covers 169.254.169.254, the metadata address on most clouds.
func forbidden(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() || addr.IsUnspecified()
}

// guardedClient returns an HTTP client for URLs supplied by an MCP client.
// The check runs on every dialed address, after DNS, so redirects and names
// pointing at the local machine are refused as well.
func guardedClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		Control: func(_, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			addr, err := netip.ParseAddr(host)
			if err != nil {
				return err
			}
			if forbidden(addr) {
				return fmt.Errorf("%w: %s", errForbiddenTarget, addr)
			}
			return nil
		},
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return checkTarget(req.URL)
		},
	}
}

// checkTarget rejects metadata host names and literal addresses up front,
// before any connection is attempted.
func checkTarget(u *url.URL) error {
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if metadataHosts[host] {
		return fmt.Errorf("%w: %s", errForbiddenTarget, host)
	}
	if addr, err := netip.ParseAddr(host); err == nil && forbidden(addr) {
		return fmt.Errorf("%w: %s", errForbiddenTarget, host)
	}
	return nil
}

// download GETs an http(s) URL and returns at most limit bytes along with
// the media type the server declared, if any.
func download(ctx context.Context, client *http.Client, rawURL string, limit int64) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, "", fmt.Errorf("unsupported scheme %q, use http or https", u.Scheme)
	}
	if err := checkTarget(u); err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("download: read body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, "", fmt.Errorf("download: body exceeds %d bytes", limit)
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return body, mediaType, nil
}

// parseDataURL decodes a base64 data URL such as
// "data:audio/ogg;codecs=opus;base64,T2dnUw==". Only base64 payloads are
// accepted. The media type is returned lower-cased without parameters.
func parseDataURL(raw string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !ok {
		return nil, "", errors.New("invalid data URL: no comma before the payload")
	}
	params := strings.Split(header, ";")
	if len(params) < 2 || params[len(params)-1] != "base64" {
		return nil, "", errors.New("invalid data URL: payload must be base64")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some encoders drop the padding.
		if data, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return nil, "", fmt.Errorf("invalid data URL: %w", err)
		}
	}
	return data, strings.ToLower(strings.TrimSpace(params[0])), nil
}
