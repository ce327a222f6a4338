package mcpserver

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"
)

func TestForbiddenAddresses(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1":        true,
		"::1":              true,
		"::ffff:127.0.0.1": true,
		"169.254.169.254":  true,
		"fe80::1":          true,
		"0.0.0.0":          true,
		"10.0.0.5":         false,
		"93.184.216.34":    false,
		"2606:4700::1111":  false,
	}
	for raw, want := range cases {
		if got := forbidden(netip.MustParseAddr(raw)); got != want {
			t.Errorf("forbidden(%s) = %v, want %v", raw, got, want)
		}
	}
}

func TestDownloadRefusesLocalTargets(t *testing.T) {
	client := guardedClient(time.Second)
	for _, u := range []string{
		"http://127.0.0.1:1/a.wav",
		"http://[::1]/a.wav",
		"http://169.254.169.254/latest/meta-data",
		"http://metadata.google.internal./computeMetadata/v1/",
	} {
		if _, _, err := download(context.Background(), client, u, 1024); !errors.Is(err, errForbiddenTarget) {
			t.Errorf("download(%s) error = %v, want forbidden", u, err)
		}
	}
	if _, _, err := download(context.Background(), client, "ftp://example.com/a.wav", 1024); err == nil {
		t.Error("expected ftp to be rejected")
	}
}

func TestGuardedClientChecksResolvedAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("should not be reached"))
	}))
	defer srv.Close()

	// A name rather than a literal, so only the dial-time check can refuse it.
	u := strings.Replace(srv.URL, "127.0.0.1", "localhost", 1)
	resp, err := guardedClient(time.Second).Get(u)
	if err == nil {
		resp.Body.Close()
		t.Fatal("expected the dial to be refused")
	}
	if !errors.Is(err, errForbiddenTarget) {
		t.Errorf("error = %v, want forbidden", err)
	}
}

func TestDownloadLimitAndMediaType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "Audio/Ogg; codecs=opus")
		_, _ = w.Write([]byte("OggS!"))
	}))
	defer srv.Close()

	data, mediaType, err := download(context.Background(), srv.Client(), srv.URL+"/a.ogg", 5)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if !bytes.Equal(data, []byte("OggS!")) || mediaType != "audio/ogg" {
		t.Errorf("got %q %q", data, mediaType)
	}

	if _, _, err := download(context.Background(), srv.Client(), srv.URL+"/a.ogg", 4); err == nil {
		t.Error("expected body over the limit to fail")
	}
	if _, _, err := download(context.Background(), srv.Client(), srv.URL+"/missing", 5); err == nil {
		t.Error("expected 404 to fail")
	}
}

func TestParseDataURL(t *testing.T) {
	data, mediaType, err := parseDataURL("data:Audio/OGG;codecs=opus;base64,T2dnUw==")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if string(data) != "OggS" || mediaType != "audio/ogg" {
		t.Errorf("got %q %q", data, mediaType)
	}

	// Unpadded payloads are accepted.
	if data, _, err := parseDataURL("data:audio/wav;base64,T2dnUw"); err != nil || string(data) != "OggS" {
		t.Errorf("unpadded: %q, %v", data, err)
	}

	for _, bad := range []string{
		"data:audio/wav;base64",
		"data:audio/wav,plain",
		"data:audio/wav;base64,***",
	} {
		if _, _, err := parseDataURL(bad); err == nil {
			t.Errorf("parseDataURL(%q) should fail", bad)
		}
	}
}
