package gcs

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upload struct {
	path, contentType, body string
}

type source struct {
	url  string
	hits *atomic.Int32
}

func serveImage(t *testing.T, contentType, body string) source {
	t.Helper()
	hits := &atomic.Int32{}
	src := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(src.Close)
	return source{url: src.URL + "/photo", hits: hits}
}

func recordUploads(got *upload) UploadFunc {
	return func(_ context.Context, objectPath, ct string, r io.Reader) (string, error) {
		b, _ := io.ReadAll(r)
		*got = upload{objectPath, ct, string(b)}
		return "https://storage.googleapis.com/bucket/" + objectPath, nil
	}
}

// newMirror trusts the local TLS test server so the happy paths can be exercised.
func newMirror(t *testing.T, contentType, body string) (*AvatarMirror, *upload, string) {
	t.Helper()
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	got := &upload{}
	m := &AvatarMirror{
		HTTPClient:   srv.Client(),
		AllowedHosts: []string{"127.0.0.1"},
		Upload:       recordUploads(got),
	}
	return m, got, srv.URL + "/photo"
}

func TestAvatarMirror_Mirror(t *testing.T) {
	m, got, src := newMirror(t, "image/png", "PNGDATA")

	url, err := m.Mirror(context.Background(), "u1", src)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got.path, "avatars/u1/"))
	assert.True(t, strings.HasSuffix(got.path, ".png"))
	assert.Equal(t, "image/png", got.contentType)
	assert.Equal(t, "PNGDATA", got.body)
	assert.Contains(t, url, got.path)
}

func TestAvatarMirror_RejectsNonImage(t *testing.T) {
	m, got, src := newMirror(t, "text/html", "<html>")

	_, err := m.Mirror(context.Background(), "u1", src)
	assert.ErrorIs(t, err, ErrNotImage)
	assert.Empty(t, got.path)
}

func TestAvatarMirror_RejectsOversized(t *testing.T) {
	m, _, src := newMirror(t, "image/jpeg", strings.Repeat("x", maxAvatarBytes+10))

	_, err := m.Mirror(context.Background(), "u1", src)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestAvatarMirror_RejectsDisallowedSource(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{name: "plain http", url: "http://lh3.googleusercontent.com/a/photo.png"},
		{name: "other host", url: "https://img.example/photo.png"},
		{name: "lookalike suffix", url: "https://googleusercontent.com.evil.example/photo.png"},
		{name: "credentials in url", url: "https://user:pw@lh3.googleusercontent.com/a/photo.png"},
		{name: "loopback literal", url: "https://127.0.0.1/photo.png"},
		{name: "metadata address", url: "https://169.254.169.254/latest/meta-data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := &upload{}
			m := NewAvatarMirror(nil, "bucket")
			m.Upload = recordUploads(got)

			_, err := m.Mirror(context.Background(), "u1", tt.url)
			assert.ErrorIs(t, err, ErrSourceNotAllowed)
			assert.Empty(t, got.path)
		})
	}
}

func TestAvatarMirror_RefusesLoopbackConnection(t *testing.T) {
	src := serveImage(t, "image/png", "secret")
	got := &upload{}
	m := NewAvatarMirror(nil, "bucket")
	m.Upload = recordUploads(got)
	// even an allowlisted name must not reach a loopback address
	m.AllowedHosts = []string{"127.0.0.1"}

	_, err := m.Mirror(context.Background(), "u1", src.url)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceNotAllowed)
	assert.Zero(t, src.hits.Load())
	assert.Empty(t, got.path)
}

func TestIsPublicIP(t *testing.T) {
	tests := []struct {
		ip     string
		public bool
	}{
		{"8.8.8.8", true},
		{"2607:f8b0:4004:800::200e", true},
		{"127.0.0.1", false},
		{"::1", false},
		{"10.1.2.3", false},
		{"172.16.0.9", false},
		{"192.168.1.1", false},
		{"169.254.169.254", false},
		{"fe80::1", false},
		{"fd00::1", false},
		{"0.0.0.0", false},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.public, isPublicIP(net.ParseIP(tt.ip)))
		})
	}
}
