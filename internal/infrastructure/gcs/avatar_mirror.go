package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"github.com/oksasatya/authcore/pkg/helpers"
)

const maxAvatarBytes = 5 << 20

// DefaultAllowedHosts are the domains Google serves profile photos from.
var DefaultAllowedHosts = []string{"googleusercontent.com"}

var (
	ErrNotImage         = errors.New("avatar source is not an image")
	ErrTooLarge         = errors.New("avatar source too large")
	ErrSourceFetch      = errors.New("avatar source fetch failed")
	ErrSourceNotAllowed = errors.New("avatar source not allowed")
)

// UploadFunc stores r at objectPath and returns its public URL.
type UploadFunc func(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error)

// AvatarMirror copies provider profile pictures into our bucket so profiles do not hotlink the provider.
// Only https URLs on AllowedHosts (or their subdomains) are fetched.
type AvatarMirror struct {
	Upload       UploadFunc
	HTTPClient   *http.Client
	AllowedHosts []string
}

func NewAvatarMirror(client *storage.Client, bucket string) *AvatarMirror {
	m := &AvatarMirror{
		Upload: func(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error) {
			return helpers.UploadObject(ctx, client, bucket, objectPath, contentType, r)
		},
		AllowedHosts: DefaultAllowedHosts,
	}
	m.HTTPClient = NewPublicHTTPClient(10*time.Second, func(req *http.Request, _ []*http.Request) error {
		return m.checkSource(req.URL)
	})
	return m
}

// NewPublicHTTPClient returns a client that refuses to connect to loopback, private or link-local addresses,
// whatever a host name resolves to.
func NewPublicHTTPClient(timeout time.Duration, checkRedirect func(*http.Request, []*http.Request) error) *http.Client {
	dialer := &net.Dialer{Timeout: 5 * time.Second, Control: publicOnly}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return &http.Client{Timeout: timeout, Transport: transport, CheckRedirect: checkRedirect}
}

func publicOnly(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceNotAllowed, err)
	}
	ip := net.ParseIP(host)
	if ip == nil || !isPublicIP(ip) {
		return fmt.Errorf("%w: %s", ErrSourceNotAllowed, host)
	}
	return nil
}

func isPublicIP(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast())
}

func (m *AvatarMirror) checkSource(u *url.URL) error {
	if u == nil || u.Scheme != "https" || u.User != nil {
		return ErrSourceNotAllowed
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range m.AllowedHosts {
		allowed = strings.ToLower(allowed)
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrSourceNotAllowed, host)
}

func (m *AvatarMirror) Mirror(ctx context.Context, userID, sourceURL string) (string, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSourceNotAllowed, err)
	}
	if err := m.checkSource(u); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	res, err := m.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSourceFetch, err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrSourceFetch, res.StatusCode)
	}

	ct, _, _ := mime.ParseMediaType(res.Header.Get("Content-Type"))
	if !strings.HasPrefix(ct, "image/") {
		return "", ErrNotImage
	}
	if res.ContentLength > maxAvatarBytes {
		return "", ErrTooLarge
	}

	objectPath := path.Join("avatars", userID, uuid.NewString()+extFor(ct))
	// one extra byte tells an oversized body without a Content-Length apart
	body := io.LimitReader(res.Body, maxAvatarBytes+1)
	buf, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSourceFetch, err)
	}
	if len(buf) > maxAvatarBytes {
		return "", ErrTooLarge
	}
	return m.Upload(ctx, objectPath, ct, bytes.NewReader(buf))
}

func extFor(ct string) string {
	switch ct {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}
