// Package camera talks to the ISAPI management interface of network cameras
// and NVRs using HTTP Digest authentication.
package camera

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/icholy/digest"
)

const (
	// DefaultTimeout bounds each camera request.
	DefaultTimeout = 10 * time.Second

	maxXMLBody      = 1 << 20
	maxSnapshotBody = 16 << 20
)

var (
	// ErrMissingHost is returned when Credentials.Host is empty.
	ErrMissingHost = errors.New("camera host is required")

	// ErrUnauthorized is returned when the device rejects the credentials.
	ErrUnauthorized = errors.New("camera rejected credentials")

	// ErrStatus wraps any other non-2xx response.
	ErrStatus = errors.New("camera returned error status")

	// ErrMalformedResponse is returned when the XML lacks the expected document.
	ErrMalformedResponse = errors.New("unexpected camera response")
)

// Client issues ISAPI requests. It is safe for concurrent use.
type Client struct {
	transport http.RoundTripper
	timeout   time.Duration
}

// New returns a Client whose requests time out after timeout.
func New(timeout time.Duration) *Client {
	return NewWithTransport(http.DefaultTransport, timeout)
}

// NewWithTransport is New with a custom base transport beneath the digest layer.
func NewWithTransport(rt http.RoundTripper, timeout time.Duration) *Client {
	if rt == nil {
		rt = http.DefaultTransport
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{transport: rt, timeout: timeout}
}

// DeviceInfo fetches model, serial and firmware details.
func (c *Client) DeviceInfo(ctx context.Context, cred Credentials) (*DeviceInfo, error) {
	var info DeviceInfo
	if err := c.getXML(ctx, cred, "/ISAPI/System/deviceInfo", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// StreamingChannels lists the encoder channels.
func (c *Client) StreamingChannels(ctx context.Context, cred Credentials) ([]StreamingChannel, error) {
	var list streamingChannelList
	if err := c.getXML(ctx, cred, "/ISAPI/Streaming/channels", &list); err != nil {
		return nil, err
	}
	if list.Channels == nil {
		return []StreamingChannel{}, nil
	}
	return list.Channels, nil
}

// InputProxyChannels lists NVR input channels together with their names.
func (c *Client) InputProxyChannels(ctx context.Context, cred Credentials) ([]InputProxyChannel, error) {
	var list inputProxyChannelList
	if err := c.getXML(ctx, cred, "/ISAPI/ContentMgmt/InputProxy/channels", &list); err != nil {
		return nil, err
	}
	if list.Channels == nil {
		return []InputProxyChannel{}, nil
	}
	return list.Channels, nil
}

// Ports reports the service ports of the first network interface, filling
// in the factory defaults for any the device leaves out.
func (c *Client) Ports(ctx context.Context, cred Credentials) (*Ports, error) {
	var list networkInterfaceList
	if err := c.getXML(ctx, cred, "/ISAPI/System/Network/interfaces", &list); err != nil {
		return nil, err
	}
	ifaces := list.NetworkInterfaces
	if len(ifaces) == 0 {
		ifaces = list.Interfaces
	}
	if len(ifaces) == 0 {
		return nil, fmt.Errorf("%w: no network interface", ErrMalformedResponse)
	}
	p := ifaces[0].ports()
	return &p, nil
}

// Snapshot returns a JPEG still of channel. stream is "01" for the main
// stream and "02" for the sub stream.
func (c *Client) Snapshot(ctx context.Context, cred Credentials, channel int, stream string) ([]byte, error) {
	if channel <= 0 {
		channel = 1
	}
	if stream == "" {
		stream = "01"
	}
	return c.get(ctx, cred, fmt.Sprintf("/ISAPI/Streaming/channels/%d%s/picture", channel, stream), maxSnapshotBody)
}

func (c *Client) getXML(ctx context.Context, cred Credentials, path string, v any) error {
	body, err := c.get(ctx, cred, path, maxXMLBody)
	if err != nil {
		return err
	}
	if err := xml.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedResponse, path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, cred Credentials, path string, limit int64) ([]byte, error) {
	base, err := baseURL(cred.Host)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build camera request: %w", err)
	}

	hc := &http.Client{
		Timeout: c.timeout,
		Transport: &digest.Transport{
			Username:  cred.Username,
			Password:  cred.Password,
			Transport: c.transport,
		},
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("camera request %s: %w", path, err)
	}
	defer resp.Body.Close()

	// A 401 without a digest challenge comes back with its body already drained.
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read camera response %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrStatus, resp.StatusCode, summarize(body))
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: %s: body exceeds %d bytes", ErrMalformedResponse, path, limit)
	}
	return body, nil
}

func baseURL(host string) (string, error) {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		return "", ErrMissingHost
	}
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host, nil
	}
	return "http://" + host, nil
}

func summarize(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) > 256 {
		body = body[:256]
	}
	return string(body)
}
