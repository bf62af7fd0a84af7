package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

const (
	// checkProxyTimeout bounds the SOCKS5 handshake of CheckConnection.
	checkProxyTimeout = 2 * time.Second

	// maxRedirects is the redirect limit of the shared client. The final
	// URL is what adapters inspect, so redirects are followed.
	maxRedirects = 10

	// socks5 protocol constants
	socks5Version       = 0x05
	socks5AuthNone      = 0x00
	socks5AuthNoAccept  = 0xFF
	socks5CmdConnect    = 0x01
	socks5AddrTypeDomID = 0x03

	// socks5TestHost is the host requested during the handshake check. The
	// reply code does not matter, only that the proxy processes CONNECT.
	socks5TestHost = "example.com"
)

// Options configures a Client.
type Options struct {
	// ProxyAddress is a SOCKS5 proxy in "host:port" or "socks5://host:port"
	// format. Empty means direct connections.
	ProxyAddress string

	// Timeout bounds every request of the HTTP client. Zero means no
	// client-level timeout; probes still carry their own deadline.
	Timeout time.Duration

	// MaxConnsPerHost caps concurrent connections to one host. Zero means
	// no limit.
	MaxConnsPerHost int
}

// Client owns the connection pool of a run.
type Client struct {
	// proxyAddress is the SOCKS5 proxy in "host:port" format, or "".
	proxyAddress string

	// dialer is the SOCKS5 dialer, nil for direct connections.
	dialer proxy.Dialer

	// http is the shared client; its transport keeps the pool.
	http *http.Client
}

// NewClient creates a Client. A proxy address is validated but not
// contacted; call CheckConnection to verify it.
func NewClient(opts Options) (*Client, error) {
	c := &Client{}

	transport := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   4,
		MaxConnsPerHost:       opts.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
	}

	if opts.ProxyAddress != "" {
		address, err := parseProxyAddress(opts.ProxyAddress)
		if err != nil {
			return nil, err
		}
		// Tor's SOCKS port and most local proxies need no auth.
		dialer, err := proxy.SOCKS5("tcp", address, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		c.proxyAddress = address
		c.dialer = dialer
		transport.DialContext = c.DialContext
	} else {
		transport.DialContext = (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	c.http = &http.Client{
		Transport: transport,
		Timeout:   opts.Timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
	return c, nil
}

// parseProxyAddress accepts "host:port", "socks5://host:port" and
// "socks5h://host:port" and returns "host:port".
func parseProxyAddress(address string) (string, error) {
	for _, scheme := range []string{"socks5://", "socks5h://"} {
		address = strings.TrimPrefix(address, scheme)
	}
	if strings.Contains(address, "://") || strings.Contains(address, "/") {
		return "", ErrInvalidProxyAddress
	}

	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return "", ErrInvalidProxyAddress
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return "", ErrInvalidProxyAddress
	}
	return address, nil
}

// HTTPClient returns the shared HTTP client. Every call returns the same
// client so all probes reuse one pool.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// ProxyAddress returns the configured SOCKS5 address, or "" when direct.
func (c *Client) ProxyAddress() string {
	return c.proxyAddress
}

// Proxied reports whether requests go through a SOCKS5 proxy.
func (c *Client) Proxied() bool {
	return c.dialer != nil
}

// DialContext establishes a TCP connection through the proxy.
func (c *Client) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if c.dialer == nil {
		var d net.Dialer
		return d.DialContext(ctx, network, address)
	}
	if cd, ok := c.dialer.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, address)
	}

	type dialResult struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan dialResult, 1)
	go func() {
		conn, err := c.dialer.Dial(network, address)
		resultCh <- dialResult{conn, err}
	}()

	select {
	case result := <-resultCh:
		return result.conn, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CloseIdleConnections releases idle pooled connections.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}

// CheckConnection verifies that the SOCKS5 proxy is running and accepts a
// CONNECT request without authentication. Direct clients always report
// ProxyStatusOK.
func (c *Client) CheckConnection(ctx context.Context) ProxyStatus {
	if c.dialer == nil {
		return ProxyStatusOK
	}

	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.proxyAddress)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ProxyStatusCannotConnect
	}

	// Greeting: version, one method, no auth.
	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}

	authResp := make([]byte, 2)
	if _, err := io.ReadFull(conn, authResp); err != nil {
		if isTimeout(err) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}
	if authResp[0] != socks5Version || authResp[1] == socks5AuthNoAccept || authResp[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}

	port := uint16(443)
	connectReq := []byte{
		socks5Version,
		socks5CmdConnect,
		0x00, // reserved
		socks5AddrTypeDomID,
		byte(len(socks5TestHost)),
	}
	connectReq = append(connectReq, socks5TestHost...)
	connectReq = append(connectReq, byte(port>>8), byte(port&0xFF))

	if _, err := conn.Write(connectReq); err != nil {
		return ProxyStatusCannotConnect
	}

	// Any reply code proves the proxy processed the request.
	connectResp := make([]byte, 4)
	if _, err := io.ReadFull(conn, connectResp); err != nil {
		if isTimeout(err) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}
	if connectResp[0] != socks5Version {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
}

// CheckReachable sends a HEAD request to target through the client and
// returns the status code. Any HTTP response counts as reachable.
func (c *Client) CheckReachable(ctx context.Context, target string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to reach %s: %w", target, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
	return resp.StatusCode, nil
}
