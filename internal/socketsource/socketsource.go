// Package socketsource is the byte-source collaborator spec.md §1 puts out
// of core scope: it dials a TCP connection (direct, or through an HTTP
// CONNECT or SOCKS5 proxy) and hands back a bucket.Bucket that feeds the
// bytes it reads off the wire into a pipeline, built the way the teacher's
// pkg/transport dials and upgrades connections, minus the connection pool
// (spec.md §1 excludes "connection-level scheduling").
package socketsource

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	netproxy "golang.org/x/net/proxy"

	"github.com/bucketpipe/bucketpipe/pkg/bucket"
	"github.com/bucketpipe/bucketpipe/pkg/constants"
	"github.com/bucketpipe/bucketpipe/pkg/errors"
	"github.com/bucketpipe/bucketpipe/pkg/timing"
)

// ProxyConfig describes an upstream proxy to dial through before reaching
// the target host, mirroring the teacher's transport.ProxyConfig minus the
// fields (ResolveDNSViaProxy, per-proxy TLSConfig) no demo CLI exercises.
type ProxyConfig struct {
	Type        string // "http", "https", or "socks5"
	Host        string
	Port        int
	Username    string
	Password    string
	ConnTimeout time.Duration
}

// Config holds the parameters for one Dial call.
type Config struct {
	Host string
	Port int

	// SNI/DisableSNI mirror the teacher's ConfigureSNI priority: an
	// explicit tls.Config.ServerName always wins, then SNI, then Host,
	// unless DisableSNI leaves it empty.
	SNI        string
	DisableSNI bool

	ConnTimeout time.Duration
	ClientCert  *tls.Certificate

	Proxy *ProxyConfig
}

// ConnectionMetadata is the subset of the teacher's ConnectionMetadata this
// demo layer still has a use for once pooling is gone: what got dialed. It
// carries no TLS fields; tlsbucket.Context.ConnectionState reports what TLS
// was negotiated.
type ConnectionMetadata struct {
	ConnectedIP   string
	ConnectedPort int
	LocalAddr     string
	RemoteAddr    string

	ProxyUsed bool
	ProxyType string
	ProxyAddr string
}

// Conn wraps a dialed net.Conn as a bucket.Bucket source, and exposes a
// direct Write for pushing bytes produced by a ssl_encrypt bucket (or, on
// plaintext connections, a request source) back out to the wire. Reads are
// pumped by a background goroutine into a bucket.DataBuf, the same
// non-blocking bridge shape pkg/tlsbucket uses for the TLS engine, so the
// event loop driving the pipeline never blocks in net.Conn.Read.
type Conn struct {
	conn net.Conn
	*bucket.DataBuf

	mu     sync.Mutex
	buf    []byte
	err    error
	closed bool
}

func wrapConn(conn net.Conn) *Conn {
	c := &Conn{conn: conn}
	c.DataBuf = bucket.NewDataBuf(c.fill, 0)
	go c.readLoop()
	return c
}

func (c *Conn) readLoop() {
	tmp := make([]byte, 16*1024)
	for {
		n, err := c.conn.Read(tmp)
		c.mu.Lock()
		if n > 0 {
			c.buf = append(c.buf, tmp[:n]...)
		}
		if err != nil {
			c.err = err
		}
		done := err != nil
		c.mu.Unlock()
		if done {
			return
		}
	}
}

func (c *Conn) fill(max int) ([]byte, bucket.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buf) > 0 {
		n := len(c.buf)
		if max != bucket.AllAvail && max < n {
			n = max
		}
		out := c.buf[:n]
		c.buf = c.buf[n:]
		return out, bucket.StatusOK, nil
	}
	if c.err != nil {
		if c.err.Error() == "EOF" {
			return nil, bucket.StatusEOF, nil
		}
		return nil, bucket.StatusError, errors.NewConnectionError("", 0, c.err)
	}
	return nil, bucket.StatusAgain, nil
}

// Write hands ciphertext (or, for a plaintext connection, request bytes)
// straight to the socket. It blocks, same as the teacher's connectTCP
// callers always wrote synchronously; the pipeline only calls it with
// bytes a bucket.Bucket.Read already produced, never speculatively.
func (c *Conn) Write(p []byte) error {
	_, err := c.conn.Write(p)
	return err
}

// Destroy closes the underlying socket; the background read goroutine
// exits on its next Read call once the peer or this side closes it.
func (c *Conn) Destroy() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	_ = c.conn.Close()
}

// Underlying returns the dialed net.Conn, e.g. so a caller can layer
// tlsbucket.NewClientContext over it for an https:// target.
func (c *Conn) Underlying() net.Conn { return c.conn }

var _ bucket.Bucket = (*Conn)(nil)

// Dial establishes the connection cfg describes — direct, or through the
// configured proxy — and wraps it for pipeline use. timer, if non-nil,
// records TCP-connect phase timing (pkg/timing).
func Dial(ctx context.Context, cfg Config, timer *timing.Timer) (*Conn, *ConnectionMetadata, error) {
	if cfg.Host == "" {
		return nil, nil, errors.NewValidationError("host cannot be empty")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, nil, errors.NewValidationError("port must be between 1 and 65535")
	}

	timeout := cfg.ConnTimeout
	if timeout <= 0 {
		timeout = constants.DefaultConnTimeout
	}

	meta := &ConnectionMetadata{}
	var conn net.Conn
	var err error

	targetAddr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	if cfg.Proxy != nil {
		conn, err = dialViaProxy(ctx, cfg.Proxy, targetAddr, cfg.Host, timeout, timer, meta)
	} else {
		if timer != nil {
			timer.StartTCP()
		}
		dialer := &net.Dialer{Timeout: timeout}
		conn, err = dialer.DialContext(ctx, "tcp", targetAddr)
		if timer != nil {
			timer.EndTCP()
		}
	}
	if err != nil {
		return nil, nil, errors.NewConnectionError(cfg.Host, cfg.Port, err)
	}

	if host, portStr, splitErr := net.SplitHostPort(conn.RemoteAddr().String()); splitErr == nil {
		meta.ConnectedIP = host
		if port, convErr := strconv.Atoi(portStr); convErr == nil {
			meta.ConnectedPort = port
		}
	}
	meta.LocalAddr = conn.LocalAddr().String()
	meta.RemoteAddr = conn.RemoteAddr().String()

	return wrapConn(conn), meta, nil
}

// ServerName resolves the SNI value tlsbucket.NewClientContext should use,
// following the teacher's ConfigureSNI priority (explicit ServerName wins,
// then SNI, then Host, unless DisableSNI).
func ServerName(cfg Config, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if cfg.DisableSNI {
		return ""
	}
	if cfg.SNI != "" {
		return cfg.SNI
	}
	return cfg.Host
}

func dialViaProxy(ctx context.Context, proxy *ProxyConfig, targetAddr, targetHost string, timeout time.Duration, timer *timing.Timer, meta *ConnectionMetadata) (net.Conn, error) {
	if proxy.Host == "" {
		return nil, errors.NewValidationError("proxy host cannot be empty")
	}
	proxyPort := proxy.Port
	if proxyPort == 0 {
		switch proxy.Type {
		case "http", "https":
			proxyPort = 8080
		case "socks5":
			proxyPort = 1080
		default:
			return nil, errors.NewValidationError("unsupported proxy type: " + proxy.Type)
		}
	}
	proxyAddr := net.JoinHostPort(proxy.Host, strconv.Itoa(proxyPort))
	proxyTimeout := proxy.ConnTimeout
	if proxyTimeout <= 0 {
		proxyTimeout = timeout
	}

	meta.ProxyUsed = true
	meta.ProxyType = proxy.Type
	meta.ProxyAddr = proxyAddr

	if timer != nil {
		timer.StartTCP()
		defer timer.EndTCP()
	}

	switch proxy.Type {
	case "http", "https":
		return dialHTTPConnect(ctx, proxy, proxyAddr, targetAddr, targetHost, proxyTimeout)
	case "socks5":
		return dialSOCKS5(ctx, proxy, proxyAddr, targetAddr, proxyTimeout)
	default:
		return nil, errors.NewValidationError("unsupported proxy type: " + proxy.Type)
	}
}

// dialHTTPConnect tunnels to targetAddr through an HTTP CONNECT proxy,
// adapted from the teacher's connectViaHTTPProxy with connection pooling
// and the HTTPS-proxy-to-proxy TLS leg dropped (no caller in this pack
// exercises an HTTPS proxy front-end).
func dialHTTPConnect(ctx context.Context, proxy *ProxyConfig, proxyAddr, targetAddr, targetHost string, timeout time.Duration) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("connect to proxy: %w", err)
	}

	req := fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\nConnection: keep-alive\r\n", targetAddr, targetHost)
	if proxy.Username != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(proxy.Username + ":" + proxy.Password))
		req += fmt.Sprintf("Proxy-Authorization: Basic %s\r\n", auth)
	}
	req += "\r\n"

	if _, err := conn.Write([]byte(req)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send CONNECT request: %w", err)
	}

	statusLine, err := readLine(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read CONNECT response: %w", err)
	}
	if !strings.Contains(statusLine, " 200") {
		conn.Close()
		return nil, fmt.Errorf("proxy CONNECT failed: %s", strings.TrimSpace(statusLine))
	}
	for {
		line, err := readLine(conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("read CONNECT response headers: %w", err)
		}
		if line == "\r\n" || line == "\n" {
			break
		}
	}
	return conn, nil
}

// readLine reads one CRLF-or-LF-terminated line without bufio.Reader, so it
// never over-reads past the CONNECT response into what is about to become
// tunneled application traffic.
func readLine(conn net.Conn) (string, error) {
	var sb strings.Builder
	one := make([]byte, 1)
	for {
		if _, err := conn.Read(one); err != nil {
			return sb.String(), err
		}
		sb.WriteByte(one[0])
		if one[0] == '\n' {
			return sb.String(), nil
		}
	}
}

// dialSOCKS5 tunnels to targetAddr through a SOCKS5 proxy using
// golang.org/x/net/proxy, exactly as the teacher's connectViaSOCKS5Proxy
// does.
func dialSOCKS5(ctx context.Context, proxy *ProxyConfig, proxyAddr, targetAddr string, timeout time.Duration) (net.Conn, error) {
	var auth *netproxy.Auth
	if proxy.Username != "" {
		auth = &netproxy.Auth{User: proxy.Username, Password: proxy.Password}
	}
	dialer, err := netproxy.SOCKS5("tcp", proxyAddr, auth, &net.Dialer{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("create SOCKS5 dialer: %w", err)
	}
	if ctxDialer, ok := dialer.(netproxy.ContextDialer); ok {
		return ctxDialer.DialContext(ctx, "tcp", targetAddr)
	}
	return dialer.Dial("tcp", targetAddr)
}

// LoadClientCertificate loads a client certificate for mutual TLS from PEM
// files, mirroring the teacher's loadClientCertificate file-path branch (the
// direct-PEM-bytes branch has no caller in this demo CLI).
func LoadClientCertificate(certFile, keyFile string) (*tls.Certificate, error) {
	if certFile == "" || keyFile == "" {
		return nil, nil
	}
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("read client certificate file %s: %w", certFile, err)
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("read client key file %s: %w", keyFile, err)
	}
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse client certificate/key: %w", err)
	}
	return &cert, nil
}
