// Package tlsbucket implements the TLS bucket pair (spec.md §4.9,
// component 10): two coupled buckets — encrypt and decrypt — sharing one
// TLS context, bridging crypto/tls (the concrete engine collaborator,
// spec.md §1's "the concrete choice of TLS library" is deliberately
// someone else's decision) between two bucket streams whose I/O is driven
// by the engine's want-read/want-write feedback.
//
// crypto/tls exposes a blocking Handshake/Read/Write API over a net.Conn,
// not the BIO-style synchronous callback engine spec.md §4.9 describes,
// and *tls.Conn latches the first error any of those calls sees
// (including a transient "no ciphertext yet") as permanent: a literal
// non-blocking bridge that returns WANT_READ as a net.Error would poison
// the handshake on its first incomplete round trip. So the engine itself
// runs on two background goroutines owned by the Context — one blocked
// in a loop on conn.Read, one blocked in a loop on conn.Write — talking
// to crypto/tls exactly the way it expects a real blocking socket to
// behave. engineConn is the synthetic net.Conn those goroutines drive:
// its Read blocks on a condition variable until ciphertext has been fed
// in by the decrypt side, and its Write hands produced ciphertext
// straight to the encrypt side's pending-output aggregate. EncryptBucket
// and DecryptBucket stay on the single non-blocking I/O thread: they
// only move bytes into and out of the goroutines' queues, never call
// into crypto/tls directly, and so can never be left waiting on it.
package tlsbucket

import (
	"crypto/tls"
	"crypto/x509"
	stderrors "errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bucketpipe/bucketpipe/pkg/bucket"
	"github.com/bucketpipe/bucketpipe/pkg/bucketlog"
	"github.com/bucketpipe/bucketpipe/pkg/errors"
	"github.com/bucketpipe/bucketpipe/pkg/tlsconfig"
)

// initState implements spec.md §5's three-state atomic latch for the
// one-time, process-wide TLS library init.
type initState int32

const (
	initUninitialized initState = iota
	initBusy
	initDone
)

var globalInit int32 // initState, accessed via atomic

// ensureGlobalInit runs the process-wide TLS setup exactly once, busy-
// waiting (bounded, yielding) on a concurrent initializer rather than
// racing it. crypto/tls needs no real global setup, but the latch itself
// is part of the spec's concurrency model and is cheap to honor exactly.
func ensureGlobalInit() {
	for {
		switch initState(atomic.LoadInt32(&globalInit)) {
		case initDone:
			return
		case initBusy:
			time.Sleep(time.Microsecond)
		default:
			if atomic.CompareAndSwapInt32(&globalInit, int32(initUninitialized), int32(initBusy)) {
				atomic.StoreInt32(&globalInit, int32(initDone))
				return
			}
		}
	}
}

// CertCache is the client-cert path/password cache spec.md §4.9/§6
// describes as an external collaborator keyed by well-known names. See
// pkg/certcache for a Redis-backed implementation.
type CertCache interface {
	Get(key string) (string, bool)
	Set(key, value string)
}

// Well-known cache keys, spec.md §6.
const (
	CertCacheKeyPath     = "serf:ssl:cert"
	CertCacheKeyPassword = "serf:ssl:certpw"
)

// CertFailureMask accumulates certificate-verification failures (spec.md
// §4.9): bits are independent and more than one may be set for one cert.
type CertFailureMask uint

const (
	CertExpired CertFailureMask = 1 << iota
	CertNotYetValid
	CertSelfSigned
	CertUnknownCA
	CertRevoked
	CertInvalidHost
	CertUnknownFailure
)

// VerifyCallback is consulted once per failing certificate chain with the
// accumulated failure mask and the leaf certificate view. Returning nil
// overrides the failure; any other error is treated as confirming it.
type VerifyCallback func(mask CertFailureMask, leaf *x509.Certificate) error

// OCSPCallback is consulted with the parsed stapled OCSP response (nil if
// the peer stapled nothing) and any parse/responder error.
type OCSPCallback func(resp *OCSPResult, err error) error

// PathCallback and PasswordCallback drive the client-certificate callback
// chain spec.md §4.9 describes: path_callback → password_callback.
type PathCallback func() (string, error)
type PasswordCallback func() (string, error)

// Context is the shared TLS context of spec.md §3: "Refcount, allocator,
// underlying TLS engine handle, one encrypt side and one decrypt side".
// It is shared between exactly the two buckets it creates; the last
// Release frees the engine.
type Context struct {
	mu    sync.Mutex
	alloc *bucket.Allocator
	refs  int32

	tlsConfig  *tls.Config
	conn       *tls.Conn
	underlying *engineConn
	isClient   bool

	Encrypt *EncryptBucket
	Decrypt *DecryptBucket

	fatalErr error

	connPipelining bool
	enforceOCSP    bool
	renegotiated   bool

	verifyMask     CertFailureMask
	verifyCallback VerifyCallback
	ocspCallback   OCSPCallback

	certCache        CertCache
	pathCallback     PathCallback
	passwordCallback PasswordCallback
	cachedPath       string
	cachedPassword   string

	log bucketlog.Logger

	started int32 // atomic: reader/writer goroutines launched once

	// wq is the queue of plaintext EncryptBucket.Read has pulled off the
	// active stream, waiting for the writer goroutine to hand to the
	// engine via conn.Write.
	wqMu       sync.Mutex
	wqCond     *sync.Cond
	wqBuf      []byte
	wqShutdown bool

	// plain is the plaintext the reader goroutine has pulled off the
	// engine via conn.Read, waiting for DecryptBucket.Read to drain.
	plainMu  sync.Mutex
	plainBuf []byte
	plainEOF bool
	plainErr error
}

// applyDefaultVersionPolicy layers pkg/tlsconfig's Secure profile (TLS
// 1.2+, ECDHE/AEAD cipher suites) over a caller-supplied config that
// hasn't already picked a version floor, rather than leaving that choice
// to crypto/tls's own defaults.
func applyDefaultVersionPolicy(cfg *tls.Config) {
	if cfg.MinVersion == 0 && cfg.MaxVersion == 0 {
		tlsconfig.ApplyVersionProfile(cfg, tlsconfig.ProfileSecure)
	}
	if cfg.CipherSuites == nil {
		tlsconfig.ApplyCipherSuites(cfg, cfg.MinVersion)
	}
}

// NewClientContext builds a TLS context driving the client side of a
// handshake against serverName, reading ciphertext from decryptSource and
// writing plaintext read from encryptSource. cfg may be nil to use
// reasonable secure defaults (TLS 1.2 floor, platform root pool).
func NewClientContext(serverName string, decryptSource, encryptSource bucket.Bucket, cfg *tls.Config) *Context {
	ensureGlobalInit()

	ctx := &Context{
		alloc:    bucket.NewAllocator(),
		refs:     2,
		isClient: true,
		log:      bucketlog.Nop{},
	}
	ctx.wqCond = sync.NewCond(&ctx.wqMu)

	base := cfg
	if base == nil {
		base = &tls.Config{ServerName: serverName}
	} else if base.ServerName == "" {
		cp := *base
		cp.ServerName = serverName
		base = &cp
	}
	applyDefaultVersionPolicy(base)
	base.InsecureSkipVerify = true // verification is done manually in VerifyConnection
	base.VerifyConnection = ctx.verifyConnection
	base.GetClientCertificate = ctx.getClientCertificate
	ctx.tlsConfig = base

	ctx.underlying = newEngineConn(ctx)
	ctx.conn = tls.Client(ctx.underlying, ctx.tlsConfig)

	ctx.Encrypt = newEncryptBucket(ctx, encryptSource)
	ctx.Decrypt = newDecryptBucket(ctx, decryptSource)
	return ctx
}

// NewServerContext builds a TLS context driving the server side of a
// handshake, presenting cert, reading ciphertext from decryptSource and
// writing plaintext read from encryptSource.
func NewServerContext(cert tls.Certificate, decryptSource, encryptSource bucket.Bucket, cfg *tls.Config) *Context {
	ensureGlobalInit()

	ctx := &Context{
		alloc:    bucket.NewAllocator(),
		refs:     2,
		isClient: false,
		log:      bucketlog.Nop{},
	}
	ctx.wqCond = sync.NewCond(&ctx.wqMu)

	base := &tls.Config{}
	if cfg != nil {
		cp := *cfg
		base = &cp
	}
	applyDefaultVersionPolicy(base)
	base.Certificates = append([]tls.Certificate{cert}, base.Certificates...)
	ctx.tlsConfig = base

	ctx.underlying = newEngineConn(ctx)
	ctx.conn = tls.Server(ctx.underlying, ctx.tlsConfig)

	ctx.Encrypt = newEncryptBucket(ctx, encryptSource)
	ctx.Decrypt = newDecryptBucket(ctx, decryptSource)
	return ctx
}

// SetLogger installs a logging collaborator (spec.md §6); the default is
// a no-op.
func (c *Context) SetLogger(l bucketlog.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = l
}

// SetConnPipelining mirrors spec.md §6's CONN_PIPELINING knob: when true,
// mid-connection renegotiation is rejected at the protocol level (Go's
// RenegotiateNever, the same default crypto/tls already applies) so it
// can never disrupt request ordering on a pipelined connection; an
// attempted renegotiation then surfaces through Read/Write as a fatal
// error, which latchFatal recognizes and reports as
// ErrSSLNegotiateInProgress (spec.md §4.9's renegotiation policy).
func (c *Context) SetConnPipelining(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connPipelining = enabled
	if enabled {
		c.tlsConfig.Renegotiation = tls.RenegotiateNever
	}
}

// SetEnforceOCSPStapling mirrors bucket.Config.EnforceOCSPStapling: when
// true, an OCSP staple failure is fatal to the handshake instead of
// merely logged.
func (c *Context) SetEnforceOCSPStapling(enforce bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enforceOCSP = enforce
}

// SetVerifyCallback installs the user certificate-verification override.
func (c *Context) SetVerifyCallback(cb VerifyCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verifyCallback = cb
}

// SetOCSPCallback installs the OCSP stapling override.
func (c *Context) SetOCSPCallback(cb OCSPCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ocspCallback = cb
}

// SetClientCertCallbacks installs the path_callback → password_callback
// chain and the cache consulted before prompting (spec.md §4.9).
func (c *Context) SetClientCertCallbacks(cache CertCache, path PathCallback, password PasswordCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.certCache = cache
	c.pathCallback = path
	c.passwordCallback = password
}

// Release drops one reference; the last Release closes the underlying
// engine. Matches spec.md §5's "shared ... via a reference count; the
// last drop frees the engine and allocator-held state."
func (c *Context) Release() {
	if atomic.AddInt32(&c.refs, -1) == 0 {
		c.shutdownWriter()
		c.underlying.closeIn(io.EOF)
		_ = c.conn.Close()
	}
}

// ensureStarted launches the two goroutines that drive the TLS engine —
// one blocked in a loop on conn.Read, one blocked in a loop on
// conn.Write — the first time either side of the pair has bytes to move.
func (c *Context) ensureStarted() {
	if atomic.CompareAndSwapInt32(&c.started, 0, 1) {
		go c.readerLoop()
		go c.writerLoop()
	}
}

// readerLoop repeatedly calls the engine's blocking Read, accumulating
// plaintext for DecryptBucket.Read to drain non-blockingly.
func (c *Context) readerLoop() {
	buf := make([]byte, 16*1024)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			c.plainMu.Lock()
			c.plainBuf = append(c.plainBuf, chunk...)
			c.plainMu.Unlock()
		}
		if err != nil {
			c.plainMu.Lock()
			if stderrors.Is(err, io.EOF) {
				c.plainEOF = true
			} else {
				c.plainErr = err
			}
			c.plainMu.Unlock()
			return
		}
	}
}

// writerLoop repeatedly blocks for plaintext queued by EncryptBucket.Read
// and hands it to the engine's blocking Write.
func (c *Context) writerLoop() {
	for {
		c.wqMu.Lock()
		for len(c.wqBuf) == 0 && !c.wqShutdown {
			c.wqCond.Wait()
		}
		if len(c.wqBuf) == 0 {
			c.wqMu.Unlock()
			return
		}
		data := c.wqBuf
		c.wqBuf = nil
		c.wqMu.Unlock()

		if _, err := c.conn.Write(data); err != nil {
			c.mu.Lock()
			if c.fatalErr == nil {
				c.fatalErr = errors.NewTLSError("", 0, err)
			}
			c.mu.Unlock()
			return
		}
	}
}

// queueOutgoing hands plaintext EncryptBucket.Read pulled off the active
// stream to the writer goroutine, starting the engine goroutines on
// first use.
func (c *Context) queueOutgoing(data []byte) {
	c.ensureStarted()
	c.wqMu.Lock()
	c.wqBuf = append(c.wqBuf, data...)
	c.wqCond.Broadcast()
	c.wqMu.Unlock()
}

// shutdownWriter tells the writer goroutine to exit once its queue
// drains, rather than block forever.
func (c *Context) shutdownWriter() {
	c.wqMu.Lock()
	c.wqShutdown = true
	c.wqCond.Broadcast()
	c.wqMu.Unlock()
}

// takePlaintext drains whatever plaintext the reader goroutine has
// produced so far, mapping its terminal state onto the bucket status set.
func (c *Context) takePlaintext(max int) ([]byte, bucket.Status, error) {
	c.ensureStarted()
	c.plainMu.Lock()
	defer c.plainMu.Unlock()
	if len(c.plainBuf) > 0 {
		n := len(c.plainBuf)
		if max != bucket.AllAvail && max < n {
			n = max
		}
		out := c.plainBuf[:n]
		c.plainBuf = c.plainBuf[n:]
		return out, bucket.StatusOK, nil
	}
	if c.plainErr != nil {
		return nil, bucket.StatusError, c.latchFatal(c.plainErr)
	}
	if c.plainEOF {
		return nil, bucket.StatusEOF, nil
	}
	return nil, bucket.StatusAgain, nil
}

// latchFatal records a permanent failure; every subsequent read on either
// side of the pair returns it (spec.md §7, taxonomy kind 3). A
// renegotiation rejected by the Renegotiation=RenegotiateNever policy
// (see SetConnPipelining) is reported as ErrSSLNegotiateInProgress rather
// than a generic comm failure.
func (c *Context) latchFatal(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fatalErr != nil {
		return c.fatalErr
	}
	if c.connPipelining && strings.Contains(err.Error(), "renegotiation") {
		c.renegotiated = true
		c.fatalErr = errors.ErrSSLNegotiateInProgress
	} else {
		c.fatalErr = errors.NewTLSError("", 0, err)
	}
	return c.fatalErr
}

// ConnectionState exposes the negotiated TLS version/cipher/resumption
// state once the handshake completes, for a caller (e.g. the demo CLI's
// connection metadata) that wants to report it; spec.md's own data model
// has no use for it, but discarding it would waste a side effect the
// handshake already produced.
func (c *Context) ConnectionState() tls.ConnectionState {
	return c.conn.ConnectionState()
}

func (c *Context) fatal() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatalErr
}
