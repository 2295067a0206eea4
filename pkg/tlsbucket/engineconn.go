package tlsbucket

import (
	"io"
	"net"
	"sync"
	"time"
)

type pipeAddr struct{}

func (pipeAddr) Network() string { return "bucketpipe" }
func (pipeAddr) String() string  { return "bucketpipe" }

// engineConn is the synthetic net.Conn crypto/tls's engine is driven
// through, on the Context's reader/writer goroutines only — never on the
// single I/O thread that calls EncryptBucket.Read/DecryptBucket.Read.
// Read blocks until ciphertext has been fed in by the decrypt side (via
// feed) or the ciphertext source has signaled EOF/error (via closeIn);
// Write hands produced ciphertext straight to the encrypt side's
// pending-output aggregate, which never blocks.
type engineConn struct {
	ctx *Context

	mu     sync.Mutex
	cond   *sync.Cond
	inBuf  []byte
	closed bool
	inErr  error
}

func newEngineConn(ctx *Context) *engineConn {
	e := &engineConn{ctx: ctx}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// feed appends ciphertext DecryptBucket.Read pulled off its source,
// waking any Read blocked waiting for it.
func (e *engineConn) feed(data []byte) {
	if len(data) == 0 {
		return
	}
	e.mu.Lock()
	e.inBuf = append(e.inBuf, data...)
	e.cond.Broadcast()
	e.mu.Unlock()
}

// closeIn marks the ciphertext source exhausted (err == nil or io.EOF) or
// broken (any other err); idempotent, first call wins.
func (e *engineConn) closeIn(err error) {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		e.inErr = err
	}
	e.cond.Broadcast()
	e.mu.Unlock()
}

func (e *engineConn) Read(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for len(e.inBuf) == 0 && !e.closed {
		e.cond.Wait()
	}
	if len(e.inBuf) > 0 {
		n := copy(p, e.inBuf)
		e.inBuf = e.inBuf[n:]
		return n, nil
	}
	if e.inErr != nil && e.inErr != io.EOF {
		return 0, e.inErr
	}
	return 0, io.EOF
}

func (e *engineConn) Write(p []byte) (int, error) {
	e.ctx.Encrypt.appendPending(e.ctx.alloc.Copy(p))
	return len(p), nil
}

func (e *engineConn) Close() error                       { e.closeIn(io.EOF); return nil }
func (e *engineConn) LocalAddr() net.Addr                { return pipeAddr{} }
func (e *engineConn) RemoteAddr() net.Addr               { return pipeAddr{} }
func (e *engineConn) SetDeadline(t time.Time) error      { return nil }
func (e *engineConn) SetReadDeadline(t time.Time) error  { return nil }
func (e *engineConn) SetWriteDeadline(t time.Time) error { return nil }

var _ net.Conn = (*engineConn)(nil)
