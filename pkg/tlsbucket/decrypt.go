package tlsbucket

import (
	"io"

	"github.com/bucketpipe/bucketpipe/pkg/bucket"
)

// DecryptBucket is the decrypt side of the TLS bucket pair (spec.md
// §4.9): it pulls ciphertext off the transport (via source) and feeds it
// to the engine, then drains whatever plaintext the engine's background
// reader goroutine has produced so far. It never calls into the engine
// directly and so never blocks.
type DecryptBucket struct {
	ctx    *Context
	source bucket.Bucket // ciphertext source (e.g. a socket-backed DataBuf)
	lb     *bucket.LineBuffer

	peeked     []byte // buffered plaintext from a prior Peek, drained before pulling more
	sourceDone bool
	destroyed  bool
}

func newDecryptBucket(ctx *Context, source bucket.Bucket) *DecryptBucket {
	return &DecryptBucket{
		ctx:    ctx,
		source: source,
		lb:     bucket.NewLineBuffer(0),
	}
}

// Read implements ssl_decrypt (spec.md §4.9): feed any newly available
// ciphertext to the engine, then return whatever plaintext it has
// produced so far.
func (b *DecryptBucket) Read(max int) ([]byte, bucket.Status, error) {
	if b.destroyed {
		return nil, bucket.StatusEOF, nil
	}
	if err := b.ctx.fatal(); err != nil {
		return nil, bucket.StatusError, err
	}

	if len(b.peeked) > 0 {
		n := len(b.peeked)
		if max != bucket.AllAvail && max < n {
			n = max
		}
		out := b.peeked[:n]
		b.peeked = b.peeked[n:]
		return out, bucket.StatusOK, nil
	}

	if !b.sourceDone {
		data, status, err := b.source.Read(bucket.AllAvail)
		if err != nil {
			// The failure originated in the underlying ciphertext source,
			// not the TLS engine: propagate as-is rather than wrapping it
			// as a TLS error.
			b.sourceDone = true
			b.ctx.underlying.closeIn(err)
			return nil, bucket.StatusError, err
		}
		switch status {
		case bucket.StatusEOF:
			b.sourceDone = true
			b.ctx.underlying.closeIn(io.EOF)
		case bucket.StatusOK:
			b.ctx.underlying.feed(data)
		}
	}

	return b.ctx.takePlaintext(max)
}

func (b *DecryptBucket) Readline(mask bucket.LineMask) ([]byte, bucket.Found, bucket.Status, error) {
	if b.destroyed {
		return nil, bucket.FoundNone, bucket.StatusEOF, nil
	}
	return b.lb.Readline(b, mask)
}

// Peek pulls one round ahead into an internal buffer (if nothing is
// already buffered) and returns it without consuming it, so the next
// Read or Peek sees the same bytes first.
func (b *DecryptBucket) Peek() ([]byte, bucket.Status, error) {
	if b.destroyed {
		return nil, bucket.StatusEOF, nil
	}
	if len(b.peeked) > 0 {
		return b.peeked, bucket.StatusOK, nil
	}
	data, status, err := b.Read(bucket.AllAvail)
	if err != nil || len(data) == 0 {
		return data, status, err
	}
	b.peeked = append([]byte(nil), data...)
	return b.peeked, status, nil
}

func (b *DecryptBucket) ReadIovec(maxBytes, maxVecs int) ([][]byte, int, bucket.Status, error) {
	return bucket.DefaultReadIovec(b, maxBytes, maxVecs)
}

func (b *DecryptBucket) Destroy() {
	if b.destroyed {
		return
	}
	b.destroyed = true
	b.ctx.underlying.closeIn(io.EOF)
	b.source.Destroy()
	b.ctx.Release()
}

func (b *DecryptBucket) SetConfig(cfg bucket.Config) {
	b.ctx.SetEnforceOCSPStapling(cfg.EnforceOCSPStapling)
	b.source.SetConfig(cfg)
	if cfg.MaxLineLength > 0 {
		b.lb = bucket.NewLineBuffer(cfg.MaxLineLength)
	}
}

var _ bucket.Bucket = (*DecryptBucket)(nil)
