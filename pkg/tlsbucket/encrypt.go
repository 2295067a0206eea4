package tlsbucket

import (
	"sync"

	"github.com/bucketpipe/bucketpipe/pkg/bucket"
)

// EncryptBucket is the encrypt side of the TLS bucket pair (spec.md
// §4.9): it reads plaintext from a request stream and yields ciphertext.
// The TLS engine itself runs on the Context's background writer
// goroutine; Read here only pulls available plaintext, queues it for
// that goroutine, and drains whatever ciphertext it has produced so
// far — it never calls into the engine directly and so never blocks.
type EncryptBucket struct {
	ctx *Context

	mu      sync.Mutex
	pending *bucket.AggregateBucket // ciphertext produced by the engine, not yet drained

	active     *bucket.AggregateBucket // current logical stream's plaintext (I/O thread only)
	streamNext []bucket.Bucket         // FIFO of queued additional streams
	activeDone bool                    // active and every queued stream are exhausted

	lb *bucket.LineBuffer

	destroyed bool
}

func newEncryptBucket(ctx *Context, source bucket.Bucket) *EncryptBucket {
	return &EncryptBucket{
		ctx:     ctx,
		active:  bucket.NewAggregateBucket(source),
		pending: bucket.NewAggregateBucket(),
		lb:      bucket.NewLineBuffer(0),
	}
}

// AppendStream enqueues another logical plaintext source to be activated
// once the current one is exhausted (spec.md §4.9 "multiplexed encrypt
// streams"), preserving message boundaries without blocking on completion
// of the currently active one.
func (b *EncryptBucket) AppendStream(src bucket.Bucket) {
	b.streamNext = append(b.streamNext, src)
	b.activeDone = false
}

// appendPending is called from the Context's writer goroutine (via
// engineConn.Write) to hand over ciphertext the engine produced.
func (b *EncryptBucket) appendPending(p []byte) {
	b.mu.Lock()
	b.pending.Append(bucket.NewSimpleBucket(p, bucket.Own))
	b.mu.Unlock()
}

func (b *EncryptBucket) advanceStream() bool {
	if len(b.streamNext) == 0 {
		return false
	}
	next := b.streamNext[0]
	b.streamNext = b.streamNext[1:]
	b.active.Destroy()
	b.active = bucket.NewAggregateBucket(next)
	return true
}

func flattenVecs(vecs [][]byte, used int) []byte {
	out := make([]byte, 0, used)
	for _, v := range vecs {
		out = append(out, v...)
	}
	return out
}

// Read implements ssl_encrypt (spec.md §4.9): pull whatever plaintext is
// immediately available off the active stream and hand it to the writer
// goroutine, then drain whatever ciphertext the engine has produced so
// far.
func (b *EncryptBucket) Read(max int) ([]byte, bucket.Status, error) {
	if b.destroyed {
		return nil, bucket.StatusEOF, nil
	}
	if err := b.ctx.fatal(); err != nil {
		return nil, bucket.StatusError, err
	}

	if !b.activeDone {
		vecs, used, status, err := b.active.ReadIovec(bucket.AllAvail, 16)
		if err != nil {
			return nil, bucket.StatusError, err
		}
		switch {
		case used > 0:
			b.ctx.queueOutgoing(flattenVecs(vecs, used))
		case status == bucket.StatusEOF:
			if !b.advanceStream() {
				b.activeDone = true
			}
		}
	}

	b.mu.Lock()
	if !b.pending.Empty() {
		data, status, err := b.pending.Read(max)
		b.mu.Unlock()
		return data, status, err
	}
	b.mu.Unlock()

	if b.activeDone {
		return nil, bucket.StatusEOF, nil
	}
	return nil, bucket.StatusWaitConn, nil
}

func (b *EncryptBucket) Readline(mask bucket.LineMask) ([]byte, bucket.Found, bucket.Status, error) {
	if b.destroyed {
		return nil, bucket.FoundNone, bucket.StatusEOF, nil
	}
	return b.lb.Readline(b, mask)
}

func (b *EncryptBucket) Peek() ([]byte, bucket.Status, error) {
	if b.destroyed {
		return nil, bucket.StatusEOF, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.pending.Empty() {
		return b.pending.Peek()
	}
	return nil, bucket.StatusAgain, nil
}

func (b *EncryptBucket) ReadIovec(maxBytes, maxVecs int) ([][]byte, int, bucket.Status, error) {
	return bucket.DefaultReadIovec(b, maxBytes, maxVecs)
}

func (b *EncryptBucket) Destroy() {
	if b.destroyed {
		return
	}
	b.destroyed = true
	b.active.Destroy()
	b.mu.Lock()
	b.pending.Destroy()
	b.mu.Unlock()
	for _, s := range b.streamNext {
		s.Destroy()
	}
	b.streamNext = nil
	b.ctx.shutdownWriter()
	b.ctx.Release()
}

func (b *EncryptBucket) SetConfig(cfg bucket.Config) {
	b.ctx.SetConnPipelining(cfg.ConnPipelining)
	b.ctx.SetEnforceOCSPStapling(cfg.EnforceOCSPStapling)
	b.active.SetConfig(cfg)
	if cfg.MaxLineLength > 0 {
		b.lb = bucket.NewLineBuffer(cfg.MaxLineLength)
	}
}

var _ bucket.Bucket = (*EncryptBucket)(nil)
