package bucket

// Ownership describes who is responsible for the bytes a SimpleBucket
// wraps, per spec.md §4.2.
type Ownership int

const (
	// Borrowed: the caller owns the bytes; the bucket must not retain
	// them past its own lifetime and never frees them.
	Borrowed Ownership = iota
	// Copy: the bucket allocated its own copy and owns it.
	Copy
	// Own: the caller transferred ownership to the bucket; it frees the
	// bytes on Destroy.
	Own
)

// SimpleBucket holds one contiguous byte range plus an ownership tag.
// peek/read/readline are trivial because there is exactly one segment.
type SimpleBucket struct {
	data      []byte
	pos       int
	ownership Ownership
	destroyed bool
}

// NewSimpleBucket wraps data with the given ownership semantics. Copy
// ownership copies data immediately; Borrowed and Own keep the slice as
// given (the caller must guarantee it outlives the bucket for Borrowed).
func NewSimpleBucket(data []byte, ownership Ownership) *SimpleBucket {
	b := &SimpleBucket{ownership: ownership}
	if ownership == Copy {
		cp := make([]byte, len(data))
		copy(cp, data)
		b.data = cp
	} else {
		b.data = data
	}
	return b
}

func (b *SimpleBucket) remaining() []byte {
	if b.pos >= len(b.data) {
		return nil
	}
	return b.data[b.pos:]
}

// Read implements Bucket.
func (b *SimpleBucket) Read(max int) ([]byte, Status, error) {
	if b.destroyed {
		return nil, StatusEOF, nil
	}
	rem := b.remaining()
	if len(rem) == 0 {
		return nil, StatusEOF, nil
	}
	n := len(rem)
	if max != AllAvail && max < n {
		n = max
	}
	out := rem[:n]
	b.pos += n
	return out, StatusOK, nil
}

// Readline implements Bucket. All of SimpleBucket's content is already in
// memory, so the scan runs directly over the remaining slice rather than
// through the incremental LineBuffer state machine.
func (b *SimpleBucket) Readline(mask LineMask) ([]byte, Found, Status, error) {
	if b.destroyed {
		return nil, FoundNone, StatusEOF, nil
	}
	rem := b.remaining()
	if len(rem) == 0 {
		return nil, FoundNone, StatusEOF, nil
	}
	_, consumed, found := scanTerminator(rem, mask, true)
	if found == FoundNone {
		// No terminator anywhere in the remaining data: return it all,
		// bucket is now exhausted.
		b.pos += len(rem)
		return rem, FoundNone, StatusEOF, nil
	}
	line := rem[:consumed]
	b.pos += consumed
	return line, found, StatusOK, nil
}

// Peek implements Bucket.
func (b *SimpleBucket) Peek() ([]byte, Status, error) {
	if b.destroyed {
		return nil, StatusEOF, nil
	}
	rem := b.remaining()
	return rem, StatusEOF, nil
}

// ReadIovec implements Bucket.
func (b *SimpleBucket) ReadIovec(maxBytes, maxVecs int) ([][]byte, int, Status, error) {
	return DefaultReadIovec(b, maxBytes, maxVecs)
}

// Destroy implements Bucket. Own-ed data is dropped for GC; there is no
// explicit free in Go, but dropping the reference is the idiomatic
// equivalent and keeps the bucket from being read again.
func (b *SimpleBucket) Destroy() {
	b.data = nil
	b.destroyed = true
}

// SetConfig implements Bucket; SimpleBucket has no configuration surface.
func (b *SimpleBucket) SetConfig(Config) {}

var _ Bucket = (*SimpleBucket)(nil)
