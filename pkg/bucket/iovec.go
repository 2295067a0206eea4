package bucket

// IovecBucket holds a fixed vector of non-contiguous byte ranges and drains
// them in order, per spec.md §4.4. It is the scatter/gather counterpart to
// SimpleBucket: instead of one contiguous range it presents several, but
// Read still returns one contiguous run at a time (the caller loops, or
// uses ReadIovec to get several ranges back in one call).
type IovecBucket struct {
	vecs      [][]byte
	idx       int
	off       int
	destroyed bool
}

// NewIovecBucket wraps vecs; the slices are borrowed, same as SimpleBucket's
// Borrowed ownership — callers that need to retain data past the bucket's
// lifetime must copy it themselves before handing it in.
func NewIovecBucket(vecs ...[]byte) *IovecBucket {
	// Drop all empty vectors so Read/Peek never have to skip over
	// them more than once.
	filtered := vecs[:0:0]
	for _, v := range vecs {
		if len(v) > 0 {
			filtered = append(filtered, v)
		}
	}
	return &IovecBucket{vecs: filtered}
}

func (b *IovecBucket) advancePastEmpty() {
	for b.idx < len(b.vecs) && b.off >= len(b.vecs[b.idx]) {
		b.idx++
		b.off = 0
	}
}

// Read implements Bucket.
func (b *IovecBucket) Read(max int) ([]byte, Status, error) {
	if b.destroyed {
		return nil, StatusEOF, nil
	}
	b.advancePastEmpty()
	if b.idx >= len(b.vecs) {
		return nil, StatusEOF, nil
	}
	cur := b.vecs[b.idx][b.off:]
	n := len(cur)
	if max != AllAvail && max < n {
		n = max
	}
	out := cur[:n]
	b.off += n
	return out, StatusOK, nil
}

// Readline implements Bucket by delegating to the shared scanner over
// whatever the current segment exposes; a line terminator spanning a
// segment boundary is resolved by pulling in subsequent segments.
func (b *IovecBucket) Readline(mask LineMask) ([]byte, Found, Status, error) {
	if b.destroyed {
		return nil, FoundNone, StatusEOF, nil
	}
	b.advancePastEmpty()
	if b.idx >= len(b.vecs) {
		return nil, FoundNone, StatusEOF, nil
	}

	// Fast path: terminator found within the current segment.
	cur := b.vecs[b.idx][b.off:]
	_, consumed, found := scanTerminator(cur, mask, b.idx == len(b.vecs)-1)
	if found != FoundNone && found != FoundCRLFSplit {
		line := cur[:consumed]
		b.off += consumed
		return line, found, StatusOK, nil
	}

	// Slow path: the line (or its terminator) crosses a segment boundary.
	// Collect segments until a terminator resolves or the vector is
	// exhausted; this is rare enough in practice (header/status lines
	// rarely straddle a caller-supplied vector split) that a simple
	// linear scan over an assembled copy is acceptable.
	var assembled []byte
	startIdx, startOff := b.idx, b.off
	for b.idx < len(b.vecs) {
		assembled = append(assembled, b.vecs[b.idx][b.off:]...)
		atEOF := b.idx == len(b.vecs)-1
		_, consumed, found := scanTerminator(assembled, mask, atEOF)
		if found != FoundNone && found != FoundCRLFSplit {
			// Walk the vector forward by consumed bytes from the saved
			// start position.
			b.idx, b.off = startIdx, startOff
			remaining := consumed
			for remaining > 0 {
				seg := b.vecs[b.idx][b.off:]
				if remaining < len(seg) {
					b.off += remaining
					remaining = 0
				} else {
					remaining -= len(seg)
					b.idx++
					b.off = 0
				}
			}
			return assembled[:consumed], found, StatusOK, nil
		}
		b.idx++
		b.off = 0
	}
	if len(assembled) == 0 {
		return nil, FoundNone, StatusEOF, nil
	}
	return assembled, FoundNone, StatusEOF, nil
}

// Peek implements Bucket.
func (b *IovecBucket) Peek() ([]byte, Status, error) {
	if b.destroyed {
		return nil, StatusEOF, nil
	}
	b.advancePastEmpty()
	if b.idx >= len(b.vecs) {
		return nil, StatusEOF, nil
	}
	return b.vecs[b.idx][b.off:], StatusOK, nil
}

// ReadIovec implements Bucket natively: it hands back its own remaining
// segments directly instead of flattening them through repeated Read.
func (b *IovecBucket) ReadIovec(maxBytes, maxVecs int) ([][]byte, int, Status, error) {
	if b.destroyed {
		return nil, 0, StatusEOF, nil
	}
	b.advancePastEmpty()
	if b.idx >= len(b.vecs) {
		return nil, 0, StatusEOF, nil
	}
	if maxVecs <= 0 {
		maxVecs = len(b.vecs)
	}

	var out [][]byte
	used := 0
	for b.idx < len(b.vecs) && len(out) < maxVecs {
		seg := b.vecs[b.idx][b.off:]
		if len(seg) == 0 {
			b.idx++
			b.off = 0
			continue
		}
		take := len(seg)
		if maxBytes != AllAvail {
			remaining := maxBytes - used
			if remaining <= 0 {
				break
			}
			if take > remaining {
				take = remaining
			}
		}
		out = append(out, seg[:take])
		used += take
		if take == len(seg) {
			b.idx++
			b.off = 0
		} else {
			b.off += take
		}
	}
	return out, used, StatusOK, nil
}

// Destroy implements Bucket.
func (b *IovecBucket) Destroy() {
	b.vecs = nil
	b.destroyed = true
}

// SetConfig implements Bucket; IovecBucket has no configuration surface.
func (b *IovecBucket) SetConfig(Config) {}

var _ Bucket = (*IovecBucket)(nil)
