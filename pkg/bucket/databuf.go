package bucket

// FillFunc pulls more bytes from an external, non-blocking source: a raw
// socket, a TLS engine's plaintext output, anything that can hand back
// "here's what's ready right now" without blocking the caller. It mirrors
// the same (data, status, err) contract as Bucket.Read itself, so a DataBuf
// is really just "the universal read protocol, minus readline/peek/iovec,
// promoted to a full Bucket" — spec.md §4.1's lowest-level adapter.
type FillFunc func(max int) (data []byte, status Status, err error)

// DataBuf adapts a FillFunc into a full Bucket by layering an internal
// accumulator (the same line-scanning machinery LineBuffer uses) on top of
// it, so Readline/Peek work even though the underlying source only knows
// how to produce raw chunks. Concrete sources — the raw socket reader, the
// TLS bucket's decrypt side — are expressed as a DataBuf plus a FillFunc
// rather than reimplementing the line-buffering logic each time.
type DataBuf struct {
	fill      FillFunc
	lb        *LineBuffer
	pending   []byte // bytes pulled ahead of what Read has handed out
	eof       bool
	destroyed bool
}

// NewDataBuf wraps fill. lineLimit is forwarded to the internal LineBuffer
// (0 uses the default 8000-byte limit).
func NewDataBuf(fill FillFunc, lineLimit int) *DataBuf {
	return &DataBuf{
		fill: fill,
		lb:   NewLineBuffer(lineLimit),
	}
}

// Read implements Bucket: it drains any bytes pulled ahead by a prior
// Peek/Readline first, then falls through to fill.
func (d *DataBuf) Read(max int) ([]byte, Status, error) {
	if d.destroyed {
		return nil, StatusEOF, nil
	}
	if len(d.pending) > 0 {
		n := len(d.pending)
		if max != AllAvail && max < n {
			n = max
		}
		out := d.pending[:n]
		d.pending = d.pending[n:]
		return out, StatusOK, nil
	}
	if d.eof {
		return nil, StatusEOF, nil
	}
	data, status, err := d.fill(max)
	if status == StatusEOF {
		d.eof = true
	}
	return data, status, err
}

// Readline implements Bucket by driving the shared LineBuffer state machine
// against this DataBuf as its source. LineBuffer peeks first and reads only
// up to the first visible terminator, and Read above already prefers any
// pending bytes, so the two compose without double-buffering.
func (d *DataBuf) Readline(mask LineMask) ([]byte, Found, Status, error) {
	if d.destroyed {
		return nil, FoundNone, StatusEOF, nil
	}
	return d.lb.Readline(d, mask)
}

// Peek implements Bucket by pulling one chunk ahead (if nothing is already
// pending) and holding onto it for the next Read/Readline.
func (d *DataBuf) Peek() ([]byte, Status, error) {
	if d.destroyed {
		return nil, StatusEOF, nil
	}
	if len(d.pending) > 0 {
		return d.pending, StatusOK, nil
	}
	if d.eof {
		return nil, StatusEOF, nil
	}
	data, status, err := d.fill(AllAvail)
	if err != nil {
		return nil, StatusError, err
	}
	if len(data) > 0 {
		d.pending = append([]byte(nil), data...)
	}
	if status == StatusEOF {
		d.eof = true
	}
	return d.pending, status, nil
}

// ReadIovec implements Bucket.
func (d *DataBuf) ReadIovec(maxBytes, maxVecs int) ([][]byte, int, Status, error) {
	return DefaultReadIovec(d, maxBytes, maxVecs)
}

// Destroy implements Bucket.
func (d *DataBuf) Destroy() {
	d.pending = nil
	d.destroyed = true
}

// SetConfig implements Bucket, forwarding the line-length override to the
// internal LineBuffer.
func (d *DataBuf) SetConfig(cfg Config) {
	if cfg.MaxLineLength > 0 {
		d.lb = NewLineBuffer(cfg.MaxLineLength)
	}
}

var _ Bucket = (*DataBuf)(nil)
