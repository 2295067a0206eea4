package bucket

// AggregateBucket is an ordered queue of child buckets drained front to
// back, presenting them as a single logical stream (spec.md §4.3). Each
// child's EOF is transparent: when the front child is exhausted it is
// destroyed and dropped, and the read continues against the next child
// without the caller observing an intermediate EOF — the aggregate only
// reports EOF once the whole queue is empty.
//
// Append adds a child behind the current tail (for producers building up a
// pipeline ahead of being drained); Prepend pushes one back in front of
// whatever is currently being read (for a parser that needs to push back
// bytes it over-consumed while peeking ahead).
type AggregateBucket struct {
	children  []Bucket
	destroyed bool
}

// NewAggregateBucket returns an empty aggregate, optionally seeded with an
// initial ordered set of children.
func NewAggregateBucket(children ...Bucket) *AggregateBucket {
	return &AggregateBucket{children: append([]Bucket(nil), children...)}
}

// Append adds b behind the current tail.
func (a *AggregateBucket) Append(b Bucket) {
	a.children = append(a.children, b)
}

// Prepend pushes b in front of the current head, so it is drained before
// anything already queued.
func (a *AggregateBucket) Prepend(b Bucket) {
	a.children = append([]Bucket{b}, a.children...)
}

// Empty reports whether the aggregate has no children left.
func (a *AggregateBucket) Empty() bool {
	return len(a.children) == 0
}

// dropFront destroys and removes the current head, used once it reports
// EOF so the next operation moves transparently to the following child.
func (a *AggregateBucket) dropFront() {
	a.children[0].Destroy()
	a.children = a.children[1:]
}

// Read implements Bucket, draining across child boundaries transparently.
func (a *AggregateBucket) Read(max int) ([]byte, Status, error) {
	if a.destroyed {
		return nil, StatusEOF, nil
	}
	for len(a.children) > 0 {
		data, status, err := a.children[0].Read(max)
		if err != nil {
			return nil, StatusError, err
		}
		if len(data) > 0 {
			return data, StatusOK, nil
		}
		switch status {
		case StatusEOF:
			a.dropFront()
			continue
		case StatusAgain, StatusWaitConn:
			return nil, status, nil
		default:
			// OK status with no data: no-progress, avoid spinning.
			return nil, StatusAgain, nil
		}
	}
	return nil, StatusEOF, nil
}

// Readline implements Bucket. A line is not allowed to straddle a child
// boundary implicitly: each child is expected to already be a complete,
// independently-terminated unit (e.g. a headers block followed by a body),
// so Readline simply delegates to the current head and advances past it on
// EOF like Read does.
func (a *AggregateBucket) Readline(mask LineMask) ([]byte, Found, Status, error) {
	if a.destroyed {
		return nil, FoundNone, StatusEOF, nil
	}
	for len(a.children) > 0 {
		data, found, status, err := a.children[0].Readline(mask)
		if err != nil {
			return nil, FoundNone, StatusError, err
		}
		if len(data) > 0 || found != FoundNone {
			return data, found, StatusOK, nil
		}
		switch status {
		case StatusEOF:
			a.dropFront()
			continue
		case StatusAgain, StatusWaitConn:
			return nil, FoundNone, status, nil
		default:
			return nil, FoundNone, StatusAgain, nil
		}
	}
	return nil, FoundNone, StatusEOF, nil
}

// Peek implements Bucket, peeking the current head only (peeking past an
// exhausted-but-not-yet-dropped child would misreport what Read returns
// next, since Read drops it lazily on its own next call).
func (a *AggregateBucket) Peek() ([]byte, Status, error) {
	if a.destroyed {
		return nil, StatusEOF, nil
	}
	for len(a.children) > 0 {
		data, status, err := a.children[0].Peek()
		if err != nil {
			return nil, StatusError, err
		}
		if len(data) > 0 {
			return data, StatusOK, nil
		}
		if status == StatusEOF {
			a.dropFront()
			continue
		}
		return nil, status, nil
	}
	return nil, StatusEOF, nil
}

// ReadIovec implements Bucket by collecting vectors across child
// boundaries up to the requested limits.
func (a *AggregateBucket) ReadIovec(maxBytes, maxVecs int) ([][]byte, int, Status, error) {
	if a.destroyed {
		return nil, 0, StatusEOF, nil
	}
	if maxVecs <= 0 {
		maxVecs = 1
	}
	var vecs [][]byte
	used := 0
	for len(a.children) > 0 && len(vecs) < maxVecs {
		want := AllAvail
		if maxBytes != AllAvail {
			remaining := maxBytes - used
			if remaining <= 0 {
				break
			}
			want = remaining
		}
		childVecs, n, status, err := a.children[0].ReadIovec(want, maxVecs-len(vecs))
		if err != nil {
			return vecs, used, StatusError, err
		}
		vecs = append(vecs, childVecs...)
		used += n
		if status == StatusEOF {
			a.dropFront()
			continue
		}
		if status != StatusOK {
			return vecs, used, status, nil
		}
		if n == 0 {
			break
		}
	}
	if len(vecs) == 0 && len(a.children) == 0 {
		return nil, 0, StatusEOF, nil
	}
	return vecs, used, StatusOK, nil
}

// Destroy implements Bucket, destroying every remaining child.
func (a *AggregateBucket) Destroy() {
	for _, c := range a.children {
		c.Destroy()
	}
	a.children = nil
	a.destroyed = true
}

// SetConfig implements Bucket, propagating to every current child.
func (a *AggregateBucket) SetConfig(cfg Config) {
	for _, c := range a.children {
		c.SetConfig(cfg)
	}
}

var _ Bucket = (*AggregateBucket)(nil)
