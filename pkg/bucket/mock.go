package bucket

// MockStep is one scripted step a MockBucket plays back on a Read call:
// either a chunk of data, a transient status with no data (AGAIN/
// WAIT_CONN), or a terminal error.
type MockStep struct {
	Data   []byte
	Status Status
	Err    error
}

// MockBucket is a scripted Bucket used by tests that need to exercise a
// parser against specific arrival patterns — a status line split across
// three reads, an AGAIN in the middle of a chunked body, and so on — without
// standing up a real socket or TLS engine. It is the third-party bucket
// kind spec.md §3/§9 cites as the reason Bucket is an interface rather than
// a closed variant.
type MockBucket struct {
	steps     []MockStep
	idx       int
	cur       []byte // unconsumed remainder of the current step's data
	curStatus Status // status to report once cur is drained
	lb        *LineBuffer
	destroyed bool
}

// NewMockBucket returns a bucket that replays steps in order, one per Read
// call once the previous step's data is exhausted.
func NewMockBucket(steps ...MockStep) *MockBucket {
	return &MockBucket{steps: steps, lb: NewLineBuffer(0)}
}

// NewMockBucketFromStrings is a convenience constructor for the common case
// of a script that is just a sequence of OK chunks, terminated by EOF.
func NewMockBucketFromStrings(chunks ...string) *MockBucket {
	steps := make([]MockStep, 0, len(chunks)+1)
	for _, c := range chunks {
		steps = append(steps, MockStep{Data: []byte(c), Status: StatusOK})
	}
	steps = append(steps, MockStep{Status: StatusEOF})
	return NewMockBucket(steps...)
}

// Read implements Bucket, replaying the script one step at a time.
func (m *MockBucket) Read(max int) ([]byte, Status, error) {
	if m.destroyed {
		return nil, StatusEOF, nil
	}
	if len(m.cur) > 0 {
		n := len(m.cur)
		if max != AllAvail && max < n {
			n = max
		}
		out := m.cur[:n]
		m.cur = m.cur[n:]
		if len(m.cur) > 0 {
			// More of this step's data remains; the step's terminal
			// status (EOF, etc.) only applies once it's fully drained.
			return out, StatusOK, nil
		}
		return out, m.curStatus, nil
	}
	if m.idx >= len(m.steps) {
		return nil, StatusEOF, nil
	}
	step := m.steps[m.idx]
	m.idx++
	if step.Err != nil {
		return nil, StatusError, step.Err
	}
	if len(step.Data) == 0 {
		return nil, step.Status, nil
	}
	n := len(step.Data)
	if max != AllAvail && max < n {
		m.cur = step.Data[max:]
		m.curStatus = step.Status
		return step.Data[:max], StatusOK, nil
	}
	return step.Data, step.Status, nil
}

// Readline implements Bucket via the shared LineBuffer state machine.
func (m *MockBucket) Readline(mask LineMask) ([]byte, Found, Status, error) {
	if m.destroyed {
		return nil, FoundNone, StatusEOF, nil
	}
	return m.lb.Readline(m, mask)
}

// Peek implements Bucket: it looks at the current step's remaining data
// without consuming the script forward when nothing is buffered yet.
func (m *MockBucket) Peek() ([]byte, Status, error) {
	if m.destroyed {
		return nil, StatusEOF, nil
	}
	if len(m.cur) > 0 {
		return m.cur, StatusOK, nil
	}
	if m.idx >= len(m.steps) {
		return nil, StatusEOF, nil
	}
	step := m.steps[m.idx]
	if step.Err != nil {
		return nil, StatusError, step.Err
	}
	if len(step.Data) == 0 {
		return nil, step.Status, nil
	}
	return step.Data, step.Status, nil
}

// ReadIovec implements Bucket.
func (m *MockBucket) ReadIovec(maxBytes, maxVecs int) ([][]byte, int, Status, error) {
	return DefaultReadIovec(m, maxBytes, maxVecs)
}

// Destroy implements Bucket.
func (m *MockBucket) Destroy() {
	m.steps = nil
	m.cur = nil
	m.destroyed = true
}

// SetConfig implements Bucket; recorded but otherwise unused, since test
// scripts specify their own line-length behavior via MaxLineLength pass-
// through to the internal LineBuffer.
func (m *MockBucket) SetConfig(cfg Config) {
	if cfg.MaxLineLength > 0 {
		m.lb = NewLineBuffer(cfg.MaxLineLength)
	}
}

var _ Bucket = (*MockBucket)(nil)
