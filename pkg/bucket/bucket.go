// Package bucket implements the lazy, composable byte-pipeline abstraction
// used to parse and emit HTTP/1.1 wire data: a small universal read/peek/
// readline/read-iovec contract that every concrete bucket kind satisfies.
package bucket

import "github.com/bucketpipe/bucketpipe/pkg/errors"

// ALL_AVAIL requested as the max for Read means "whatever is immediately
// available", matching spec.md §4.1.
const AllAvail = -1

// Status is the third element of every bucket read result.
type Status int

const (
	// StatusOK means more data may follow immediately.
	StatusOK Status = iota
	// StatusAgain means no data is currently available; retry later.
	StatusAgain
	// StatusEOF means no more data will ever be produced by this bucket.
	StatusEOF
	// StatusWaitConn means data is pending on the other end of a duplex
	// (e.g. a TLS bucket needs to write before it can read).
	StatusWaitConn
	// StatusError means a non-transient error occurred; see the error
	// returned alongside the status.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusAgain:
		return "AGAIN"
	case StatusEOF:
		return "EOF"
	case StatusWaitConn:
		return "WAIT_CONN"
	case StatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Found describes which line terminator readline encountered.
type Found int

const (
	// FoundNone means no acceptable terminator was found in the data
	// returned (the bucket ran out of data, or hit EOF, before one).
	FoundNone Found = iota
	// FoundCR means a bare CR terminated the line.
	FoundCR
	// FoundLF means a bare LF terminated the line.
	FoundLF
	// FoundCRLF means a CRLF pair terminated the line.
	FoundCRLF
	// FoundCRLFSplit means the buffer ended exactly on a CR; the caller
	// must read again to learn whether the next byte is LF.
	FoundCRLFSplit
)

func (f Found) String() string {
	switch f {
	case FoundNone:
		return "NONE"
	case FoundCR:
		return "CR"
	case FoundLF:
		return "LF"
	case FoundCRLF:
		return "CRLF"
	case FoundCRLFSplit:
		return "CRLF_SPLIT"
	default:
		return "UNKNOWN"
	}
}

// LineMask selects which terminator kinds readline should honor. Kinds not
// in the mask are not reported — the scan continues through them.
type LineMask int

const (
	MaskCR LineMask = 1 << iota
	MaskLF
)

// MaskCRLF accepts any of CR, LF, or CRLF as a line terminator.
const MaskCRLF = MaskCR | MaskLF

// Config is the per-connection configuration surface propagated to buckets
// via SetConfig. Unknown keys are ignored by buckets that don't care about
// them (best-effort propagation, spec.md §4.1).
type Config struct {
	// ConnPipelining mirrors spec.md §6's CONN_PIPELINING knob: when true,
	// mid-connection TLS renegotiation is treated as a protocol violation
	// because it would disrupt request ordering on a pipelined connection.
	ConnPipelining bool

	// MaxLineLength overrides the 8000-byte line-buffer limit (0 keeps
	// the spec default).
	MaxLineLength int

	// EnforceOCSPStapling makes OCSP staple verification failures fatal
	// rather than advisory.
	EnforceOCSPStapling bool
}

// Bucket is the universal streaming byte source. Every concrete bucket kind
// (simple, aggregate, iovec, headers, response, chunked, TLS, mock) and
// every caller of one of those deals exclusively in this interface, per
// spec.md §3/§4.1/§9 ("dynamic dispatch ... the latter is recommended
// because third-party bucket kinds exist").
type Bucket interface {
	// Read returns up to max bytes (or whatever is available if
	// max == AllAvail). The returned slice is borrowed and is only valid
	// until the next call on this bucket. len == 0 is only legal together
	// with StatusAgain or StatusEOF.
	Read(max int) (data []byte, status Status, err error)

	// Readline scans for a line ending from {CR, LF, CRLF} filtered by
	// mask. The returned data includes the terminator when found.
	Readline(mask LineMask) (data []byte, found Found, status Status, err error)

	// Peek returns currently visible bytes without advancing the bucket.
	Peek() (data []byte, status Status, err error)

	// ReadIovec returns up to maxBytes split across at most maxVecs
	// non-contiguous ranges; semantically equivalent to repeated Read.
	ReadIovec(maxBytes, maxVecs int) (vecs [][]byte, used int, status Status, err error)

	// Destroy releases any resources owned by this bucket, recursively
	// destroying owned children. Not required to be idempotent-safe.
	Destroy()

	// SetConfig propagates per-connection configuration, best effort.
	SetConfig(cfg Config)
}

// DefaultReadIovec implements ReadIovec via repeated Read, for bucket kinds
// that have no native scatter/gather representation (spec.md §4.1).
func DefaultReadIovec(b Bucket, maxBytes, maxVecs int) (vecs [][]byte, used int, status Status, err error) {
	if maxVecs <= 0 {
		maxVecs = 1
	}
	remaining := maxBytes
	for len(vecs) < maxVecs {
		want := AllAvail
		if maxBytes != AllAvail {
			if remaining <= 0 {
				break
			}
			want = remaining
		}
		data, st, rerr := b.Read(want)
		if len(data) > 0 {
			vecs = append(vecs, data)
			used += len(data)
			if maxBytes != AllAvail {
				remaining -= len(data)
			}
		}
		if st != StatusOK {
			return vecs, used, st, rerr
		}
		if len(data) == 0 {
			// OK status with no data is a no-progress condition; stop to
			// avoid spinning.
			break
		}
	}
	return vecs, used, StatusOK, nil
}

// errAlreadyDestroyed is returned by bucket kinds that choose to make
// post-destroy operations observable errors rather than silently no-op.
var errAlreadyDestroyed = errors.NewValidationError("bucket: operation on destroyed bucket")

// ErrAlreadyDestroyed is exported so callers can compare against it.
var ErrAlreadyDestroyed = errAlreadyDestroyed
