package bucket

import "github.com/bucketpipe/bucketpipe/pkg/errors"

// LineLimit is the maximum logical line length (spec.md §3/§6): 8000
// bytes, exceeding it is a parse error.
const LineLimit = 8000

// lineState is the LineBuffer's state machine position, spec.md §3.
type lineState int

const (
	lineEmpty lineState = iota
	linePartial
	lineReady
	lineCRLFSplit
)

// LineBuffer is the incremental line reader described in spec.md §4.5: it
// tolerates CR, LF, and CRLF terminators — including a CRLF pair split
// across two arrivals — while accumulating at most LineLimit bytes.
//
// LineBuffer owns no transport of its own; Readline pulls bytes from the
// Bucket passed to it and returns one completed line per call. This mirrors the teacher's separation
// of buffer management (pkg/buffer) from the reader loop (pkg/client's
// readLine/readHeaders), adapted here to a pull, not push, shape so the
// response bucket can drive it from a non-blocking underlying Bucket.
type LineBuffer struct {
	state lineState
	buf   []byte
	limit int
}

// NewLineBuffer returns an empty LineBuffer with the default 8000-byte
// limit. Pass a positive limit to override it (e.g. from Config).
func NewLineBuffer(limit int) *LineBuffer {
	if limit <= 0 {
		limit = LineLimit
	}
	return &LineBuffer{limit: limit}
}

// Readline drains lines out of src one logical line at a time, feeding the
// internal accumulator from src.Read until a terminator resolves or src
// signals AGAIN/EOF/error. mask selects which terminator kinds are
// reportable; unacceptable kinds are skipped over, matching SimpleBucket's
// scanTerminator and spec.md §4.1.
func (lb *LineBuffer) Readline(src Bucket, mask LineMask) (data []byte, found Found, status Status, err error) {
	if lb.state == lineReady {
		// The previous call returned a complete line; start a fresh one (spec.md §4.5
		// "ready -> empty" transition happens implicitly on next fetch).
		lb.buf = lb.buf[:0]
		lb.state = lineEmpty
	}

	for {
		if lb.state == lineCRLFSplit {
			peeked, pstatus, perr := src.Peek()
			if perr != nil {
				return nil, FoundNone, StatusError, perr
			}
			if len(peeked) == 0 && pstatus == StatusAgain {
				return nil, FoundNone, StatusAgain, nil
			}
			if len(peeked) == 0 && pstatus == StatusEOF {
				// No further bytes can ever arrive: resolve the
				// trailing CR now instead of asking for another
				// round-trip (Open Question #1 in SPEC_FULL.md).
				line := append(append([]byte(nil), lb.buf...), '\r')
				lb.state = lineReady
				return line, FoundCR, StatusOK, nil
			}
			if len(peeked) > 0 && peeked[0] == '\n' {
				src.Read(1) // consume the LF
				line := append(append([]byte(nil), lb.buf...), '\r', '\n')
				lb.state = lineReady
				return line, FoundCRLF, StatusOK, nil
			}
			// Next byte is something other than LF: leave it for the
			// next reader, the CR-terminated line is complete.
			line := append(append([]byte(nil), lb.buf...), '\r')
			lb.state = lineReady
			return line, FoundCR, StatusOK, nil
		}

		// First, try to resolve a line out of whatever is already
		// buffered from a previous call before asking the source for
		// more (a single Read can return several lines' worth at once).
		if len(lb.buf) > 0 {
			_, consumed, f := scanTerminator(lb.buf, mask, false)
			if f != FoundNone && f != FoundCRLFSplit {
				line := append([]byte(nil), lb.buf[:consumed]...)
				leftover := append([]byte(nil), lb.buf[consumed:]...)
				lb.buf = leftover
				if len(lb.buf) > 0 {
					lb.state = linePartial
				} else {
					lb.state = lineReady
				}
				return line, f, StatusOK, nil
			}
		}

		// Stop the read at the first terminator already visible in src, so
		// bytes past the line stay in src for its own Read instead of in
		// lb.buf, where no Read of src would ever return them.
		want := AllAvail
		if peeked, _, perr := src.Peek(); perr == nil {
			if _, n, f := scanTerminator(peeked, mask, false); f != FoundNone {
				want = n
			}
		}
		chunk, status, rerr := src.Read(want)
		if rerr != nil {
			return nil, FoundNone, StatusError, rerr
		}
		if len(chunk) > 0 {
			if len(lb.buf)+len(chunk) > lb.limit {
				return nil, FoundNone, StatusError, errors.NewParseError("line", "line exceeds maximum length", nil)
			}
			lb.buf = append(lb.buf, chunk...)
			lb.state = linePartial

			contentLen, consumed, f := scanTerminator(lb.buf, mask, status == StatusEOF)
			switch f {
			case FoundCRLFSplit:
				// We consumed the CR into lb.buf; strip it while we wait
				// to learn if LF follows. The split branch above appends
				// the resolved terminator (CR or CRLF) back onto the line.
				lb.buf = lb.buf[:contentLen]
				lb.state = lineCRLFSplit
				continue
			case FoundNone:
				// No terminator yet; loop for more data unless the
				// source itself is out.
				if status == StatusEOF {
					line := append([]byte(nil), lb.buf...)
					lb.buf = lb.buf[:0]
					lb.state = lineReady
					return line, FoundNone, StatusEOF, nil
				}
				if status == StatusAgain {
					return nil, FoundNone, StatusAgain, nil
				}
				continue
			default:
				line := append([]byte(nil), lb.buf[:consumed]...)
				leftover := append([]byte(nil), lb.buf[consumed:]...)
				lb.buf = leftover
				if len(lb.buf) > 0 {
					lb.state = linePartial
				} else {
					lb.state = lineReady
				}
				return line, f, StatusOK, nil
			}
		}

		switch status {
		case StatusAgain:
			return nil, FoundNone, StatusAgain, nil
		case StatusEOF:
			if len(lb.buf) == 0 {
				return nil, FoundNone, StatusEOF, nil
			}
			line := append([]byte(nil), lb.buf...)
			lb.buf = lb.buf[:0]
			lb.state = lineReady
			return line, FoundNone, StatusEOF, nil
		case StatusWaitConn:
			return nil, FoundNone, StatusWaitConn, nil
		default:
			continue
		}
	}
}

// Reset clears any partially accumulated line, returning the buffer to the
// empty state (used when a consumer abandons a line buffer mid-parse,
// e.g. the response bucket dropping down into a fresh framing layer).
func (lb *LineBuffer) Reset() {
	lb.buf = lb.buf[:0]
	lb.state = lineEmpty
}
