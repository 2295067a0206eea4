// Package httpresponse implements the HTTP/1.x response parser bucket:
// status line, headers, and body framing (Content-Length, chunked, or
// close-delimited) layered over any bucket.Bucket source. It never blocks —
// every operation either makes progress or returns bucket.StatusAgain/
// StatusWaitConn for the caller's event loop to retry.
package httpresponse

import (
	"strconv"
	"strings"

	"github.com/bucketpipe/bucketpipe/pkg/bucket"
	"github.com/bucketpipe/bucketpipe/pkg/errors"
)

// State is the response bucket's position in the wire-format state machine
// (STATUS_LINE -> HEADERS -> BODY -> [TRAILERS] -> DONE).
type State int

const (
	StateStatusLine State = iota
	StateHeaders
	StateBody
	StateTrailers
	StateDone
)

// Framing identifies how the body's end is determined, chosen once the
// headers are fully read.
type Framing int

const (
	FramingUnknown Framing = iota
	FramingContentLength
	FramingChunked
	FramingCloseDelimited
)

// maxHeaderBlockBytes bounds the total size of the status line + header
// block, matching the teacher's readHeaders safeguard (pkg/client's
// maxHeaderBytes), to keep a hostile or broken server from growing an
// unbounded headers accumulation.
const maxHeaderBlockBytes = 64 * 1024

// ResponseBucket parses one HTTP/1.x response off src and, once headers are
// read, presents the framed body through the same bucket.Bucket contract —
// Read/Readline/Peek/ReadIovec delegate through whichever framing mode the
// headers selected.
type ResponseBucket struct {
	src   bucket.Bucket
	state State

	headerBytesSeen int
	lastHeaderName  string // tracks the most recent field, for RFC 7230 §3.2.4 continuation lines

	HTTPVersion string // raw wire form, e.g. "HTTP/1.1"
	Version     int    // major*1000+minor, per spec.md §4.7/§6
	StatusCode  int
	Reason      string
	Headers     *bucket.HeadersBucket

	framing       Framing
	contentLength int64
	remaining     int64 // bytes left to deliver for Content-Length framing
	closeOnDone   bool  // Connection: close seen, informational only

	chunk chunkState

	cfg       bucket.Config
	destroyed bool
}

// NewResponseBucket wraps src, which must already speak the bucket.Bucket
// protocol (a DataBuf over a raw socket, or the plaintext side of a TLS
// bucket pair).
func NewResponseBucket(src bucket.Bucket) *ResponseBucket {
	return &ResponseBucket{
		src:     src,
		state:   StateStatusLine,
		Headers: bucket.NewHeadersBucket(),
	}
}

// GetStatus drives the parser through the status line. Call it until it
// returns bucket.StatusOK; AGAIN/WAIT_CONN mean the caller should retry
// once more data is available on the underlying transport.
func (r *ResponseBucket) GetStatus() (bucket.Status, error) {
	if r.destroyed {
		return bucket.StatusError, errors.NewBucketError("get_status", "response bucket already destroyed")
	}
	if r.state != StateStatusLine {
		return bucket.StatusOK, nil
	}

	line, found, status, err := r.src.Readline(bucket.MaskCRLF)
	if err != nil {
		return bucket.StatusError, err
	}
	switch status {
	case bucket.StatusAgain, bucket.StatusWaitConn:
		return status, nil
	case bucket.StatusEOF:
		if found == bucket.FoundNone {
			return bucket.StatusError, errors.ErrTruncatedResponse
		}
	}

	r.headerBytesSeen += len(line)
	if err := r.parseStatusLine(trimCRLF(line)); err != nil {
		return bucket.StatusError, err
	}
	r.state = StateHeaders
	return bucket.StatusOK, nil
}

// parseHTTPVersion matches the literal pattern HTTP/D.D, where each D is a
// single decimal digit (spec.md §4.7), and returns major*1000+minor
// (spec.md §4.7/§6). "HTTP/x.y" or "HTTP/11.0" are both rejected, not just
// anything with an "HTTP/" prefix.
func parseHTTPVersion(s string) (int, bool) {
	if len(s) != 8 || s[:5] != "HTTP/" || s[6] != '.' {
		return 0, false
	}
	major, minor := s[5], s[7]
	if major < '0' || major > '9' || minor < '0' || minor > '9' {
		return 0, false
	}
	return int(major-'0')*1000 + int(minor-'0'), true
}

func (r *ResponseBucket) parseStatusLine(line []byte) error {
	s := string(line)
	parts := strings.SplitN(s, " ", 3)
	if len(parts) < 2 {
		return errors.ErrBadResponse
	}
	version, ok := parseHTTPVersion(parts[0])
	if !ok {
		return errors.ErrBadResponse
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil || code < 100 || code > 599 {
		return errors.ErrBadResponse
	}
	r.HTTPVersion = parts[0]
	r.Version = version
	r.StatusCode = code
	if len(parts) == 3 {
		r.Reason = parts[2]
	}
	return nil
}

// WaitForHeaders drives the parser through the header block, including
// RFC 7230 §3.2.4 continuation lines. Like GetStatus, it is non-blocking:
// call it again on AGAIN/WAIT_CONN. Once it returns StatusOK, GetHeaders
// returns the complete set and the framing mode for the body is chosen.
func (r *ResponseBucket) WaitForHeaders() (bucket.Status, error) {
	if r.destroyed {
		return bucket.StatusError, errors.NewBucketError("wait_for_headers", "response bucket already destroyed")
	}
	if r.state == StateStatusLine {
		status, err := r.GetStatus()
		if err != nil || status != bucket.StatusOK {
			return status, err
		}
	}
	if r.state != StateHeaders {
		return bucket.StatusOK, nil
	}

	for {
		line, found, status, err := r.src.Readline(bucket.MaskCRLF)
		if err != nil {
			return bucket.StatusError, err
		}
		switch status {
		case bucket.StatusAgain, bucket.StatusWaitConn:
			return status, nil
		case bucket.StatusEOF:
			if found == bucket.FoundNone {
				return bucket.StatusError, errors.ErrTruncatedResponse
			}
		}

		r.headerBytesSeen += len(line)
		if r.headerBytesSeen > maxHeaderBlockBytes {
			return bucket.StatusError, errors.NewParseError("header", "header block exceeds maximum size", nil)
		}

		trimmed := trimCRLF(line)
		if len(trimmed) == 0 {
			// Blank line: headers are complete.
			r.chooseFraming()
			r.state = StateBody
			return bucket.StatusOK, nil
		}

		if trimmed[0] == ' ' || trimmed[0] == '\t' {
			// Continuation of the previous header's value.
			if r.lastHeaderName == "" {
				continue
			}
			r.appendContinuation(strings.TrimSpace(string(trimmed)))
			continue
		}

		name, value, ok := splitHeaderLine(trimmed)
		if !ok {
			return bucket.StatusError, errors.ErrBadHeader
		}
		r.Headers.Set(name, value)
		r.lastHeaderName = name
	}
}

func (r *ResponseBucket) appendContinuation(extra string) {
	cur, _ := r.Headers.Get(r.lastHeaderName)
	r.Headers.Del(r.lastHeaderName)
	r.Headers.Set(r.lastHeaderName, cur+extra)
}

func splitHeaderLine(line []byte) (name, value string, ok bool) {
	idx := -1
	for i, b := range line {
		if b == ':' {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return "", "", false
	}
	name = strings.TrimSpace(string(line[:idx]))
	value = strings.TrimSpace(string(line[idx+1:]))
	return name, value, true
}

func trimCRLF(line []byte) []byte {
	n := len(line)
	if n >= 2 && line[n-2] == '\r' && line[n-1] == '\n' {
		return line[:n-2]
	}
	if n >= 1 && (line[n-1] == '\n' || line[n-1] == '\r') {
		return line[:n-1]
	}
	return line
}

// chooseFraming selects the body framing mode per RFC 7230 §3.3.3,
// mirroring the teacher's readBody dispatch (Transfer-Encoding wins over
// Content-Length, which wins over close-delimited).
func (r *ResponseBucket) chooseFraming() {
	te, _ := r.Headers.Get("Transfer-Encoding")
	cl, hasCL := r.Headers.Get("Content-Length")
	conn, _ := r.Headers.Get("Connection")
	r.closeOnDone = strings.EqualFold(strings.TrimSpace(conn), "close")

	switch {
	case strings.Contains(strings.ToLower(te), "chunked"):
		r.framing = FramingChunked
		r.chunk = chunkState{phase: chunkPhaseSize}
	case hasCL:
		n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err != nil || n < 0 {
			// An unparsable Content-Length is framing ambiguity; fall
			// back to close-delimited rather than guessing a length.
			r.framing = FramingCloseDelimited
			return
		}
		r.framing = FramingContentLength
		r.contentLength = n
		r.remaining = n
	default:
		r.framing = FramingCloseDelimited
	}

	// Responses with no body per RFC 9110 §6.4.1 (1xx/204/304) have a
	// zero-length body regardless of what Content-Length/chunked claims.
	if r.StatusCode == 204 || r.StatusCode == 304 || (r.StatusCode >= 100 && r.StatusCode < 200) {
		r.framing = FramingContentLength
		r.contentLength = 0
		r.remaining = 0
	}
}

// Read implements bucket.Bucket, delegating through whichever framing mode
// chooseFraming selected.
func (r *ResponseBucket) Read(max int) ([]byte, bucket.Status, error) {
	if r.destroyed {
		return nil, bucket.StatusEOF, nil
	}
	if r.state == StateDone {
		return nil, bucket.StatusEOF, nil
	}
	if r.state != StateBody && r.state != StateTrailers {
		return nil, bucket.StatusError, errors.NewBucketError("read", "headers not yet fully read")
	}

	switch r.framing {
	case FramingContentLength:
		return r.readContentLength(max)
	case FramingChunked:
		return r.readChunked(max)
	default:
		return r.readCloseDelimited(max)
	}
}

func (r *ResponseBucket) readContentLength(max int) ([]byte, bucket.Status, error) {
	if r.remaining <= 0 {
		r.state = StateDone
		return nil, bucket.StatusEOF, nil
	}
	want := max
	if want == bucket.AllAvail || int64(want) > r.remaining {
		want = int(r.remaining)
	}
	data, status, err := r.src.Read(want)
	if err != nil {
		return nil, bucket.StatusError, err
	}
	if status == bucket.StatusEOF && len(data) == 0 {
		// The transport ended before Content-Length bytes arrived: this
		// is always a truncated response, never a clean EOF (spec.md §6).
		r.state = StateDone
		return nil, bucket.StatusError, errors.ErrTruncatedResponse
	}
	r.remaining -= int64(len(data))
	if r.remaining <= 0 {
		r.state = StateDone
		return data, bucket.StatusOK, nil
	}
	return data, bucket.StatusOK, nil
}

func (r *ResponseBucket) readCloseDelimited(max int) ([]byte, bucket.Status, error) {
	data, status, err := r.src.Read(max)
	if err != nil {
		return nil, bucket.StatusError, err
	}
	if status == bucket.StatusEOF {
		r.state = StateDone
		return data, bucket.StatusEOF, nil
	}
	return data, status, nil
}

// Readline implements bucket.Bucket by delegating to the underlying source,
// which is occasionally useful for line-oriented body formats (e.g. a
// caller that knows the body is itself CRLF-delimited text) but otherwise
// not used by the framing logic above.
func (r *ResponseBucket) Readline(mask bucket.LineMask) ([]byte, bucket.Found, bucket.Status, error) {
	if r.destroyed || r.state == StateDone {
		return nil, bucket.FoundNone, bucket.StatusEOF, nil
	}
	return r.src.Readline(mask)
}

// Peek implements bucket.Bucket, clamping to the remaining framed length
// so a caller never observes bytes belonging to a pipelined next response.
func (r *ResponseBucket) Peek() ([]byte, bucket.Status, error) {
	if r.destroyed || r.state == StateDone {
		return nil, bucket.StatusEOF, nil
	}
	data, status, err := r.src.Peek()
	if err != nil {
		return nil, bucket.StatusError, err
	}
	if r.framing == FramingContentLength && int64(len(data)) > r.remaining {
		data = data[:r.remaining]
	}
	if r.framing == FramingChunked && int64(len(data)) > r.chunk.remaining && r.chunk.phase == chunkPhaseData {
		data = data[:r.chunk.remaining]
	}
	return data, status, nil
}

// ReadIovec implements bucket.Bucket via repeated Read.
func (r *ResponseBucket) ReadIovec(maxBytes, maxVecs int) ([][]byte, int, bucket.Status, error) {
	return bucket.DefaultReadIovec(r, maxBytes, maxVecs)
}

// Destroy implements bucket.Bucket.
func (r *ResponseBucket) Destroy() {
	if r.src != nil {
		r.src.Destroy()
	}
	r.destroyed = true
}

// SetConfig implements bucket.Bucket, storing cfg on the response bucket
// and forwarding it to the underlying source.
func (r *ResponseBucket) SetConfig(cfg bucket.Config) {
	r.cfg = cfg
	r.src.SetConfig(cfg)
}

// BecomeAggregate flattens the parsed status line, headers, and whatever
// remains of the body back into a single bucket.AggregateBucket — for a
// caller that has read and inspected the structured response (status code,
// selected headers) but now wants to relay the rest of the message
// verbatim, e.g. forwarding it to another connection, rather than continue
// reading it through framing-aware Read calls.
func (r *ResponseBucket) BecomeAggregate() *bucket.AggregateBucket {
	agg := bucket.NewAggregateBucket()
	statusLine := r.HTTPVersion + " " + strconv.Itoa(r.StatusCode)
	if r.Reason != "" {
		statusLine += " " + r.Reason
	}
	agg.Append(bucket.NewSimpleBucket([]byte(statusLine+"\r\n"), bucket.Copy))
	agg.Append(r.Headers)
	if r.state != StateDone {
		agg.Append(r.src)
	}
	r.destroyed = true
	r.state = StateDone
	return agg
}

var _ bucket.Bucket = (*ResponseBucket)(nil)
