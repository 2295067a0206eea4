package httpresponse

import (
	"strconv"
	"strings"

	"github.com/bucketpipe/bucketpipe/pkg/bucket"
	"github.com/bucketpipe/bucketpipe/pkg/errors"
)

type chunkPhase int

const (
	chunkPhaseSize chunkPhase = iota
	chunkPhaseData
	chunkPhaseCRLF
	chunkPhaseTrailers
	chunkPhaseDone
)

// chunkState tracks progress through RFC 7230 §4.1's chunked transfer
// coding across however many non-blocking Read calls it takes to drain one
// chunk. remaining is the number of chunk-data bytes left to deliver for
// the chunk currently being read.
type chunkState struct {
	phase     chunkPhase
	remaining int64
}

// readChunked implements the chunked-decoding half of Read. Each call
// advances as far as it can without blocking; AGAIN from the underlying
// source pauses mid-chunk exactly where it left off, resumed by the next
// call.
func (r *ResponseBucket) readChunked(max int) ([]byte, bucket.Status, error) {
	for {
		switch r.chunk.phase {
		case chunkPhaseSize:
			line, found, status, err := r.src.Readline(bucket.MaskCRLF)
			if err != nil {
				return nil, bucket.StatusError, err
			}
			switch status {
			case bucket.StatusAgain, bucket.StatusWaitConn:
				return nil, status, nil
			case bucket.StatusEOF:
				if found == bucket.FoundNone {
					return nil, bucket.StatusError, errors.ErrTruncatedResponse
				}
			}
			size, ok := parseChunkSizeLine(trimCRLF(line))
			if !ok {
				return nil, bucket.StatusError, errors.ErrTruncatedResponse
			}
			if size == 0 {
				r.chunk.phase = chunkPhaseTrailers
				continue
			}
			r.chunk.remaining = size
			r.chunk.phase = chunkPhaseData
			continue

		case chunkPhaseData:
			want := max
			if want == bucket.AllAvail || int64(want) > r.chunk.remaining {
				want = int(r.chunk.remaining)
			}
			data, status, err := r.src.Read(want)
			if err != nil {
				return nil, bucket.StatusError, err
			}
			if len(data) == 0 {
				if status == bucket.StatusEOF {
					return nil, bucket.StatusError, errors.ErrTruncatedResponse
				}
				// AGAIN/WAIT_CONN with no bytes yet: nothing to deliver,
				// resume at the same phase next call.
				return nil, status, nil
			}
			r.chunk.remaining -= int64(len(data))
			if r.chunk.remaining <= 0 {
				r.chunk.phase = chunkPhaseCRLF
			}
			return data, bucket.StatusOK, nil

		case chunkPhaseCRLF:
			line, found, status, err := r.src.Readline(bucket.MaskCRLF)
			if err != nil {
				return nil, bucket.StatusError, err
			}
			switch status {
			case bucket.StatusAgain, bucket.StatusWaitConn:
				return nil, status, nil
			case bucket.StatusEOF:
				if found == bucket.FoundNone {
					return nil, bucket.StatusError, errors.ErrTruncatedResponse
				}
			}
			if len(trimCRLF(line)) != 0 {
				return nil, bucket.StatusError, errors.ErrTruncatedResponse
			}
			r.chunk.phase = chunkPhaseSize
			continue

		case chunkPhaseTrailers:
			line, found, status, err := r.src.Readline(bucket.MaskCRLF)
			if err != nil {
				return nil, bucket.StatusError, err
			}
			switch status {
			case bucket.StatusAgain, bucket.StatusWaitConn:
				return nil, status, nil
			case bucket.StatusEOF:
				if found == bucket.FoundNone {
					return nil, bucket.StatusError, errors.ErrTruncatedResponse
				}
			}
			trimmed := trimCRLF(line)
			if len(trimmed) == 0 {
				r.chunk.phase = chunkPhaseDone
				r.state = StateDone
				return nil, bucket.StatusEOF, nil
			}
			name, value, ok := splitHeaderLine(trimmed)
			if ok {
				// spec.md §4.8: trailing headers merge into the response's
				// own header map, not a separate surface.
				r.Headers.Set(name, value)
			}
			continue

		case chunkPhaseDone:
			return nil, bucket.StatusEOF, nil
		}
	}
}

// parseChunkSizeLine parses a chunk-size line, tolerating and discarding
// chunk extensions (";name=value" pairs) per RFC 7230 §4.1.1 — the Open
// Question resolution in SPEC_FULL.md: anything after ';' is ignored
// wholesale rather than validated.
func parseChunkSizeLine(line []byte) (int64, bool) {
	s := string(line)
	if idx := strings.IndexByte(s, ';'); idx >= 0 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 16, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
