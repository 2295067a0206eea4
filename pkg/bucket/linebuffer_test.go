package bucket

import (
	"bytes"
	"testing"
)

func TestLineBufferSplitAcrossMultipleReads(t *testing.T) {
	src := NewMockBucket(
		MockStep{Data: []byte("GET / HT"), Status: StatusOK},
		MockStep{Data: []byte("TP/1.1\r\n"), Status: StatusOK},
		MockStep{Status: StatusEOF},
	)
	lb := NewLineBuffer(0)

	line, found, status, err := lb.Readline(src, MaskCRLF)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found != FoundCRLF || status != StatusOK {
		t.Fatalf("expected FoundCRLF/OK, got %v/%v", found, status)
	}
	if !bytes.Equal(line, []byte("GET / HTTP/1.1\r\n")) {
		t.Fatalf("got %q", line)
	}
}

func TestLineBufferTwoLinesInOneChunk(t *testing.T) {
	// Regression test: a single underlying step can hold more than one
	// line's worth of data. The second Readline call must resolve out of
	// the rest of that step, without reaching the AGAIN step behind it
	// and stalling the second line.
	src := NewMockBucket(
		MockStep{Data: []byte("line1\r\nline2\r\n"), Status: StatusOK},
		MockStep{Status: StatusAgain},
		MockStep{Status: StatusEOF},
	)
	lb := NewLineBuffer(0)

	l1, f1, s1, err := lb.Readline(src, MaskCRLF)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f1 != FoundCRLF || s1 != StatusOK || !bytes.Equal(l1, []byte("line1\r\n")) {
		t.Fatalf("first line: got %q/%v/%v", l1, f1, s1)
	}

	l2, f2, s2, err := lb.Readline(src, MaskCRLF)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f2 != FoundCRLF || s2 != StatusOK {
		t.Fatalf("second line should resolve from the rest of the first step without blocking, got found=%v status=%v", f2, s2)
	}
	if !bytes.Equal(l2, []byte("line2\r\n")) {
		t.Fatalf("got %q, want %q", l2, "line2\r\n")
	}
}

func TestLineBufferCRLFSplitAcrossReads(t *testing.T) {
	src := NewMockBucket(
		MockStep{Data: []byte("line1\r"), Status: StatusOK},
		MockStep{Data: []byte("\nline2"), Status: StatusOK},
		MockStep{Status: StatusEOF},
	)
	lb := NewLineBuffer(0)

	line, found, status, err := lb.Readline(src, MaskCRLF)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found != FoundCRLF || status != StatusOK {
		t.Fatalf("expected FoundCRLF/OK for CR/LF split across reads, got %v/%v", found, status)
	}
	if !bytes.Equal(line, []byte("line1\r\n")) {
		t.Fatalf("got %q", line)
	}
}

func TestLineBufferTrailingCRAtEOFResolvesImmediately(t *testing.T) {
	src := NewMockBucket(
		MockStep{Data: []byte("trailing\r"), Status: StatusEOF},
	)
	lb := NewLineBuffer(0)

	line, found, status, err := lb.Readline(src, MaskCRLF)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found != FoundCR {
		t.Fatalf("expected FoundCR (not CRLF_SPLIT) when CR is the last byte ever, got %v", found)
	}
	if status != StatusOK {
		t.Fatalf("expected StatusOK, got %v", status)
	}
	if !bytes.Equal(line, []byte("trailing\r")) {
		t.Fatalf("got %q", line)
	}
}

func TestLineBufferAgainThenResume(t *testing.T) {
	src := NewMockBucket(
		MockStep{Status: StatusAgain},
		MockStep{Data: []byte("ready\n"), Status: StatusOK},
		MockStep{Status: StatusEOF},
	)
	lb := NewLineBuffer(0)

	_, found, status, err := lb.Readline(src, MaskCRLF)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusAgain || found != FoundNone {
		t.Fatalf("expected AGAIN/FoundNone on first call, got %v/%v", found, status)
	}

	line, found2, status2, err := lb.Readline(src, MaskCRLF)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found2 != FoundLF || status2 != StatusOK {
		t.Fatalf("expected FoundLF/OK on resume, got %v/%v", found2, status2)
	}
	if !bytes.Equal(line, []byte("ready\n")) {
		t.Fatalf("got %q", line)
	}
}

func TestLineBufferExceedsLimit(t *testing.T) {
	src := NewMockBucket(
		MockStep{Data: bytes.Repeat([]byte("a"), 20), Status: StatusOK},
	)
	lb := NewLineBuffer(10)

	_, _, status, err := lb.Readline(src, MaskCRLF)
	if status != StatusError || err == nil {
		t.Fatalf("expected a line-too-long error, got status=%v err=%v", status, err)
	}
}
