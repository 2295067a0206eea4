package bucket

import (
	"bytes"
	"errors"
	"testing"
)

func TestMockBucketReplaysStepsInOrder(t *testing.T) {
	m := NewMockBucketFromStrings("foo", "bar")

	data1, status1, _ := m.Read(AllAvail)
	if !bytes.Equal(data1, []byte("foo")) || status1 != StatusOK {
		t.Fatalf("got %q/%v", data1, status1)
	}
	data2, status2, _ := m.Read(AllAvail)
	if !bytes.Equal(data2, []byte("bar")) || status2 != StatusOK {
		t.Fatalf("got %q/%v", data2, status2)
	}
	_, status3, _ := m.Read(AllAvail)
	if status3 != StatusEOF {
		t.Fatalf("expected EOF, got %v", status3)
	}
}

func TestMockBucketPropagatesScriptedError(t *testing.T) {
	sentinel := errors.New("boom")
	m := NewMockBucket(MockStep{Err: sentinel})

	_, status, err := m.Read(AllAvail)
	if status != StatusError {
		t.Fatalf("expected StatusError, got %v", status)
	}
	if err != sentinel {
		t.Fatalf("expected scripted error to propagate, got %v", err)
	}
}

func TestMockBucketMaxSplitsStepData(t *testing.T) {
	m := NewMockBucket(MockStep{Data: []byte("abcdef"), Status: StatusEOF})

	first, status, _ := m.Read(3)
	if !bytes.Equal(first, []byte("abc")) || status != StatusOK {
		t.Fatalf("got %q/%v", first, status)
	}
	rest, status2, _ := m.Read(AllAvail)
	if !bytes.Equal(rest, []byte("def")) || status2 != StatusEOF {
		t.Fatalf("expected remaining data tagged with the step's terminal status, got %q/%v", rest, status2)
	}
}

func TestMockBucketReadlineViaSharedLineBuffer(t *testing.T) {
	m := NewMockBucket(
		MockStep{Data: []byte("HTTP/1.1 200 OK\r\n"), Status: StatusOK},
		MockStep{Status: StatusEOF},
	)

	line, found, status, err := m.Readline(MaskCRLF)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found != FoundCRLF || status != StatusOK {
		t.Fatalf("got found=%v status=%v", found, status)
	}
	if !bytes.Equal(line, []byte("HTTP/1.1 200 OK\r\n")) {
		t.Fatalf("got %q", line)
	}
}
