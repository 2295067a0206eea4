package bucket

import (
	"bytes"
	"testing"
)

func TestIovecBucketReadAcrossSegments(t *testing.T) {
	b := NewIovecBucket([]byte("abc"), []byte("def"), []byte("ghi"))

	var got []byte
	for {
		data, status, err := b.Read(AllAvail)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, data...)
		if status == StatusEOF {
			break
		}
	}
	if !bytes.Equal(got, []byte("abcdefghi")) {
		t.Fatalf("got %q, want %q", got, "abcdefghi")
	}
}

func TestIovecBucketReadlineSpanningSegments(t *testing.T) {
	b := NewIovecBucket([]byte("part"), []byte("ial\r\nrest"))

	line, found, status, err := b.Readline(MaskCRLF)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found != FoundCRLF || status != StatusOK {
		t.Fatalf("expected FoundCRLF/OK, got %v/%v", found, status)
	}
	if !bytes.Equal(line, []byte("partial\r\n")) {
		t.Fatalf("got %q, want %q", line, "partial\r\n")
	}

	rest, found2, status2, _ := b.Readline(MaskCRLF)
	if found2 != FoundNone || status2 != StatusEOF {
		t.Fatalf("expected FoundNone/EOF for tail, got %v/%v", found2, status2)
	}
	if !bytes.Equal(rest, []byte("rest")) {
		t.Fatalf("got %q, want %q", rest, "rest")
	}
}

func TestIovecBucketReadIovecNative(t *testing.T) {
	b := NewIovecBucket([]byte("one"), []byte("two"), []byte("three"))

	vecs, used, status, err := b.ReadIovec(AllAvail, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusOK {
		t.Fatalf("expected StatusOK, got %v", status)
	}
	if len(vecs) != 2 {
		t.Fatalf("expected 2 vecs (maxVecs cap), got %d", len(vecs))
	}
	if used != 6 {
		t.Fatalf("expected 6 bytes used, got %d", used)
	}
}

func TestIovecBucketSkipsEmptySegments(t *testing.T) {
	b := NewIovecBucket([]byte(""), []byte("x"), nil, []byte("y"))

	data, _, _ := b.Read(AllAvail)
	if !bytes.Equal(data, []byte("x")) {
		t.Fatalf("expected leading empties skipped, got %q", data)
	}
	data2, status, _ := b.Read(AllAvail)
	if !bytes.Equal(data2, []byte("y")) || status != StatusOK {
		t.Fatalf("expected %q/OK, got %q/%v", "y", data2, status)
	}
}
