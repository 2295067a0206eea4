package bucket

import (
	"bytes"
	"testing"
)

func TestAllocatorGetReturnsRequestedSize(t *testing.T) {
	a := NewAllocator()
	buf := a.Get(100)
	if len(buf) != 100 {
		t.Fatalf("expected length 100, got %d", len(buf))
	}
}

func TestAllocatorGetBeyondChunkSizeAllocatesFresh(t *testing.T) {
	a := NewAllocator()
	buf := a.Get(32 * 1024)
	if len(buf) != 32*1024 {
		t.Fatalf("expected length 32KiB, got %d", len(buf))
	}
}

func TestAllocatorCopyIsIndependent(t *testing.T) {
	a := NewAllocator()
	src := []byte("original")
	cp := a.Copy(src)
	src[0] = 'X'
	if !bytes.Equal(cp, []byte("original")) {
		t.Fatalf("Copy should be unaffected by mutation of src, got %q", cp)
	}
}

func TestAllocatorPutGetRoundTrip(t *testing.T) {
	a := NewAllocator()
	buf := a.Get(defaultChunkSize)
	a.Put(buf)
	reused := a.Get(defaultChunkSize)
	if len(reused) != defaultChunkSize {
		t.Fatalf("expected reused buffer of length %d, got %d", defaultChunkSize, len(reused))
	}
}
