package bucket

import (
	"bytes"
	"testing"
)

func TestAggregateBucketDrainsChildrenInOrder(t *testing.T) {
	a := NewAggregateBucket(
		NewSimpleBucket([]byte("foo"), Borrowed),
		NewSimpleBucket([]byte("bar"), Borrowed),
	)

	var got []byte
	for {
		data, status, err := a.Read(AllAvail)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, data...)
		if status == StatusEOF {
			break
		}
	}
	if !bytes.Equal(got, []byte("foobar")) {
		t.Fatalf("got %q, want %q", got, "foobar")
	}
}

func TestAggregateBucketEOFTransparentAcrossChildren(t *testing.T) {
	a := NewAggregateBucket(
		NewSimpleBucket([]byte(""), Borrowed),
		NewSimpleBucket([]byte("only"), Borrowed),
	)

	data, status, err := a.Read(AllAvail)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusOK {
		t.Fatalf("expected the empty first child's EOF to be transparent, got %v", status)
	}
	if !bytes.Equal(data, []byte("only")) {
		t.Fatalf("got %q, want %q", data, "only")
	}
}

func TestAggregateBucketAppendPrepend(t *testing.T) {
	a := NewAggregateBucket(NewSimpleBucket([]byte("middle"), Borrowed))
	a.Append(NewSimpleBucket([]byte("end"), Borrowed))
	a.Prepend(NewSimpleBucket([]byte("start"), Borrowed))

	var got []byte
	for {
		data, status, _ := a.Read(AllAvail)
		got = append(got, data...)
		if status == StatusEOF {
			break
		}
	}
	if !bytes.Equal(got, []byte("startmiddleend")) {
		t.Fatalf("got %q, want %q", got, "startmiddleend")
	}
}

func TestAggregateBucketEmptyReportsEOF(t *testing.T) {
	a := NewAggregateBucket()
	if !a.Empty() {
		t.Fatalf("expected Empty() to be true for a fresh aggregate")
	}
	_, status, _ := a.Read(AllAvail)
	if status != StatusEOF {
		t.Fatalf("expected EOF from an empty aggregate, got %v", status)
	}
}

func TestAggregateBucketDestroyDestroysChildren(t *testing.T) {
	child := NewSimpleBucket([]byte("x"), Borrowed)
	a := NewAggregateBucket(child)
	a.Destroy()

	if _, status, _ := child.Read(1); status != StatusEOF {
		t.Fatalf("expected child to be destroyed (EOF), got %v", status)
	}
}
