package httpresponse

import (
	"bytes"
	"testing"

	"github.com/bucketpipe/bucketpipe/pkg/bucket"
)

func drainStatusAndHeaders(t *testing.T, r *ResponseBucket) {
	t.Helper()
	if status, err := r.GetStatus(); err != nil || status != bucket.StatusOK {
		t.Fatalf("GetStatus: status=%v err=%v", status, err)
	}
	if status, err := r.WaitForHeaders(); err != nil || status != bucket.StatusOK {
		t.Fatalf("WaitForHeaders: status=%v err=%v", status, err)
	}
}

func TestResponseBucketContentLength(t *testing.T) {
	src := bucket.NewMockBucket(
		bucket.MockStep{Data: []byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello"), Status: bucket.StatusEOF},
	)
	r := NewResponseBucket(src)
	drainStatusAndHeaders(t, r)

	if r.StatusCode != 200 {
		t.Fatalf("expected status code 200, got %d", r.StatusCode)
	}
	if v, _ := r.Headers.Get("Content-Length"); v != "5" {
		t.Fatalf("expected Content-Length 5, got %q", v)
	}

	var body []byte
	for {
		data, status, err := r.Read(bucket.AllAvail)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		body = append(body, data...)
		if status == bucket.StatusEOF {
			break
		}
	}
	if !bytes.Equal(body, []byte("hello")) {
		t.Fatalf("got %q, want %q", body, "hello")
	}
}

func TestResponseBucketChunked(t *testing.T) {
	wire := "HTTP/1.1 200 OK\r\n" +
		"Transfer-Encoding: chunked\r\n\r\n" +
		"5\r\nhello\r\n" +
		"6\r\n world\r\n" +
		"0\r\n\r\n"
	src := bucket.NewMockBucket(bucket.MockStep{Data: []byte(wire), Status: bucket.StatusEOF})
	r := NewResponseBucket(src)
	drainStatusAndHeaders(t, r)

	var body []byte
	for {
		data, status, err := r.Read(bucket.AllAvail)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		body = append(body, data...)
		if status == bucket.StatusEOF {
			break
		}
	}
	if !bytes.Equal(body, []byte("hello world")) {
		t.Fatalf("got %q, want %q", body, "hello world")
	}
}

func TestResponseBucketChunkedWithExtensionAndTrailer(t *testing.T) {
	wire := "HTTP/1.1 200 OK\r\n" +
		"Transfer-Encoding: chunked\r\n\r\n" +
		"3;ignored-ext=1\r\nabc\r\n" +
		"0\r\n" +
		"X-Trailer: present\r\n\r\n"
	src := bucket.NewMockBucket(bucket.MockStep{Data: []byte(wire), Status: bucket.StatusEOF})
	r := NewResponseBucket(src)
	drainStatusAndHeaders(t, r)

	data, status, err := r.Read(bucket.AllAvail)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(data, []byte("abc")) {
		t.Fatalf("got %q", data)
	}
	_, status, err = r.Read(bucket.AllAvail)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != bucket.StatusEOF {
		t.Fatalf("expected EOF, got %v", status)
	}
	if v, ok := r.Headers.Get("X-Trailer"); !ok || v != "present" {
		t.Fatalf("expected trailer merged into Headers as X-Trailer=present, got %q/%v", v, ok)
	}
}

func TestResponseBucketCloseDelimited(t *testing.T) {
	wire := "HTTP/1.1 200 OK\r\nConnection: close\r\n\r\nwhatever remains"
	src := bucket.NewMockBucket(bucket.MockStep{Data: []byte(wire), Status: bucket.StatusEOF})
	r := NewResponseBucket(src)
	drainStatusAndHeaders(t, r)

	var body []byte
	for {
		data, status, err := r.Read(bucket.AllAvail)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		body = append(body, data...)
		if status == bucket.StatusEOF {
			break
		}
	}
	if !bytes.Equal(body, []byte("whatever remains")) {
		t.Fatalf("got %q", body)
	}
}

func TestResponseBucketTruncatedContentLengthIsError(t *testing.T) {
	wire := "HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\nshort"
	src := bucket.NewMockBucket(bucket.MockStep{Data: []byte(wire), Status: bucket.StatusEOF})
	r := NewResponseBucket(src)
	drainStatusAndHeaders(t, r)

	data, status, _ := r.Read(bucket.AllAvail)
	if !bytes.Equal(data, []byte("short")) {
		t.Fatalf("expected partial body to still be delivered, got %q", data)
	}
	if status != bucket.StatusOK {
		t.Fatalf("expected first read to succeed, got %v", status)
	}

	_, status2, err2 := r.Read(bucket.AllAvail)
	if status2 != bucket.StatusError || err2 == nil {
		t.Fatalf("expected a truncation error once bytes run out early, got status=%v err=%v", status2, err2)
	}
}

func TestResponseBucketBadStatusLine(t *testing.T) {
	src := bucket.NewMockBucket(bucket.MockStep{Data: []byte("NOT A STATUS LINE\r\n\r\n"), Status: bucket.StatusEOF})
	r := NewResponseBucket(src)

	status, err := r.GetStatus()
	if status != bucket.StatusError || err == nil {
		t.Fatalf("expected a bad-response error, got status=%v err=%v", status, err)
	}
}

func TestResponseBucketMalformedVersionRejected(t *testing.T) {
	src := bucket.NewMockBucket(bucket.MockStep{Data: []byte("HTTP/x.y 200 OK\r\n\r\n"), Status: bucket.StatusEOF})
	r := NewResponseBucket(src)

	status, err := r.GetStatus()
	if status != bucket.StatusError || err == nil {
		t.Fatalf("expected HTTP/x.y to be rejected as a bad response, got status=%v err=%v", status, err)
	}
}

func TestResponseBucketVersionDecoded(t *testing.T) {
	src := bucket.NewMockBucket(bucket.MockStep{Data: []byte("HTTP/1.1 200 OK\r\n\r\n"), Status: bucket.StatusEOF})
	r := NewResponseBucket(src)
	if _, err := r.GetStatus(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Version != 1001 {
		t.Fatalf("expected version 1001 (major*1000+minor), got %d", r.Version)
	}
}

func TestResponseBucketHeaderContinuation(t *testing.T) {
	wire := "HTTP/1.1 200 OK\r\n" +
		"X-Multi: first\r\n" +
		" continued\r\n" +
		"Content-Length: 0\r\n\r\n"
	src := bucket.NewMockBucket(bucket.MockStep{Data: []byte(wire), Status: bucket.StatusEOF})
	r := NewResponseBucket(src)
	drainStatusAndHeaders(t, r)

	v, ok := r.Headers.Get("X-Multi")
	if !ok || v != "firstcontinued" {
		t.Fatalf("expected continuation joined value, got %q/%v", v, ok)
	}
}

func TestResponseBucketBecomeAggregate(t *testing.T) {
	wire := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello"
	src := bucket.NewMockBucket(bucket.MockStep{Data: []byte(wire), Status: bucket.StatusEOF})
	r := NewResponseBucket(src)
	drainStatusAndHeaders(t, r)

	agg := r.BecomeAggregate()
	var got []byte
	for {
		data, status, err := agg.Read(bucket.AllAvail)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, data...)
		if status == bucket.StatusEOF {
			break
		}
	}
	if !bytes.Contains(got, []byte("HTTP/1.1 200")) {
		t.Fatalf("expected flattened aggregate to contain the status line, got %q", got)
	}
	if !bytes.Contains(got, []byte("hello")) {
		t.Fatalf("expected flattened aggregate to contain the body, got %q", got)
	}
}
