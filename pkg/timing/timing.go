// Package timing measures how long each phase of driving one bucket
// pipeline to completion takes: dialing the socket, negotiating TLS (when
// present), and waiting for the first byte of the parsed response.
package timing

import (
	"fmt"
	"time"
)

// Metrics is the timing breakdown for one pipeline run, phase by phase.
type Metrics struct {
	// TCPConnect is the time spent establishing the underlying socket
	// (internal/socketsource's dial, proxy tunnel included).
	TCPConnect time.Duration

	// TLSHandshake is the time spent driving pkg/tlsbucket's Context
	// through its handshake; zero for a plaintext pipeline.
	TLSHandshake time.Duration

	// TTFB is the time spent waiting for the parsed response's status
	// line to become ready once the plaintext side is readable.
	TTFB time.Duration

	// TotalTime is the wall time from NewTimer to GetMetrics.
	TotalTime time.Duration
}

// Timer marks the start/end of each pipeline phase as it happens.
type Timer struct {
	start     time.Time
	tcpStart  time.Time
	tcpEnd    time.Time
	tlsStart  time.Time
	tlsEnd    time.Time
	ttfbStart time.Time
	ttfbEnd   time.Time
}

// NewTimer starts a timing session for one pipeline run.
func NewTimer() *Timer {
	return &Timer{
		start: time.Now(),
	}
}

// StartTCP marks the beginning of the socket dial.
func (t *Timer) StartTCP() {
	t.tcpStart = time.Now()
}

// EndTCP marks the socket as connected.
func (t *Timer) EndTCP() {
	t.tcpEnd = time.Now()
}

// StartTLS marks the beginning of the TLS handshake pump loop.
func (t *Timer) StartTLS() {
	t.tlsStart = time.Now()
}

// EndTLS marks the handshake as complete (application data flowing).
func (t *Timer) EndTLS() {
	t.tlsEnd = time.Now()
}

// StartTTFB marks when the caller starts polling for the response status
// line.
func (t *Timer) StartTTFB() {
	t.ttfbStart = time.Now()
}

// EndTTFB marks when the status line became ready.
func (t *Timer) EndTTFB() {
	t.ttfbEnd = time.Now()
}

// GetMetrics computes the elapsed duration of each phase that was marked.
// A phase whose Start/End were never called stays zero.
func (t *Timer) GetMetrics() Metrics {
	metrics := Metrics{
		TotalTime: time.Since(t.start),
	}

	if !t.tcpStart.IsZero() && !t.tcpEnd.IsZero() {
		metrics.TCPConnect = t.tcpEnd.Sub(t.tcpStart)
	}
	if !t.tlsStart.IsZero() && !t.tlsEnd.IsZero() {
		metrics.TLSHandshake = t.tlsEnd.Sub(t.tlsStart)
	}
	if !t.ttfbStart.IsZero() && !t.ttfbEnd.IsZero() {
		metrics.TTFB = t.ttfbEnd.Sub(t.ttfbStart)
	}

	return metrics
}

// GetConnectionTime returns the time spent before the pipeline had any
// plaintext to parse (socket dial plus TLS handshake, if any).
func (m Metrics) GetConnectionTime() time.Duration {
	return m.TCPConnect + m.TLSHandshake
}

// String renders the breakdown the way cmd/bucketpipe-fetch reports it
// alongside connection metadata.
func (m Metrics) String() string {
	return fmt.Sprintf("TCPConnect: %v, TLSHandshake: %v, TTFB: %v, TotalTime: %v",
		m.TCPConnect, m.TLSHandshake, m.TTFB, m.TotalTime)
}
