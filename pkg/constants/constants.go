// Package constants defines default timeouts and limits shared across the
// bucket-pipeline packages.
package constants

import "time"

// Connection timeouts. internal/socketsource's dialer uses DefaultConnTimeout;
// nothing in this module references DefaultDNSTimeout.
const (
	DefaultConnTimeout = 10 * time.Second
	DefaultDNSTimeout  = 5 * time.Second
)
