// Package source defines the inbound message boundary. Transports hand
// the pipeline opaque text plus the upstream-assigned numeric message
// identifier; everything downstream treats them as the raw material for
// extraction.
package source

import "time"

// Message is one raw channel message.
type Message struct {
	ID   int64
	Text string
	Date time.Time
}
