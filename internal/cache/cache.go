// Package cache provides the response cache used in front of the provider
// aggregation layer: a small byte-value store contract, an in-process and a
// Redis backend, and the per-capability TTL policy.
package cache

import (
	"context"
	"strings"
	"time"
)

// Cache is the external cache collaborator. Best effort, no transactional
// guarantees. A ttl of zero or less means the entry never expires.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// TTL policy per operation category. Live spot prices and live FX rates are
// never cached; closed trading history is immutable and cached forever.
const (
	TTLIndefinite = time.Duration(0)
	// TTLSearch is short because listings get renamed and delisted. Empty
	// result sets are never cached at all: an empty result may just be a
	// transient upstream failure.
	TTLSearch = 24 * time.Hour
	// TTLProfile: descriptive metadata changes rarely.
	TTLProfile = 30 * 24 * time.Hour
)

// KeyRecord enumerates every request argument that can affect a response
// body. Keys are built from this record rather than ad hoc string
// interpolation so a parameter can never silently go missing from the key.
type KeyRecord struct {
	Op       string
	MIC      string
	Ticker   string
	From     string
	To       string
	Start    string
	End      string
	Time     string
	Adjusted *bool
	Term     string
	ID       string
}

// String renders the record as a stable tagged key.
func (r KeyRecord) String() string {
	var b strings.Builder
	b.WriteString(r.Op)
	field := func(tag, v string) {
		if v != "" {
			b.WriteByte('|')
			b.WriteString(tag)
			b.WriteByte('=')
			b.WriteString(v)
		}
	}
	field("mic", r.MIC)
	field("ticker", r.Ticker)
	field("from", r.From)
	field("to", r.To)
	field("start", r.Start)
	field("end", r.End)
	field("time", r.Time)
	if r.Adjusted != nil {
		if *r.Adjusted {
			field("adjusted", "true")
		} else {
			field("adjusted", "false")
		}
	}
	field("term", r.Term)
	field("id", r.ID)
	return b.String()
}
