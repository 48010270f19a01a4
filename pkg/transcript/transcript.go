// Package transcript persists finished call transcripts. Two stores are
// provided: a plain-text file store and a Postgres store with schema managed
// by embedded migrations.
package transcript

import (
	"context"
	"time"

	"github.com/vango-go/vai-phone/pkg/call"
)

// Record is one completed call's transcript.
type Record struct {
	CallSID   string
	From      string
	To        string
	StartedAt time.Time
	Duration  time.Duration
	Turns     []call.Turn
}

// Store persists call records. Implementations must be safe for concurrent
// use; calls end independently of each other.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Close() error
}
