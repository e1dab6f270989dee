package crawler

import (
	"context"
	"time"
)

// Fetcher fetches a URL with the supplied identity and returns the body plus metadata.
// Non-2xx responses are returned as pages; only transport failures produce an error.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (Page, error)
}

// Sink durably appends emitted records.
type Sink interface {
	Append(ctx context.Context, record EmittedRecord) error
	Close(ctx context.Context) error
}

// IdentityOutcome is reported when an identity is checked back in.
type IdentityOutcome int

// Identity outcomes.
const (
	OutcomeSuccess IdentityOutcome = iota
	OutcomeFailure
)

// IdentityPool hands out request identities with exclusive checkout.
type IdentityPool interface {
	Acquire(ctx context.Context) (*Identity, error)
	Release(identity *Identity, outcome IdentityOutcome)
	Retire(identity *Identity)
}

// RateLimiter blocks until the shared request budget allows another fetch.
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// Pauser injects deliberate delays.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

// Hasher computes digests for fallback record identities.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
