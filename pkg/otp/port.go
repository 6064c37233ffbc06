package otp

import (
	"context"
	"time"
)

// Repository stores verification codes with a hard TTL.
//
// Save replaces any live record for the same (identifier, channel) pair so at
// most one code is valid per flow at a time. Deep-link records are keyed by
// their token and do not displace each other.
//
// Consume operations atomically find-and-delete: a matching record is
// returned exactly once, and a second call with the same code fails.
type Repository interface {
	Save(ctx context.Context, rec Record, ttl time.Duration) error
	Consume(ctx context.Context, identifier, channel, code string) (*Record, error)
	ConsumeByID(ctx context.Context, id, code string) (*Record, error)
}

// Mailer delivers a code to the user; transport is out of scope here.
type Mailer interface {
	SendOTP(ctx context.Context, to, code, appName string) error
}
