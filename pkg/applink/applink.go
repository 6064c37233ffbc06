package applink

import (
	"net/http"
	"time"

	"github.com/Abraxas-365/bifrost/pkg/errx"
	"github.com/Abraxas-365/bifrost/pkg/kernel"
)

// Role is the per-tenant role an account holds through its AppLink.
type Role string

const (
	RoleGuest       Role = "guest"
	RoleBanned      Role = "banned"
	RoleUser        Role = "user"
	RolePremiumUser Role = "premium_user"
	RoleAdmin       Role = "admin"
	RoleSuperAdmin  Role = "super_admin"
	RoleOwner       Role = "owner"

	// RoleHeimdall is the cross-tenant super-role. It is never stored on an
	// AppLink row; it exists only as an actor rank.
	RoleHeimdall Role = "heimdall"
)

// rank is the single permission table. All call sites go through CanAssign
// instead of comparing role strings themselves.
var rank = map[Role]int{
	RoleGuest:       0,
	RoleBanned:      0,
	RoleUser:        0,
	RolePremiumUser: 0,
	RoleAdmin:       1,
	RoleSuperAdmin:  2,
	RoleOwner:       3,
	RoleHeimdall:    4,
}

// Known reports whether r is a recognized role.
func Known(r Role) bool {
	_, ok := rank[r]
	return ok
}

// Rank returns the numeric rank of a role. Unknown roles rank lowest.
func Rank(r Role) int {
	return rank[r]
}

// CanAssign decides whether an actor may set a target's role. The actor may
// not mutate a target whose current rank is at or above its own, and may not
// assign a role at or above its own rank. Heimdall is unconstrained.
// targetCurrent is empty when the target has no link yet.
func CanAssign(actor, targetCurrent, requested Role) error {
	if actor == RoleHeimdall {
		return nil
	}
	if targetCurrent != "" && Rank(targetCurrent) >= Rank(actor) {
		return ErrInsufficientRank().WithDetail("target_role", string(targetCurrent))
	}
	if Rank(requested) >= Rank(actor) {
		return ErrInsufficientRank().WithDetail("requested_role", string(requested))
	}
	return nil
}

// Duration tokens accepted by grants.
const (
	DurationOneMonth   = "1m"
	DurationThreeMonth = "3m"
	DurationSixMonth   = "6m"
	DurationOneYear    = "1y"
	DurationLifetime   = "lifetime"
)

// ExpiryChange is the tri-state expiry mutation attached to a grant: leave
// the stored expiry alone, clear it, or set an absolute timestamp.
type ExpiryChange struct {
	Clear bool
	At    *time.Time
}

// ExpiryFor translates a duration token into an ExpiryChange. An empty token
// leaves any existing expiry untouched.
func ExpiryFor(duration string, now time.Time) (ExpiryChange, error) {
	switch duration {
	case "":
		return ExpiryChange{}, nil
	case DurationLifetime:
		return ExpiryChange{Clear: true}, nil
	case DurationOneMonth:
		t := now.AddDate(0, 0, 30)
		return ExpiryChange{At: &t}, nil
	case DurationThreeMonth:
		t := now.AddDate(0, 0, 90)
		return ExpiryChange{At: &t}, nil
	case DurationSixMonth:
		t := now.AddDate(0, 0, 180)
		return ExpiryChange{At: &t}, nil
	case DurationOneYear:
		t := now.AddDate(0, 0, 365)
		return ExpiryChange{At: &t}, nil
	default:
		return ExpiryChange{}, ErrRegistry.NewWithMessage(CodeUnknownDuration, "Unknown duration token: "+duration)
	}
}

// Link is the (account, application) authorization edge.
type Link struct {
	AccountID    kernel.AccountID `db:"account_id" json:"account_id"`
	AppID        kernel.AppID     `db:"app_id" json:"app_id"`
	Role         Role             `db:"role" json:"role"`
	ExpiresAt    *time.Time       `db:"expires_at" json:"expires_at,omitempty"`
	LinkedAt     time.Time        `db:"linked_at" json:"linked_at"`
	LastActivity time.Time        `db:"last_activity" json:"last_activity"`
}

// IsExpired reports whether the grant has a past expiry.
func (l *Link) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}

// Effective is the role as seen by callers: a Role value, Expired, or
// Unlinked when no row exists.
type Effective string

const (
	EffectiveExpired  Effective = "expired"
	EffectiveUnlinked Effective = ""
)

// RoleChange describes a mutation of a link. Mutating operations return it
// so the caller decides which event to emit; the ledger itself never fires
// webhooks.
type RoleChange struct {
	AccountID kernel.AccountID
	AppID     kernel.AppID
	OldRole   Role // empty on first link
	NewRole   string
	Reason    string
}

// NewRole values that are not roles.
const RoleRemoved = "removed"

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("APPLINK")

var (
	CodeLinkNotFound     = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Account is not linked to this application")
	CodeInsufficientRank = ErrRegistry.Register("INSUFFICIENT_RANK", errx.TypeAuthorization, http.StatusForbidden, "Actor rank does not permit this role change")
	CodeSelfRemovalOnly  = ErrRegistry.Register("SELF_REMOVAL_ONLY", errx.TypeAuthorization, http.StatusForbidden, "Verified users can only be removed by themselves")
	CodeUnknownRole      = ErrRegistry.Register("UNKNOWN_ROLE", errx.TypeValidation, http.StatusBadRequest, "Unknown role")
	CodeUnknownDuration  = ErrRegistry.Register("UNKNOWN_DURATION", errx.TypeValidation, http.StatusBadRequest, "Unknown duration token")
)

func ErrLinkNotFound() *errx.Error     { return ErrRegistry.New(CodeLinkNotFound) }
func ErrInsufficientRank() *errx.Error { return ErrRegistry.New(CodeInsufficientRank) }
func ErrSelfRemovalOnly() *errx.Error  { return ErrRegistry.New(CodeSelfRemovalOnly) }
func ErrUnknownRole() *errx.Error      { return ErrRegistry.New(CodeUnknownRole) }
