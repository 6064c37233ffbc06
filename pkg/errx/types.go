package errx

// Type categorizes an error for transport-level mapping.
type Type string

const (
	// TypeInternal is an unexpected failure that must not leak internals.
	TypeInternal Type = "INTERNAL"

	// TypeValidation is malformed or missing input.
	TypeValidation Type = "VALIDATION"

	// TypeAuthentication is a failed credential check (bad secret, bad signature).
	TypeAuthentication Type = "AUTHENTICATION"

	// TypeAuthorization is an authenticated caller lacking permission.
	TypeAuthorization Type = "AUTHORIZATION"

	// TypeExpired is a credential or grant past its time-to-live.
	TypeExpired Type = "EXPIRED"

	// TypeNotFound is a missing resource.
	TypeNotFound Type = "NOT_FOUND"

	// TypeConflict is a uniqueness or state collision.
	TypeConflict Type = "CONFLICT"

	// TypeExternal is a failure in an outside collaborator.
	TypeExternal Type = "EXTERNAL"
)

func (t Type) String() string {
	return string(t)
}
