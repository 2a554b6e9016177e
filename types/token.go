package types

import "time"

const (
	// NoExpiry is the far-future expiry stored for tokens that never expire.
	NoExpiry int64 = 0x7fffffff

	// DefaultTokenReason is stored when a token is minted without a reason.
	DefaultTokenReason = "unspecified"
)

// Token is a bearer credential. The ID is both its identity and its secret.
type Token struct {
	// ID is the random bearer secret.
	ID string `json:"id" db:"id"`

	// Owner is the username of the user the token acts for.
	Owner string `json:"owner" db:"owner"`

	// Permissions is the token-scoped permission list. The effective
	// authority of the token never exceeds its owner's.
	Permissions []Permission `json:"permissions" db:"permissions"`

	// Reason is a free-text audit note.
	Reason string `json:"reason" db:"reason"`

	// Expiry is the unix timestamp (seconds) at which the token stops
	// being valid.
	Expiry int64 `json:"expiry" db:"expiry"`
}

// IsExpired reports whether the token is no longer valid at now.
func (t Token) IsExpired(now time.Time) bool {
	return now.Unix() >= t.Expiry
}

// Grants reports whether the token's own list covers p, honouring the
// admin and superadmin wildcards.
func (t Token) Grants(p Permission) bool {
	if !p.Valid() {
		return false
	}
	return grantsFromList(t.Permissions, p)
}

// HasPermission reports whether the token may exercise p on behalf of
// owner: the token must grant p and owner must currently hold it.
func (t Token) HasPermission(owner User, p Permission) bool {
	if owner.Username != t.Owner {
		return false
	}
	return t.Grants(p) && owner.HasPermission(p)
}

// Scope binds a token to its resolved owner.
type Scope struct {
	Token Token
	Owner User
}

// HasPermission implements Grantor using the intersection of token and
// owner permissions.
func (s Scope) HasPermission(p Permission) bool {
	return s.Token.HasPermission(s.Owner, p)
}

// Missing returns the entries of required that s does not hold.
func (s Scope) Missing(required []Permission) []Permission {
	var missing []Permission
	for _, p := range required {
		if !s.HasPermission(p) {
			missing = append(missing, p)
		}
	}
	return missing
}
