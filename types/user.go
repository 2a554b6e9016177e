package types

// User represents an account in the system. The username is the primary key.
type User struct {
	// Username is the unique, stable identifier of the user.
	Username string `json:"username" db:"username"`

	// PasswordHash stores the derived password hash.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Salt is the per-user salt used when deriving PasswordHash.
	// This field is never exposed in API responses.
	Salt string `json:"-" db:"salt"`

	// Permissions is the explicit permission list of the user. Implicit
	// permissions are not stored here.
	Permissions []Permission `json:"permissions" db:"permissions"`

	// PasswordChangeRequested asks the user to pick a new password on the
	// next sign in.
	PasswordChangeRequested bool `json:"password_change_requested" db:"password_change_requested"`
}

// UserView is the sanitized projection of a User returned to clients.
type UserView struct {
	Username                string       `json:"username"`
	Permissions             []Permission `json:"permissions"`
	PasswordChangeRequested bool         `json:"password_change_requested"`
}

// HasPermission reports whether the user holds p. self:modify and
// token:delete are always held, superadmin implies everything and admin
// implies everything outside the admin exclusions. Anything else requires
// literal membership.
func (u User) HasPermission(p Permission) bool {
	if !p.Valid() {
		return false
	}
	if IsImplicit(p) {
		return true
	}
	return grantsFromList(u.Permissions, p)
}

// View returns the sanitized projection of u.
func (u User) View() UserView {
	perms := u.Permissions
	if perms == nil {
		perms = []Permission{}
	}
	return UserView{
		Username:                u.Username,
		Permissions:             perms,
		PasswordChangeRequested: u.PasswordChangeRequested,
	}
}

// Views sanitizes a list of users.
func Views(users []User) []UserView {
	out := make([]UserView, len(users))
	for i, u := range users {
		out[i] = u.View()
	}
	return out
}
