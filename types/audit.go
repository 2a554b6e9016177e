package types

import "time"

// AuditKind names the lifecycle change recorded by an AuditEvent.
type AuditKind string

const (
	AuditTokenCreated    AuditKind = "token.created"
	AuditTokenDeleted    AuditKind = "token.deleted"
	AuditTokenExpired    AuditKind = "token.expired"
	AuditUserCreated     AuditKind = "user.created"
	AuditUserDeleted     AuditKind = "user.deleted"
	AuditUserRenamed     AuditKind = "user.renamed"
	AuditUserPermissions AuditKind = "user.permissions"
	AuditPasswordChanged AuditKind = "user.password"
)

// AuditEvent describes a change to users or tokens. Token ids are never
// included; Subject carries the owning username instead.
type AuditEvent struct {
	ID      string            `json:"id"`
	Kind    AuditKind         `json:"kind"`
	Actor   string            `json:"actor,omitempty"`
	Subject string            `json:"subject"`
	Detail  map[string]string `json:"detail,omitempty"`
	At      time.Time         `json:"at"`
}
