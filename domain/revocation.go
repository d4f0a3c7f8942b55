package domain

import (
	"slices"
	"time"
)

// RevocationEvent is a sparse filter over token attributes plus a cutoff
// timestamp. An empty field matches anything; a token is covered when every
// set field matches and the token was issued at or before the cutoff.
// Events are append-only and never mutated.
//
// Domain-level events that stem from inherited grants are pre-expanded to
// per-project events at emission time, so matching stays a flat conjunction.
type RevocationEvent struct {
	ID           string    `bson:"_id"                  json:"id"`
	UserID       string    `bson:"user_id,omitempty"    json:"user_id,omitempty"`
	ProjectID    string    `bson:"project_id,omitempty" json:"project_id,omitempty"`
	DomainID     string    `bson:"domain_id,omitempty"  json:"domain_id,omitempty"`
	RoleID       string    `bson:"role_id,omitempty"    json:"role_id,omitempty"`
	TrustID      string    `bson:"trust_id,omitempty"   json:"trust_id,omitempty"`
	IssuedBefore time.Time `bson:"issued_before"        json:"issued_before"`
	EmittedAt    time.Time `bson:"emitted_at"           json:"emitted_at"`
}

// Covers reports whether the event revokes the given token. The role filter
// matches against the token's role snapshot: a token that carried the role
// at issuance is covered.
func (e *RevocationEvent) Covers(t *Token) bool {
	if t.IssuedAt.After(e.IssuedBefore) {
		return false
	}
	if e.UserID != "" && e.UserID != t.UserID {
		return false
	}
	if e.ProjectID != "" && e.ProjectID != t.ProjectID {
		return false
	}
	if e.DomainID != "" && e.DomainID != t.DomainID {
		return false
	}
	if e.TrustID != "" && e.TrustID != t.TrustID {
		return false
	}
	if e.RoleID != "" && !slices.Contains(t.Roles, e.RoleID) {
		return false
	}
	return true
}
