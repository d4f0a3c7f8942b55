package domain

import "time"

// Trust delegates a subset of the trustor's roles on a project to the
// trustee. Roles is a snapshot pinned at creation, not a live reference;
// issuance intersects it with the trustor's current effective roles.
//
// RemainingUses is nil for unlimited use. A trust with zero remaining uses
// or past its expiry behaves as not-found to readers but is not necessarily
// purged from storage at that instant.
type Trust struct {
	ID            string     `bson:"_id"                      json:"id"`
	TrustorUserID string     `bson:"trustor_user_id"          json:"trustor_user_id"`
	TrusteeUserID string     `bson:"trustee_user_id"          json:"trustee_user_id"`
	ProjectID     string     `bson:"project_id"               json:"project_id"`
	Roles         []string   `bson:"roles"                    json:"roles"`
	ExpiresAt     *time.Time `bson:"expires_at,omitempty"     json:"expires_at,omitempty"`
	Impersonation bool       `bson:"impersonation"            json:"impersonation"`
	RemainingUses *int64     `bson:"remaining_uses,omitempty" json:"remaining_uses,omitempty"`
	CreatedAt     time.Time  `bson:"created_at"               json:"created_at"`
}

// Expired reports whether the trust is past its optional expiry.
func (t *Trust) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}

// Exhausted reports whether a use-limited trust has no uses left.
func (t *Trust) Exhausted() bool {
	return t.RemainingUses != nil && *t.RemainingUses <= 0
}

// Available reports whether the trust can still be used at the given
// instant. Exhausted, expired and deleted trusts are all observationally
// equivalent to absent ones.
func (t *Trust) Available(now time.Time) bool {
	return !t.Expired(now) && !t.Exhausted()
}
