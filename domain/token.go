package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// TokenIDHashThreshold is the id length above which tokens are stored and
// revocation-listed under a content hash of the id. JWT- and PKI-shaped ids
// blow past this; plain uuids stay under it. The id handed back to the
// caller is always the un-hashed one.
const TokenIDHashThreshold = 64

// Token is an issued bearer credential. Tokens are immutable after issuance;
// they die by expiry, explicit deletion, or revocation-event coverage.
//
// ProjectID and DomainID are mutually exclusive scopes; both empty means an
// unscoped token. Roles is the effective-role snapshot captured at issuance.
type Token struct {
	ID        string    `bson:"_id"                  json:"id"`
	UserID    string    `bson:"user_id"              json:"user_id"`
	ProjectID string    `bson:"project_id,omitempty" json:"project_id,omitempty"`
	DomainID  string    `bson:"domain_id,omitempty"  json:"domain_id,omitempty"`
	TrustID   string    `bson:"trust_id,omitempty"   json:"trust_id,omitempty"`
	Roles     []string  `bson:"roles,omitempty"      json:"roles,omitempty"`
	IssuedAt  time.Time `bson:"issued_at"            json:"issued_at"`
	ExpiresAt time.Time `bson:"expires_at"           json:"expires_at"`
}

// Expired reports whether the token is past its expiry at the given instant.
// Expiry is enforced lazily at read time; the background sweep only reclaims
// storage.
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// HashTokenID returns the sha256 content hash of a token id, hex encoded.
func HashTokenID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}

// TokenStorageID maps a caller-facing token id to the key it is stored
// under. A long structured id and its content hash resolve to the same
// record: ids above the threshold are keyed by their hash, and presenting
// the hash itself (which sits at exactly 64 hex chars) hits the same key.
func TokenStorageID(id string) string {
	if len(id) > TokenIDHashThreshold {
		return HashTokenID(id)
	}
	return id
}
