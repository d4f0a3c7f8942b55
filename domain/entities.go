package domain

import "time"

// DefaultDomainID is the id of the domain seeded at store initialization.
// The default domain always exists and is never deletable.
const DefaultDomainID = "default"

// Domain is the top-level ownership scope for projects, users and groups.
type Domain struct {
	ID        string    `bson:"_id"        json:"id"`
	Name      string    `bson:"name"       json:"name"` // unique among domains, case-insensitive
	Enabled   bool      `bson:"enabled"    json:"enabled"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Project is a grant target owned by a domain. Extra carries free-form
// attributes preserved verbatim across create/update.
type Project struct {
	ID        string         `bson:"_id"             json:"id"`
	Name      string         `bson:"name"            json:"name"` // unique within DomainID, case-insensitive
	DomainID  string         `bson:"domain_id"       json:"domain_id"`
	Enabled   bool           `bson:"enabled"         json:"enabled"`
	Extra     map[string]any `bson:"extra,omitempty" json:"extra,omitempty"`
	CreatedAt time.Time      `bson:"created_at"      json:"created_at"`
	UpdatedAt time.Time      `bson:"updated_at"      json:"updated_at"`
}

// User is a grantable principal. PasswordHash is opaque to the core; the
// credential collaborator owns the hashing scheme.
type User struct {
	ID           string         `bson:"_id"             json:"id"`
	Name         string         `bson:"name"            json:"name"` // unique within DomainID
	DomainID     string         `bson:"domain_id"       json:"domain_id"`
	Enabled      bool           `bson:"enabled"         json:"enabled"`
	PasswordHash string         `bson:"password_hash,omitempty" json:"-"`
	Extra        map[string]any `bson:"extra,omitempty" json:"extra,omitempty"`
	CreatedAt    time.Time      `bson:"created_at"      json:"created_at"`
	UpdatedAt    time.Time      `bson:"updated_at"      json:"updated_at"`
}

// Group is a grantable principal whose grants apply to every member user.
type Group struct {
	ID        string    `bson:"_id"               json:"id"`
	Name      string    `bson:"name"              json:"name"` // unique within DomainID
	DomainID  string    `bson:"domain_id"         json:"domain_id"`
	Members   []string  `bson:"members,omitempty" json:"members,omitempty"`
	CreatedAt time.Time `bson:"created_at"        json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"        json:"updated_at"`
}

// Role names an authority. Role names are globally unique, not domain-scoped.
type Role struct {
	ID        string    `bson:"_id"        json:"id"`
	Name      string    `bson:"name"       json:"name"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
