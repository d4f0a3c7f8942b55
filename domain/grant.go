package domain

import (
	"strings"
	"time"
)

// Grant assigns a role to an actor on a target. At most one grant exists per
// (actor, target, role) key. Inherited is only meaningful on domain targets
// and means the grant also applies to every project the domain owns.
//
// A grant's actor is never validated against the entity store: grants to
// not-yet-created or since-deleted principals are legal and silently inert.
type Grant struct {
	Actor     Actor     `bson:"actor"      json:"actor"`
	Target    Target    `bson:"target"     json:"target"`
	RoleID    string    `bson:"role_id"    json:"role_id"`
	Inherited bool      `bson:"inherited"  json:"inherited"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// Key returns the uniqueness key of the grant. Inherited is deliberately not
// part of the key: the same (actor, target, role) tuple cannot exist both
// inherited and non-inherited.
func (g *Grant) Key() string {
	return GrantKey(g.Actor, g.Target, g.RoleID)
}

// keyEscaper makes the separator unambiguous: actor ids are caller-supplied
// and may themselves contain "/", which would otherwise let two different
// tuples join into the same key.
var keyEscaper = strings.NewReplacer(`\`, `\\`, `/`, `\/`)

// GrantKey builds the uniqueness key for a would-be grant.
func GrantKey(actor Actor, target Target, roleID string) string {
	parts := []string{
		string(actor.Kind), actor.ID,
		string(target.Kind), target.ID,
		roleID,
	}
	for i, p := range parts {
		parts[i] = keyEscaper.Replace(p)
	}
	return strings.Join(parts, "/")
}
