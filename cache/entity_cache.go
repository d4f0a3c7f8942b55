// Package cache provides the read-through entity cache shared by the
// registry and assignment layers. Entries are serialized entities keyed by
// id or name; every mutation path invalidates the affected keys before the
// mutating call returns, so a subsequent read by any caller is fresh.
package cache

import (
	"context"
	"time"
)

//go:generate mockgen -source=$GOFILE -destination=../mocks/mock_cache/mock_entity_cache.go -package=mock_cache

// EntityCache is the thin cache surface consumed by the core. Values are
// opaque serialized bytes; callers own the encoding.
type EntityCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Invalidate(ctx context.Context, key string)
	Clear(ctx context.Context)
}

// Key builders. One namespace per entity kind, with separate id and name
// keys so renames can invalidate both.

func DomainKey(id string) string            { return "domain:id:" + id }
func DomainNameKey(name string) string      { return "domain:name:" + name }
func ProjectKey(id string) string           { return "project:id:" + id }
func ProjectNameKey(dom, name string) string { return "project:name:" + dom + ":" + name }
func UserKey(id string) string              { return "user:id:" + id }
func UserNameKey(dom, name string) string   { return "user:name:" + dom + ":" + name }
func GroupKey(id string) string             { return "group:id:" + id }
func RoleKey(id string) string              { return "role:id:" + id }
func RoleNameKey(name string) string        { return "role:name:" + name }
