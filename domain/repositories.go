package domain

import (
	"context"
	"time"
)

//go:generate mockgen -source=$GOFILE -destination=../mocks/mock_domain/mock_repositories.go -package=mock_domain

// DomainRepository is the entity store surface for domains.
type DomainRepository interface {
	CreateDomain(ctx context.Context, d *Domain) error
	GetDomainByID(ctx context.Context, id string) (*Domain, error)
	GetDomainByName(ctx context.Context, name string) (*Domain, error)
	UpdateDomain(ctx context.Context, d *Domain) error
	DeleteDomain(ctx context.Context, id string) error
	ListDomains(ctx context.Context) ([]*Domain, error)
}

// ProjectRepository is the entity store surface for projects.
type ProjectRepository interface {
	CreateProject(ctx context.Context, p *Project) error
	GetProjectByID(ctx context.Context, id string) (*Project, error)
	GetProjectByName(ctx context.Context, domainID, name string) (*Project, error)
	UpdateProject(ctx context.Context, p *Project) error
	DeleteProject(ctx context.Context, id string) error
	ListProjectsByDomain(ctx context.Context, domainID string) ([]*Project, error)
}

// UserRepository is the entity store surface for users.
type UserRepository interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByName(ctx context.Context, domainID, name string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	DeleteUser(ctx context.Context, id string) error
	ListUsersByDomain(ctx context.Context, domainID string) ([]*User, error)
}

// GroupRepository is the entity store surface for groups, including the
// membership relation.
type GroupRepository interface {
	CreateGroup(ctx context.Context, g *Group) error
	GetGroupByID(ctx context.Context, id string) (*Group, error)
	GetGroupByName(ctx context.Context, domainID, name string) (*Group, error)
	DeleteGroup(ctx context.Context, id string) error
	ListGroupsByDomain(ctx context.Context, domainID string) ([]*Group, error)

	AddGroupMember(ctx context.Context, groupID, userID string) error
	RemoveGroupMember(ctx context.Context, groupID, userID string) error
	// ListGroupsForUser returns every group the user is a member of. Only
	// user ids held in the members set count; a group sharing the user's id
	// value is unrelated.
	ListGroupsForUser(ctx context.Context, userID string) ([]*Group, error)
	// RemoveUserFromAllGroups drops the user from every membership set,
	// invoked on user deletion.
	RemoveUserFromAllGroups(ctx context.Context, userID string) error
}

// RoleRepository is the entity store surface for roles.
type RoleRepository interface {
	CreateRole(ctx context.Context, r *Role) error
	GetRoleByID(ctx context.Context, id string) (*Role, error)
	GetRoleByName(ctx context.Context, name string) (*Role, error)
	DeleteRole(ctx context.Context, id string) error
	ListRoles(ctx context.Context) ([]*Role, error)
}

// GrantRepository owns assignment records. Create must detect duplicate
// keys atomically (ErrConflict); DeleteByRole must remove every grant of a
// role in one step so readers never observe a partially cleaned state.
type GrantRepository interface {
	CreateGrant(ctx context.Context, g *Grant) error
	DeleteGrant(ctx context.Context, actor Actor, target Target, roleID string) error
	ListGrantsByActorTarget(ctx context.Context, actor Actor, target Target) ([]*Grant, error)
	ListGrantsByActor(ctx context.Context, actor Actor) ([]*Grant, error)
	ListGrantsByRole(ctx context.Context, roleID string) ([]*Grant, error)
	ListGrantsByTarget(ctx context.Context, target Target) ([]*Grant, error)
	DeleteGrantsByRole(ctx context.Context, roleID string) error
	DeleteGrantsByActor(ctx context.Context, actor Actor) error
	DeleteGrantsByTarget(ctx context.Context, target Target) error
}

// TokenRepository stores issued tokens keyed by storage id (see
// TokenStorageID). Get returns ErrTokenNotFound for absent ids; expiry is
// the service's concern.
type TokenRepository interface {
	StoreToken(ctx context.Context, storageID string, t *Token) error
	GetToken(ctx context.Context, storageID string) (*Token, error)
	DeleteToken(ctx context.Context, storageID string) error
	// DeleteTokens removes every token matching userID and, when non-empty,
	// projectID and trustID. Returns the number removed; zero is not an
	// error.
	DeleteTokens(ctx context.Context, userID, projectID, trustID string) (int64, error)
	// DeleteExpiredTokens purges rows with expires_at < now. Storage
	// reclamation only; expired tokens are already invisible to readers.
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// RevocationEventRepository is an append-only log. Append never blocks
// readers; List with a zero since returns all retained events.
type RevocationEventRepository interface {
	AppendEvent(ctx context.Context, e *RevocationEvent) error
	ListEvents(ctx context.Context, since time.Time) ([]*RevocationEvent, error)
	// PruneEvents drops events with issued_before older than the cutoff.
	// Safe once the cutoff exceeds the maximum token TTL.
	PruneEvents(ctx context.Context, olderThan time.Time) (int64, error)
}

// TrustRepository stores delegations. ConsumeTrustUse is the one storage
// operation with a hard atomicity requirement: a conditional decrement that
// only fires while remaining uses are positive, so concurrent callers racing
// the last use cannot both succeed. It returns ErrTrustConsumed when no uses
// remain and is a no-op success for unlimited trusts.
type TrustRepository interface {
	CreateTrust(ctx context.Context, t *Trust) error
	GetTrust(ctx context.Context, id string) (*Trust, error)
	DeleteTrust(ctx context.Context, id string) error
	ListTrustsByTrustor(ctx context.Context, trustorUserID string) ([]*Trust, error)
	ListTrustsByTrustee(ctx context.Context, trusteeUserID string) ([]*Trust, error)
	ConsumeTrustUse(ctx context.Context, id string) error
}
