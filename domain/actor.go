package domain

// ActorKind distinguishes the two principal namespaces. A user and a group
// may legally share the same id value; the kind, not the id, decides which
// namespace a grant belongs to.
type ActorKind string

const (
	ActorUser  ActorKind = "user"
	ActorGroup ActorKind = "group"
)

// TargetKind distinguishes the two grant scopes.
type TargetKind string

const (
	TargetProject TargetKind = "project"
	TargetDomain  TargetKind = "domain"
)

// Actor identifies the principal side of a grant.
type Actor struct {
	Kind ActorKind `bson:"kind" json:"kind"`
	ID   string    `bson:"id"   json:"id"`
}

// Target identifies the scope side of a grant.
type Target struct {
	Kind TargetKind `bson:"kind" json:"kind"`
	ID   string     `bson:"id"   json:"id"`
}

func UserActor(id string) Actor  { return Actor{Kind: ActorUser, ID: id} }
func GroupActor(id string) Actor { return Actor{Kind: ActorGroup, ID: id} }

func ProjectTarget(id string) Target { return Target{Kind: TargetProject, ID: id} }
func DomainTarget(id string) Target  { return Target{Kind: TargetDomain, ID: id} }
