package services

//go:generate mockgen -source=$GOFILE -destination=../mocks/mock_services/mock_interfaces.go -package=mock_services

// PasswordHasher is the credential collaborator. It owns the hashing
// scheme; the core only ever stores and forwards the opaque hash.
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Verify returns nil when the presented password matches the stored
	// hash, an error otherwise.
	Verify(hashedPassword, password string) error
}

// PolicyEngine is the external policy collaborator. Front-end layers feed
// it an actor's effective roles and a requested action; the core itself
// never consults it.
type PolicyEngine interface {
	Allowed(roles []string, action string) bool
}
