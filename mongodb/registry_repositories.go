package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"go.pilab.hu/accord/domain"
	aerrors "go.pilab.hu/accord/errors"
)

// Entity repositories. All single-document reads translate
// mongo.ErrNoDocuments into the kind-specific sentinel; inserts translate
// duplicate-key errors into ErrConflict.

type DomainRepository struct {
	coll *mongo.Collection
}

func NewDomainRepository(db *mongo.Database) domain.DomainRepository {
	return &DomainRepository{coll: db.Collection(DomainsCollection)}
}

func (r *DomainRepository) CreateDomain(ctx context.Context, d *domain.Domain) error {
	_, err := r.coll.InsertOne(ctx, d)
	return translateWriteErr(err)
}

func (r *DomainRepository) GetDomainByID(ctx context.Context, id string) (*domain.Domain, error) {
	var d domain.Domain
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, aerrors.ErrDomainNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("domain lookup failed: %w", err)
	}
	return &d, nil
}

func (r *DomainRepository) GetDomainByName(ctx context.Context, name string) (*domain.Domain, error) {
	var d domain.Domain
	err := r.coll.FindOne(ctx, bson.M{"name": name},
		options.FindOne().SetCollation(caseInsensitive)).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, aerrors.ErrDomainNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("domain lookup failed: %w", err)
	}
	return &d, nil
}

func (r *DomainRepository) UpdateDomain(ctx context.Context, d *domain.Domain) error {
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": d.ID}, d)
	if err != nil {
		return translateWriteErr(err)
	}
	if res.MatchedCount == 0 {
		return aerrors.ErrDomainNotFound
	}
	return nil
}

func (r *DomainRepository) DeleteDomain(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("domain delete failed: %w", err)
	}
	if res.DeletedCount == 0 {
		return aerrors.ErrDomainNotFound
	}
	return nil
}

func (r *DomainRepository) ListDomains(ctx context.Context) ([]*domain.Domain, error) {
	return findAll[domain.Domain](ctx, r.coll, bson.M{})
}

type ProjectRepository struct {
	coll *mongo.Collection
}

func NewProjectRepository(db *mongo.Database) domain.ProjectRepository {
	return &ProjectRepository{coll: db.Collection(ProjectsCollection)}
}

func (r *ProjectRepository) CreateProject(ctx context.Context, p *domain.Project) error {
	_, err := r.coll.InsertOne(ctx, p)
	return translateWriteErr(err)
}

func (r *ProjectRepository) GetProjectByID(ctx context.Context, id string) (*domain.Project, error) {
	var p domain.Project
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, aerrors.ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("project lookup failed: %w", err)
	}
	return &p, nil
}

func (r *ProjectRepository) GetProjectByName(ctx context.Context, domainID, name string) (*domain.Project, error) {
	var p domain.Project
	err := r.coll.FindOne(ctx, bson.M{"domain_id": domainID, "name": name},
		options.FindOne().SetCollation(caseInsensitive)).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, aerrors.ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("project lookup failed: %w", err)
	}
	return &p, nil
}

func (r *ProjectRepository) UpdateProject(ctx context.Context, p *domain.Project) error {
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": p.ID}, p)
	if err != nil {
		return translateWriteErr(err)
	}
	if res.MatchedCount == 0 {
		return aerrors.ErrProjectNotFound
	}
	return nil
}

func (r *ProjectRepository) DeleteProject(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("project delete failed: %w", err)
	}
	if res.DeletedCount == 0 {
		return aerrors.ErrProjectNotFound
	}
	return nil
}

func (r *ProjectRepository) ListProjectsByDomain(ctx context.Context, domainID string) ([]*domain.Project, error) {
	return findAll[domain.Project](ctx, r.coll, bson.M{"domain_id": domainID})
}

type UserRepository struct {
	coll *mongo.Collection
}

func NewUserRepository(db *mongo.Database) domain.UserRepository {
	return &UserRepository{coll: db.Collection(UsersCollection)}
}

func (r *UserRepository) CreateUser(ctx context.Context, u *domain.User) error {
	_, err := r.coll.InsertOne(ctx, u)
	return translateWriteErr(err)
}

func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, aerrors.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user lookup failed: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) GetUserByName(ctx context.Context, domainID, name string) (*domain.User, error) {
	var u domain.User
	err := r.coll.FindOne(ctx, bson.M{"domain_id": domainID, "name": name}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, aerrors.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user lookup failed: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) UpdateUser(ctx context.Context, u *domain.User) error {
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": u.ID}, u)
	if err != nil {
		return translateWriteErr(err)
	}
	if res.MatchedCount == 0 {
		return aerrors.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) DeleteUser(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("user delete failed: %w", err)
	}
	if res.DeletedCount == 0 {
		return aerrors.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) ListUsersByDomain(ctx context.Context, domainID string) ([]*domain.User, error) {
	return findAll[domain.User](ctx, r.coll, bson.M{"domain_id": domainID})
}

type GroupRepository struct {
	coll *mongo.Collection
}

func NewGroupRepository(db *mongo.Database) domain.GroupRepository {
	return &GroupRepository{coll: db.Collection(GroupsCollection)}
}

func (r *GroupRepository) CreateGroup(ctx context.Context, g *domain.Group) error {
	_, err := r.coll.InsertOne(ctx, g)
	return translateWriteErr(err)
}

func (r *GroupRepository) GetGroupByID(ctx context.Context, id string) (*domain.Group, error) {
	var g domain.Group
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&g)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, aerrors.ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("group lookup failed: %w", err)
	}
	return &g, nil
}

func (r *GroupRepository) GetGroupByName(ctx context.Context, domainID, name string) (*domain.Group, error) {
	var g domain.Group
	err := r.coll.FindOne(ctx, bson.M{"domain_id": domainID, "name": name}).Decode(&g)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, aerrors.ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("group lookup failed: %w", err)
	}
	return &g, nil
}

func (r *GroupRepository) DeleteGroup(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("group delete failed: %w", err)
	}
	if res.DeletedCount == 0 {
		return aerrors.ErrGroupNotFound
	}
	return nil
}

func (r *GroupRepository) ListGroupsByDomain(ctx context.Context, domainID string) ([]*domain.Group, error) {
	return findAll[domain.Group](ctx, r.coll, bson.M{"domain_id": domainID})
}

func (r *GroupRepository) AddGroupMember(ctx context.Context, groupID, userID string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": groupID},
		bson.M{"$addToSet": bson.M{"members": userID}})
	if err != nil {
		return fmt.Errorf("group member add failed: %w", err)
	}
	if res.MatchedCount == 0 {
		return aerrors.ErrGroupNotFound
	}
	return nil
}

func (r *GroupRepository) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": groupID},
		bson.M{"$pull": bson.M{"members": userID}})
	if err != nil {
		return fmt.Errorf("group member remove failed: %w", err)
	}
	if res.MatchedCount == 0 {
		return aerrors.ErrGroupNotFound
	}
	if res.ModifiedCount == 0 {
		return aerrors.ErrUserNotFound
	}
	return nil
}

func (r *GroupRepository) ListGroupsForUser(ctx context.Context, userID string) ([]*domain.Group, error) {
	return findAll[domain.Group](ctx, r.coll, bson.M{"members": userID})
}

func (r *GroupRepository) RemoveUserFromAllGroups(ctx context.Context, userID string) error {
	_, err := r.coll.UpdateMany(ctx,
		bson.M{"members": userID},
		bson.M{"$pull": bson.M{"members": userID}})
	if err != nil {
		return fmt.Errorf("group membership cleanup failed: %w", err)
	}
	return nil
}

type RoleRepository struct {
	coll *mongo.Collection
}

func NewRoleRepository(db *mongo.Database) domain.RoleRepository {
	return &RoleRepository{coll: db.Collection(RolesCollection)}
}

func (r *RoleRepository) CreateRole(ctx context.Context, role *domain.Role) error {
	_, err := r.coll.InsertOne(ctx, role)
	return translateWriteErr(err)
}

func (r *RoleRepository) GetRoleByID(ctx context.Context, id string) (*domain.Role, error) {
	var role domain.Role
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&role)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, aerrors.ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("role lookup failed: %w", err)
	}
	return &role, nil
}

func (r *RoleRepository) GetRoleByName(ctx context.Context, name string) (*domain.Role, error) {
	var role domain.Role
	err := r.coll.FindOne(ctx, bson.M{"name": name}).Decode(&role)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, aerrors.ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("role lookup failed: %w", err)
	}
	return &role, nil
}

func (r *RoleRepository) DeleteRole(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("role delete failed: %w", err)
	}
	if res.DeletedCount == 0 {
		return aerrors.ErrRoleNotFound
	}
	return nil
}

func (r *RoleRepository) ListRoles(ctx context.Context) ([]*domain.Role, error) {
	return findAll[domain.Role](ctx, r.coll, bson.M{})
}
