package domain

import "context"

type CreateOrganizationRequest struct {
	Name string
}

type AddRoleRequest struct {
	OrgID       string
	Name        string
	Permissions []Permission
}

type AddUserRequest struct {
	OrgID  string
	UserID string
	Roles  []string
}

type UserRolesRequest struct {
	OrgID  string
	UserID string
	Roles  []string
}

// Service is the command layer: it validates input, drives the aggregate and
// retries once more on a lost optimistic-concurrency race after rereading.
type Service interface {
	Create(ctx context.Context, req CreateOrganizationRequest) (Snapshot, error)
	Get(ctx context.Context, orgID string) (Snapshot, error)
	Delete(ctx context.Context, orgID string) error

	AddRole(ctx context.Context, req AddRoleRequest) (Role, error)
	RemoveRole(ctx context.Context, orgID, roleID string) error

	AddUser(ctx context.Context, req AddUserRequest) error
	RemoveUser(ctx context.Context, orgID, userID string) error

	AssignRoles(ctx context.Context, req UserRolesRequest) error
	RemoveRoles(ctx context.Context, req UserRolesRequest) error
}
