package domain

import "errors"

var (
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidRole  = errors.New("invalid_role")
	ErrInvalidUser  = errors.New("invalid_user")
	ErrInvalidRoles = errors.New("invalid_roles")

	// ErrOrganizationDeleted rejects any mutation on a deleted organization.
	// Non-retryable.
	ErrOrganizationDeleted  = errors.New("organization_deleted")
	ErrOrganizationNotFound = errors.New("organization_not_found")

	ErrRoleExists   = errors.New("role_already_exists")
	ErrRoleNotFound = errors.New("role_not_found")
	ErrUserExists   = errors.New("user_already_exists")
	ErrUserNotFound = errors.New("user_not_found")
)
