// Package domain contains the Organization aggregate. The aggregate is a pure
// state machine: mutations validate and update in-memory state but perform no
// I/O, so the same transitions serve both live commands and replay.
package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an organization.
type Status string

const (
	StatusActive  Status = "active"
	StatusDeleted Status = "deleted"
)

// Permission names an action a role may perform against a service.
type Permission struct {
	Service string `json:"service"`
	Action  string `json:"action"`
}

// Role is a named set of permissions, unique per organization.
type Role struct {
	RoleID      string       `json:"role_id"`
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions"`
}

// Organization is the aggregate root. Revision tracking is the repository's
// concern; the aggregate itself is revision-agnostic.
type Organization struct {
	orgID  string
	name   string
	status Status

	roles     map[string]Role
	roleOrder []string
	users     map[string]*RoleSet
	userOrder []string
}

// NewOrganization creates an active organization with a generated id.
func NewOrganization(name string) (*Organization, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrInvalidName
	}
	org := newEmpty()
	org.orgID = uuid.NewString()
	org.name = name
	return org, nil
}

func newEmpty() *Organization {
	return &Organization{
		status: StatusActive,
		roles:  make(map[string]Role),
		users:  make(map[string]*RoleSet),
	}
}

func (o *Organization) ID() string     { return o.orgID }
func (o *Organization) Name() string   { return o.name }
func (o *Organization) Status() Status { return o.status }

func (o *Organization) IsDeleted() bool {
	return o.status == StatusDeleted
}

// Delete marks the organization deleted. No mutation is accepted afterwards.
func (o *Organization) Delete() error {
	if err := o.checkDeleted(); err != nil {
		return err
	}
	o.status = StatusDeleted
	return nil
}

// AddRole adds a role definition. The role id must be unique in the
// organization.
func (o *Organization) AddRole(role Role) error {
	if err := o.checkDeleted(); err != nil {
		return err
	}
	if strings.TrimSpace(role.RoleID) == "" || strings.TrimSpace(role.Name) == "" {
		return ErrInvalidRole
	}
	if _, ok := o.roles[role.RoleID]; ok {
		return ErrRoleExists
	}
	o.roles[role.RoleID] = role
	o.roleOrder = append(o.roleOrder, role.RoleID)
	return nil
}

// RemoveRole removes a role definition. Existing assignments of the role are
// left untouched.
func (o *Organization) RemoveRole(roleID string) error {
	if err := o.checkDeleted(); err != nil {
		return err
	}
	if strings.TrimSpace(roleID) == "" {
		return ErrInvalidRole
	}
	if _, ok := o.roles[roleID]; !ok {
		return ErrRoleNotFound
	}
	delete(o.roles, roleID)
	for i, id := range o.roleOrder {
		if id == roleID {
			o.roleOrder = append(o.roleOrder[:i], o.roleOrder[i+1:]...)
			break
		}
	}
	return nil
}

// GetRole returns a role definition by id.
func (o *Organization) GetRole(roleID string) (Role, error) {
	if err := o.checkDeleted(); err != nil {
		return Role{}, err
	}
	if strings.TrimSpace(roleID) == "" {
		return Role{}, ErrInvalidRole
	}
	role, ok := o.roles[roleID]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	return role, nil
}

// AddUser adds a user, optionally assigning roles in the same mutation.
func (o *Organization) AddUser(userID string, roleIDs []string) error {
	if err := o.checkDeleted(); err != nil {
		return err
	}
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidUser
	}
	if _, ok := o.users[userID]; ok {
		return ErrUserExists
	}
	for _, id := range roleIDs {
		if _, ok := o.roles[id]; !ok {
			return ErrRoleNotFound
		}
	}
	set := NewRoleSet()
	for _, id := range roleIDs {
		set.Add(id)
	}
	o.users[userID] = set
	o.userOrder = append(o.userOrder, userID)
	return nil
}

// RemoveUser removes a user and its role assignments.
func (o *Organization) RemoveUser(userID string) error {
	if err := o.checkDeleted(); err != nil {
		return err
	}
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidUser
	}
	if _, ok := o.users[userID]; !ok {
		return ErrUserNotFound
	}
	delete(o.users, userID)
	for i, id := range o.userOrder {
		if id == userID {
			o.userOrder = append(o.userOrder[:i], o.userOrder[i+1:]...)
			break
		}
	}
	return nil
}

// AssignRoles assigns existing roles to an existing user.
func (o *Organization) AssignRoles(userID string, roleIDs []string) error {
	set, err := o.userRolesForUpdate(userID, roleIDs)
	if err != nil {
		return err
	}
	for _, id := range roleIDs {
		set.Add(id)
	}
	return nil
}

// RemoveRoles removes roles from an existing user.
func (o *Organization) RemoveRoles(userID string, roleIDs []string) error {
	set, err := o.userRolesForUpdate(userID, roleIDs)
	if err != nil {
		return err
	}
	for _, id := range roleIDs {
		set.Remove(id)
	}
	return nil
}

// Roles returns role definitions in insertion order.
func (o *Organization) Roles() []Role {
	out := make([]Role, 0, len(o.roleOrder))
	for _, id := range o.roleOrder {
		out = append(out, o.roles[id])
	}
	return out
}

// Users returns the user-to-roles mapping with deterministic ordering.
func (o *Organization) Users() map[string][]string {
	out := make(map[string][]string, len(o.userOrder))
	for _, id := range o.userOrder {
		out[id] = o.users[id].Values()
	}
	return out
}

// UserIDs returns user ids in insertion order.
func (o *Organization) UserIDs() []string {
	out := make([]string, len(o.userOrder))
	copy(out, o.userOrder)
	return out
}

func (o *Organization) userRolesForUpdate(userID string, roleIDs []string) (*RoleSet, error) {
	if err := o.checkDeleted(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidUser
	}
	if len(roleIDs) == 0 {
		return nil, ErrInvalidRoles
	}
	set, ok := o.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	for _, id := range roleIDs {
		if _, ok := o.roles[id]; !ok {
			return nil, ErrRoleNotFound
		}
	}
	return set, nil
}

func (o *Organization) checkDeleted() error {
	if o.IsDeleted() {
		return ErrOrganizationDeleted
	}
	return nil
}
