// Package domain contains the event-log types shared by the write and read sides.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Type identifies the kind of an organization event. The enumeration is
// closed: the store rejects appends of unknown types.
type Type string

const (
	// TypeOrganizationCreated records the creation of an organization.
	TypeOrganizationCreated Type = "organization.created"
	// TypeOrganizationDeleted records the deletion of an organization.
	TypeOrganizationDeleted Type = "organization.deleted"
	// TypeRoleAdded records a role definition added to an organization.
	TypeRoleAdded Type = "organization.role_added"
	// TypeRoleRemoved records a role definition removed from an organization.
	TypeRoleRemoved Type = "organization.role_removed"
	// TypeUserAdded records a user joining an organization.
	TypeUserAdded Type = "organization.user_added"
	// TypeUserRemoved records a user leaving an organization.
	TypeUserRemoved Type = "organization.user_removed"
	// TypeRolesAssigned records roles assigned to a user.
	TypeRolesAssigned Type = "organization.roles_assigned"
	// TypeRolesRemoved records roles removed from a user.
	TypeRolesRemoved Type = "organization.roles_removed"
)

// Known reports whether t belongs to the closed enumeration.
func (t Type) Known() bool {
	switch t {
	case TypeOrganizationCreated, TypeOrganizationDeleted,
		TypeRoleAdded, TypeRoleRemoved,
		TypeUserAdded, TypeUserRemoved,
		TypeRolesAssigned, TypeRolesRemoved:
		return true
	}
	return false
}

// Event is one immutable entry in a stream. Revision is 1-based and gap-free
// per stream; the unique index is the conditional-append primitive.
type Event struct {
	ID        snowflake.ID   `gorm:"primaryKey" json:"id"`
	StreamID  string         `gorm:"type:text;not null;index;uniqueIndex:ux_organization_events_stream_revision,priority:1" json:"stream_id"`
	Revision  uint64         `gorm:"not null;uniqueIndex:ux_organization_events_stream_revision,priority:2" json:"revision"`
	Type      Type           `gorm:"type:text;not null" json:"type"`
	Payload   datatypes.JSON `gorm:"not null" json:"payload"`
	Published bool           `gorm:"not null;default:false;index" json:"-"`
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Event) TableName() string { return "organization_events" }
