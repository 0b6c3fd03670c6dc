package domain

import (
	"encoding/json"
	"fmt"

	esdomain "github.com/orgstream/orgstream/internal/eventstore/domain"
)

// Snapshot is the serialized view of the aggregate, used as the payload of the
// created event and as the command-layer response shape.
type Snapshot struct {
	OrgID  string              `json:"org_id"`
	Name   string              `json:"name"`
	Status Status              `json:"status"`
	Roles  []Role              `json:"roles"`
	Users  map[string][]string `json:"users"`
}

// Snapshot serializes the aggregate's full state.
func (o *Organization) Snapshot() Snapshot {
	return Snapshot{
		OrgID:  o.orgID,
		Name:   o.name,
		Status: o.status,
		Roles:  o.Roles(),
		Users:  o.Users(),
	}
}

// Event payloads. The created event carries the full snapshot; the others
// carry only the delta, mirroring what the write side knew at command time.
type (
	RoleAddedPayload struct {
		OrgID string `json:"org_id"`
		Role  Role   `json:"role"`
	}

	RoleRemovedPayload struct {
		OrgID  string `json:"org_id"`
		RoleID string `json:"role_id"`
	}

	// UserAddedPayload includes the roles assigned at join time so replay
	// reproduces the assignment from the single event.
	UserAddedPayload struct {
		OrgID  string   `json:"org_id"`
		UserID string   `json:"user_id"`
		Roles  []string `json:"roles,omitempty"`
	}

	UserRemovedPayload struct {
		OrgID  string `json:"org_id"`
		UserID string `json:"user_id"`
	}

	UserRolesPayload struct {
		OrgID  string   `json:"org_id"`
		UserID string   `json:"user_id"`
		Roles  []string `json:"roles"`
	}

	DeletedPayload struct {
		OrgID  string `json:"org_id"`
		Status Status `json:"status"`
	}
)

// Replay rebuilds the aggregate by applying every event of a stream, in
// ascending revision order, through the same transitions used by live
// commands. The returned revision is the stream tail.
func Replay(events []esdomain.Event) (*Organization, uint64, error) {
	if len(events) == 0 {
		return nil, 0, ErrOrganizationNotFound
	}
	org := newEmpty()
	var revision uint64
	for _, evt := range events {
		if err := org.apply(evt.Type, evt.Payload); err != nil {
			return nil, 0, fmt.Errorf("replay %s revision %d: %w", evt.StreamID, evt.Revision, err)
		}
		revision = evt.Revision
	}
	return org, revision, nil
}

// FromSnapshot rehydrates an aggregate from a serialized snapshot.
func FromSnapshot(snap Snapshot) (*Organization, error) {
	org := newEmpty()
	org.orgID = snap.OrgID
	org.name = snap.Name
	for _, role := range snap.Roles {
		if err := org.AddRole(role); err != nil {
			return nil, err
		}
	}
	for userID, roles := range snap.Users {
		if err := org.AddUser(userID, roles); err != nil {
			return nil, err
		}
	}
	org.status = snap.Status
	return org, nil
}

// Apply applies a single event to the aggregate's state.
func (o *Organization) Apply(evt esdomain.Event) error {
	return o.apply(evt.Type, evt.Payload)
}

func (o *Organization) apply(t esdomain.Type, payload []byte) error {
	switch t {
	case esdomain.TypeOrganizationCreated:
		var snap Snapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return err
		}
		o.orgID = snap.OrgID
		o.name = snap.Name
		for _, role := range snap.Roles {
			if err := o.AddRole(role); err != nil {
				return err
			}
		}
		for userID, roles := range snap.Users {
			if err := o.AddUser(userID, roles); err != nil {
				return err
			}
		}
		return nil

	case esdomain.TypeRoleAdded:
		var p RoleAddedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		return o.AddRole(p.Role)

	case esdomain.TypeRoleRemoved:
		var p RoleRemovedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		return o.RemoveRole(p.RoleID)

	case esdomain.TypeUserAdded:
		var p UserAddedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		return o.AddUser(p.UserID, p.Roles)

	case esdomain.TypeUserRemoved:
		var p UserRemovedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		return o.RemoveUser(p.UserID)

	case esdomain.TypeRolesAssigned:
		var p UserRolesPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		return o.AssignRoles(p.UserID, p.Roles)

	case esdomain.TypeRolesRemoved:
		var p UserRolesPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		return o.RemoveRoles(p.UserID, p.Roles)

	case esdomain.TypeOrganizationDeleted:
		return o.Delete()

	default:
		return fmt.Errorf("%w: unknown type %q", esdomain.ErrInvalidEvent, t)
	}
}
