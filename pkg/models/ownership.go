// Package models defines the shared data types for the agent workload
// control plane: agents, tasks, resources, messages, and the ownership
// tags that gate multi-tenant access to all of them.
package models

// SystemOwner is the reserved owner id for platform-owned entities.
// System-owned entities are readable by every tenant.
const SystemOwner = "system"

// OwnershipType classifies who an entity belongs to.
type OwnershipType string

const (
	OwnershipSystem OwnershipType = "system"
	OwnershipClient OwnershipType = "client"
	OwnershipShared OwnershipType = "shared"
)

// Ownership is the tag attached to every entity in the control plane.
type Ownership struct {
	OwnerID    string        `json:"owner_id" mapstructure:"owner_id"`
	Type       OwnershipType `json:"ownership_type" mapstructure:"ownership_type"`
	Exportable bool          `json:"exportable" mapstructure:"exportable"`
}

// SystemOwned returns the ownership tag for platform-owned entities.
func SystemOwned() Ownership {
	return Ownership{OwnerID: SystemOwner, Type: OwnershipSystem}
}

// ClientOwned returns the ownership tag for a tenant-owned entity.
// An empty clientID degrades to system ownership.
func ClientOwned(clientID string) Ownership {
	if clientID == "" {
		return SystemOwned()
	}
	return Ownership{OwnerID: clientID, Type: OwnershipClient}
}

// AccessibleBy reports whether requesterID may read or mutate the tagged
// entity. System-owned entities are globally accessible; everything else
// requires an exact owner match.
func (o Ownership) AccessibleBy(requesterID string) bool {
	return o.OwnerID == SystemOwner || requesterID == o.OwnerID
}
