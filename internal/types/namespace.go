package types

import (
	"fmt"
	"strings"
	"time"
)

// DefaultNamespace is the reserved namespace that always exists. Blocks
// that do not name a namespace land here.
const DefaultNamespace = "legacy"

// Namespace is a tenancy/ownership scope attached to every block.
type Namespace struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	OwnerID     string    `json:"owner_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
}

// Validate checks the namespace's local invariants. Uniqueness is
// enforced by storage.
func (n *Namespace) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("id is required")
	}
	if n.Name == "" {
		return fmt.Errorf("name is required")
	}
	if n.Slug == "" {
		return fmt.Errorf("slug is required")
	}
	if NormalizeNamespaceID(n.ID) != n.ID {
		return fmt.Errorf("namespace id must be lowercase without surrounding whitespace: %q", n.ID)
	}
	return nil
}

// NormalizeNamespaceID folds a namespace identifier to its canonical
// case-insensitive form for lookups and cache keys.
func NormalizeNamespaceID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
