package types

import (
	"fmt"
	"sort"
	"strings"
)

// Relation is a canonical link relation name from the closed registry.
type Relation string

// Canonical relation constants
const (
	RelationRelatedTo   Relation = "related_to"
	RelationSubtaskOf   Relation = "subtask_of"
	RelationChildOf     Relation = "child_of"
	RelationParentOf    Relation = "parent_of"
	RelationDependsOn   Relation = "depends_on"
	RelationBlocks      Relation = "blocks"
	RelationMentions    Relation = "mentions"
	RelationMentionedBy Relation = "mentioned_by"
	RelationDerivedFrom Relation = "derived_from"
	RelationSourceOf    Relation = "source_of"
	RelationDuplicateOf Relation = "duplicate_of"
	RelationPartOf      Relation = "part_of"
	RelationContains    Relation = "contains"
	RelationRequires    Relation = "requires"
	RelationRequiredBy  Relation = "required_by"
	RelationOwnedBy     Relation = "owned_by"
	RelationOwns        Relation = "owns"
)

type relationInfo struct {
	inverse      Relation
	hierarchical bool
}

// relationRegistry is the closed set of canonical relations. It is
// immutable after package initialization; every inverse is itself a key.
var relationRegistry = map[Relation]relationInfo{
	RelationRelatedTo:   {inverse: RelationRelatedTo},
	RelationSubtaskOf:   {inverse: RelationParentOf, hierarchical: true},
	RelationChildOf:     {inverse: RelationParentOf, hierarchical: true},
	RelationParentOf:    {inverse: RelationChildOf, hierarchical: true},
	RelationDependsOn:   {inverse: RelationBlocks, hierarchical: true},
	RelationBlocks:      {inverse: RelationDependsOn},
	RelationMentions:    {inverse: RelationMentionedBy},
	RelationMentionedBy: {inverse: RelationMentions},
	RelationDerivedFrom: {inverse: RelationSourceOf},
	RelationSourceOf:    {inverse: RelationDerivedFrom},
	RelationDuplicateOf: {inverse: RelationDuplicateOf},
	RelationPartOf:      {inverse: RelationContains, hierarchical: true},
	RelationContains:    {inverse: RelationPartOf},
	RelationRequires:    {inverse: RelationRequiredBy, hierarchical: true},
	RelationRequiredBy:  {inverse: RelationRequires},
	RelationOwnedBy:     {inverse: RelationOwns},
	RelationOwns:        {inverse: RelationOwnedBy},
}

// relationAliases maps legacy and convenience names onto canonical
// relations. Aliases resolve before anything touches storage.
var relationAliases = map[string]Relation{
	"is_blocked_by": RelationDependsOn,
	"blocked_by":    RelationDependsOn,
	"is_parent_of":  RelationParentOf,
	"is_child_of":   RelationChildOf,
	"belongs_to":    RelationPartOf,
	"references":    RelationMentions,
	"referenced_by": RelationMentionedBy,
	"duplicates":    RelationDuplicateOf,
	"subtask":       RelationSubtaskOf,
	"depends":       RelationDependsOn,
}

// IsValid reports whether the relation is canonical.
func (r Relation) IsValid() bool {
	_, ok := relationRegistry[r]
	return ok
}

// IsHierarchical reports whether links of this relation participate in
// cycle detection.
func (r Relation) IsHierarchical() bool {
	return relationRegistry[r].hierarchical
}

// Inverse returns the canonical inverse relation. Every canonical
// relation has one (some are their own inverse).
func (r Relation) Inverse() (Relation, bool) {
	info, ok := relationRegistry[r]
	if !ok {
		return "", false
	}
	return info.inverse, true
}

// ResolveRelation maps a raw relation name (canonical or alias,
// case-insensitive) to its canonical form.
func ResolveRelation(name string) (Relation, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "", fmt.Errorf("relation is required")
	}
	if r := Relation(normalized); r.IsValid() {
		return r, nil
	}
	if r, ok := relationAliases[normalized]; ok {
		return r, nil
	}
	return "", fmt.Errorf("unknown relation: %s", name)
}

// CanonicalRelations returns all canonical relations in sorted order.
func CanonicalRelations() []Relation {
	out := make([]Relation, 0, len(relationRegistry))
	for r := range relationRegistry {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HierarchicalRelations returns the relations subject to cycle checks,
// in sorted order.
func HierarchicalRelations() []Relation {
	var out []Relation
	for r, info := range relationRegistry {
		if info.hierarchical {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
