package core

import (
	"context"
	"sort"
)

// Spec declares a record type: the table it lives in, its identity, its
// columns and the relations that cascade from it.
// A Spec is immutable once registered and shared read-only across calls.
type Spec struct {
	// Name is the registry key. Defaults to Table.
	Name string

	// Table is the table the records are stored in.
	Table string

	// Connection names the connection the table belongs to.
	Connection string

	// PrimaryKey is the set of attributes identifying a row.
	PrimaryKey []string

	// AutoIncrement is the attribute filled by the engine on insert, if any.
	AutoIncrement string

	// Columns maps attribute names to their column metadata.
	Columns map[string]Column

	// Relations are the child record types reachable from this one.
	Relations []Relation

	// Rules are extra validation rules applied on top of column constraints.
	Rules []Rule
}

// Key returns the name the spec is registered under.
func (s *Spec) Key() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Table
}

// Column returns the column metadata for an attribute.
func (s *Spec) Column(name string) (Column, bool) {
	c, ok := s.Columns[name]
	return c, ok
}

// Attributes returns the declared column names, sorted.
func (s *Spec) Attributes() []string {
	names := make([]string, 0, len(s.Columns))
	for name := range s.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsPrimaryKey reports whether name is part of the primary key.
func (s *Spec) IsPrimaryKey(name string) bool {
	for _, pk := range s.PrimaryKey {
		if pk == name {
			return true
		}
	}
	return false
}

// Relation returns the relation declared under name.
func (s *Spec) Relation(name string) (Relation, bool) {
	for _, r := range s.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return Relation{}, false
}

// IsRelation reports whether name is a declared relation.
func (s *Spec) IsRelation(name string) bool {
	_, ok := s.Relation(name)
	return ok
}

// HasRelationIn reports whether body carries a value under any declared relation name.
func (s *Spec) HasRelationIn(body map[string]any) bool {
	for _, r := range s.Relations {
		if _, ok := body[r.Name]; ok {
			return true
		}
	}
	return false
}

// Relation links a parent spec to a child spec. The child rows are carried in
// the parent body under Name.
type Relation struct {
	// Name is the key the child bodies are found under.
	Name string

	// Target is the registry name of the child spec.
	Target string

	// Link maps child attributes to the parent attributes they copy.
	Link map[string]string

	// OnReplace decides what happens to existing children before new ones are written.
	OnReplace DeletePolicy
}

// ChildAttributes returns the linked child attributes, sorted.
func (r Relation) ChildAttributes() []string {
	attrs := make([]string, 0, len(r.Link))
	for child := range r.Link {
		attrs = append(attrs, child)
	}
	sort.Strings(attrs)
	return attrs
}

// LinkValues returns child attribute values taken from the parent row.
// ok is false when a linked parent attribute is missing or nil.
func (r Relation) LinkValues(parent map[string]any) (values map[string]any, ok bool) {
	values = make(map[string]any, len(r.Link))
	ok = true
	for child, attr := range r.Link {
		v, present := parent[attr]
		if !present || v == nil {
			ok = false
			continue
		}
		values[child] = v
	}
	return values, ok
}

// DeletePolicyKind tags a DeletePolicy.
type DeletePolicyKind int

const (
	// DeleteNone leaves existing children alone.
	DeleteNone DeletePolicyKind = iota

	// DeleteByCondition removes children matching the link values plus a fixed condition.
	DeleteByCondition

	// DeleteByCallback hands the child bodies to a caller-supplied function.
	DeleteByCallback
)

// String returns the policy kind name.
func (k DeletePolicyKind) String() string {
	switch k {
	case DeleteByCondition:
		return "condition"
	case DeleteByCallback:
		return "callback"
	default:
		return "none"
	}
}

// DeleteCallback is invoked with the child spec and the child bodies about to
// be written.
type DeleteCallback func(ctx context.Context, child *Spec, bodies []map[string]any) error

// DeletePolicy is the tagged union applied before a relation's children are replaced.
type DeletePolicy struct {
	Kind      DeletePolicyKind
	Condition map[string]any
	Callback  DeleteCallback
}

// NoDelete returns the policy that keeps existing children.
func NoDelete() DeletePolicy {
	return DeletePolicy{Kind: DeleteNone}
}

// DeleteWhere returns a policy deleting children that match cond and the link values.
func DeleteWhere(cond map[string]any) DeletePolicy {
	return DeletePolicy{Kind: DeleteByCondition, Condition: cond}
}

// DeleteWith returns a policy delegating deletion to fn.
func DeleteWith(fn DeleteCallback) DeletePolicy {
	return DeletePolicy{Kind: DeleteByCallback, Callback: fn}
}

// Rule is an extra validation rule on a set of attributes.
type Rule struct {
	// Attributes the rule applies to.
	Attributes []string

	// Required rejects missing, nil or empty-string values.
	Required bool

	// MaxLength bounds string length when positive.
	MaxLength int

	// Check is an optional custom check run on present values.
	Check func(value any) error

	// Message overrides the generated error message.
	Message string
}

// SpecResolver finds registered specs by name.
type SpecResolver interface {
	Lookup(name string) (*Spec, error)
}
