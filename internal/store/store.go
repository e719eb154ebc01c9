// Package store implements the Labeled Constraint Store (C2): every
// constraint emitted by the Model Compiler is kept under a stable group
// label, and constraints are identified by object identity rather than
// structural equality so that two structurally identical constraints
// attached to different labels remain distinguishable in MUS/MCS output
// (§9, "Labeled constraint store over value-equality").
package store

import (
	"path"
	"regexp"
)

// Payload is the opaque constraint body the Model Compiler attaches; the
// store itself never interprets it, it only threads label<->constraint
// bookkeeping. internal/compiler and internal/solve agree on its concrete
// shape.
type Payload any

// Constraint is one emitted constraint. Constraints are always handed out
// as pointers; the pointer IS the identity (no Equal method, deliberately -
// see the package doc).
type Constraint struct {
	Label   string
	Payload Payload
	Soft    bool
}

// Store holds every constraint emitted during one Model Compiler run,
// grouped by label in insertion order. It is mutable only during
// compilation; §4.2 requires read-only access thereafter, which callers get
// for free since Store exposes no mutation method besides Emit.
type Store struct {
	order   []string // label insertion order, first-seen
	groups  map[string][]*Constraint
	labelOf map[*Constraint]string
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		groups:  make(map[string][]*Constraint),
		labelOf: make(map[*Constraint]string),
	}
}

// Emit appends a new constraint under label, without deduplication: one
// group may carry many constraints sharing the same label.
func (s *Store) Emit(label string, soft bool, payload Payload) *Constraint {
	c := &Constraint{Label: label, Payload: payload, Soft: soft}
	if _, ok := s.groups[label]; !ok {
		s.order = append(s.order, label)
	}
	s.groups[label] = append(s.groups[label], c)
	s.labelOf[c] = label
	return c
}

// GroupFor looks up the group label of a constraint by identity.
func (s *Store) GroupFor(c *Constraint) (string, bool) {
	l, ok := s.labelOf[c]
	return l, ok
}

// IterateGroups returns group labels in emission order.
func (s *Store) IterateGroups() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Group returns the constraints of exactly one label, in insertion order.
func (s *Store) Group(label string) []*Constraint {
	return s.groups[label]
}

// All returns every constraint in the store, in emission order (labels in
// emission order, constraints within a label in emission order).
func (s *Store) All() []*Constraint {
	var out []*Constraint
	for _, label := range s.order {
		out = append(out, s.groups[label]...)
	}
	return out
}

// Pattern is one glob-or-regex pattern over group labels, per §4.2's
// `select(patterns)`. The reference source leaves the glob-vs-regex choice
// unspecified for its own two call sites (MUS's four-family selection and
// MCS's four-family selection, §4.5); this implementation resolves it by
// making the caller say which it means, rather than sniffing metacharacters
// (documented as a decided Open Question in DESIGN.md).
type Pattern struct {
	Glob  string // path.Match syntax, matched against the whole label
	Regex *regexp.Regexp
}

// GlobPattern builds a Pattern matched via path.Match semantics.
func GlobPattern(glob string) Pattern { return Pattern{Glob: glob} }

// RegexPattern builds a Pattern matched via regexp.MatchString semantics.
func RegexPattern(re *regexp.Regexp) Pattern { return Pattern{Regex: re} }

func (p Pattern) matches(label string) bool {
	if p.Regex != nil {
		return p.Regex.MatchString(label)
	}
	ok, err := path.Match(p.Glob, label)
	return err == nil && ok
}

// Select returns, in deterministic insertion order, every constraint whose
// group label matches any of the given patterns.
func (s *Store) Select(patterns ...Pattern) []*Constraint {
	var out []*Constraint
	for _, label := range s.order {
		for _, p := range patterns {
			if p.matches(label) {
				out = append(out, s.groups[label]...)
				break
			}
		}
	}
	return out
}

// SelectLabels is a convenience over Select for exact (non-glob, non-regex)
// label matches, used heavily by internal/compiler and internal/explain
// where the label is already fully known (e.g. "must-plan <d*>").
func (s *Store) SelectLabels(labels ...string) []*Constraint {
	var out []*Constraint
	for _, l := range labels {
		out = append(out, s.groups[l]...)
	}
	return out
}
