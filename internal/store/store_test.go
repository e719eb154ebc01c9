package store_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rokokot/defense-scheduler/internal/store"
)

func TestStore_EmitAndGroupOrder(t *testing.T) {
	s := store.New()
	c1 := s.Emit("person-unavailable <bob> <9>", true, 1)
	c2 := s.Emit("must-plan <0>", false, 2)
	c3 := s.Emit("person-unavailable <bob> <9>", true, 3) // same label, second constraint

	assert.Equal(t, []string{"person-unavailable <bob> <9>", "must-plan <0>"}, s.IterateGroups())
	assert.Equal(t, []*store.Constraint{c1, c3}, s.Group("person-unavailable <bob> <9>"))
	assert.Equal(t, []*store.Constraint{c1, c3, c2}, s.All())

	label, ok := s.GroupFor(c2)
	require.True(t, ok)
	assert.Equal(t, "must-plan <0>", label)

	_, ok = s.GroupFor(&store.Constraint{})
	assert.False(t, ok, "a constraint never emitted through this store has no group")
}

func TestStore_IdentityNotValueEquality(t *testing.T) {
	s := store.New()
	a := s.Emit("label", true, "same-payload")
	b := s.Emit("label", true, "same-payload")
	assert.NotSame(t, a, b, "two structurally identical constraints remain distinguishable by pointer identity")
	assert.Len(t, s.Group("label"), 2)
}

func TestStore_SelectByGlobAndRegex(t *testing.T) {
	s := store.New()
	s.Emit("person-unavailable <bob> <9>", true, nil)
	s.Emit("person-unavailable <carol> <10>", true, nil)
	s.Emit("room-unavailable <r1> <9>", true, nil)
	s.Emit("must-plan <0>", false, nil)

	byGlob := s.Select(store.GlobPattern("person-unavailable *"))
	assert.Len(t, byGlob, 2)

	byRegex := s.Select(store.RegexPattern(regexp.MustCompile(`^(person|room)-unavailable `)))
	assert.Len(t, byRegex, 3)

	byBoth := s.Select(store.GlobPattern("must-plan *"), store.RegexPattern(regexp.MustCompile(`^room-`)))
	assert.Len(t, byBoth, 2)

	none := s.Select(store.GlobPattern("nonexistent-*"))
	assert.Empty(t, none)
}

func TestStore_SelectLabels(t *testing.T) {
	s := store.New()
	s.Emit("must-plan <0>", false, nil)
	s.Emit("must-plan <1>", false, nil)
	s.Emit("consistency <0>", false, nil)

	got := s.SelectLabels("must-plan <1>", "consistency <0>", "missing-label")
	assert.Len(t, got, 2)
}
