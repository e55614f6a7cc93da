package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAssignsIDAndRoot(t *testing.T) {
	s := NewStore()

	node, err := s.Append(NewHumanNode("hi"))
	require.NoError(t, err)
	require.NotEmpty(t, node.ID)
	require.Equal(t, node.ID, s.RootID())
	require.Equal(t, 1, s.Len())
}

func TestAppendRejectsOrphanParent(t *testing.T) {
	s := NewStore()
	_, err := s.Append(NewHumanNode("hi"))
	require.NoError(t, err)

	_, err = s.Append(NewAINode("hello", WithParentID("no-such-node")))
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, 1, s.Len())
}

func TestAppendRejectsSecondRoot(t *testing.T) {
	s := NewStore()
	_, err := s.Append(NewHumanNode("hi"))
	require.NoError(t, err)

	_, err = s.Append(NewHumanNode("another root"))
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestAppendRejectsProvisionalID(t *testing.T) {
	s := NewStore()
	_, err := s.Append(NewHumanNode("hi", WithID(ProvisionalID)))
	require.Error(t, err)
	require.Equal(t, 0, s.Len())
}

func TestAppendFlipsActiveSibling(t *testing.T) {
	s := NewStore()
	h1, err := s.Append(NewHumanNode("hi"))
	require.NoError(t, err)

	a1, err := s.Append(NewAINode("hello", WithParentID(h1.ID)))
	require.NoError(t, err)
	require.True(t, a1.Active)

	a2, err := s.Append(NewAINode("hello again", WithParentID(h1.ID)))
	require.NoError(t, err)

	require.True(t, a2.Active)
	require.False(t, a1.Active)
	require.NoError(t, s.CheckInvariants())
}

func TestResolveParentForDefaultsToActiveTail(t *testing.T) {
	s := NewStore()
	require.Equal(t, RootParentID, s.ResolveParentFor(""))

	h1, err := s.Append(NewHumanNode("hi"))
	require.NoError(t, err)
	a1, err := s.Append(NewAINode("hello", WithParentID(h1.ID)))
	require.NoError(t, err)

	require.Equal(t, a1.ID, s.ResolveParentFor(""))
	require.Equal(t, h1.ID, s.ResolveParentFor(h1.ID))
}

func TestSiblingsInInsertionOrder(t *testing.T) {
	s := NewStore()
	h1, err := s.Append(NewHumanNode("hi"))
	require.NoError(t, err)

	a1, err := s.Append(NewAINode("one", WithParentID(h1.ID)))
	require.NoError(t, err)
	a2, err := s.Append(NewAINode("two", WithParentID(h1.ID)))
	require.NoError(t, err)

	siblings := s.Siblings(h1.ID)
	require.Len(t, siblings, 2)
	assert.Equal(t, a1.ID, siblings[0].ID)
	assert.Equal(t, a2.ID, siblings[1].ID)
}

func TestExportRoundtrip(t *testing.T) {
	s := NewStore()
	h1, err := s.Append(NewHumanNode("hi"))
	require.NoError(t, err)
	a1, err := s.Append(NewAINode("one", WithParentID(h1.ID)))
	require.NoError(t, err)
	_, err = s.Append(NewAINode("two", WithParentID(h1.ID)))
	require.NoError(t, err)

	data, err := MarshalStore(s)
	require.NoError(t, err)

	loaded, err := UnmarshalStore(data)
	require.NoError(t, err)
	require.Equal(t, s.Len(), loaded.Len())

	// active flags survive exactly, including the flipped sibling
	a1Loaded, ok := loaded.Node(a1.ID)
	require.True(t, ok)
	assert.False(t, a1Loaded.Active)
	assert.Equal(t, ResolveActivePath(s), ResolveActivePath(loaded))
}

func TestFromNodesRejectsTwoActiveSiblings(t *testing.T) {
	h1 := NewHumanNode("hi", WithID("h1"))
	a1 := NewAINode("one", WithID("a1"), WithParentID("h1"))
	a2 := NewAINode("two", WithID("a2"), WithParentID("h1"))
	// both active: corrupted payload
	a1.Active = true
	a2.Active = true

	_, err := FromNodes([]*Node{h1, a1, a2})
	require.Error(t, err)

	var ierr *InvariantViolationError
	require.ErrorAs(t, err, &ierr)
}
