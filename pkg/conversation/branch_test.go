package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildBranchedConversation returns a store with
//
//	H1 -> A1 (inactive)
//	   -> A2 (active) -> A2a (active)
func buildBranchedConversation(t *testing.T) (*Store, *Node, *Node, *Node, *Node) {
	t.Helper()

	s := NewStore()
	h1, err := s.Append(NewHumanNode("Hi"))
	require.NoError(t, err)
	a1, err := s.Append(NewAINode("first answer", WithParentID(h1.ID)))
	require.NoError(t, err)
	a2, err := s.Append(NewAINode("second answer", WithParentID(h1.ID)))
	require.NoError(t, err)
	a2a, err := s.Append(NewHumanNode("follow-up", WithParentID(a2.ID)))
	require.NoError(t, err)

	require.False(t, a1.Active)
	require.True(t, a2.Active)
	require.True(t, a2a.Active)

	return s, h1, a1, a2, a2a
}

func TestSwitchBranchMovesActivePath(t *testing.T) {
	s, h1, a1, a2, _ := buildBranchedConversation(t)
	m := NewManager(s)

	require.Equal(t, a2.ID, ResolveActivePath(s)[1])

	require.NoError(t, m.SwitchBranch(a1.ID))

	path := ResolveActivePath(s)
	require.Equal(t, []NodeID{h1.ID, a1.ID}, path)
	assert.True(t, a1.Active)
	assert.False(t, a2.Active)
}

func TestSwitchBranchCascadeClearsAbandonedSubtree(t *testing.T) {
	// Switching between human siblings deactivates every descendant of the
	// abandoned branch; switching back does not restore the old
	// sub-selection. Intentional behavior, keep as is.
	s := NewStore()
	h1, err := s.Append(NewHumanNode("Hi"))
	require.NoError(t, err)
	a1, err := s.Append(NewAINode("answer", WithParentID(h1.ID)))
	require.NoError(t, err)
	h2, err := s.Append(NewHumanNode("tell me more", WithParentID(a1.ID)))
	require.NoError(t, err)
	a2, err := s.Append(NewAINode("more", WithParentID(h2.ID)))
	require.NoError(t, err)
	h2b, err := s.Append(NewHumanNode("actually, something else", WithParentID(a1.ID)))
	require.NoError(t, err)

	m := NewManager(s)
	require.NoError(t, m.SwitchBranch(h2b.ID))

	// The whole abandoned subtree under h2 is inactive now, not just h2.
	assert.False(t, h2.Active)
	assert.False(t, a2.Active)

	// Switching back reaches a2 only through the first-child fallback; its
	// flag stays down.
	require.NoError(t, m.SwitchBranch(h2.ID))
	assert.False(t, a2.Active)
	assert.Equal(t, []NodeID{h1.ID, a1.ID, h2.ID, a2.ID}, ResolveActivePath(s))
}

func TestSwitchBranchAITargetDoesNotCascade(t *testing.T) {
	s, _, a1, a2, a2a := buildBranchedConversation(t)
	m := NewManager(s)

	require.NoError(t, m.SwitchBranch(a1.ID))

	// ai sibling switch adjusts the sibling set only; A2's child keeps its
	// flag even though A2 itself went inactive.
	assert.False(t, a2.Active)
	assert.True(t, a2a.Active)
}

func TestSwitchBranchUnknownTarget(t *testing.T) {
	s, _, _, _, _ := buildBranchedConversation(t)
	m := NewManager(s)

	err := m.SwitchBranch("missing")
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestForkCreatesActiveDraftWithShallowFlip(t *testing.T) {
	// Scenario: H1 has active child A2 which has active child A2a. Forking
	// under H1 flips only A2; A2a keeps its flag for a later switch back.
	s, h1, _, a2, a2a := buildBranchedConversation(t)
	m := NewManager(s)

	draft, err := m.Fork(h1.ID, "new idea")
	require.NoError(t, err)

	assert.True(t, draft.Active)
	assert.True(t, draft.IsDraft())
	assert.Equal(t, HintDraft, draft.Hint)
	assert.False(t, a2.Active)
	assert.True(t, a2a.Active, "fork cascade must be shallower than switch cascade")

	require.Equal(t, []NodeID{h1.ID, draft.ID}, ResolveActivePath(s))

	// Switching back to A2 restores the old sub-path because A2a was left
	// untouched.
	require.NoError(t, m.SwitchBranch(a2.ID))
	require.Equal(t, []NodeID{h1.ID, a2.ID, a2a.ID}, ResolveActivePath(s))
}

func TestForkRejectsUnknownParent(t *testing.T) {
	s := NewStore()
	m := NewManager(s)

	_, err := m.Fork("missing", "draft")
	require.Error(t, err)
}

func TestSolidifyCommitsDraft(t *testing.T) {
	s, h1, _, _, _ := buildBranchedConversation(t)
	m := NewManager(s)

	draft, err := m.Fork(h1.ID, "rough idea")
	require.NoError(t, err)

	node, err := m.Solidify(draft.ID, "polished question")
	require.NoError(t, err)

	assert.Equal(t, "polished question", node.Text)
	assert.Equal(t, FingerprintCommitted, node.Fingerprint)
	assert.Equal(t, HintMessage, node.Hint)
	assert.False(t, node.IsDraft())
}

func TestSolidifyRejectsCommittedNode(t *testing.T) {
	s, h1, _, _, _ := buildBranchedConversation(t)
	m := NewManager(s)

	_, err := m.Solidify(h1.ID, "nope")
	require.Error(t, err)
}

func TestCanResendRequiresActiveLeafWithoutAIChild(t *testing.T) {
	s := NewStore()
	m := NewManager(s)

	h1, err := s.Append(NewHumanNode("Hi"))
	require.NoError(t, err)

	// leaf human node with no ai child: resendable
	require.NoError(t, m.CanResend(h1.ID))

	a1, err := s.Append(NewAINode("Hello", WithParentID(h1.ID)))
	require.NoError(t, err)

	// not the leaf anymore, and it has an ai response
	require.Error(t, m.CanResend(h1.ID))
	// ai nodes are never resendable
	require.Error(t, m.CanResend(a1.ID))
}
