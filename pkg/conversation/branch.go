package conversation

import (
	"github.com/rs/zerolog/log"
)

// Manager is the mutation layer above the Store: branch switching, forking,
// draft solidification and resend eligibility. It owns the cascade semantics
// that Append deliberately does not apply.
type Manager struct {
	store *Store
}

func NewManager(store *Store) *Manager {
	return &Manager{store: store}
}

func (m *Manager) Store() *Store {
	return m.store
}

// SwitchBranch makes target the active node among its siblings.
//
// For a human target, every sibling that was active is flipped inactive and
// its whole descendant subtree is deactivated with it, regardless of
// descendant kind. The abandoned branch keeps its data but loses its
// remembered sub-selection: switching back later lands on the first-child
// fallback until the user re-selects explicitly.
//
// For an ai target only the immediate sibling set is adjusted; ai siblings
// only exist through regeneration and never carry a selection of their own
// worth preserving differently.
func (m *Manager) SwitchBranch(targetID NodeID) error {
	target, ok := m.store.Node(targetID)
	if !ok {
		return newValidationError("switch-branch", targetID, "target not found")
	}

	cascaded := 0
	for _, sibling := range m.store.Siblings(target.ParentID) {
		if sibling.ID == targetID {
			continue
		}
		wasActive := sibling.Active
		sibling.Active = false
		if wasActive && target.Kind == KindHuman {
			cascaded += m.deactivateSubtree(sibling.ID)
		}
	}
	target.Active = true

	log.Debug().
		Str("target_id", targetID.String()).
		Str("kind", string(target.Kind)).
		Int("descendants_deactivated", cascaded).
		Msg("switched branch")

	return m.store.CheckInvariants()
}

func (m *Manager) deactivateSubtree(id NodeID) int {
	count := 0
	for _, childID := range m.store.Children(id) {
		child, ok := m.store.Node(childID)
		if !ok {
			continue
		}
		if child.Active {
			child.Active = false
			count++
		}
		count += m.deactivateSubtree(childID)
	}
	return count
}

// Fork creates a new draft human node under parentID and makes it the active
// child. Only the direct siblings of the new node are flipped inactive: a
// draft is provisional, and destroying a nested active sub-path before the
// user actually commits would lose state the user may come back to.
func (m *Manager) Fork(parentID NodeID, draftText string) (*Node, error) {
	if parentID != RootParentID {
		if _, ok := m.store.Node(parentID); !ok {
			return nil, newValidationError("fork", parentID, "fork parent not found")
		}
	}

	draft := NewDraftNode(draftText, WithParentID(parentID))
	node, err := m.store.Append(draft)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("node_id", node.ID.String()).
		Str("parent_id", parentID.String()).
		Msg("forked draft branch")

	return node, nil
}

// Solidify commits a draft node in place: its text is replaced and its
// fingerprint flips to committed. From here on it is a normal human node
// going through the regular send pipeline.
func (m *Manager) Solidify(id NodeID, text string) (*Node, error) {
	node, ok := m.store.Node(id)
	if !ok {
		return nil, newValidationError("solidify", id, "node not found")
	}
	if !node.IsDraft() {
		return nil, newValidationError("solidify", id, "node is not a draft")
	}

	node.Text = text
	node.Fingerprint = FingerprintCommitted
	node.Hint = HintMessage

	log.Debug().Str("node_id", id.String()).Msg("solidified draft node")

	return node, nil
}

// CanResend reports whether the given human node may be resent: it must be
// the current active leaf and have no ai child (the prior attempt never
// produced a committed response). No node is created by a resend; the
// existing one is reused as the basis of a new completion request.
func (m *Manager) CanResend(id NodeID) error {
	node, ok := m.store.Node(id)
	if !ok {
		return newValidationError("resend", id, "node not found")
	}
	if node.Kind != KindHuman {
		return newValidationError("resend", id, "only human nodes can be resent")
	}

	path := ResolveActivePath(m.store)
	if len(path) == 0 || path[len(path)-1] != id {
		return newValidationError("resend", id, "node is not the active leaf")
	}

	for _, childID := range m.store.Children(id) {
		if child, ok := m.store.Node(childID); ok && child.Kind == KindAI {
			return newValidationError("resend", id, "node already has an ai response")
		}
	}

	return nil
}
