package conversation

import (
	"github.com/rs/zerolog/log"
)

// Store owns the committed node set of one conversation.
//
// Nodes are connected through parent-id string links over a flat id-keyed
// map; there are no direct pointers between nodes, so traversal always goes
// through id lookup. Per-parent child lists are kept in insertion order,
// which is what the active-path resolver falls back to when no child is
// explicitly active.
//
// Append is the only way into the committed set. It validates parent
// references and the single-root invariant and returns a *ValidationError
// soft failure instead of mutating anything when a node is malformed.
type Store struct {
	nodes    map[NodeID]*Node
	children map[NodeID][]NodeID
	order    []NodeID
	rootID   NodeID
}

func NewStore() *Store {
	return &Store{
		nodes:    make(map[NodeID]*Node),
		children: make(map[NodeID][]NodeID),
	}
}

// Len returns the number of committed nodes.
func (s *Store) Len() int {
	return len(s.nodes)
}

// RootID returns the id of the root node, or "" for an empty store.
func (s *Store) RootID() NodeID {
	return s.rootID
}

// Node looks up a node by id.
func (s *Store) Node(id NodeID) (*Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// Children returns the ids of a node's children in insertion order.
func (s *Store) Children(id NodeID) []NodeID {
	return append([]NodeID(nil), s.children[id]...)
}

// Siblings returns all nodes sharing the given parent id, in insertion
// order. The presentation layer uses this for its branch-count indicator.
func (s *Store) Siblings(parentID NodeID) []*Node {
	ids := s.children[parentID]
	ret := make([]*Node, 0, len(ids))
	for _, id := range ids {
		ret = append(ret, s.nodes[id])
	}
	return ret
}

// ResolveParentFor picks the parent for a new node: an explicitly requested
// parent (a fork target) wins; otherwise the current active-path tail; for
// an empty conversation, the root sentinel.
func (s *Store) ResolveParentFor(requested NodeID) NodeID {
	if requested != "" {
		return requested
	}
	path := ResolveActivePath(s)
	if len(path) == 0 {
		return RootParentID
	}
	return path[len(path)-1]
}

// Append validates and inserts a node.
//
// Rejections (orphan parent, duplicate id, second root, reserved id) come
// back as *ValidationError with the store untouched. When the new node is
// active and a sibling under the same parent is also active, that sibling is
// flipped inactive; descendants of the displaced sibling are left alone --
// cascading deactivation is branch-switch semantics and belongs to the
// Manager.
func (s *Store) Append(node *Node) (*Node, error) {
	if node == nil {
		return nil, newValidationError("append", "", "nil node")
	}
	if node.ID == "" {
		node.ID = NewNodeID()
	}
	if node.ID == ProvisionalID {
		return nil, newValidationError("append", node.ID, "reserved provisional id cannot be committed")
	}
	if _, exists := s.nodes[node.ID]; exists {
		return nil, newValidationError("append", node.ID, "duplicate node id")
	}

	if node.ParentID == RootParentID {
		if s.rootID != "" {
			return nil, newValidationError("append", node.ID, "conversation already has a root")
		}
	} else {
		if _, ok := s.nodes[node.ParentID]; !ok {
			return nil, newValidationError("append", node.ID, "parent "+node.ParentID.String()+" not found")
		}
	}

	if node.Active {
		for _, siblingID := range s.children[node.ParentID] {
			sibling := s.nodes[siblingID]
			if sibling.Active {
				sibling.Active = false
			}
		}
	}

	s.nodes[node.ID] = node
	s.children[node.ParentID] = append(s.children[node.ParentID], node.ID)
	s.order = append(s.order, node.ID)
	if node.ParentID == RootParentID {
		s.rootID = node.ID
	}

	log.Debug().
		Str("node_id", node.ID.String()).
		Str("parent_id", node.ParentID.String()).
		Str("kind", string(node.Kind)).
		Bool("active", node.Active).
		Int("node_count", len(s.nodes)).
		Msg("appended conversation node")

	return node, nil
}

// Export returns value copies of all nodes in insertion order, suitable for
// serialization.
func (s *Store) Export() []*Node {
	ret := make([]*Node, 0, len(s.order))
	for _, id := range s.order {
		ret = append(ret, s.nodes[id].Clone())
	}
	return ret
}

// FromNodes rebuilds a store from a previously exported node list. Unlike
// Append it preserves every Active flag exactly as recorded; it still
// validates references, so a truncated or reordered payload is rejected.
func FromNodes(nodes []*Node) (*Store, error) {
	s := NewStore()
	for _, n := range nodes {
		if n == nil {
			return nil, newValidationError("load", "", "nil node")
		}
		node := n.Clone()
		if _, exists := s.nodes[node.ID]; exists {
			return nil, newValidationError("load", node.ID, "duplicate node id")
		}
		if node.ParentID == RootParentID {
			if s.rootID != "" {
				return nil, newValidationError("load", node.ID, "conversation already has a root")
			}
		} else if _, ok := s.nodes[node.ParentID]; !ok {
			return nil, newValidationError("load", node.ID, "parent "+node.ParentID.String()+" not found")
		}
		s.nodes[node.ID] = node
		s.children[node.ParentID] = append(s.children[node.ParentID], node.ID)
		s.order = append(s.order, node.ID)
		if node.ParentID == RootParentID {
			s.rootID = node.ID
		}
	}
	if err := s.CheckInvariants(); err != nil {
		return nil, err
	}
	return s, nil
}

// CheckInvariants verifies the structural invariants of the node set.
// A non-nil result is an *InvariantViolationError listing every violation
// found; callers log it and treat the conversation as fatal rather than
// rendering an inconsistent tree.
func (s *Store) CheckInvariants() error {
	var violations []string

	roots := 0
	for _, id := range s.order {
		if s.nodes[id].ParentID == RootParentID {
			roots++
		}
	}
	if roots > 1 {
		violations = append(violations, "more than one root node")
	}

	for parentID, ids := range s.children {
		active := 0
		for _, id := range ids {
			if s.nodes[id].Active {
				active++
			}
		}
		if active > 1 {
			violations = append(violations, "multiple active siblings under "+parentID.String())
		}
	}

	if len(violations) > 0 {
		err := &InvariantViolationError{Violations: violations}
		log.Error().Err(err).Msg("conversation invariants violated")
		return err
	}
	return nil
}
