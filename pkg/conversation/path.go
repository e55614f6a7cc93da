package conversation

// ResolveActivePath computes the canonical root-to-leaf path of a
// conversation. It is a pure function of the node set: starting at the root,
// it descends into the active child when one exists and otherwise into the
// first child in insertion order, until it reaches a node with no children.
//
// The first-child fallback covers siblings whose subtree was deactivated by
// a branch switch (and legacy data with no explicit selection); the resolver
// never fails -- an empty store yields an empty path.
//
// Conversations are small and mutations are rare relative to rendering, so
// the path is recomputed from scratch on every call; there is no incremental
// index to keep consistent.
func ResolveActivePath(s *Store) []NodeID {
	if s == nil || s.rootID == "" {
		return nil
	}

	var path []NodeID
	current := s.rootID
	for current != "" {
		path = append(path, current)

		children := s.children[current]
		if len(children) == 0 {
			break
		}

		next := NodeID("")
		for _, childID := range children {
			if s.nodes[childID].Active {
				next = childID
				break
			}
		}
		if next == "" {
			next = children[0]
		}
		current = next
	}

	return path
}

// ResolveActiveNodes is ResolveActivePath with the nodes looked up.
func ResolveActiveNodes(s *Store) []*Node {
	ids := ResolveActivePath(s)
	ret := make([]*Node, 0, len(ids))
	for _, id := range ids {
		ret = append(ret, s.nodes[id])
	}
	return ret
}
