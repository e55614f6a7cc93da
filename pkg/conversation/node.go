// Package conversation implements the branching message history of a chat
// session: an append-only node set linked by parent-id references, a
// deterministic active-path resolver, and the branch switch/fork/resend
// mutation layer. Edits and regenerations create sibling nodes under a
// shared parent; the Active flag on each node selects which timeline is the
// canonical one for display and for model context.
package conversation

import (
	"time"

	"github.com/google/uuid"
)

// NodeID identifies a message node within one conversation. IDs are opaque
// strings; generated ids are uuids, but callers may supply their own so that
// retried sends stay idempotent.
type NodeID string

func (id NodeID) String() string {
	return string(id)
}

const (
	// RootParentID is the sentinel parent id carried by the single root node
	// of a conversation.
	RootParentID NodeID = "first"

	// ProvisionalID is the reserved id of the in-flight streaming node. It is
	// never inserted into the committed node set.
	ProvisionalID NodeID = "temp"
)

// NewNodeID returns a fresh random node id.
func NewNodeID() NodeID {
	return NodeID(uuid.NewString())
}

// Kind tells who produced a node.
type Kind string

const (
	KindHuman  Kind = "human"
	KindAI     Kind = "ai"
	KindSystem Kind = "system"
)

// Role is the wire-level chat role a node maps to when compiled into a
// prompt payload.
type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// Role returns the chat role for a node kind.
func (k Kind) Role() Role {
	switch k {
	case KindAI:
		return RoleAssistant
	case KindSystem:
		return RoleSystem
	default:
		return RoleUser
	}
}

// RoleHint carries the UI-level flavor of a node, orthogonal to its Kind.
type RoleHint string

const (
	HintMessage      RoleHint = "message"
	HintContinuation RoleHint = "continuation"
	HintRegeneration RoleHint = "regeneration"
	HintDraft        RoleHint = "draft"
)

// Fingerprint distinguishes a committed message from a not-yet-sent draft.
type Fingerprint string

const (
	FingerprintCommitted Fingerprint = "committed"
	FingerprintDraft     Fingerprint = "draft"
)

// Node is a single message in the conversation tree. After insertion a node
// is immutable except for the Active flag; the one sanctioned exception is
// draft solidification, which rewrites Text and Fingerprint in place.
type Node struct {
	ID          NodeID      `json:"id" yaml:"id"`
	ParentID    NodeID      `json:"parentID" yaml:"parentID"`
	Kind        Kind        `json:"kind" yaml:"kind"`
	Text        string      `json:"text" yaml:"text"`
	Active      bool        `json:"active" yaml:"active"`
	Source      string      `json:"source,omitempty" yaml:"source,omitempty"`
	CreatedAt   time.Time   `json:"createdAt" yaml:"createdAt"`
	Hint        RoleHint    `json:"roleHint" yaml:"roleHint"`
	Fingerprint Fingerprint `json:"fingerprint" yaml:"fingerprint"`
}

// IsDraft reports whether the node is an uncommitted fork draft.
func (n *Node) IsDraft() bool {
	return n.Fingerprint == FingerprintDraft
}

// Clone returns a value copy of the node.
func (n *Node) Clone() *Node {
	c := *n
	return &c
}

type NodeOption func(*Node)

func WithID(id NodeID) NodeOption {
	return func(n *Node) {
		n.ID = id
	}
}

func WithParentID(parentID NodeID) NodeOption {
	return func(n *Node) {
		n.ParentID = parentID
	}
}

func WithSource(source string) NodeOption {
	return func(n *Node) {
		n.Source = source
	}
}

func WithTime(t time.Time) NodeOption {
	return func(n *Node) {
		n.CreatedAt = t
	}
}

func WithActive(active bool) NodeOption {
	return func(n *Node) {
		n.Active = active
	}
}

func WithHint(hint RoleHint) NodeOption {
	return func(n *Node) {
		n.Hint = hint
	}
}

// NewNode builds a committed, active node of the given kind. The parent id
// defaults to the root sentinel so that the first node of a conversation
// needs no explicit option.
func NewNode(kind Kind, text string, options ...NodeOption) *Node {
	ret := &Node{
		ID:          NewNodeID(),
		ParentID:    RootParentID,
		Kind:        kind,
		Text:        text,
		Active:      true,
		CreatedAt:   time.Now(),
		Hint:        HintMessage,
		Fingerprint: FingerprintCommitted,
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

func NewHumanNode(text string, options ...NodeOption) *Node {
	return NewNode(KindHuman, text, options...)
}

func NewAINode(text string, options ...NodeOption) *Node {
	return NewNode(KindAI, text, options...)
}

func NewSystemNode(text string, options ...NodeOption) *Node {
	return NewNode(KindSystem, text, options...)
}

// NewDraftNode builds a provisional human node as created by a fork. It is
// active immediately so the fork shows up in the rendered path, but carries a
// draft fingerprint until the user commits real text.
func NewDraftNode(text string, options ...NodeOption) *Node {
	node := NewNode(KindHuman, text, options...)
	node.Hint = HintDraft
	node.Fingerprint = FingerprintDraft
	return node
}
