// Package chat wires the conversation tree, the context window compiler and
// a model provider into a session: one conversation, one persona, one
// generation at a time.
package chat

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/figaro/pkg/conversation"
	"github.com/go-go-golems/figaro/pkg/events"
	"github.com/go-go-golems/figaro/pkg/memory"
	"github.com/go-go-golems/figaro/pkg/persistence"
	"github.com/go-go-golems/figaro/pkg/persona"
	"github.com/go-go-golems/figaro/pkg/providers"
)

// ErrGenerationInProgress is returned when an operation that mutates the
// conversation is attempted while a generation is running.
var ErrGenerationInProgress = errors.New("generation already in progress")

// ErrEmptyCompletion is returned when the provider finished without
// producing any text. Nothing is committed; the human node stays eligible
// for resend.
var ErrEmptyCompletion = errors.New("provider returned an empty completion")

// Session owns one conversation. All mutations go through it, one at a
// time; reads are safe while a generation streams.
type Session struct {
	ID string

	store   *conversation.Store
	manager *conversation.Manager

	persona  *persona.Persona
	provider providers.Provider

	compiler *memory.Compiler
	budget   memory.Budget
	chunks   []memory.Chunk
	vars     map[string]interface{}

	publisher *events.PublisherManager
	persist   persistence.Store

	mu              sync.Mutex
	draft           string
	generating      bool
	cancel          context.CancelFunc
	provisionalText string
}

type SessionOption func(*Session) error

func WithSessionID(id string) SessionOption {
	return func(s *Session) error {
		s.ID = id
		return nil
	}
}

// WithStore starts the session from a restored conversation tree instead of
// an empty one.
func WithStore(store *conversation.Store) SessionOption {
	return func(s *Session) error {
		s.store = store
		return nil
	}
}

func WithBudget(b memory.Budget) SessionOption {
	return func(s *Session) error {
		s.budget = b
		return nil
	}
}

func WithCounter(counter memory.Counter) SessionOption {
	return func(s *Session) error {
		s.compiler = memory.NewCompiler(counter)
		return nil
	}
}

// WithChunks supplies pre-ranked retrieval context included verbatim in
// every request.
func WithChunks(chunks []memory.Chunk) SessionOption {
	return func(s *Session) error {
		s.chunks = chunks
		return nil
	}
}

// WithTemplateVars sets the variables available to the persona's
// instruction template.
func WithTemplateVars(vars map[string]interface{}) SessionOption {
	return func(s *Session) error {
		s.vars = vars
		return nil
	}
}

func WithPublisherManager(publisher *events.PublisherManager) SessionOption {
	return func(s *Session) error {
		s.publisher = publisher
		return nil
	}
}

func WithPersistence(store persistence.Store) SessionOption {
	return func(s *Session) error {
		s.persist = store
		return nil
	}
}

func NewSession(p *persona.Persona, provider providers.Provider, options ...SessionOption) (*Session, error) {
	budget, ok := memory.BudgetForVariant(p.Variant)
	if !ok {
		log.Warn().Str("variant", p.Variant).
			Int("context_len", budget.ContextLen).
			Msg("unknown variant, using fallback context budget")
	}

	ret := &Session{
		ID:        uuid.NewString(),
		store:     conversation.NewStore(),
		persona:   p,
		provider:  provider,
		budget:    budget,
		publisher: events.NewPublisherManager(),
	}

	for _, o := range options {
		if err := o(ret); err != nil {
			return nil, err
		}
	}

	ret.manager = conversation.NewManager(ret.store)

	if ret.compiler == nil {
		counter, err := memory.NewTiktokenCounter(p.Variant)
		if err != nil {
			return nil, err
		}
		ret.compiler = memory.NewCompiler(counter)
	}

	return ret, nil
}

// LoadSession restores a session from its persisted conversation.
func LoadSession(
	ctx context.Context,
	sessionID string,
	store persistence.Store,
	p *persona.Persona,
	provider providers.Provider,
	options ...SessionOption,
) (*Session, error) {
	payload, err := store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	tree, err := conversation.UnmarshalStore(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "could not restore session %s", sessionID)
	}

	options = append([]SessionOption{
		WithSessionID(sessionID),
		WithStore(tree),
		WithPersistence(store),
	}, options...)

	return NewSession(p, provider, options...)
}

func (s *Session) Store() *conversation.Store {
	return s.store
}

func (s *Session) PublisherManager() *events.PublisherManager {
	return s.publisher
}

// SetDraft stores scratch text the user is composing. It lives outside the
// tree; Send consumes it only when the caller passes it explicitly.
func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = text
}

func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// ActivePath returns the committed active path, root to leaf.
func (s *Session) ActivePath() []*conversation.Node {
	return conversation.ResolveActiveNodes(s.store)
}

// ActivePathWithProvisional appends the in-flight provisional response to
// the active path while a generation streams. The provisional node carries
// the reserved id and is never part of the store.
func (s *Session) ActivePathWithProvisional() []*conversation.Node {
	path := conversation.ResolveActiveNodes(s.store)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.generating {
		return path
	}

	parentID := conversation.RootParentID
	if len(path) > 0 {
		parentID = path[len(path)-1].ID
	}

	return append(path, &conversation.Node{
		ID:          conversation.ProvisionalID,
		ParentID:    parentID,
		Kind:        conversation.KindAI,
		Text:        s.provisionalText,
		Active:      true,
		Hint:        conversation.HintMessage,
		Fingerprint: conversation.FingerprintCommitted,
	})
}

func (s *Session) ListSiblings(parentID conversation.NodeID) []*conversation.Node {
	return s.store.Siblings(parentID)
}

// SwitchBranch moves the active selection to the target node.
func (s *Session) SwitchBranch(ctx context.Context, targetID conversation.NodeID) error {
	if err := s.gateMutation(); err != nil {
		return err
	}

	if err := s.manager.SwitchBranch(targetID); err != nil {
		return err
	}

	s.persistState(ctx)
	return nil
}

// Fork creates an active draft node under the given parent, the starting
// point of an alternative branch.
func (s *Session) Fork(ctx context.Context, parentID conversation.NodeID, draftText string) (*conversation.Node, error) {
	if err := s.gateMutation(); err != nil {
		return nil, err
	}

	node, err := s.manager.Fork(parentID, draftText)
	if err != nil {
		return nil, err
	}

	s.persistState(ctx)
	return node, nil
}

// SolidifyDraft commits a draft node's text without sending it.
func (s *Session) SolidifyDraft(ctx context.Context, id conversation.NodeID, text string) (*conversation.Node, error) {
	if err := s.gateMutation(); err != nil {
		return nil, err
	}

	node, err := s.manager.Solidify(id, text)
	if err != nil {
		return nil, err
	}

	s.persistState(ctx)
	return node, nil
}

// CompileContext runs the compiler against the current active path without
// touching any state, for budget inspection.
func (s *Session) CompileContext(currentTurn string) (*memory.CompiledMemory, error) {
	instructions, err := s.renderInstructions()
	if err != nil {
		return nil, err
	}

	return s.compiler.Compile(memory.CompileInput{
		History:      conversation.ResolveActiveNodes(s.store),
		Instructions: instructions,
		CurrentTurn:  currentTurn,
		Chunks:       s.chunks,
		Budget:       s.budget,
	})
}

// CancelGeneration aborts the running generation, if any. The partial text
// is discarded; the event stream sees an interrupt.
func (s *Session) CancelGeneration() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Send commits the user's text as the next turn on the active path and
// streams a response for it. The text lands in the tree only after the
// compiled request fits the budget, so a budget failure leaves no trace. If
// the active leaf is a fork draft, it is solidified with the text instead of
// appending a new node.
func (s *Session) Send(ctx context.Context, text string) (*conversation.Node, error) {
	if err := s.beginGeneration(); err != nil {
		return nil, err
	}

	path := conversation.ResolveActiveNodes(s.store)

	history := path
	var draftLeaf *conversation.Node
	if len(path) > 0 && path[len(path)-1].IsDraft() {
		draftLeaf = path[len(path)-1]
		history = path[:len(path)-1]
	}

	mem, instructions, err := s.compile(history, text)
	if err != nil {
		s.endGeneration()
		return nil, err
	}

	var human *conversation.Node
	if draftLeaf != nil {
		human, err = s.manager.Solidify(draftLeaf.ID, text)
	} else {
		parentID := s.store.ResolveParentFor("")
		human, err = s.store.Append(conversation.NewHumanNode(text, conversation.WithParentID(parentID)))
	}
	if err != nil {
		s.endGeneration()
		return nil, err
	}

	s.mu.Lock()
	s.draft = ""
	s.mu.Unlock()
	s.persistState(ctx)

	return s.generate(ctx, human, text, mem, instructions)
}

// Resend re-issues the active leaf without creating a new node. The leaf
// must be a human node whose prior attempt produced no committed response.
func (s *Session) Resend(ctx context.Context) (*conversation.Node, error) {
	if err := s.beginGeneration(); err != nil {
		return nil, err
	}

	path := conversation.ResolveActiveNodes(s.store)
	if len(path) == 0 {
		s.endGeneration()
		return nil, errors.New("nothing to resend in an empty conversation")
	}
	leaf := path[len(path)-1]

	if err := s.manager.CanResend(leaf.ID); err != nil {
		s.endGeneration()
		return nil, err
	}

	mem, instructions, err := s.compile(path[:len(path)-1], leaf.Text)
	if err != nil {
		s.endGeneration()
		return nil, err
	}

	return s.generate(ctx, leaf, leaf.Text, mem, instructions)
}

func (s *Session) gateMutation() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generating {
		return ErrGenerationInProgress
	}
	return nil
}

// beginGeneration flips the generating flag; callers must end the
// generation on every path afterwards.
func (s *Session) beginGeneration() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generating {
		return ErrGenerationInProgress
	}
	s.generating = true
	s.provisionalText = ""
	return nil
}

func (s *Session) endGeneration() {
	s.mu.Lock()
	s.generating = false
	s.cancel = nil
	s.provisionalText = ""
	s.mu.Unlock()
}

func (s *Session) renderInstructions() (string, error) {
	if s.persona == nil {
		return "", nil
	}
	return s.persona.Render(s.vars)
}

func (s *Session) compile(history []*conversation.Node, currentTurn string) (*memory.CompiledMemory, string, error) {
	instructions, err := s.renderInstructions()
	if err != nil {
		return nil, "", err
	}

	mem, err := s.compiler.Compile(memory.CompileInput{
		History:      history,
		Instructions: instructions,
		CurrentTurn:  currentTurn,
		Chunks:       s.chunks,
		Budget:       s.budget,
	})
	if err != nil {
		return nil, "", err
	}

	if err := memory.CheckFits(mem, s.budget); err != nil {
		return nil, "", err
	}

	return mem, instructions, nil
}

// generate runs the provider call for the given human node and merges the
// outcome back into the tree. Only a final event with non-empty text
// commits an ai node; everything else leaves the store untouched.
func (s *Session) generate(
	ctx context.Context,
	human *conversation.Node,
	userPrompt string,
	mem *memory.CompiledMemory,
	instructions string,
) (*conversation.Node, error) {
	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer s.endGeneration()

	history := make([]providers.Turn, 0, len(mem.History))
	for _, entry := range mem.History {
		history = append(history, providers.Turn{Role: entry.Role, Content: entry.Text})
	}

	prompt := instructions
	if block := memory.RenderContextBlock(s.chunks); block != "" {
		if prompt != "" {
			prompt += "\n\n"
		}
		prompt += block
	}

	req := &providers.Request{
		Variant:      s.persona.Variant,
		Instructions: prompt,
		UserPrompt:   userPrompt,
		History:      history,
		Sampling:     s.persona.Sampling,
		SessionID:    s.ID,
		ParentID:     human.ID,
	}

	receipt, err := s.provider.Complete(genCtx, req, s.sink())
	if err != nil {
		log.Warn().Err(err).
			Str("session_id", s.ID).
			Str("parent_id", human.ID.String()).
			Msg("generation failed, discarding provisional response")
		return nil, err
	}
	if receipt.Text == "" {
		log.Warn().
			Str("session_id", s.ID).
			Str("parent_id", human.ID.String()).
			Msg("empty completion, discarding provisional response")
		return nil, ErrEmptyCompletion
	}

	node, err := s.store.Append(conversation.NewAINode(receipt.Text,
		conversation.WithParentID(human.ID),
		conversation.WithSource(receipt.Model),
	))
	if err != nil {
		return nil, err
	}

	s.persistState(ctx)

	log.Info().
		Str("session_id", s.ID).
		Str("node_id", node.ID.String()).
		Str("model", receipt.Model).
		Dur("duration", receipt.Duration).
		Msg("committed response")

	return node, nil
}

// sink returns the publish callback handed to the provider: it mirrors the
// accumulated completion into the provisional node and forwards every event
// to the session's publishers.
func (s *Session) sink() func(events.Event) {
	return func(e events.Event) {
		switch ev := e.(type) {
		case *events.EventPartialCompletion:
			s.mu.Lock()
			s.provisionalText = ev.Completion
			s.mu.Unlock()
		case *events.EventFinal:
			s.mu.Lock()
			s.provisionalText = ev.Text
			s.mu.Unlock()
		}

		if s.publisher != nil {
			s.publisher.PublishBlind(e)
		}
	}
}

// persistState snapshots the conversation to the persistence store.
// Last-write-wins; failures are logged and do not fail the operation that
// triggered the save.
func (s *Session) persistState(ctx context.Context) {
	if s.persist == nil {
		return
	}

	payload, err := conversation.MarshalStore(s.store)
	if err != nil {
		log.Warn().Err(err).Str("session_id", s.ID).Msg("could not serialize conversation")
		return
	}

	if err := s.persist.Set(ctx, s.ID, payload); err != nil {
		log.Warn().Err(err).Str("session_id", s.ID).Msg("could not persist conversation")
	}
}

// Delete removes the whole conversation from the persistence store.
func (s *Session) Delete(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	return s.persist.Delete(ctx, s.ID)
}
