package memory

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/figaro/pkg/conversation"
)

// ErrBudgetExceeded is returned when not even the minimal payload (system
// instructions + context block + current turn, zero history) fits the
// variant's budget. The send must be aborted before any network call, with
// no state change.
var ErrBudgetExceeded = errors.New("compiled memory exceeds context budget")

// Chunk is one retrieval-context block, supplied pre-ranked by an external
// retrieval provider and included verbatim.
type Chunk struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Content string `json:"content" yaml:"content"`
}

const (
	contextBlockHeader = "## CONTEXT ##"
	contextBlockFooter = "## CONTEXT ENDS ##"
)

// RenderContextBlock concatenates retrieval chunks between explicit
// delimiters, each chunk tagged with its id and name. Returns "" for no
// chunks so the block costs nothing when retrieval is off.
func RenderContextBlock(chunks []Chunk) string {
	if len(chunks) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(contextBlockHeader)
	sb.WriteString("\n")
	for _, chunk := range chunks {
		fmt.Fprintf(&sb, "[%s] %s\n%s\n", chunk.ID, chunk.Name, chunk.Content)
	}
	sb.WriteString(contextBlockFooter)
	return sb.String()
}

// HistoryEntry is one (role, text) pair of the compiled history.
type HistoryEntry struct {
	Role conversation.Role `json:"role" yaml:"role"`
	Text string            `json:"text" yaml:"text"`
}

// CompiledMemory is the compiler's output: the accepted history in
// chronological order, the total token cost, and the ids of the accepted
// messages.
type CompiledMemory struct {
	History     []HistoryEntry                   `json:"history"`
	TokenCount  int                              `json:"token_count"`
	IncludedIDs map[conversation.NodeID]struct{} `json:"-"`
}

// CompileInput bundles everything the compiler needs for one request.
// History is the active-path node sequence, oldest first, excluding the
// current turn; draft nodes are filtered out during compilation.
type CompileInput struct {
	History      []*conversation.Node
	Instructions string
	CurrentTurn  string
	Chunks       []Chunk
	Budget       Budget
}

// Compiler packs history into a budget using a sliding window: newest
// messages first, whole messages only, stop at the first one that does not
// fit.
type Compiler struct {
	counter Counter
}

func NewCompiler(counter Counter) *Compiler {
	return &Compiler{counter: counter}
}

// Compile tokenizes the fixed prompt parts, reserves them plus the response
// margin, then walks the history newest to oldest admitting whole messages
// until the remaining budget runs out. The accepted suffix is reversed back
// into chronological order.
func (c *Compiler) Compile(in CompileInput) (*CompiledMemory, error) {
	fixedCost, err := c.fixedCost(in)
	if err != nil {
		return nil, err
	}

	remaining := in.Budget.HistoryAllowance(fixedCost)
	if remaining < 0 {
		return nil, errors.Wrapf(ErrBudgetExceeded,
			"fixed cost %d plus reservation %d exceeds context length %d",
			fixedCost, in.Budget.ResponseReservation, in.Budget.ContextLen)
	}

	candidates := make([]*conversation.Node, 0, len(in.History))
	for _, node := range in.History {
		if node.IsDraft() {
			continue
		}
		candidates = append(candidates, node)
	}

	var accepted []*conversation.Node
	historyCost := 0
	for i := len(candidates) - 1; i >= 0; i-- {
		node := candidates[i]
		cost, err := c.counter.Count(node.Text)
		if err != nil {
			return nil, err
		}
		if historyCost+cost > remaining {
			break
		}
		historyCost += cost
		accepted = append(accepted, node)
	}

	mem := &CompiledMemory{
		History:     make([]HistoryEntry, 0, len(accepted)),
		TokenCount:  fixedCost + historyCost,
		IncludedIDs: make(map[conversation.NodeID]struct{}, len(accepted)),
	}
	// accepted is newest-first; reverse into chronological order
	for i := len(accepted) - 1; i >= 0; i-- {
		node := accepted[i]
		mem.History = append(mem.History, HistoryEntry{
			Role: node.Kind.Role(),
			Text: node.Text,
		})
		mem.IncludedIDs[node.ID] = struct{}{}
	}

	log.Debug().
		Int("fixed_cost", fixedCost).
		Int("history_cost", historyCost).
		Int("token_count", mem.TokenCount).
		Int("messages_included", len(mem.History)).
		Int("messages_dropped", len(candidates)-len(accepted)).
		Msg("compiled context window")

	return mem, nil
}

func (c *Compiler) fixedCost(in CompileInput) (int, error) {
	total := 0
	for _, text := range []string{in.Instructions, RenderContextBlock(in.Chunks), in.CurrentTurn} {
		if text == "" {
			continue
		}
		cost, err := c.counter.Count(text)
		if err != nil {
			return 0, err
		}
		total += cost
	}
	return total, nil
}

// CheckFits re-verifies a compiled memory against a budget. The compiler's
// own check is advisory because tokenizers are model-family approximations;
// callers run this once more right before issuing the network call.
func CheckFits(mem *CompiledMemory, b Budget) error {
	if mem.TokenCount > b.ContextLen-b.ResponseReservation {
		return errors.Wrapf(ErrBudgetExceeded,
			"token count %d exceeds %d", mem.TokenCount, b.ContextLen-b.ResponseReservation)
	}
	return nil
}
