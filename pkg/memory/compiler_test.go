package memory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/figaro/pkg/conversation"
)

// fakeCounter returns preset costs per exact text, and the word count for
// anything else.
type fakeCounter struct {
	costs map[string]int
}

func (f *fakeCounter) Count(text string) (int, error) {
	if cost, ok := f.costs[text]; ok {
		return cost, nil
	}
	return len(strings.Fields(text)), nil
}

func TestCompileSlidingWindow(t *testing.T) {
	// context_len = 100, fixed cost = 40, margin = 10 -> 50 left for
	// history; costs newest to oldest are 20, 25, 30: accept 20 and 25,
	// reject 30.
	counter := &fakeCounter{costs: map[string]int{
		"instructions": 30,
		"current turn": 10,
		"oldest":       30,
		"middle":       25,
		"newest":       20,
	}}

	oldest := conversation.NewHumanNode("oldest", conversation.WithID("n1"))
	middle := conversation.NewAINode("middle", conversation.WithID("n2"))
	newest := conversation.NewHumanNode("newest", conversation.WithID("n3"))

	mem, err := NewCompiler(counter).Compile(CompileInput{
		History:      []*conversation.Node{oldest, middle, newest},
		Instructions: "instructions",
		CurrentTurn:  "current turn",
		Budget:       Budget{ContextLen: 100, ResponseReservation: 10},
	})
	require.NoError(t, err)

	require.Len(t, mem.History, 2)
	assert.Equal(t, "middle", mem.History[0].Text)
	assert.Equal(t, conversation.RoleAssistant, mem.History[0].Role)
	assert.Equal(t, "newest", mem.History[1].Text)
	assert.Equal(t, conversation.RoleUser, mem.History[1].Role)

	assert.Equal(t, 85, mem.TokenCount)
	assert.Equal(t, map[conversation.NodeID]struct{}{
		"n2": {},
		"n3": {},
	}, mem.IncludedIDs)
}

func TestCompileMinimalPayloadTooLarge(t *testing.T) {
	counter := &fakeCounter{costs: map[string]int{
		"instructions": 95,
		"current turn": 10,
	}}

	_, err := NewCompiler(counter).Compile(CompileInput{
		Instructions: "instructions",
		CurrentTurn:  "current turn",
		Budget:       Budget{ContextLen: 100, ResponseReservation: 10},
	})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrBudgetExceeded)
}

func TestCompileEverythingFits(t *testing.T) {
	counter := &fakeCounter{}

	nodes := []*conversation.Node{
		conversation.NewHumanNode("a b c", conversation.WithID("n1")),
		conversation.NewAINode("d e", conversation.WithID("n2")),
	}

	mem, err := NewCompiler(counter).Compile(CompileInput{
		History:      nodes,
		Instructions: "be nice",
		CurrentTurn:  "hello there",
		Budget:       Budget{ContextLen: 1000, ResponseReservation: 100},
	})
	require.NoError(t, err)

	require.Len(t, mem.History, 2)
	assert.Equal(t, "a b c", mem.History[0].Text)
	assert.Equal(t, "d e", mem.History[1].Text)
	assert.Contains(t, mem.IncludedIDs, conversation.NodeID("n1"))
	assert.Contains(t, mem.IncludedIDs, conversation.NodeID("n2"))
}

func TestCompileStopsAtFirstOverflow(t *testing.T) {
	// The window never splits a message and never skips past one that does
	// not fit: included ids are always a contiguous most-recent suffix.
	counter := &fakeCounter{costs: map[string]int{
		"huge":  500,
		"small": 1,
		"tiny":  1,
	}}

	nodes := []*conversation.Node{
		conversation.NewHumanNode("small", conversation.WithID("n1")),
		conversation.NewAINode("huge", conversation.WithID("n2")),
		conversation.NewHumanNode("tiny", conversation.WithID("n3")),
	}

	mem, err := NewCompiler(counter).Compile(CompileInput{
		History: nodes,
		Budget:  Budget{ContextLen: 100, ResponseReservation: 10},
	})
	require.NoError(t, err)

	// n1 fits on its own but sits behind the huge message, so it is dropped
	// with it.
	require.Len(t, mem.History, 1)
	assert.Equal(t, "tiny", mem.History[0].Text)
}

func TestCompileFiltersDrafts(t *testing.T) {
	counter := &fakeCounter{}

	draft := conversation.NewDraftNode("work in progress", conversation.WithID("d1"))
	committed := conversation.NewHumanNode("committed", conversation.WithID("n1"))

	mem, err := NewCompiler(counter).Compile(CompileInput{
		History: []*conversation.Node{committed, draft},
		Budget:  Budget{ContextLen: 1000, ResponseReservation: 100},
	})
	require.NoError(t, err)

	require.Len(t, mem.History, 1)
	assert.Equal(t, "committed", mem.History[0].Text)
	assert.NotContains(t, mem.IncludedIDs, conversation.NodeID("d1"))
}

func TestRenderContextBlock(t *testing.T) {
	block := RenderContextBlock([]Chunk{
		{ID: "c1", Name: "notes.md", Content: "alpha"},
		{ID: "c2", Name: "plan.md", Content: "beta"},
	})

	assert.True(t, strings.HasPrefix(block, "## CONTEXT ##\n"))
	assert.True(t, strings.HasSuffix(block, "## CONTEXT ENDS ##"))
	assert.Contains(t, block, "[c1] notes.md\nalpha\n")
	assert.Contains(t, block, "[c2] plan.md\nbeta\n")

	assert.Equal(t, "", RenderContextBlock(nil))
}

func TestCheckFits(t *testing.T) {
	b := Budget{ContextLen: 100, ResponseReservation: 10}

	require.NoError(t, CheckFits(&CompiledMemory{TokenCount: 90}, b))
	err := CheckFits(&CompiledMemory{TokenCount: 91}, b)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrBudgetExceeded)
}

func TestBudgetForVariant(t *testing.T) {
	b, ok := BudgetForVariant("gpt-4")
	require.True(t, ok)
	assert.Equal(t, 8192, b.ContextLen)

	// versioned and tagged names resolve through their base name
	b, ok = BudgetForVariant("llama3:8b")
	require.True(t, ok)
	assert.Equal(t, 8192, b.ContextLen)

	b, ok = BudgetForVariant("gpt-4o-2024-08-06")
	require.True(t, ok)
	assert.Equal(t, 128000, b.ContextLen)

	// unknown variants fall back conservatively
	b, ok = BudgetForVariant("some-unknown-model")
	require.False(t, ok)
	assert.Equal(t, 8192, b.ContextLen)
}

func TestTiktokenCounterSmoke(t *testing.T) {
	counter, err := NewTiktokenCounter("gpt-4")
	require.NoError(t, err)

	n, err := counter.Count("hello world")
	require.NoError(t, err)
	assert.Greater(t, n, 0)

	// unknown variants get the cl100k fallback codec
	counter, err = NewTiktokenCounter("llama3")
	require.NoError(t, err)
	n, err = counter.Count("hello world")
	require.NoError(t, err)
	assert.Greater(t, n, 0)
}
