// Package memory compiles an unbounded conversation history into a
// token-budgeted prompt payload. The compiler packs a sliding window of the
// most recent messages that fit the model variant's context length, after
// reserving room for the fixed prompt parts and the response.
package memory

import (
	"strings"
)

// Budget is the token envelope of one model variant. ResponseReservation is
// always subtracted before any history is packed, so the model has room to
// answer.
type Budget struct {
	ContextLen          int `json:"context_len" yaml:"context_len"`
	ResponseReservation int `json:"response_reservation" yaml:"response_reservation"`
}

// HistoryAllowance returns the budget left for history once the fixed cost
// is reserved. Negative means even the minimal payload does not fit.
func (b Budget) HistoryAllowance(fixedCost int) int {
	return b.ContextLen - b.ResponseReservation - fixedCost
}

// defaultBudgets carries the context windows of the variants we know about.
// Unknown variants fall back to the most conservative entry.
var defaultBudgets = map[string]Budget{
	"gpt-4o":         {ContextLen: 128000, ResponseReservation: 4096},
	"gpt-4o-mini":    {ContextLen: 128000, ResponseReservation: 4096},
	"gpt-4-turbo":    {ContextLen: 128000, ResponseReservation: 4096},
	"gpt-4":          {ContextLen: 8192, ResponseReservation: 1024},
	"gpt-3.5-turbo":  {ContextLen: 16385, ResponseReservation: 1024},
	"llama3":         {ContextLen: 8192, ResponseReservation: 1024},
	"llama3.1":       {ContextLen: 131072, ResponseReservation: 4096},
	"mistral":        {ContextLen: 32768, ResponseReservation: 2048},
	"gemma2":         {ContextLen: 8192, ResponseReservation: 1024},
}

const fallbackVariant = "gpt-4"

// BudgetForVariant looks up the budget of a model variant. Versioned names
// ("gpt-4o-2024-08-06", "llama3:8b") resolve through their base name.
func BudgetForVariant(variant string) (Budget, bool) {
	if b, ok := defaultBudgets[variant]; ok {
		return b, true
	}
	base := variant
	if idx := strings.IndexAny(base, ":"); idx > 0 {
		base = base[:idx]
	}
	for {
		if b, ok := defaultBudgets[base]; ok {
			return b, true
		}
		idx := strings.LastIndex(base, "-")
		if idx <= 0 {
			break
		}
		base = base[:idx]
	}
	return defaultBudgets[fallbackVariant], false
}
