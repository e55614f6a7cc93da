package memory

import (
	"github.com/pkg/errors"
	"github.com/tiktoken-go/tokenizer"
)

// Counter counts tokens for one model family. Counts are approximations of
// the provider's own accounting, which is why the compiler's budget check is
// advisory and callers re-verify before the network call.
type Counter interface {
	Count(text string) (int, error)
}

// TiktokenCounter counts with a tiktoken codec resolved per model variant,
// falling back to cl100k_base for variants tiktoken does not know (local
// models served through ollama, mostly).
type TiktokenCounter struct {
	codec tokenizer.Codec
}

func NewTiktokenCounter(variant string) (*TiktokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.Model(variant))
	if err != nil {
		codec, err = tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			return nil, errors.Wrap(err, "could not create tokenizer codec")
		}
	}
	return &TiktokenCounter{codec: codec}, nil
}

func (c *TiktokenCounter) Count(text string) (int, error) {
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return 0, errors.Wrap(err, "could not encode text")
	}
	return len(ids), nil
}

var _ Counter = (*TiktokenCounter)(nil)
