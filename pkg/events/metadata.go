package events

// Usage reports token consumption for a single generation.
type Usage struct {
	InputTokens  int `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int `json:"output_tokens" yaml:"output_tokens"`
}

// GenerationData consolidates per-generation metadata shared by all events of
// one streaming run.
type GenerationData struct {
	Model      string  `json:"model,omitempty" yaml:"model,omitempty"`
	StopReason *string `json:"stop_reason,omitempty" yaml:"stop_reason,omitempty"`
	Usage      *Usage  `json:"usage,omitempty" yaml:"usage,omitempty"`
	DurationMs *int64  `json:"duration_ms,omitempty" yaml:"duration_ms,omitempty"`
}
