// Package tokenizer estimates token counts for embedding models.
package tokenizer

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// heuristicCharsPerToken is the fallback estimate (~4 chars per token)
// used when no BPE encoding is available for a model.
const heuristicCharsPerToken = 4

// fallbackEncoding covers OpenAI embedding and chat models and is a
// reasonable proxy for most others.
const fallbackEncoding = "cl100k_base"

// Counter counts tokens for one model. Deterministic for a given
// (text, model) pair and cheap enough to call per sentence.
type Counter struct {
	model string
	enc   *tiktoken.Tiktoken
}

var (
	mu       sync.Mutex
	counters = map[string]*Counter{}
)

// For returns a Counter for the given model. Unknown models fall back to
// cl100k_base, and if that fails too, to a chars/4 heuristic; token
// counting never blocks the pipeline. Counters are cached per model.
func For(model string) *Counter {
	mu.Lock()
	defer mu.Unlock()

	if c, ok := counters[model]; ok {
		return c
	}

	c := &Counter{model: model}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			slog.Warn("no tokenizer encoding available, using char heuristic", "model", model, "error", err)
			enc = nil
		}
	}
	c.enc = enc
	counters[model] = c
	return c
}

// Model returns the model this counter was built for.
func (c *Counter) Model() string {
	return c.model
}

// Count returns the token count of text, always >= 0.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.enc == nil {
		n := len([]rune(text))
		return (n + heuristicCharsPerToken - 1) / heuristicCharsPerToken
	}
	return len(c.enc.Encode(text, nil, nil))
}
