// Package tokens counts prompt and completion tokens. Counts come from
// tiktoken when the model's encoding is known; Estimate provides the
// chars/4 fallback used for streamed output and unknown models.
package tokens

import (
	"math"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Counter resolves tokenizer codecs per model and caches them.
type Counter struct {
	mu    sync.RWMutex
	cache map[tokenizer.Encoding]tokenizer.Codec
}

// NewCounter creates a token counter.
func NewCounter() *Counter {
	return &Counter{cache: make(map[tokenizer.Encoding]tokenizer.Codec)}
}

// Estimate approximates a token count from character length. Always at
// least 1 for non-empty text.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	n := int(math.Ceil(float64(len(text)) / 4))
	if n < 1 {
		n = 1
	}
	return n
}

// CountText counts tokens in text for the given model, falling back to
// Estimate when no codec is available.
func (c *Counter) CountText(model, text string) int {
	codec, err := c.codec(model)
	if err != nil {
		return Estimate(text)
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return Estimate(text)
	}
	return len(ids)
}

func (c *Counter) codec(model string) (tokenizer.Codec, error) {
	if codec, err := tokenizer.ForModel(tokenizer.Model(model)); err == nil {
		return codec, nil
	}

	encoding := modelToEncoding(model)

	c.mu.RLock()
	cached, ok := c.cache[encoding]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[encoding] = codec
	c.mu.Unlock()
	return codec, nil
}

// modelToEncoding maps model families to their encodings. Unknown and
// future models default to o200k_base.
func modelToEncoding(model string) tokenizer.Encoding {
	model = strings.ToLower(model)

	switch {
	case strings.HasPrefix(model, "gpt-5"),
		strings.HasPrefix(model, "gpt-4.1"),
		strings.HasPrefix(model, "gpt-4o"),
		strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"),
		strings.HasPrefix(model, "o4"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-4"),
		strings.HasPrefix(model, "gpt-3.5"),
		strings.HasPrefix(model, "text-embedding"):
		return tokenizer.Cl100kBase
	default:
		return tokenizer.O200kBase
	}
}
