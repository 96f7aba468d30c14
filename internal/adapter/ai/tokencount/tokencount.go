// Package tokencount provides token counting for Oracle calls.
//
// It uses tiktoken-go to count prompt tokens so that call cost and prompt
// growth can be tracked without waiting for provider usage reports.
package tokencount

import (
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"github.com/hanyue-dev/ai-essay-grader/internal/domain"
)

// Counter provides thread-safe token counting with per-model encoding cache.
type Counter struct {
	encodingCache map[string]*tiktoken.Tiktoken
	mu            sync.RWMutex
}

// NewCounter creates a new token counter instance.
func NewCounter() *Counter {
	return &Counter{encodingCache: make(map[string]*tiktoken.Tiktoken)}
}

// DefaultCounter is a process-wide counter instance.
var DefaultCounter = NewCounter()

func (c *Counter) encodingFor(model string) (*tiktoken.Tiktoken, error) {
	normalized := normalizeModelName(model)

	c.mu.RLock()
	if enc, ok := c.encodingCache[normalized]; ok {
		c.mu.RUnlock()
		return enc, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encodingCache[normalized]; ok {
		return enc, nil
	}
	enc, err := tiktoken.EncodingForModel(normalized)
	if err != nil {
		// cl100k_base covers GPT-4-era and most modern models
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	c.encodingCache[normalized] = enc
	return enc, nil
}

// normalizeModelName converts provider model IDs to tiktoken-compatible names.
func normalizeModelName(model string) string {
	model = strings.ToLower(model)
	if strings.Contains(model, "/") {
		parts := strings.Split(model, "/")
		model = parts[len(parts)-1]
	}
	switch {
	case strings.Contains(model, "gpt-3.5"):
		return "gpt-3.5-turbo"
	default:
		return "gpt-4"
	}
}

// CountMessages counts prompt tokens for a chat completion request,
// including the per-message overhead of OpenAI-compatible APIs. Falls back
// to a rough 4-chars-per-token estimate when no encoding is available.
func (c *Counter) CountMessages(messages []domain.Message, model string) int {
	enc, err := c.encodingFor(model)
	if err != nil {
		total := 0
		for _, m := range messages {
			total += len(m.Content) / 4
		}
		return total
	}
	const tokensPerMessage = 3
	const tokensPerRole = 1
	n := 0
	for _, m := range messages {
		n += tokensPerMessage + tokensPerRole
		n += len(enc.Encode(m.Role, nil, nil))
		n += len(enc.Encode(m.Content, nil, nil))
	}
	// Every reply is primed with <|start|>assistant<|message|>
	n += 3
	return n
}
