package gateway

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"sync"
)

// TokenStream yields plain text deltas decoded from a raw provider
// stream. The usage callback fires exactly once, on natural completion
// or on Close, so accounting survives client disconnects.
type TokenStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	onDone  func(chars int, cancelled bool)

	chars int
	done  bool
	once  sync.Once
}

func newTokenStream(body io.ReadCloser, onDone func(chars int, cancelled bool)) *TokenStream {
	scanner := bufio.NewScanner(body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	return &TokenStream{body: body, scanner: scanner, onDone: onDone}
}

// Next returns the next text delta. ok is false when the stream has
// ended, either on the [DONE] sentinel or on reader exhaustion.
func (s *TokenStream) Next() (token string, ok bool, err error) {
	if s.done {
		return "", false, nil
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, "event:") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if line == "" {
			continue
		}
		if line == "[DONE]" {
			s.finish(false)
			return "", false, nil
		}

		token := extractToken(line)
		if token == "" {
			continue
		}
		s.chars += len(token)
		return token, true, nil
	}

	scanErr := s.scanner.Err()
	s.finish(false)
	return "", false, scanErr
}

// Close releases the underlying body. Safe to call at any point; if the
// stream has not completed this is the cancellation path and still
// drives the usage callback.
func (s *TokenStream) Close() error {
	s.finish(true)
	return s.body.Close()
}

func (s *TokenStream) finish(cancelled bool) {
	s.done = true
	s.once.Do(func() {
		if s.onDone != nil {
			s.onDone(s.chars, cancelled)
		}
	})
}

// tokenExtractors are the known provider response shapes, tried in
// order; the first one that yields text wins.
var tokenExtractors = []func(decoded map[string]any) (string, bool){
	fieldExtractor("response"),
	fieldExtractor("delta"),
	fieldExtractor("token"),
	fieldExtractor("text"),
	fieldExtractor("content"),
	choiceExtractor("delta"),
	choiceExtractor("message"),
}

// extractToken decodes one stream line into a text delta. A bare JSON
// string is the delta itself; lines that are not JSON at all are passed
// through verbatim. Other JSON values carry no text.
func extractToken(line string) string {
	var decoded any
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		return line
	}
	switch value := decoded.(type) {
	case string:
		return value
	case map[string]any:
		for _, extract := range tokenExtractors {
			if text, ok := extract(value); ok {
				return text
			}
		}
	}
	return ""
}

func fieldExtractor(key string) func(map[string]any) (string, bool) {
	return func(decoded map[string]any) (string, bool) {
		text, ok := decoded[key].(string)
		return text, ok && text != ""
	}
}

// choiceExtractor handles the OpenAI chat shapes
// choices[0].delta.content and choices[0].message.content.
func choiceExtractor(inner string) func(map[string]any) (string, bool) {
	return func(decoded map[string]any) (string, bool) {
		choices, ok := decoded["choices"].([]any)
		if !ok || len(choices) == 0 {
			return "", false
		}
		first, ok := choices[0].(map[string]any)
		if !ok {
			return "", false
		}
		wrapper, ok := first[inner].(map[string]any)
		if !ok {
			return "", false
		}
		text, ok := wrapper["content"].(string)
		return text, ok && text != ""
	}
}
