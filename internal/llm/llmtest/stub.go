// Package llmtest provides a scripted llm.Provider for hermetic tests.
package llmtest

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/dshills/storytrace/internal/llm"
)

var reqIDInPrompt = regexp.MustCompile(`REQUIREMENT \(ID: ([^)]*)\)`)

// Stub answers Complete calls with Respond, optionally after Delay.
// It is safe for concurrent use.
type Stub struct {
	Respond func(req *llm.Request) (string, error)
	Delay   time.Duration

	mu    sync.Mutex
	calls []*llm.Request
}

// Static returns a stub that always answers content.
func Static(content string) *Stub {
	return &Stub{Respond: func(*llm.Request) (string, error) { return content, nil }}
}

// ByRequirement returns a stub that answers with responses[reqID], keyed by
// the requirement id embedded in the user prompt. Unknown ids get "{}".
func ByRequirement(responses map[string]string) *Stub {
	return &Stub{Respond: func(req *llm.Request) (string, error) {
		if r, ok := responses[RequirementID(req)]; ok {
			return r, nil
		}
		return llm.EmptyResponse, nil
	}}
}

// RequirementID extracts the requirement id from a story user prompt.
func RequirementID(req *llm.Request) string {
	m := reqIDInPrompt.FindStringSubmatch(req.UserPrompt)
	if m == nil {
		return ""
	}
	return m[1]
}

// Complete implements llm.Provider.
func (s *Stub) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()

	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.Respond == nil {
		return nil, fmt.Errorf("llmtest: no response configured")
	}
	content, err := s.Respond(req)
	if err != nil {
		return nil, err
	}
	return &llm.Response{Content: content, Model: "stub:test"}, nil
}

// Calls returns the requests received so far.
func (s *Stub) Calls() []*llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*llm.Request(nil), s.calls...)
}
