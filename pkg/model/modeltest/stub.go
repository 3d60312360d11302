// Package modeltest provides scriptable model.LLM stubs for tests.
package modeltest

import (
	"context"
	"sync"

	"github.com/chanakya-ai/chanakya/pkg/model"
)

// StubLLM replays canned responses in order and records every request.
// When the script runs out, the last response repeats. A GenerateFunc, if
// set, takes precedence over the script.
type StubLLM struct {
	mu        sync.Mutex
	Responses []string
	Err       error

	// GenerateFunc lets a test compute the response from the request.
	GenerateFunc func(ctx context.Context, req *model.Request) (*model.Response, error)

	requests []*model.Request
}

func (s *StubLLM) Generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.GenerateFunc != nil {
		return s.GenerateFunc(ctx, req)
	}
	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Responses) == 0 {
		return &model.Response{Text: ""}, nil
	}

	idx := len(s.requests) - 1
	if idx >= len(s.Responses) {
		idx = len(s.Responses) - 1
	}
	return &model.Response{Text: s.Responses[idx]}, nil
}

func (s *StubLLM) Name() string { return "stub" }

func (s *StubLLM) Close() error { return nil }

// Requests returns a copy of every request seen so far.
func (s *StubLLM) Requests() []*model.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// CallCount returns how many times Generate was invoked.
func (s *StubLLM) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

var _ model.LLM = (*StubLLM)(nil)
