// Package runtime defines the pull-based token stream the synthesize
// step consumes, plus a deterministic stub runtime for tests and local
// runs without a live completion back-end wired up.
package runtime

import (
	"context"
	"strings"
	"time"

	"manifold/internal/rag/protocol"
)

// TokenStream is a lazy, pull-based sequence of completion tokens. Next
// returns (token, true, nil) per token, then ("", false, nil) on clean
// exhaustion. A non-nil error aborts the stream.
type TokenStream interface {
	Next(ctx context.Context) (string, bool, error)
}

// Runtime produces a token stream for one synthesize step.
type Runtime interface {
	StreamAnswer(ctx context.Context, input protocol.UserInput, bundle *protocol.RetrievalBundle, toolResults []protocol.ToolResult) (TokenStream, error)
}

// StubRuntime streams the user input's text back, one whitespace-split
// token at a time, each followed by a trailing space — it never reaches
// a real completion back-end.
type StubRuntime struct {
	// Delay, if non-zero, is awaited before each token (used by tests
	// exercising mid-stream cancellation).
	Delay time.Duration
}

func (r StubRuntime) StreamAnswer(ctx context.Context, input protocol.UserInput, bundle *protocol.RetrievalBundle, toolResults []protocol.ToolResult) (TokenStream, error) {
	return &stubTokenStream{tokens: strings.Fields(input.Text), delay: r.Delay}, nil
}

type stubTokenStream struct {
	tokens []string
	idx    int
	delay  time.Duration
}

func (s *stubTokenStream) Next(ctx context.Context) (string, bool, error) {
	if s.idx >= len(s.tokens) {
		return "", false, nil
	}
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-timer.C:
		}
	}
	tok := s.tokens[s.idx] + " "
	s.idx++
	return tok, true, nil
}
