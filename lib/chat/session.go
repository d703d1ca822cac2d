package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/crmbridge/sql-to-soql/lib/plog"
)

// Functions is the callable surface exposed to the model. Call never fails
// hard: function-level problems come back as text for the model to relay.
type Functions interface {
	Definitions() []FunctionDef
	Call(ctx context.Context, name, arguments string) string
}

// overloadedReply is what the user sees when the model side is unavailable.
const overloadedReply = "I'm very sorry, but the assistant is overloaded at the moment. Please ask again."

// maxFunctionCalls bounds one turn's dispatch loop; a model occasionally
// chains several calls before answering, but an unbounded loop would let a
// confused one spin forever.
const maxFunctionCalls = 5

// SessionConfig tunes a Session. Zero values get sensible defaults.
type SessionConfig struct {
	SystemPrompt string
	// HistoryMax is the number of retained history messages (default 12).
	HistoryMax int
}

// Session is one conversation: bounded history, the system prompt, and the
// function-call dispatch loop. Not safe for concurrent Ask calls.
type Session struct {
	ID string

	client *Client
	funcs  Functions
	cfg    SessionConfig
	log    plog.Logger
	now    func() time.Time

	history []Message
}

// NewSession creates a Session over client and funcs.
func NewSession(client *Client, funcs Functions, cfg SessionConfig, logger plog.Logger) *Session {
	if cfg.HistoryMax == 0 {
		cfg.HistoryMax = 12
	}
	if logger == nil {
		logger = plog.Nop{}
	}
	return &Session{
		ID:     uuid.NewString(),
		client: client,
		funcs:  funcs,
		cfg:    cfg,
		log:    logger,
		now:    time.Now,
	}
}

// Ask sends one user message through the model, dispatching any function
// calls, and returns the model's final text answer.
func (s *Session) Ask(ctx context.Context, user string) (string, error) {
	s.log.Infof("chat %s: user: %s", s.ID, user)
	s.history = append(s.history, Message{Role: "user", Content: user})

	// The system prompt gets the current time appended so the model can
	// resolve relative dates in questions.
	system := Message{
		Role:    "system",
		Content: s.cfg.SystemPrompt + "\nThe current time and date is " + s.now().Format("2006-01-02 15:04"),
	}
	messages := append([]Message{system}, s.history...)

	defs := s.funcs.Definitions()
	for calls := 0; calls <= maxFunctionCalls; calls++ {
		reply, err := s.client.Complete(ctx, messages, defs)
		if err != nil {
			var ae *APIError
			if errors.As(err, &ae) && ae.Overloaded() || errors.Is(err, context.DeadlineExceeded) {
				s.log.Errorf("chat %s: model unavailable: %v", s.ID, err)
				return overloadedReply, nil
			}
			return "", err
		}

		if reply.FunctionCall == nil {
			s.history = append(s.history, Message{Role: "assistant", Content: reply.Content})
			s.trimHistory()
			s.log.Infof("chat %s: answer: %s", s.ID, firstLine(reply.Content))
			return reply.Content, nil
		}

		fc := reply.FunctionCall
		s.log.Infof("chat %s: model calls %s", s.ID, fc.Name)

		// Keep only the call summary in history, not the whole reply, to
		// hold the context size down.
		short := Message{Role: "assistant", FunctionCall: fc}
		s.history = append(s.history, short)
		messages = append(messages, short)

		result := s.funcs.Call(ctx, fc.Name, fc.Arguments)

		funcMsg := Message{Role: "function", Name: fc.Name, Content: result}
		s.history = append(s.history, funcMsg)
		messages = append(messages, funcMsg)
	}

	s.trimHistory()
	return "", fmt.Errorf("chat: model exceeded %d function calls in one turn", maxFunctionCalls)
}

func (s *Session) trimHistory() {
	if len(s.history) > s.cfg.HistoryMax {
		s.history = s.history[len(s.history)-s.cfg.HistoryMax:]
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// TrimPrompt strips the per-line indentation that multi-line string literals
// pick up from source formatting; prompts should not waste tokens on it.
func TrimPrompt(prompt string) string {
	lines := strings.Split(prompt, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.Join(lines, "\n")
}
