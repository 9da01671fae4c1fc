package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/conversation"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/mcpsession"
)

// turnSubmitter is the part of conversation.Loop used by the shell.
type turnSubmitter interface {
	SubmitUserTurn(ctx context.Context, text string) (*conversation.TurnResult, error)
}

// shell reads user lines and prints the outcome of every turn.
type shell struct {
	loop turnSubmitter
	in   io.Reader
	out  io.Writer
}

func isQuit(line string) bool {
	switch strings.ToLower(line) {
	case "quit", "exit":
		return true
	}
	return false
}

// run returns when the input ends, the user quits or ctx is done.
func (s *shell) run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for ctx.Err() == nil {
		fmt.Fprint(s.out, "You: ")
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if isQuit(line) {
			fmt.Fprintln(s.out, "Goodbye!")
			return nil
		}

		res, err := s.loop.SubmitUserTurn(ctx, line)
		s.print(res, err)
		if errors.Is(err, mcpsession.ErrSession) {
			return err
		}
	}
	return scanner.Err()
}

func (s *shell) print(res *conversation.TurnResult, err error) {
	if err != nil {
		fmt.Fprintf(s.out, "[%s] %s\n\n", failureTag(err), err.Error())
		return
	}
	switch res.Outcome {
	case conversation.OutcomeEmptyAnswer:
		fmt.Fprint(s.out, "Assistant: (no answer)\n\n")
	default:
		fmt.Fprintf(s.out, "Assistant: %s\n\n", res.Answer)
	}
}

// failureTag classifies a failed turn for the user.
func failureTag(err error) string {
	switch {
	case errors.Is(err, conversation.ErrStepBudgetExceeded):
		return "step_budget"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, llms.ErrAuth), errors.Is(err, llms.ErrMissingToken):
		return "auth"
	case errors.Is(err, llms.ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, mcpsession.ErrSession):
		return "session_lost"
	case errors.Is(err, llms.ErrTransientBackend):
		return "backend_unavailable"
	case errors.Is(err, llms.ErrFatalBackend):
		return "backend"
	case errors.Is(err, conversation.ErrTurnInProgress):
		return "busy"
	}
	return "error"
}
