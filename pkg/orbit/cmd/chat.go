package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orbit-cli/orbit/pkg/conversation"
	"github.com/orbit-cli/orbit/pkg/orbit/client"
	"github.com/orbit-cli/orbit/pkg/orbit/output"
)

const replHelp = `Commands:
  /new     start a new conversation
  /retry   ask again after a failed reply
  /help    show this help
  /exit    leave (also /quit or Ctrl-D)`

func NewChatCommand() *cobra.Command {
	var (
		modeName       string
		conversationID string
	)
	cmd := &cobra.Command{
		Use:   "chat [message...]",
		Short: "Send a message, or start an interactive chat when no message is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			mode := rt.DefaultMode()
			if modeName != "" {
				if mode, err = conversation.ParseMode(modeName); err != nil {
					return err
				}
			}
			ctx := cmd.Context()
			svc, err := rt.Conversations(ctx)
			if err != nil {
				return err
			}
			sess := &chatSession{rt: rt, svc: svc, mode: mode, conversationID: conversationID}
			if len(args) > 0 {
				return sess.oneShot(ctx, strings.Join(args, " "))
			}
			return sess.repl(ctx, rt.input)
		},
	}
	cmd.Flags().StringVar(&modeName, "mode", "", "Conversation mode for new conversations: chat, tool, agent")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "Continue an existing conversation")
	return cmd
}

// chatSession tracks the conversation a terminal is talking to.
type chatSession struct {
	rt             *runtimeState
	svc            *client.ConversationService
	mode           conversation.Mode
	conversationID string
	// unanswered is set when the last message was stored but got no reply.
	unanswered bool
}

func (s *chatSession) send(ctx context.Context, text string) (*client.Exchange, error) {
	ex, err := s.svc.Send(ctx, client.SendRequest{
		ConversationID: s.conversationID,
		Mode:           s.mode,
		Content:        conversation.Text(text),
	})
	if id, failed := client.IsCompletionFailure(err); failed {
		s.conversationID = id
		s.unanswered = true
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	s.track(ex)
	return ex, nil
}

func (s *chatSession) retry(ctx context.Context) (*client.Exchange, error) {
	ex, err := s.svc.Resume(ctx, s.conversationID)
	if err != nil {
		return nil, err
	}
	s.track(ex)
	return ex, nil
}

func (s *chatSession) track(ex *client.Exchange) {
	s.conversationID = ex.Conversation.ID
	s.mode = ex.Conversation.Mode
	s.unanswered = false
}

func (s *chatSession) oneShot(ctx context.Context, text string) error {
	ex, err := s.send(ctx, text)
	if err != nil {
		return err
	}
	format, err := s.rt.OutputFormat()
	if err != nil {
		return err
	}
	if format != output.FormatTable {
		return output.WriteObject(s.rt.Writer(), format, ex)
	}
	s.printReply(ex)
	return nil
}

func (s *chatSession) printReply(ex *client.Exchange) {
	if ex.Reply != nil {
		output.WriteMessage(s.rt.Writer(), *ex.Reply)
	}
}

// repl reads one message per line until EOF or /exit. Failures of a single
// turn are printed and the loop continues; only read errors end it early.
func (s *chatSession) repl(ctx context.Context, in io.Reader) error {
	w := s.rt.Writer()
	_, _ = fmt.Fprintln(w, output.Muted.Render(fmt.Sprintf("%s mode. Type /help for commands.", s.mode)))

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		_, _ = fmt.Fprint(w, output.Title.Render("> "))
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(w)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		var (
			ex  *client.Exchange
			err error
		)
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/help":
			_, _ = fmt.Fprintln(w, replHelp)
			continue
		case "/new":
			s.conversationID = ""
			s.unanswered = false
			_, _ = fmt.Fprintln(w, output.Muted.Render("Started a new conversation"))
			continue
		case "/retry":
			if !s.unanswered {
				_, _ = fmt.Fprintln(w, output.Muted.Render("Nothing to retry"))
				continue
			}
			ex, err = s.retry(ctx)
		default:
			ex, err = s.send(ctx, line)
		}

		if err != nil {
			_, _ = fmt.Fprintln(w, output.Failure.Render(FormatError(err)))
			if s.unanswered {
				_, _ = fmt.Fprintln(w, output.Muted.Render("Type /retry to ask again"))
			}
			continue
		}
		s.printReply(ex)
	}
}
