package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orbit-cli/orbit/pkg/orbit/output"
)

func NewConversationsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "Manage your conversations",
	}
	cmd.AddCommand(
		newConversationsListCommand(),
		newConversationsShowCommand(),
		newConversationsRenameCommand(),
		newConversationsDeleteCommand(),
		newConversationsResumeCommand(),
	)
	return cmd
}

func newConversationsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List conversations, most recently active first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			svc, err := rt.Conversations(cmd.Context())
			if err != nil {
				return err
			}
			convs, err := svc.List(cmd.Context())
			if err != nil {
				return err
			}
			format, err := rt.OutputFormat()
			if err != nil {
				return err
			}
			if format == output.FormatTable {
				output.WriteConversationTable(rt.Writer(), convs)
				return nil
			}
			return output.WriteObject(rt.Writer(), format, convs)
		},
	}
}

func newConversationsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a conversation with all its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			svc, err := rt.Conversations(cmd.Context())
			if err != nil {
				return err
			}
			thread, err := svc.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			format, err := rt.OutputFormat()
			if err != nil {
				return err
			}
			if format == output.FormatTable {
				output.WriteTranscript(rt.Writer(), thread)
				return nil
			}
			return output.WriteObject(rt.Writer(), format, thread)
		},
	}
}

func newConversationsRenameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title...>",
		Short: "Change a conversation's title",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			svc, err := rt.Conversations(cmd.Context())
			if err != nil {
				return err
			}
			conv, err := svc.Rename(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Renamed %s to %q\n", conv.ID, conv.Title)
			return nil
		},
	}
}

func newConversationsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a conversation and its messages",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			svc, err := rt.Conversations(cmd.Context())
			if err != nil {
				return err
			}
			if err := svc.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func newConversationsResumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <id>",
		Short: "Ask for the reply a conversation is still waiting on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			svc, err := rt.Conversations(cmd.Context())
			if err != nil {
				return err
			}
			sess := &chatSession{rt: rt, svc: svc, conversationID: args[0], unanswered: true}
			ex, err := sess.retry(cmd.Context())
			if err != nil {
				return err
			}
			format, err := rt.OutputFormat()
			if err != nil {
				return err
			}
			if format != output.FormatTable {
				return output.WriteObject(rt.Writer(), format, ex)
			}
			sess.printReply(ex)
			return nil
		},
	}
}
