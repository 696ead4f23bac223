package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/orbit-cli/orbit/pkg/conversation"
	"github.com/orbit-cli/orbit/pkg/orbit/output"
)

var modeDescriptions = map[conversation.Mode]string{
	conversation.ModeChat:  "Chat - talk things through",
	conversation.ModeTool:  "Tool - find the right command-line tool and its exact invocation",
	conversation.ModeAgent: "Agent - work through a task step by step",
}

func NewWakeupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "wakeup",
		Short: "Greet the logged in user and start an interactive session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			user, err := rt.CurrentUser(cmd)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(rt.Writer(), output.Welcome(user.Name))

			mode := rt.DefaultMode()
			if !rt.nonInteractive && rt.pickMode != nil {
				mode, err = rt.pickMode(ctx)
				if errors.Is(err, huh.ErrUserAborted) {
					return nil
				}
				if err != nil {
					return err
				}
			}

			svc, err := rt.Conversations(ctx)
			if err != nil {
				return err
			}
			sess := &chatSession{rt: rt, svc: svc, mode: mode}
			return sess.repl(ctx, rt.input)
		},
	}
}

func pickModeInteractively(ctx context.Context) (conversation.Mode, error) {
	options := make([]huh.Option[string], 0, len(conversation.Modes))
	for _, m := range conversation.Modes {
		options = append(options, huh.NewOption(modeDescriptions[m], string(m)))
	}
	choice := string(conversation.ModeChat)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("What would you like to do?").
				Description("Use ↑/↓ to select, Enter to confirm").
				Options(options...).
				Value(&choice),
		),
	).WithTheme(pickerTheme())
	if err := form.RunWithContext(ctx); err != nil {
		return "", err
	}
	return conversation.ParseMode(choice)
}

func pickerTheme() *huh.Theme {
	t := huh.ThemeBase()
	t.Focused.Title = lipgloss.NewStyle().Foreground(output.Primary).Bold(true)
	t.Focused.Description = lipgloss.NewStyle().Foreground(output.Gray)
	t.Focused.SelectSelector = lipgloss.NewStyle().Foreground(output.Secondary).SetString("> ")
	t.Focused.SelectedOption = lipgloss.NewStyle().Foreground(output.Secondary)
	return t
}
