package output

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/orbit-cli/orbit/pkg/conversation"
)

var (
	Primary   = lipgloss.Color("#7C3AED")
	Secondary = lipgloss.Color("#10B981")
	Danger    = lipgloss.Color("#EF4444")
	Gray      = lipgloss.Color("#6B7280")

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary)

	Success = lipgloss.NewStyle().
		Foreground(Secondary).
		Bold(true)

	Failure = lipgloss.NewStyle().
		Foreground(Danger).
		Bold(true)

	Muted = lipgloss.NewStyle().
		Foreground(Gray)
)

func Welcome(name string) string {
	if name == "" {
		name = "there"
	}
	return Success.Render(fmt.Sprintf("Welcome back, %s!", name))
}

func roleLabel(r conversation.Role) string {
	switch r {
	case conversation.RoleUser:
		return Title.Render("you")
	case conversation.RoleAssistant:
		return Success.Render("orbit")
	default:
		return Muted.Render(string(r))
	}
}
