package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/orbit-cli/orbit/pkg/conversation"
	"github.com/orbit-cli/orbit/pkg/orbit/auth"
)

const previewWidth = 48

func WriteConversationTable(w io.Writer, convs []conversation.Summary) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tMODE\tTITLE\tUPDATED\tLAST MESSAGE")
	for _, c := range convs {
		last := "-"
		if c.LastMessage != nil {
			last = preview(c.LastMessage.Content.String())
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Mode, c.Title, formatTime(c.UpdatedAt), last)
	}
	_ = tw.Flush()
}

// WriteTranscript prints a conversation as a readable chat log.
func WriteTranscript(w io.Writer, thread *conversation.Thread) {
	_, _ = fmt.Fprintf(w, "%s  (%s, %s)\n", Title.Render(thread.Title), thread.Mode, thread.ID)
	for _, m := range thread.Messages {
		_, _ = fmt.Fprintln(w)
		WriteMessage(w, m)
	}
}

func WriteMessage(w io.Writer, m conversation.Message) {
	_, _ = fmt.Fprintf(w, "%s %s\n%s\n", roleLabel(m.Role), Muted.Render(formatTime(m.CreatedAt)), m.Content.String())
}

func WriteUser(w io.Writer, user *auth.User) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "ID:\t%s\n", user.ID)
	_, _ = fmt.Fprintf(tw, "NAME:\t%s\n", user.Name)
	_, _ = fmt.Fprintf(tw, "EMAIL:\t%s\n", user.Email)
	_ = tw.Flush()
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > previewWidth {
		return string(r[:previewWidth-3]) + "..."
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}
