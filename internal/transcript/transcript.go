// ABOUTME: Renders a conversation log as Markdown or as a standalone HTML page
// ABOUTME: HTML goes through goldmark, which drops raw HTML embedded in messages

package transcript

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/ksasa/internal/conversation"
)

const timeLayout = "2006-01-02 15:04 MST"

// Markdown renders conv and its messages.
func Markdown(conv conversation.Conversation, msgs []conversation.Message) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", conv.Title)
	fmt.Fprintf(&b, "_Started %s, last activity %s_\n", formatTime(conv.CreatedAt), formatTime(conv.UpdatedAt))

	for _, m := range msgs {
		b.WriteString("\n---\n\n")
		switch m.Role {
		case conversation.RoleUser:
			b.WriteString("**You**\n\n")
		default:
			b.WriteString("**Assistant**")
			var meta []string
			if m.Confidence != nil {
				meta = append(meta, fmt.Sprintf("confidence %.2f", *m.Confidence))
			}
			if m.AuditID != "" {
				meta = append(meta, "audit "+m.AuditID)
			}
			if len(meta) > 0 {
				fmt.Fprintf(&b, " _(%s)_", strings.Join(meta, ", "))
			}
			b.WriteString("\n\n")
		}

		b.WriteString(strings.TrimRight(m.Text, "\n"))
		b.WriteString("\n")

		if len(m.Citations) > 0 {
			b.WriteString("\nSources:\n\n")
			for _, c := range m.Citations {
				fmt.Fprintf(&b, "- %s\n", c.String())
			}
		}
	}
	return b.String()
}

var page = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// HTML renders conv and its messages as a standalone page.
func HTML(conv conversation.Conversation, msgs []conversation.Message) (string, error) {
	var body bytes.Buffer
	if err := goldmark.Convert([]byte(Markdown(conv, msgs)), &body); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}

	var out bytes.Buffer
	err := page.Execute(&out, struct {
		Title string
		Body  template.HTML
	}{
		Title: conv.Title,
		Body:  template.HTML(body.String()),
	})
	if err != nil {
		return "", fmt.Errorf("rendering page: %w", err)
	}
	return out.String(), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format(timeLayout)
}
