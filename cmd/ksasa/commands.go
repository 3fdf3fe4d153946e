// ABOUTME: One-shot ksasa commands: ask, history, export, detect, route and review queue
// ABOUTME: Output is plain text with color accents; errors bubble up to main

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/ksasa/internal/agentclient"
	"github.com/2389/ksasa/internal/conversation"
	"github.com/2389/ksasa/internal/lang"
	"github.com/2389/ksasa/internal/routing"
	"github.com/2389/ksasa/internal/transcript"
)

func runAsk(ctx context.Context, args []string) error {
	flags, positional, err := parseArgs(args, []string{"new"}, []string{"attach"})
	if err != nil {
		return err
	}
	prompt := strings.Join(positional, " ")
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("ask requires a prompt")
	}

	var atts []conversation.Attachment
	if path := flags["attach"]; path != "" {
		att, err := attachmentFor(path)
		if err != nil {
			return fmt.Errorf("attaching %s: %w", path, err)
		}
		atts = append(atts, att)
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if flags["new"] == "" {
		a.svc.ResumeLatest()
	}

	turn := a.svc.Send(ctx, prompt, atts...)
	printTurn(os.Stdout, turn)
	if turn.Failed() {
		return turn.Err
	}
	return nil
}

func printTurn(w io.Writer, turn *conversation.Turn) {
	gray := color.New(color.FgHiBlack)

	if turn.Failed() {
		color.New(color.FgRed).Fprintln(w, turn.Reply.Text)
	} else {
		fmt.Fprintln(w, turn.Reply.Text)
	}
	for _, c := range turn.Reply.Citations {
		gray.Fprintf(w, "  · %s\n", c.String())
	}
	gray.Fprintf(w, "\n%s · %s · conversation %s", lang.DisplayName(turn.Detected), turn.Domain, turn.ConversationID)
	if turn.Reply.AuditID != "" {
		gray.Fprintf(w, " · %s", turn.Reply.AuditID)
	}
	fmt.Fprintln(w)
}

func runConversations(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	printConversations(os.Stdout, a.store.Conversations(), "")
	return nil
}

func printConversations(w io.Writer, convs []conversation.Conversation, active string) {
	if len(convs) == 0 {
		fmt.Fprintln(w, "No conversations yet.")
		return
	}

	gray := color.New(color.FgHiBlack)
	for _, c := range convs {
		marker := "  "
		if c.ID == active {
			marker = color.GreenString("▶ ")
		}
		fmt.Fprintf(w, "%s%-20s %s\n", marker, c.ID, c.Title)
		if c.LastSnippet != "" {
			gray.Fprintf(w, "  %-20s %s\n", c.UpdatedAt.Local().Format("2006-01-02 15:04"), c.LastSnippet)
		}
	}
}

func runNew(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Println(a.svc.NewChat())
	return nil
}

// resolveConversation picks the conversation named by positional, or the latest one.
func resolveConversation(a *app, positional []string) (conversation.Conversation, error) {
	if len(positional) > 1 {
		return conversation.Conversation{}, fmt.Errorf("unexpected argument: %s", positional[1])
	}
	if len(positional) == 1 {
		conv, ok := a.store.Conversation(positional[0])
		if !ok {
			return conversation.Conversation{}, fmt.Errorf("conversation %s not found", positional[0])
		}
		return conv, nil
	}

	convs := a.store.Conversations()
	if len(convs) == 0 {
		return conversation.Conversation{}, conversation.ErrNoActiveConversation
	}
	return convs[0], nil
}

func runHistory(ctx context.Context, args []string) error {
	_, positional, err := parseArgs(args, nil, nil)
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	conv, err := resolveConversation(a, positional)
	if err != nil {
		return err
	}
	color.New(color.FgCyan, color.Bold).Printf("%s  (%s)\n\n", conv.Title, conv.ID)
	printHistory(os.Stdout, a.store.Select(conv.ID))
	return nil
}

func printHistory(w io.Writer, msgs []conversation.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, "No messages yet.")
		return
	}

	gray := color.New(color.FgHiBlack)
	for _, m := range msgs {
		if m.Role == conversation.RoleUser {
			color.New(color.FgGreen).Fprint(w, "you  ")
		} else {
			color.New(color.FgCyan).Fprint(w, "ksasa ")
		}
		fmt.Fprintln(w, m.Text)
		for _, c := range m.Citations {
			gray.Fprintf(w, "      · %s\n", c.String())
		}
	}
}

func runExport(ctx context.Context, args []string) error {
	flags, positional, err := parseArgs(args, []string{"html"}, []string{"out"})
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	conv, err := resolveConversation(a, positional)
	if err != nil {
		return err
	}
	msgs := a.store.Select(conv.ID)

	out := transcript.Markdown(conv, msgs)
	if flags["html"] != "" {
		out, err = transcript.HTML(conv, msgs)
		if err != nil {
			return err
		}
	}

	if path := flags["out"]; path != "" {
		if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		color.Green("Exported %s to %s", conv.ID, path)
		return nil
	}
	fmt.Print(out)
	return nil
}

func runDetect(args []string) error {
	text := strings.Join(args, " ")
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("detect requires text")
	}

	scores := lang.Score(text)
	code := lang.Decide(scores)

	fmt.Printf("%s (%s), replies in %s\n", code, lang.DisplayName(code), lang.ReplyCode(code))
	gray := color.New(color.FgHiBlack)
	gray.Printf("  sw=%d luo=%d kik=%d sheng=%d en=%d\n",
		scores.Swahili, scores.Luo, scores.Gikuyu, scores.Sheng, scores.English())
	return nil
}

func runRoute(args []string) error {
	text := strings.Join(args, " ")
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("route requires text")
	}

	domain := routing.Route(text)
	reply := lang.ReplyCode(lang.Detect(text))
	dctx, err := routing.NewContext(domain, reply)
	if err != nil {
		return err
	}

	fmt.Println(domain)
	if matches := routing.Matches(text); len(matches) > 1 {
		color.New(color.FgHiBlack).Printf("  also matched: %v\n", matches[1:])
	}
	body, err := json.MarshalIndent(dctx, "  ", "  ")
	if err != nil {
		return err
	}
	color.New(color.FgHiBlack).Printf("  context: %s\n", body)
	return nil
}

func runAction(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: ksasa action AUDIT_ID ACTION")
	}

	a, err := newClientOnly()
	if err != nil {
		return err
	}
	resp, err := a.client.Action(ctx, &agentclient.ActionRequest{AuditID: args[0], Action: args[1]})
	if err != nil {
		return err
	}

	fmt.Printf("%s", resp.Status)
	if resp.PendingID != "" {
		fmt.Printf(" (pending %s)", resp.PendingID)
	}
	if resp.PreviewURL != "" {
		fmt.Printf(" preview: %s", resp.PreviewURL)
	}
	fmt.Println()
	return nil
}

func runPending(ctx context.Context) error {
	a, err := newClientOnly()
	if err != nil {
		return err
	}
	items, err := a.client.ListPending(ctx)
	if err != nil {
		return err
	}

	if len(items) == 0 {
		fmt.Println("Nothing awaiting review.")
		return nil
	}
	gray := color.New(color.FgHiBlack)
	for _, item := range items {
		fmt.Printf("%s  %s\n", item.ID, color.YellowString(item.Type))
		if audit, ok := item.Payload["audit_id"]; ok {
			gray.Printf("  audit %v\n", audit)
		}
	}
	return nil
}

func runApprove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: ksasa approve ID")
	}

	a, err := newClientOnly()
	if err != nil {
		return err
	}
	item, err := a.client.Approve(ctx, args[0])
	if err != nil {
		return err
	}
	color.Green("%s %s", item.ID, item.Status)
	return nil
}

func runDecline(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: ksasa decline ID [REASON]")
	}

	a, err := newClientOnly()
	if err != nil {
		return err
	}
	item, err := a.client.Decline(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	color.Yellow("%s %s", item.ID, item.Status)
	return nil
}

func runMetrics(ctx context.Context) error {
	a, err := newClientOnly()
	if err != nil {
		return err
	}
	raw, err := a.client.Metrics(ctx)
	if err != nil {
		return err
	}

	var pretty map[string]any
	if err := json.Unmarshal(raw, &pretty); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	body, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(string(body))
	return nil
}

func runHealth(ctx context.Context) error {
	a, err := newClientOnly()
	if err != nil {
		return err
	}
	if err := a.client.Health(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	fmt.Println("healthy")
	return nil
}
