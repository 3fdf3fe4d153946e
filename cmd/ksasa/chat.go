// ABOUTME: Interactive chat loop for the ksasa CLI
// ABOUTME: Prompts are sent concurrently; replies print as the store applies them

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/2389/ksasa/internal/conversation"
	"github.com/2389/ksasa/internal/lang"
)

// chatInput is one parsed line of REPL input.
type chatInput struct {
	command string // empty for a prompt
	arg     string
	prompt  string
}

func parseChatInput(line string) chatInput {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		return chatInput{prompt: line}
	}
	cmd, arg, _ := strings.Cut(trimmed[1:], " ")
	return chatInput{command: strings.ToLower(cmd), arg: strings.TrimSpace(arg)}
}

func attachmentFor(path string) (conversation.Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return conversation.Attachment{}, err
	}
	if info.IsDir() {
		return conversation.Attachment{}, fmt.Errorf("%s is a directory", path)
	}
	return conversation.Attachment{
		Name:     filepath.Base(path),
		MimeType: mime.TypeByExtension(filepath.Ext(path)),
		Size:     info.Size(),
	}, nil
}

const chatHelp = `Commands:
  /new            start a new conversation
  /list           list conversations
  /open ID        switch to a conversation
  /history        show the active conversation
  /attach PATH    attach a file to the next prompt
  /metrics        show pipeline counters
  /quit           leave
Anything else is sent as a prompt.`

func runChat(ctx context.Context, args []string) error {
	flags, positional, err := parseArgs(args, []string{"new"}, nil)
	if err != nil {
		return err
	}
	if len(positional) > 0 {
		return fmt.Errorf("unexpected argument: %s", positional[0])
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	printBanner(a)

	if flags["new"] == "" {
		if id, ok := a.svc.ResumeLatest(); ok {
			conv, _ := a.store.Conversation(id)
			color.New(color.FgHiBlack).Printf("Resuming %q (%s). /new starts a fresh chat.\n\n", conv.Title, id)
		}
	}

	if a.metrics != nil && a.cfg.Metrics.Listen != "" {
		srv := &http.Server{Addr: a.cfg.Metrics.Listen, Handler: a.metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		a.logger.Info("serving metrics", "addr", a.cfg.Metrics.Listen)
	}

	events, subID := a.events.Subscribe(ctx, conversation.AllConversations)
	defer a.events.Unsubscribe(conversation.AllConversations, subID)

	out := &chatPrinter{w: os.Stdout}
	go func() {
		for ev := range events {
			if ev.Message.Role == conversation.RoleAssistant {
				active := a.svc.Session().CurrentConversationID
				out.reply(ev, ev.ConversationID != active)
			}
		}
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	var pending []conversation.Attachment
	lines := readLines(ctx, os.Stdin)
	out.prompt()
	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = l
		}

		in := parseChatInput(line)
		switch in.command {
		case "":
			if strings.TrimSpace(in.prompt) == "" {
				break
			}
			atts := pending
			pending = nil
			prompt := in.prompt
			wg.Go(func() {
				turn := a.svc.Send(ctx, prompt, atts...)
				if turn != nil {
					out.meta(turn)
				}
			})
		case "new":
			id := a.svc.NewChat()
			out.info("Started conversation %s", id)
		case "list":
			out.conversations(a.store.Conversations(), a.svc.Session().CurrentConversationID)
		case "open":
			msgs, err := a.svc.SelectConversation(in.arg)
			if err != nil {
				out.info("No conversation %q", in.arg)
				break
			}
			out.history(msgs)
		case "history":
			msgs, err := a.svc.History()
			if err != nil {
				out.info("Nothing yet. Type a prompt to start.")
				break
			}
			out.history(msgs)
		case "attach":
			att, err := attachmentFor(in.arg)
			if err != nil {
				out.info("Cannot attach: %v", err)
				break
			}
			pending = append(pending, att)
			out.info("Attached %s (%d bytes) to the next prompt", att.Name, att.Size)
		case "metrics":
			if a.metrics == nil {
				out.info("Metrics are disabled")
				break
			}
			counters, err := a.metrics.Lines()
			if err != nil {
				out.info("%v", err)
				break
			}
			out.info("%s", strings.Join(counters, "\n"))
		case "quit", "exit":
			return nil
		default:
			out.info("%s", chatHelp)
		}
		out.prompt()
	}
}

// readLines delivers stdin lines until EOF or ctx is done.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case ch <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// chatPrinter serializes terminal output from the input loop and reply goroutines.
type chatPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *chatPrinter) prompt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	color.New(color.FgGreen).Fprint(p.w, "› ")
}

func (p *chatPrinter) info(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	color.New(color.FgHiBlack).Fprintf(p.w, format+"\n", args...)
}

func (p *chatPrinter) reply(ev conversation.Event, otherConversation bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintln(p.w)
	if otherConversation {
		color.New(color.FgHiBlack).Fprintf(p.w, "[conversation %s]\n", ev.ConversationID)
	}
	if strings.HasPrefix(ev.Message.Text, "Error: ") {
		color.New(color.FgRed).Fprintln(p.w, ev.Message.Text)
	} else {
		color.New(color.FgCyan).Fprintln(p.w, ev.Message.Text)
	}
	for _, c := range ev.Message.Citations {
		color.New(color.FgHiBlack).Fprintf(p.w, "  · %s\n", c.String())
	}
}

func (p *chatPrinter) meta(turn *conversation.Turn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	gray := color.New(color.FgHiBlack)
	gray.Fprintf(p.w, "  %s · %s", lang.DisplayName(turn.Detected), turn.Domain)
	if turn.Reply.Confidence != nil {
		gray.Fprintf(p.w, " · confidence %.2f", *turn.Reply.Confidence)
	}
	fmt.Fprintln(p.w)
	color.New(color.FgGreen).Fprint(p.w, "› ")
}

func (p *chatPrinter) conversations(convs []conversation.Conversation, active string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	printConversations(p.w, convs, active)
}

func (p *chatPrinter) history(msgs []conversation.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	printHistory(p.w, msgs)
}
