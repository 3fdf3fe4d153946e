// ABOUTME: Entry point for the ksasa client CLI
// ABOUTME: Chat, one-shot asks, conversation history, detection/routing and review queue commands

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/fatih/color"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const banner = `
  _
 | | _____  __ _ ___  __ _
 | |/ / __|/ _' / __|/ _' |
 |   <\__ \ (_| \__ \ (_| |
 |_|\_\___/\__,_|___/\__,_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "chat":
		err = runChat(ctx, args)
	case "ask":
		err = runAsk(ctx, args)
	case "conversations", "ls":
		err = runConversations(ctx)
	case "new":
		err = runNew(ctx)
	case "history":
		err = runHistory(ctx, args)
	case "export":
		err = runExport(ctx, args)
	case "detect":
		err = runDetect(args)
	case "route":
		err = runRoute(args)
	case "action":
		err = runAction(ctx, args)
	case "pending":
		err = runPending(ctx)
	case "approve":
		err = runApprove(ctx, args)
	case "decline":
		err = runDecline(ctx, args)
	case "metrics":
		err = runMetrics(ctx)
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: ksasa <command> [args]")
	fmt.Println()
	yellow.Println("Conversation:")
	fmt.Println("  chat [--new]                       Interactive chat (resumes the latest conversation)")
	fmt.Println("  ask [--new] [--attach PATH] TEXT   Send one prompt and print the reply")
	fmt.Println("  conversations                      List conversations, newest first")
	fmt.Println("  new                                Create an empty conversation")
	fmt.Println("  history [ID]                       Show a conversation (default: latest)")
	fmt.Println("  export [--html] [--out FILE] [ID]  Export a conversation as Markdown or HTML")
	fmt.Println()
	yellow.Println("Classification:")
	fmt.Println("  detect TEXT                        Show the detected language and keyword scores")
	fmt.Println("  route TEXT                         Show the routed domain and its request context")
	fmt.Println()
	yellow.Println("Agent Service:")
	fmt.Println("  action AUDIT_ID ACTION             Submit a follow-up action for a reply")
	fmt.Println("  pending                            List actions awaiting human review")
	fmt.Println("  approve ID                         Approve a pending action")
	fmt.Println("  decline ID [REASON]                Decline a pending action")
	fmt.Println("  metrics                            Show Agent Service metrics")
	fmt.Println("  health                             Check the Agent Service")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  KSASA_CONFIG                       Config file (default: $XDG_CONFIG_HOME/ksasa/config.yaml)")
	fmt.Println()
}

func printBanner(a *app) {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)

	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)

	green.Print("    ▶ ")
	fmt.Printf("Agent:     %s\n", a.cfg.Agent.BaseURL)
	green.Print("    ▶ ")
	fmt.Printf("Storage:   %s", a.cfg.Storage.Backend)
	if a.cfg.Storage.Backend == "sqlite" {
		gray.Printf(" (%s)", a.cfg.Storage.Path)
	}
	fmt.Println()
	green.Print("    ▶ ")
	fmt.Printf("User:      %s\n", a.userID)
	fmt.Println()
	gray.Println("Type /help for commands.")
	fmt.Println()
}

// parseArgs splits args into flags and positional arguments. Flags in
// valueFlags take a value ("--out x" or "--out=x"); flags in boolFlags take
// none. Anything else starting with "--" is an error.
func parseArgs(args, boolFlags, valueFlags []string) (map[string]string, []string, error) {
	flags := make(map[string]string)
	var positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if !strings.HasPrefix(arg, "--") {
			positional = append(positional, arg)
			continue
		}

		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		switch {
		case slices.Contains(valueFlags, name) && hasValue:
			flags[name] = value
		case slices.Contains(valueFlags, name):
			if i+1 >= len(args) {
				return nil, nil, fmt.Errorf("--%s requires a value", name)
			}
			flags[name] = args[i+1]
			i++
		case slices.Contains(boolFlags, name) && !hasValue:
			flags[name] = "true"
		default:
			return nil, nil, fmt.Errorf("unknown flag: %s", arg)
		}
	}
	return flags, positional, nil
}
