// mnemosyne-chat is an interactive REPL talking to the agent with its
// full memory subsystem: conversation log, summarizer, vector memory
// and knowledge graph.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/utakata/mnemosyne/internal/app"
	"github.com/utakata/mnemosyne/internal/config"
	"github.com/utakata/mnemosyne/internal/llm"
	"github.com/utakata/mnemosyne/pkg/types"
)

// historyWindow is how many recent items feed the planner prompts.
const historyWindow = 6

var (
	cfgPath string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "mnemosyne-chat",
	Short: "Chat with the agent and its long-term memory",
	RunE:  runChat,
}

func init() {
	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "config.yaml", "Path to YAML config")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	a, err := app.New(cfg, app.Options{WatchGraph: true, WithConversation: true}, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("%s is listening. /history [n] shows the log, /quit leaves.\n", cfg.Agent.Name)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		switch {
		case input == "":
			continue
		case input == "/quit", input == "/exit":
			return nil
		case strings.HasPrefix(input, "/history"):
			showHistory(a, input)
		default:
			interact(a, input)
		}
	}
	return scanner.Err()
}

func showHistory(a *app.App, input string) {
	n := 10
	if fields := strings.Fields(input); len(fields) > 1 {
		if parsed, err := strconv.Atoi(fields[1]); err == nil && parsed > 0 {
			n = parsed
		}
	}
	items, err := a.Conversation.ReadNearest(n)
	if err != nil {
		fmt.Printf("cannot read history: %v\n", err)
		return
	}
	now := time.Now()
	for _, item := range items {
		fmt.Printf("%s (%s)\n", item.String(), item.ElapsedLabel(now))
	}
}

func interact(a *app.App, input string) {
	ctx := context.Background()
	now := time.Now()

	history := recentHistory(a)
	contextBlock := a.Conversation.Context()
	knowledge := a.Manager.GetKnowledge(ctx, input, history)

	prompt := llm.ReplyPrompt(a.Config.Agent.Name, a.Profile.UserName(),
		now.Format(types.TimestampLayout), contextBlock, knowledge, input)
	reply, err := a.Client.Complete(ctx, prompt)
	if err != nil {
		a.Logger.WithError(err).Error("chat: reply generation failed")
		fmt.Println("(the agent is having trouble thinking right now)")
		return
	}
	reply = strings.TrimSpace(reply)
	fmt.Printf("%s: %s\n", a.Config.Agent.Name, reply)

	record(a, types.SourceUser, input, now)
	record(a, types.SourceAgent, reply, time.Now())
	a.Manager.PostProcessInteraction(recentHistory(a))
}

func record(a *app.App, source types.ConversationSource, content string, at time.Time) {
	err := a.Conversation.Append(types.ConversationItem{
		Timestamp: at.Format(types.TimestampLayout),
		Source:    source,
		Type:      types.ContextText,
		Content:   content,
	})
	if err != nil {
		a.Logger.WithError(err).Error("chat: appending to conversation log")
	}
}

func recentHistory(a *app.App) []string {
	items, err := a.Conversation.ReadNearest(historyWindow)
	if err != nil {
		a.Logger.WithError(err).Warn("chat: reading recent history")
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.String())
	}
	return out
}
