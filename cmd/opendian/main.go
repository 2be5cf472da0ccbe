// Command opendian is an interactive multi-tab chat client for remote
// coding-agent backends.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aotsukiqx/opendian/internal/agent"
	_ "github.com/aotsukiqx/opendian/internal/agent/opencode"
	"github.com/aotsukiqx/opendian/internal/cleanup"
	"github.com/aotsukiqx/opendian/internal/config"
	"github.com/aotsukiqx/opendian/internal/conversation"
	"github.com/aotsukiqx/opendian/internal/logger"
	"github.com/aotsukiqx/opendian/internal/metrics"
	"github.com/aotsukiqx/opendian/internal/store"
	"github.com/aotsukiqx/opendian/internal/supervisor"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0"
var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	configDir := flag.String("config", "", "Directory containing opendian.jsonc")
	flag.Parse()

	if *showVersion {
		fmt.Printf("opendian %s\n", Version)
		return
	}

	if err := run(*configDir); err != nil {
		fmt.Fprintf(os.Stderr, "opendian: %v\n", err)
		os.Exit(1)
	}
}

func run(configDir string) error {
	cfg, err := config.LoadOrDefault(configDir)
	if err != nil {
		return err
	}

	if err := logger.InitSlog(cfg.LogDir, cfg.LogJSON); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logger.CloseSlog() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Binding store: tabs survive restarts through it
	bindings, err := store.NewStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer func() { _ = bindings.Close() }()

	// Backend server: adopt a running one or launch our own
	sup := supervisor.New(cfg.Server.Binary, cfg.Server.Hostname, cfg.Server.Port, cfg.LogDir)
	if cfg.Server.Autostart {
		if err := sup.EnsureRunning(ctx); err != nil {
			return err
		}
		defer sup.Stop()
	} else if !sup.CheckHealth(ctx) {
		return fmt.Errorf("backend server at %s is not reachable (autostart disabled)", sup.BaseURL())
	}

	backend := agent.BackendType(cfg.Backend)
	backendCfg := agent.BackendConfig{
		BaseURL:      sup.BaseURL(),
		DefaultModel: cfg.Model,
		ToolServers:  cfg.Tools,
	}

	// The process-wide active adapter backs one-off operations like
	// /models; tabs each get their own instance from the manager
	if _, err := agent.Switch(backend, backendCfg); err != nil {
		return err
	}
	defer agent.Install(nil)

	limiter := conversation.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)
	manager := conversation.NewManager(backend, backendCfg, bindings, limiter)
	defer manager.Close()

	if err := manager.Resume(ctx); err != nil {
		logger.Slog().Warn("tab resume failed", "error", err)
	}

	janitor := cleanup.New(cleanup.Config{
		Schedule:  cfg.Cleanup.Schedule,
		Retention: time.Duration(cfg.Cleanup.RetentionDays) * 24 * time.Hour,
		LogDir:    cfg.LogDir,
	}, bindings, limiter)
	if err := janitor.Start(); err != nil {
		return err
	}
	defer janitor.Stop()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	// Reload config on file changes: capability caches are invalidated
	// so new models/providers become visible without a restart
	if path, err := config.FindConfigPath(configDir); err == nil {
		stopWatch, err := config.Watch(path, func(*config.Config) {
			manager.ClearCaches()
			if active := agent.Active(); active != nil {
				active.ClearCache()
			}
		})
		if err != nil {
			logger.Slog().Warn("config watch failed", "error", err)
		} else {
			defer stopWatch()
		}
	}

	return repl(ctx, manager)
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	logger.Slog().Info("metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Slog().Error("metrics server failed", "error", err)
	}
}

// repl reads prompts and commands from stdin, streaming replies to stdout
func repl(ctx context.Context, manager *conversation.Manager) error {
	current, err := currentOrNewTab(ctx, manager, "")
	if err != nil {
		return err
	}

	fmt.Printf("opendian %s - type a prompt, /help for commands\n", Version)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Printf("[%s] > ", shortID(current.TabID()))
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			done, next := runCommand(ctx, manager, current, line)
			if done {
				return nil
			}
			if next != nil {
				current = next
			}
			continue
		}

		sendPrompt(ctx, manager, current, line)
	}
}

// currentOrNewTab picks an existing tab or opens the first one
func currentOrNewTab(ctx context.Context, manager *conversation.Manager, title string) (*conversation.Controller, error) {
	if tabs := manager.Tabs(); len(tabs) > 0 {
		return manager.Tab(tabs[0].ID)
	}
	return manager.OpenTab(ctx, title)
}

func sendPrompt(ctx context.Context, manager *conversation.Manager, tab *conversation.Controller, prompt string) {
	stream, err := manager.Send(ctx, tab.TabID(), prompt, nil)
	if err != nil {
		switch {
		case errors.Is(err, conversation.ErrBusy):
			fmt.Println("still streaming; /abort to cancel")
		case errors.Is(err, conversation.ErrRateLimited):
			fmt.Println("slow down: rate limit exceeded")
		default:
			fmt.Printf("send failed: %v\n", err)
		}
		return
	}

	printStream(stream)
}

func printStream(stream <-chan agent.StreamChunk) {
	inThinking := false
	for chunk := range stream {
		switch chunk.Type {
		case agent.ChunkThinking:
			if !inThinking {
				fmt.Print("(thinking) ")
				inThinking = true
			}
		case agent.ChunkText:
			if inThinking {
				fmt.Println()
				inThinking = false
			}
			fmt.Print(chunk.Content)
		case agent.ChunkSession:
			logger.Slog().Info("session created", "session_id", chunk.SessionID)
		case agent.ChunkError:
			fmt.Printf("\nerror: %s\n", chunk.Content)
		case agent.ChunkDone:
			fmt.Println()
		}
	}
}

// runCommand executes one slash command. Returns done=true to quit and a
// non-nil controller to switch the current tab.
func runCommand(ctx context.Context, manager *conversation.Manager, current *conversation.Controller, line string) (done bool, next *conversation.Controller) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		printHelp()

	case "/new":
		if err := current.NewSession(); err != nil {
			fmt.Printf("cannot reset: %v\n", err)
		} else {
			fmt.Println("started a fresh session")
		}

	case "/open":
		tab, err := manager.OpenTab(ctx, arg)
		if err != nil {
			fmt.Printf("open failed: %v\n", err)
			return false, nil
		}
		fmt.Printf("opened tab %s\n", shortID(tab.TabID()))
		return false, tab

	case "/close":
		if err := manager.CloseTab(current.TabID()); err != nil {
			fmt.Printf("close failed: %v\n", err)
			return false, nil
		}
		tab, err := currentOrNewTab(ctx, manager, "")
		if err != nil {
			fmt.Printf("no tab available: %v\n", err)
			return true, nil
		}
		return false, tab

	case "/tabs":
		for _, info := range manager.Tabs() {
			marker := " "
			if info.ID == current.TabID() {
				marker = "*"
			}
			fmt.Printf("%s %s  %-20s session=%s busy=%v\n",
				marker, shortID(info.ID), info.Title, info.SessionID, info.Busy)
		}

	case "/tab":
		tab, err := findTab(manager, arg)
		if err != nil {
			fmt.Printf("switch failed: %v\n", err)
			return false, nil
		}
		return false, tab

	case "/abort":
		current.Abort(ctx)
		fmt.Println("abort requested")

	case "/models":
		printModels(ctx)

	case "/share":
		active := agent.Active()
		sessionID := current.SessionID()
		if active == nil || sessionID == "" {
			fmt.Println("nothing to share yet")
			return false, nil
		}
		if url := active.ShareSession(ctx, sessionID); url != "" {
			fmt.Println(url)
		} else {
			fmt.Println("share failed")
		}

	case "/history":
		for _, msg := range current.History() {
			fmt.Printf("%s: %s\n", msg.Role, msg.Content)
		}

	default:
		fmt.Printf("unknown command %s (try /help)\n", cmd)
	}

	return false, nil
}

func printModels(ctx context.Context) {
	active := agent.Active()
	if active == nil {
		fmt.Println("no backend active")
		return
	}
	models := active.Models(ctx)
	if len(models) == 0 {
		fmt.Println("no models reported by the backend")
		return
	}
	for _, m := range models {
		var caps []string
		if m.SupportsReasoning {
			caps = append(caps, "reasoning")
		}
		if m.SupportsAttachment {
			caps = append(caps, "attachments")
		}
		fmt.Printf("%-50s %s [%s]\n", m.Key, m.DisplayName, strings.Join(caps, ","))
	}
}

// findTab resolves a tab by full or shortened id
func findTab(manager *conversation.Manager, id string) (*conversation.Controller, error) {
	if id == "" {
		return nil, conversation.ErrTabNotFound
	}
	for _, info := range manager.Tabs() {
		if info.ID == id || shortID(info.ID) == id {
			return manager.Tab(info.ID)
		}
	}
	return nil, fmt.Errorf("%w: %s", conversation.ErrTabNotFound, id)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func printHelp() {
	fmt.Print(`Commands:
  /new            Start a fresh session on this tab
  /open [title]   Open a new tab
  /close          Close the current tab
  /tabs           List open tabs
  /tab <id>       Switch to a tab
  /abort          Cancel the in-flight response
  /models         List available models
  /share          Print a share link for this tab's session
  /history        Print this tab's conversation history
  /quit           Exit
`)
}
