// sagechat TUI - A terminal interface for the Sage multi-agent chat server.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/time/rate"

	"github.com/jeranaias/sagechat-tui/internal/config"
	"github.com/jeranaias/sagechat-tui/internal/sage"
	"github.com/jeranaias/sagechat-tui/internal/storage"
	"github.com/jeranaias/sagechat-tui/internal/ui/chat"
	"github.com/jeranaias/sagechat-tui/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	var (
		serverURL   = flag.String("server", "", "Sage server base URL (overrides config)")
		configPath  = flag.String("config", "", "path to a config file (TOML or JSON)")
		noStore     = flag.Bool("no-store", false, "disable conversation persistence")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("sagechat %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	setupLogging()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *serverURL != "" {
		cfg.Server.BaseURL = *serverURL
	}
	if *noStore {
		cfg.Storage.Disabled = true
	}

	client := sage.NewClientWithConfig(&sage.ClientConfig{
		BaseURL: cfg.Server.BaseURL,
		Timeout: time.Duration(cfg.Server.TimeoutSecs) * time.Second,
		UserID:  cfg.Server.UserID,
		// Defaults for the interrupt limiter are fine; set explicitly so
		// a config knob can be added without touching call sites.
		InterruptRate: rate.Limit(1),
	})

	store, err := openStore(cfg)
	if err != nil {
		// Persistence is a convenience; the chat still works without it.
		fmt.Fprintf(os.Stderr, "Warning: conversation storage unavailable: %v\n", err)
	}
	if store != nil {
		defer store.Close()
	}

	theme := styles.NewThemeWithMode(cfg.UI.Theme)
	m := chat.New(cfg, client, store, theme)

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.UI.MouseEnabled {
		opts = append(opts, tea.WithMouseCellMotion())
	}

	p := tea.NewProgram(m, opts...)

	if watcher := watchConfig(*configPath, p); watcher != nil {
		defer watcher.Close()
	}

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// watchConfig starts hot-reload of the config file, feeding reloaded
// configs into the running program. Watch failures are non-fatal.
func watchConfig(explicitPath string, p *tea.Program) *config.Watcher {
	path := explicitPath
	if path == "" {
		var err error
		path, err = config.ConfigPathTOML()
		if err != nil {
			return nil
		}
	}

	watcher, err := config.NewWatcher(path,
		func(cfg *config.Config) { p.Send(chat.ConfigReloadedMsg{Config: cfg}) },
		nil,
	)
	if err != nil {
		return nil
	}
	if err := watcher.Watch(); err != nil {
		watcher.Close()
		return nil
	}
	return watcher
}

// setupLogging routes the standard logger to a file under the config
// directory. The TUI owns stdout/stderr, so diagnostics cannot go
// there; when the log file cannot be opened they are discarded.
func setupLogging() {
	log.SetOutput(io.Discard)
	dir, err := config.ConfigDir()
	if err != nil {
		return
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return
	}
	f, err := os.OpenFile(filepath.Join(dir, "sagechat.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return
	}
	log.SetOutput(f)
}

// loadConfig loads from an explicit path when given, otherwise from the
// default locations.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	cfg, err := config.Load()
	if err != nil {
		// Load returns defaults alongside an informational error when a
		// config file exists but could not be parsed.
		if cfg == nil {
			return nil, err
		}
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
	}
	return cfg, nil
}

// openStore opens the conversation store per configuration. A nil store
// with nil error means persistence is disabled.
func openStore(cfg *config.Config) (*storage.ConversationStore, error) {
	if cfg.Storage.Disabled {
		return nil, nil
	}
	var store *storage.ConversationStore
	var err error
	if cfg.Storage.DBPath != "" {
		store, err = storage.NewConversationStoreAtPath(cfg.Storage.DBPath)
	} else {
		store, err = storage.NewConversationStore()
	}
	if err != nil {
		return nil, err
	}
	if cfg.Storage.MaxConversations > 0 {
		store.MaxConversations = cfg.Storage.MaxConversations
	}
	return store, nil
}
