package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/roomchat/internal/chat"
	"github.com/gosuda/roomchat/internal/config"
	"github.com/gosuda/roomchat/internal/history"
	"github.com/gosuda/roomchat/internal/tui"
)

var rootCmd = &cobra.Command{
	Use:   "roomchat",
	Short: "Terminal client for room-based websocket chat (/ws/chat/<room>/)",
	RunE:  runChat,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the locally stored transcript of a room",
	RunE:  runHistory,
}

var (
	flagHost     string
	flagSecure   bool
	flagRooms    []string
	flagRoom     string
	flagDataPath string
	flagHistory  int
	flagLogFile  string
	flagLogLevel string
)

func init() {
	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("[roomchat] ignoring invalid environment")
		cfg = config.Config{Host: "localhost:8000", Rooms: []string{"lobby", "general", "random"}, History: chat.DefaultHistoryLimit, LogLevel: "info"}
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagHost, "host", cfg.Host, "chat backend host[:port] or origin URL (env ROOMCHAT_HOST)")
	flags.BoolVar(&flagSecure, "secure", cfg.Secure, "use wss:// (env ROOMCHAT_SECURE)")
	flags.StringSliceVar(&flagRooms, "rooms", cfg.Rooms, "selectable rooms; repeat or comma-separated (env ROOMCHAT_ROOMS)")
	flags.StringVar(&flagRoom, "room", cfg.Room, "room to join on start (env ROOMCHAT_ROOM)")
	flags.StringVar(&flagDataPath, "data-path", cfg.DataPath, "optional directory to persist room transcripts via PebbleDB (env ROOMCHAT_DATA_PATH)")
	flags.IntVar(&flagHistory, "history", cfg.History, "stored lines replayed when a room opens; 0 uses the default of 50, negative disables (env ROOMCHAT_HISTORY)")
	flags.StringVar(&flagLogFile, "log-file", cfg.LogFile, "write logs to this file; logs are discarded when empty (env ROOMCHAT_LOG_FILE)")
	flags.StringVar(&flagLogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error (env ROOMCHAT_LOG_LEVEL)")

	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute roomchat command")
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	closeLog, err := setupLogging(flagLogFile, flagLogLevel, io.Discard)
	if err != nil {
		return err
	}
	defer closeLog()

	endpoint, err := chat.ParseEndpoint(flagHost, flagSecure)
	if err != nil {
		return fmt.Errorf("host: %w", err)
	}
	rooms := config.NormalizeRooms(flagRooms)
	if len(rooms) == 0 && flagRoom == "" {
		return fmt.Errorf("no rooms configured; pass --rooms or --room")
	}

	opts := tui.Options{
		Endpoint: endpoint,
		Dialer:   chat.WebSocketDialer{},
		Rooms:    rooms,
		Room:     flagRoom,
		Widget:   chat.Options{HistoryLimit: flagHistory},
	}

	store, err := history.Open(flagDataPath)
	if err != nil {
		log.Warn().Err(err).Msg("[chat] open store failed; running without history")
	} else if store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				log.Warn().Err(err).Msg("[chat] store close error")
			}
		}()
		opts.Widget.History = store
	}

	model := tui.New(ctx, opts)
	defer func() { _ = model.Widget().Close() }()

	log.Info().Str("host", endpoint.Host).Bool("secure", endpoint.Secure).Strs("rooms", rooms).Msg("[chat] starting")
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run ui: %w", err)
	}
	log.Info().Msg("[chat] shutdown complete")
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	closeLog, err := setupLogging(flagLogFile, flagLogLevel, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	if flagDataPath == "" {
		return fmt.Errorf("--data-path is required")
	}
	store, err := history.Open(flagDataPath)
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	if flagRoom == "" {
		rooms, err := store.Rooms()
		if err != nil {
			return fmt.Errorf("list rooms: %w", err)
		}
		for _, r := range rooms {
			fmt.Fprintln(out, r)
		}
		return nil
	}

	limit := flagHistory
	if limit < 0 {
		limit = 0
	}
	entries, err := store.Entries(flagRoom, limit)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	for _, e := range entries {
		fmt.Fprintf(out, "[%s] %s\n", e.TS.Local().Format(time.TimeOnly), e.Text)
	}
	return nil
}

// setupLogging points the global logger at path, or at fallback when path is
// empty. The returned func closes the log file.
func setupLogging(path, level string, fallback io.Writer) (func(), error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zerolog.SetGlobalLevel(lvl)

	var w io.Writer = fallback
	closer := func() {}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		closer = func() { _ = f.Close() }
	} else if fallback == os.Stderr {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return closer, nil
}
