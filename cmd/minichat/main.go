package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/minichat/chat"
	"github.com/gosuda/minichat/httpapi"
	"github.com/gosuda/minichat/realtime"
)

var rootCmd = &cobra.Command{
	Use:   "minichat",
	Short: "Terminal chat client",
	RunE:  runClient,
}

var (
	flagServer   string
	flagUsername string
)

func init() {
	server := os.Getenv("MINICHAT_SERVER")
	if server == "" {
		server = "http://localhost:4000"
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagServer, "server", server, "backend base URL (from env MINICHAT_SERVER if set)")
	flags.StringVar(&flagUsername, "username", "", "pre-fill the login username")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute client command")
	}
}

// websocketURL maps an http(s) base URL to the backend's ws endpoint.
func websocketURL(base string) string {
	u := strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

func runClient(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The TUI owns the terminal; keep zerolog out of the way.
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)

	api := httpapi.NewClient(flagServer)
	conn, err := realtime.Dial(ctx, websocketURL(flagServer))
	if err != nil {
		return fmt.Errorf("connect %s: %w", flagServer, err)
	}
	defer conn.Close()

	client := chat.NewClient(api, conn)
	p := tea.NewProgram(newModel(ctx, client), tea.WithAltScreen(), tea.WithContext(ctx))

	client.Feed.SetNotify(func() { p.Send(feedUpdatedMsg{}) })
	go func() {
		client.Run(ctx, conn.Events())
		p.Send(disconnectedMsg{})
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}
