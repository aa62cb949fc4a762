package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"gosuda.org/portal/portal/core/cryptoops"
	"gosuda.org/portal/sdk"

	"github.com/gosuda/minichat/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "minichat-server",
	Short: "Minichat backend",
	RunE:  runServer,
}

var (
	flagServerURLs []string
	flagAddr       string
	flagName       string
	flagDataPath   string
	flagUploadDir  string
	flagJWTSecret  string
	flagChannels   []string
	flagCredKey    string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringSliceVar(&flagServerURLs, "server-url", strings.Split(os.Getenv("RELAY"), ","), "relayserver base URL(s); repeat or comma-separated (from env RELAY if set)")
	flags.StringVar(&flagAddr, "addr", ":4000", "local HTTP listen address (empty to disable)")
	flags.StringVar(&flagName, "name", "minichat", "backend display name")
	flags.StringVar(&flagDataPath, "data-path", "", "optional directory to persist chat history via PebbleDB")
	flags.StringVar(&flagUploadDir, "upload-dir", "uploads", "directory for uploaded files")
	flags.StringVar(&flagJWTSecret, "jwt-secret", os.Getenv("JWT_SECRET"), "HMAC secret for login tokens (from env JWT_SECRET if set)")
	flags.StringSliceVar(&flagChannels, "channel", nil, "seed channel(s) beyond the defaults")
	flags.StringVar(&flagCredKey, "cred-key", "", "optional credential key to use for the relay listener (base64 encoded)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute server command")
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	secret := flagJWTSecret
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return fmt.Errorf("generate jwt secret: %w", err)
		}
		secret = base64.StdEncoding.EncodeToString(buf)
		log.Warn().Msg("[server] no --jwt-secret given; using a random one, tokens will not survive restarts")
	}

	srv := server.New(server.Config{
		JWTSecret: secret,
		UploadDir: flagUploadDir,
		Channels:  flagChannels,
	})

	// Optional: open persistent store and preload history
	var store *server.Store
	if flagDataPath != "" {
		s, err := server.OpenStore(flagDataPath)
		if err != nil {
			log.Warn().Err(err).Msg("[server] open store failed; running in memory only")
		} else {
			store = s
			srv.AttachStore(store)
		}
	}
	handler := srv.Handler()

	// Shared credential across all relay listeners
	cred := sdk.NewCredential()
	if flagCredKey != "" {
		key, err := base64.StdEncoding.DecodeString(flagCredKey)
		if err != nil {
			return fmt.Errorf("decode cred key: %w", err)
		}
		cred2, err := cryptoops.NewCredentialFromPrivateKey(key)
		if err != nil {
			return fmt.Errorf("new credential from private key: %w", err)
		}
		cred = cred2
	}
	var clients []*sdk.RDClient
	var listeners []net.Listener
	for _, raw := range flagServerURLs {
		for _, p := range strings.Split(raw, ",") {
			u := strings.TrimSpace(p)
			if u == "" {
				continue
			}
			client, err := sdk.NewClient(func(c *sdk.RDClientConfig) { c.BootstrapServers = []string{u} })
			if err != nil {
				log.Error().Err(err).Str("url", u).Msg("[server] new relay client failed")
				continue
			}
			clients = append(clients, client)
			ln, err := client.Listen(cred, flagName, []string{"http/1.1"})
			if err != nil {
				return fmt.Errorf("listen (%s): %w", u, err)
			}
			listeners = append(listeners, ln)
		}
	}
	if len(listeners) == 0 && flagAddr == "" {
		return fmt.Errorf("nothing to serve: no relay via --server-url and no local --addr")
	}

	for i, ln := range listeners {
		idx := i
		go func() {
			if err := http.Serve(ln, handler); err != nil && err != http.ErrServerClosed && ctx.Err() == nil {
				log.Error().Err(err).Int("listener", idx).Msg("[server] relay http error")
			}
		}()
	}

	var httpSrv *http.Server
	if flagAddr != "" {
		httpSrv = &http.Server{Addr: flagAddr, Handler: handler, ReadHeaderTimeout: 5 * time.Second, IdleTimeout: 60 * time.Second}
		log.Info().Msgf("[server] serving locally at %s", flagAddr)
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn().Err(err).Msg("[server] local http stopped")
			}
		}()
	}

	go func() {
		<-ctx.Done()
		for _, ln := range listeners {
			_ = ln.Close()
		}
		for _, c := range clients {
			_ = c.Close()
		}
		if httpSrv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpSrv.Shutdown(sctx); err != nil && err != context.Canceled {
				log.Error().Err(err).Msg("[server] http shutdown error")
			}
		}
	}()

	<-ctx.Done()
	srv.Shutdown()
	if store != nil {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("[server] store close error")
		}
	}
	log.Info().Msg("[server] shutdown complete")
	return nil
}
