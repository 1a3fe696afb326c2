package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/omochice/chatsync/internal/client"
	"github.com/omochice/chatsync/internal/config"
	"github.com/omochice/chatsync/internal/logger"
	"github.com/omochice/chatsync/internal/metrics"
)

var (
	version = "dev"

	configPath string
	userID     string
	token      string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:     "chat-client",
	Short:   "Terminal client for the messaging server",
	Version: version,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conv, _ := cmd.Flags().GetString("conversation")
		return withClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
			return chatLoop(ctx, c, conv, os.Stdin, os.Stdout)
		})
	},
}

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List conversations with unread counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
			st := c.Store()
			fmt.Printf("%d unread\n", st.UnreadCount())
			for _, conv := range st.Conversations() {
				fmt.Printf("%-24s %-20s %3d unread  %s\n",
					conv.ID, conversationTitle(conv, c.CurrentUser()), conv.UnreadCount, humanize.Time(conv.LastMessageAt))
			}
			return nil
		})
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", os.Getenv("CHATSYNC_USER_ID"), "id of the signed-in user")
	rootCmd.PersistentFlags().StringVarP(&token, "token", "t", os.Getenv("CHATSYNC_TOKEN"), "bearer token")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.Flags().String("conversation", "", "conversation to open on start")

	rootCmd.AddCommand(conversationsCmd)
}

// withClient loads configuration, connects, syncs and runs the dispatch loop
// around fn.
func withClient(parent context.Context, fn func(ctx context.Context, c *client.Client) error) error {
	if token == "" {
		return errors.New("token is required, use --token or CHATSYNC_TOKEN")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	log := logger.Init(os.Stderr, cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		m = metrics.New(reg)
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server stopped", "error", err)
			}
		}()
		defer srv.Close()
		log.Info("serving metrics", "addr", cfg.Metrics.Addr)
	}

	c, err := client.New(cfg,
		client.WithLogger(log),
		client.WithMetrics(m),
		client.WithCurrentUser(userID),
	)
	if err != nil {
		return err
	}

	if err := c.Connect(ctx, token); err != nil {
		return err
	}
	defer c.Disconnect()
	log.Info("connected", "server", cfg.Server.StreamURL, "codec", cfg.Session.Codec)

	go c.Run(ctx)

	if err := c.Sync(ctx); err != nil {
		return err
	}
	return fn(ctx, c)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
