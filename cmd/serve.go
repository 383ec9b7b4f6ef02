package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/parnexcodes/pairlink/internal/api"
	"github.com/parnexcodes/pairlink/internal/lifecycle"
	"github.com/parnexcodes/pairlink/internal/logging"
	"github.com/parnexcodes/pairlink/internal/pairing"
	"github.com/parnexcodes/pairlink/internal/protocol/bridge"
	"github.com/parnexcodes/pairlink/internal/session"
	"github.com/parnexcodes/pairlink/internal/uploader"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pairing HTTP service",
	Long: `Serve answers GET /code?number=<phone> with a pairing code. The session
behind each code keeps running after the response: it reconnects on
transient drops, uploads the credentials once the device is linked and
messages the link to the user.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("address", ":8000", "listen address")
	serveCmd.Flags().String("gateway", "http://127.0.0.1:3001", "protocol gateway URL")
	serveCmd.Flags().String("sessions-dir", "./sessions", "directory holding live session credentials")
	serveCmd.Flags().String("ledger", "./pairlink.db", "attempt ledger database (empty disables)")
	serveCmd.Flags().Bool("metrics", true, "expose Prometheus metrics on /metrics")

	viper.BindPFlag("server.address", serveCmd.Flags().Lookup("address"))
	viper.BindPFlag("protocol.gateway_url", serveCmd.Flags().Lookup("gateway"))
	viper.BindPFlag("sessions.dir", serveCmd.Flags().Lookup("sessions-dir"))
	viper.BindPFlag("ledger.path", serveCmd.Flags().Lookup("ledger"))
	viper.BindPFlag("metrics.enabled", serveCmd.Flags().Lookup("metrics"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := session.NewStore(cfg.Sessions.Dir, cfg.Sessions.BundleName)
	if err != nil {
		return err
	}

	m := newMetrics(cfg)

	chain, err := buildChain(cfg, nil, uploader.ChainOptions{
		FlushGrace: cfg.Pairing.FlushGrace,
		Metrics:    m,
	})
	if err != nil {
		return err
	}

	rec, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer rec.Close()

	dialer := bridge.NewDialer(bridge.Config{
		GatewayURL:      cfg.Protocol.GatewayURL,
		Timeout:         cfg.Protocol.Timeout,
		PollWait:        cfg.Protocol.PollWait,
		MaxPollFailures: cfg.Protocol.MaxPollFailures,
	})

	svc, err := pairing.NewService(pairing.Options{
		Store:         store,
		Dialer:        dialer,
		Exporter:      chain,
		Metrics:       m,
		Ledger:        rec,
		Settings:      lifecycle.SettingsFromConfig(cfg),
		Supervisor:    lifecycle.SupervisorConfigFromConfig(cfg),
		CodeTimeout:   cfg.Pairing.CodeTimeout,
		MaxConcurrent: cfg.Sessions.MaxConcurrent,
	})
	if err != nil {
		return err
	}

	var metricsHandler http.Handler
	if m != nil {
		metricsHandler = m.Handler()
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      api.NewRouter(api.NewHandler(svc, metricsHandler)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logging.Info("Pairing service listening", map[string]interface{}{
			"address":   cfg.Server.Address,
			"gateway":   cfg.Protocol.GatewayURL,
			"providers": chain.Names(),
			"sessions":  store.Root(),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logging.Info("Shutting down", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		return errors.Join(srv.Shutdown(shutdownCtx), svc.Shutdown(shutdownCtx))
	})

	return g.Wait()
}
