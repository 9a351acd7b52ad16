package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/NIkhilbadveli/UpstoxTrading/pkg/broker"
	"github.com/NIkhilbadveli/UpstoxTrading/pkg/config"
	"github.com/NIkhilbadveli/UpstoxTrading/pkg/control"
	"github.com/NIkhilbadveli/UpstoxTrading/pkg/engine"
	"github.com/NIkhilbadveli/UpstoxTrading/pkg/universe"
	"github.com/NIkhilbadveli/UpstoxTrading/pkg/upstox"
)

func newRootCmd(cfg config.Config, logger *zap.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "upstoxtrading",
		Short: "Intraday momentum trading engine for NSE equities",
		Long: "upstoxtrading scans NSE equities for large intraday moves, buys " +
			"momentum breakouts with bounded sizing, and trails every open " +
			"position with a stop-loss until the session closes.",
		SilenceUsage: true,
	}
	root.AddCommand(
		newRunCmd(cfg, logger),
		newLoginCmd(cfg, logger),
		newExitAllCmd(cfg, logger),
		newUniverseCmd(cfg, logger),
	)
	return root
}

func tokenCache(cfg config.Config) upstox.TokenCache {
	return upstox.TokenCache{Path: filepath.Join(cfg.DataDir, "login_data.txt")}
}

// loadBroker builds the configured backend, reading the cached day token
// for the upstox backend.
func loadBroker(cfg config.Config, logger *zap.Logger) (broker.Broker, broker.QuoteProvider, error) {
	token := ""
	if cfg.Broker == "upstox" {
		token = tokenCache(cfg).Load(time.Now().In(cfg.Location()))
		if token == "" {
			return nil, nil, fmt.Errorf("no access token for today, run the login command first")
		}
	}
	return engine.NewBroker(cfg, logger, token)
}

func newRunCmd(cfg config.Config, logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the trading engine for the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			b, qp, err := loadBroker(cfg, logger)
			if err != nil {
				return err
			}
			logger.Info("broker ready", zap.String("backend", b.Name()))

			reg := prometheus.NewRegistry()
			engine.RegisterMetrics(reg)
			startMetricsServer(cfg.MetricsAddr, reg, logger)

			eng, err := engine.New(cfg, b, qp, logger)
			if err != nil {
				return err
			}

			bot := startControlBot(ctx, cfg, b, logger)

			if err := eng.Run(ctx); err != nil {
				if bot != nil {
					bot.Notify("Engine stopped with error: " + err.Error())
				}
				return err
			}
			if bot != nil {
				bot.Notify("Session over, engine stopped cleanly.")
			}
			return nil
		},
	}
}

func newLoginCmd(cfg config.Config, logger *zap.Logger) *cobra.Command {
	var code string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Print the OAuth URL, or exchange an auth code for a day token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if code == "" {
				fmt.Println(upstox.LoginURL(cfg.UpstoxAPIKey, cfg.UpstoxRedirectURI))
				return nil
			}
			client := upstox.NewClient("", logger)
			err := client.Login(cmd.Context(), tokenCache(cfg),
				cfg.UpstoxAPIKey, cfg.UpstoxAPISecret, cfg.UpstoxRedirectURI, code)
			if err != nil {
				return err
			}
			fmt.Println("logged in, token cached for today")
			return nil
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "auth code from the redirect URL")
	return cmd
}

func newExitAllCmd(cfg config.Config, logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "exit-all",
		Short: "Market-sell every open position",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, _, err := loadBroker(cfg, logger)
			if err != nil {
				return err
			}
			sold, err := broker.ExitAll(cmd.Context(), b, logger)
			if err != nil {
				return err
			}
			fmt.Printf("exited %d positions\n", len(sold))
			return nil
		},
	}
}

func newUniverseCmd(cfg config.Config, logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "universe",
		Short: "Download the NSE equity list and print the tradable universe size",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := universe.NewLoader(filepath.Join(cfg.DataDir, "EQUITY_L.csv"), cfg.InstrumentsCSV, logger)
			if err := loader.Refresh(); err != nil {
				return err
			}
			instruments, err := loader.Load()
			if err != nil {
				return err
			}
			fmt.Printf("%d tradable instruments\n", len(instruments))
			return nil
		},
	}
}

func startMetricsServer(addr string, reg *prometheus.Registry, logger *zap.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		logger.Info("metrics listening", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
}

// startControlBot wires the Telegram command surface when a token is
// configured. Returns nil (and the engine runs headless) otherwise.
func startControlBot(ctx context.Context, cfg config.Config, b broker.Broker, logger *zap.Logger) *control.Bot {
	if cfg.TelegramBotToken == "" || cfg.TelegramChatID == 0 {
		return nil
	}
	hooks := control.Hooks{
		LoginURL: func() string {
			return upstox.LoginURL(cfg.UpstoxAPIKey, cfg.UpstoxRedirectURI)
		},
		SubmitCode: func(ctx context.Context, code string) error {
			client := upstox.NewClient("", logger)
			return client.Login(ctx, tokenCache(cfg),
				cfg.UpstoxAPIKey, cfg.UpstoxAPISecret, cfg.UpstoxRedirectURI, code)
		},
		Status: func(ctx context.Context) (string, error) {
			balance, err := b.AvailableBalance(ctx)
			if err != nil {
				return "", err
			}
			positions, err := b.Positions(ctx)
			if err != nil {
				return "", err
			}
			return control.StatusText(balance, positions), nil
		},
		StartTrading: func() error {
			// The run command already drives the session; the bot only reports.
			return fmt.Errorf("engine already running")
		},
		ExitAll: func(ctx context.Context) ([]string, error) {
			return broker.ExitAll(ctx, b, logger)
		},
	}
	bot, err := control.NewBot(cfg.TelegramBotToken, cfg.TelegramChatID, hooks, logger)
	if err != nil {
		logger.Warn("telegram bot unavailable", zap.Error(err))
		return nil
	}
	go bot.Run(ctx)
	return bot
}
