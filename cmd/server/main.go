package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"storeWs/internal/config"
	"storeWs/internal/modules/realtime/application/handler"
	"storeWs/internal/modules/realtime/application/usecase"
	"storeWs/internal/modules/realtime/infrastructure"
	transport "storeWs/internal/modules/realtime/interface"
	"storeWs/internal/platform/broker"
	"storeWs/internal/shared/auth"
	"storeWs/internal/shared/logging"
)

var version = "dev"

func main() {
	// Load .env so local runs honour configuration tweaks.
	if err := godotenv.Overload(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, ".env load warning: %v\n", err)
		}
	}

	app := &cli.Command{
		Name:    "store-ws",
		Usage:   "Real-time price notification broker",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to a config file (yaml, json or toml)",
				Sources: cli.EnvVars("STORE_WS_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override logging.level (trace, debug, info, warn, error)",
			},
		},
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "store-ws: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	if level := cmd.String("log-level"); level != "" {
		cfg.Logging.Level = level
	}

	logFile, logger, err := logging.Setup(cfg.Logging.Directory, logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: true,
	})
	if err != nil {
		return fmt.Errorf("logging setup: %w", err)
	}
	defer logFile.Close()
	slog.SetDefault(logger)
	slog.Info("logging initialized", slog.String("directory", cfg.Logging.Directory), slog.String("level", cfg.Logging.Level), slog.String("format", cfg.Logging.Format))
	slog.Info("kafka config resolved", slog.Any("brokers", cfg.Kafka.Brokers), slog.String("group", cfg.Kafka.GroupID), slog.Any("topics", cfg.Kafka.Topics))

	validator, err := auth.NewJWTValidator(cfg.Security.JWTSecret, cfg.Security.JWTPublicKey)
	if err != nil {
		return err
	}
	if !validator.Enabled() {
		slog.Warn("jwt validation disabled: no secret or public key configured")
	}

	priceBroker := infrastructure.NewBroker(infrastructure.NewTopicRegistry())
	brokerDone := make(chan struct{})
	go func() {
		defer close(brokerDone)
		_ = priceBroker.Run(ctx)
	}()

	publishUC := usecase.NewPublishPriceUseCase(priceBroker)

	registry := infrastructure.NewHandlerRegistry()
	for _, topic := range cfg.Kafka.Topics {
		registry.Register(handler.NewPriceStreamHandler(topic, cfg.Kafka.AllowedTypes, publishUC))
	}
	broker.StartKafkaConsumers(ctx, registry, cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.Topics)

	if cfg.NATS.URL != "" {
		registry.Register(handler.NewPriceStreamHandler(cfg.NATS.Subject, cfg.Kafka.AllowedTypes, publishUC))
		sub, err := broker.DialNATS(broker.NATSParams{
			URL:                 cfg.NATS.URL,
			MaxReconnectAttempt: cfg.NATS.MaxReconnects,
			ReconnectWait:       cfg.NATS.ReconnectWait,
		})
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer sub.Close()
		broker.StartNATSSubscriber(ctx, registry, sub, cfg.NATS.Subject)
	}

	e := transport.NewServer(transport.Routes{
		Broker:    priceBroker,
		PublishUC: publishUC,
		Validator: validator,
		Websocket: infrastructure.WebsocketOptions{
			SendBuffer:   cfg.Websocket.SendBuffer,
			ReadLimit:    cfg.Websocket.ReadLimit,
			PingInterval: cfg.Websocket.PingInterval,
			PongWait:     cfg.Websocket.PongWait,
			WriteWait:    cfg.Websocket.WriteWait,
		},
	})
	e.Logger.SetOutput(log.Writer())

	serverErr := make(chan error, 1)
	go func() {
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-serverErr:
		slog.Error("http server stopped", slog.Any("error", err))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	// websocket connections are hijacked, so Shutdown does not wait for them; the broker
	// closes them when its loop exits
	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", slog.Any("error", err))
	}
	<-brokerDone
	return nil
}
