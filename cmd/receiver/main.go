package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"storeWs/internal/config"
	"storeWs/internal/modules/inbox"
	"storeWs/internal/modules/receiver"
	"storeWs/internal/platform/retry"
	"storeWs/internal/shared/logging"
)

var version = "dev"

func main() {
	if err := godotenv.Overload(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, ".env load warning: %v\n", err)
		}
	}

	app := &cli.Command{
		Name:    "store-ws-receiver",
		Usage:   "Subscribe to price channels and keep a local notification inbox",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a config file", Sources: cli.EnvVars("STORE_WS_CONFIG")},
			&cli.StringFlag{Name: "url", Usage: "broker websocket url (overrides receiver.url)"},
			&cli.StringFlag{Name: "page-url", Usage: "derive the broker url from a storefront page url"},
			&cli.StringSliceFlag{Name: "channel", Usage: "channel to subscribe to, repeatable"},
			&cli.StringFlag{Name: "store", Usage: "inbox driver: memory, file or sqlite"},
			&cli.StringFlag{Name: "store-path", Usage: "file path or sqlite dsn for the inbox"},
			&cli.StringFlag{Name: "token", Usage: "bearer token sent on connect", Sources: cli.EnvVars("RECEIVER_TOKEN")},
			&cli.StringFlag{Name: "log-level", Usage: "override logging.level"},
		},
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "store-ws-receiver: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	rc := cfg.Receiver
	if v := cmd.String("url"); v != "" {
		rc.URL = v
	}
	if v := cmd.String("page-url"); v != "" {
		if rc.URL, err = receiver.EndpointURL(v, "/ws"); err != nil {
			return err
		}
	}
	if v := cmd.StringSlice("channel"); len(v) > 0 {
		rc.Channels = v
	}
	if v := cmd.String("store"); v != "" {
		rc.Store.Driver = v
	}
	if v := cmd.String("store-path"); v != "" {
		rc.Store.Path = v
	}
	if v := cmd.String("token"); v != "" {
		rc.Token = v
	}
	if err := rc.Validate(); err != nil {
		return err
	}
	level := cfg.Logging.Level
	if v := cmd.String("log-level"); v != "" {
		level = v
	}
	slog.SetDefault(logging.New(os.Stderr, logging.Config{Level: level, Format: cfg.Logging.Format}))

	persister, closePersister, err := openPersister(ctx, rc.Store)
	if err != nil {
		return err
	}
	defer closePersister()

	store := inbox.NewStore(persister, rc.Store.MaxSize)
	if err := store.Load(ctx); err != nil {
		slog.Warn("inbox load failed, starting empty", slog.Any("error", err))
	}

	backoff, err := retry.FromPolicy(rc.Backoff.Policy, rc.Backoff.Base, rc.Backoff.Max, rc.Backoff.Jitter)
	if err != nil {
		return err
	}

	header := http.Header{}
	if rc.Token != "" {
		header.Set("Authorization", "Bearer "+rc.Token)
	}
	r := receiver.New(receiver.Options{
		URL:         rc.URL,
		Channels:    rc.Channels,
		Dialer:      receiver.WebsocketDialer{Header: header},
		Backoff:     backoff,
		Store:       store,
		MergeWindow: rc.Store.MergeWindow,
		ReadTimeout: rc.ReadTimeout,
	})

	events := r.Bus().Subscribe()
	go func() {
		for n := range events {
			slog.Info("price event",
				slog.String("type", string(n.Type)),
				slog.String("productId", n.Event.ProductKey()),
				slog.Time("at", n.At),
			)
		}
	}()
	defer r.Bus().Close()

	slog.Info("receiver starting", slog.String("url", rc.URL), slog.Any("channels", rc.Channels), slog.String("store", rc.Store.Driver))
	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("receiver stopped", slog.Int("inbox", store.Len()))
	return nil
}

func openPersister(ctx context.Context, sc config.StoreConfig) (inbox.Persister, func(), error) {
	switch sc.Driver {
	case "file":
		return inbox.NewFilePersister(sc.Path), func() {}, nil
	case "sqlite":
		p, err := inbox.OpenSQLite(ctx, sc.Path)
		if err != nil {
			return nil, nil, err
		}
		return p, func() { _ = p.Close() }, nil
	default:
		return inbox.NewMemoryPersister(), func() {}, nil
	}
}
