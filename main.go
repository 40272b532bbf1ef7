package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"

	"refbook/internal/app"
	"refbook/internal/config"
	"refbook/internal/logger"
)

func main() {
	log := slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil)))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		slog.Error("failed to bootstrap dependencies", "error", err)
		os.Exit(1)
	}
	defer deps.DB.Close()
	defer deps.Embedder.Close()
	defer deps.Generator.Close()

	a, err := app.New(cfg, deps.DB, deps.VectorStore, deps.NSQProducer, deps.Embedder, deps.Generator, log)
	if err != nil {
		slog.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	// Ingestion consumer. The producer side publishes to the same topic
	// when resources are added or refreshed.
	nsqCfg := nsq.NewConfig()
	consumer, err := nsq.NewConsumer(config.TopicResourceIngest, config.ChannelIngest, nsqCfg)
	if err != nil {
		slog.Error("failed to create NSQ consumer", "error", err)
		os.Exit(1)
	}
	consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
		return a.Pipeline.HandleMessage(m)
	}))
	if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
		slog.Error("failed to connect to NSQLookupd", "error", err)
	} else {
		slog.Info("ingestion consumer connected", "topic", config.TopicResourceIngest)
	}
	defer consumer.Stop()

	if err := a.Run(ctx); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
