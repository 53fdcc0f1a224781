package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlog "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/coti-io/coti-explorer-api-sub000/cache"
	"github.com/coti-io/coti-explorer-api-sub000/config"
	"github.com/coti-io/coti-explorer-api-sub000/feed"
	"github.com/coti-io/coti-explorer-api-sub000/index"
	"github.com/coti-io/coti-explorer-api-sub000/notify"
	"github.com/coti-io/coti-explorer-api-sub000/repl"
	"github.com/coti-io/coti-explorer-api-sub000/scheduler"
	"github.com/coti-io/coti-explorer-api-sub000/stats"
	"github.com/coti-io/coti-explorer-api-sub000/streaming"
)

const (
	feedPoll        = "poll"
	feedReplication = "replication"

	// replicationMaxSilence is the longest gap without WAL messages the
	// healthcheck accepts; keepalives arrive well within it
	replicationMaxSilence = time.Minute
)

type Settings struct {
	PgDsn            string
	PgReplDsn        string
	Feed             string
	PollInterval     time.Duration
	RecentWindow     time.Duration
	RedisDsn         string
	BridgeChannel    string
	Port             int
	NativeCurrency   string
	CountersInterval time.Duration
	LogLevel         string
}

func parseSettings() Settings {
	var s Settings
	flag.StringVar(&s.PgDsn, "pg", config.String("EXPLORER_PG", "postgresql://localhost:5432"), "PostgreSQL connection string")
	flag.StringVar(&s.PgReplDsn, "pg-repl", config.String("EXPLORER_PG_REPL", ""), "PostgreSQL replication connection string (replication=database)")
	flag.StringVar(&s.Feed, "feed", config.String("EXPLORER_FEED", feedPoll), "Change feed: poll or replication")
	flag.DurationVar(&s.PollInterval, "poll-interval", config.Duration("EXPLORER_POLL_INTERVAL", time.Second), "Change feed poll interval")
	flag.DurationVar(&s.RecentWindow, "recent-window", config.Duration("EXPLORER_RECENT_WINDOW", 5*time.Minute), "Rows updated within this window are watched by the poller")
	flag.StringVar(&s.RedisDsn, "redis", config.String("EXPLORER_REDIS", "redis://localhost:6379"), "Redis connection string")
	flag.StringVar(&s.BridgeChannel, "bridge-channel", config.String("EXPLORER_BRIDGE_CHANNEL", streaming.DefaultBridgeChannel), "Redis channel relayed into rooms")
	flag.IntVar(&s.Port, "port", config.Int("EXPLORER_WS_PORT", 8001), "Server port")
	flag.StringVar(&s.NativeCurrency, "native-currency", config.String("EXPLORER_NATIVE_CURRENCY", ""), "Native currency hash, excluded from token events")
	flag.DurationVar(&s.CountersInterval, "counters-interval", config.Duration("EXPLORER_COUNTERS_INTERVAL", 10*time.Second), "Active wallets and transaction total refresh interval")
	flag.StringVar(&s.LogLevel, "log-level", config.String("EXPLORER_LOG_LEVEL", "info"), "Log level")
	flag.Parse()
	return s
}

// newSource builds the change feed selected by settings. The returned
// healthcheck reports whether the feed is still alive.
func newSource(s Settings, pool *index.DbClient, log logrus.FieldLogger) (feed.Source, func() error, error) {
	switch s.Feed {
	case feedPoll:
		poller := feed.NewPoller(pool, feed.PollerConfig{Interval: s.PollInterval, Window: s.RecentWindow}, log)
		return poller, func() error { return nil }, nil
	case feedReplication:
		replicator, err := repl.NewReplicator(repl.Config{
			ConnectionString:  s.PgReplDsn,
			TemporarySlot:     true,
			CreatePublication: true,
		})
		if err != nil {
			return nil, nil, err
		}
		source := feed.NewReplicationSource(replicator, 0, log)
		health := func() error {
			if err := source.Err(); err != nil {
				return err
			}
			if silence := replicator.TimeSinceLastMsg(); silence > replicationMaxSilence {
				return fmt.Errorf("no replication messages for %s", silence.Truncate(time.Second))
			}
			return nil
		}
		return source, health, nil
	}
	return nil, nil, fmt.Errorf("unknown feed %q", s.Feed)
}

func newApp(hub *streaming.Hub, registry *streaming.Registry, health func() error, log logrus.FieldLogger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:     "COTI Explorer WebSocket Gateway",
		ReadTimeout: 5 * time.Second,
		ProxyHeader: fiber.HeaderXForwardedFor,
	})
	app.Use(fiberlog.New())

	app.Get("/healthcheck", func(c *fiber.Ctx) error {
		if err := health(); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(index.RequestError{Code: fiber.StatusServiceUnavailable, Message: err.Error()})
		}
		return c.Status(200).SendString("OK")
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Use("/ws", streaming.UpgradeRequired)
	app.Get("/ws", websocket.New(streaming.WebSocketHandler(hub, registry, log)))
	return app
}

func main() {
	if err := config.LoadEnvFile(config.EnvFilePath()); err != nil {
		logrus.WithError(err).Fatal("failed to load env file")
	}
	settings := parseSettings()
	log, err := config.NewLogger(settings.LogLevel)
	if err != nil {
		log.WithError(err).Warn("unknown log level, using info")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	pool, err := index.NewDbClient(settings.PgDsn, 20, 0)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to PostgreSQL")
	}
	defer pool.Close()

	redisOptions, err := redis.ParseURL(settings.RedisDsn)
	if err != nil {
		log.WithError(err).Fatal("failed to parse Redis DSN")
	}
	rdb := redis.NewClient(redisOptions)

	// rooms
	hub := streaming.NewHub(log)
	go hub.Run(ctx)
	registry := streaming.NewRegistry(hub, log)
	notifier := notify.NewNotifier(hub, log)

	bridge := streaming.NewBridge(rdb, settings.BridgeChannel, hub, log)
	go func() {
		if err := bridge.Relay(ctx); err != nil {
			log.WithError(err).Error("bridge relay stopped")
		}
	}()

	// live transactions
	source, health, err := newSource(settings, pool, log)
	if err != nil {
		log.WithError(err).Fatal("failed to create change feed")
	}
	coordinator := notify.NewCoordinator(pool, notifier, index.HashType(settings.NativeCurrency), log)
	go func() {
		err := coordinator.Run(ctx, source)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Fatal("live feed stopped")
		}
	}()

	// counters
	tasks := scheduler.NewRegistry()
	refresher := stats.NewRefresher(pool, cache.NewManager(rdb), notifier, nil, nil, log)
	if err := refresher.RegisterCounterTasks(tasks, settings.CountersInterval); err != nil {
		log.WithError(err).Fatal("failed to register tasks")
	}
	sched := scheduler.New(tasks, log)
	sched.StartLoops(ctx)

	app := newApp(hub, registry, health, log)
	go func() {
		<-sigChan
		log.Info("received shutdown signal")
		cancel()
		if err := app.Shutdown(); err != nil {
			log.WithError(err).Error("failed to shut down server")
		}
	}()

	log.WithFields(logrus.Fields{"port": settings.Port, "feed": settings.Feed}).Info("starting gateway")
	if err := app.Listen(fmt.Sprintf(":%d", settings.Port)); err != nil {
		log.WithError(err).Error("server stopped")
	}
	cancel()
	sched.Wait()
	log.Info("shutdown complete")
}
