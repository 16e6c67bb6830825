package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/event-gate/internal/checkin"
	"github.com/iliyamo/event-gate/internal/config"
	"github.com/iliyamo/event-gate/internal/database"
	"github.com/iliyamo/event-gate/internal/feed"
	"github.com/iliyamo/event-gate/internal/handler"
	"github.com/iliyamo/event-gate/internal/logger"
	"github.com/iliyamo/event-gate/internal/metrics"
	"github.com/iliyamo/event-gate/internal/middleware"
	"github.com/iliyamo/event-gate/internal/queue"
	"github.com/iliyamo/event-gate/internal/repository"
	"github.com/iliyamo/event-gate/internal/router"
	"github.com/iliyamo/event-gate/internal/service"
	"github.com/iliyamo/event-gate/internal/utils"
)

func main() {
	hashPassword := pflag.Bool("hash-password", false, "read a password from stdin, print its ADMIN_PASSWORD_HASH and exit")
	pflag.Parse()

	var err error
	if *hashPassword {
		err = printHash(os.Stdin, os.Stdout)
	} else {
		err = run()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "event-gate:", err)
		os.Exit(1)
	}
}

func printHash(in io.Reader, out io.Writer) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	plain := strings.TrimRight(line, "\r\n")
	if plain == "" {
		return errors.New("empty password")
	}
	hash, err := utils.HashPassword(plain, utils.DefaultCost)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(logger.Options{
		ServiceName: "event-gate",
		Level:       logger.ParseLevel(cfg.Log.Level),
		Format:      cfg.Log.Format,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.Options{
		User: cfg.DB.User,
		Pass: cfg.DB.Pass,
		Host: cfg.DB.Host,
		Port: cfg.DB.Port,
		Name: cfg.DB.Name,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.App.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
		log.Info(ctx, "migrations applied")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewGate(reg)

	// Redis carries the change feed between processes; without it every
	// process only sees its own writes.
	rdb := config.NewRedisClient(cfg.Redis)
	var broker feed.Broker
	if rdb != nil {
		defer rdb.Close()
		broker = feed.NewRedis(rdb, log, m)
		log.Info(ctx, "change feed on redis "+cfg.Redis.Address())
	} else {
		broker = feed.NewHub(m)
		log.Warn(ctx, "redis unavailable; change feed is local to this process")
	}

	store := repository.NewGateStore(db, broker, log)
	audit := service.NewAuditPublisher(cfg.RabbitMQ.URL, log)
	defer audit.Close()

	rlCfg, err := config.LoadRateLimitConfig()
	if err != nil {
		return err
	}
	cacheCfg, err := config.LoadCacheConfig()
	if err != nil {
		return err
	}

	gate := handler.NewGateHandler(
		checkin.NewResolver(store, m),
		checkin.NewRosterLoader(store),
		checkin.NewLedger(store,
			checkin.WithAudit(audit),
			checkin.WithLedgerMetrics(m),
			checkin.WithLedgerLogger(log),
		),
		checkin.NewProjector(store, log),
		cfg.JWT, log,
	)
	admin := handler.NewAdminHandler(store, cfg.JWT, cfg.Admin, log).WithCache(cacheCfg, rdb)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log))
	router.RegisterRoutes(e, reg)
	router.RegisterPublic(e, handler.NewEventHandler(store), handler.NewPurchaseHandler(store, log), middleware.NewRedisCache(cacheCfg, rdb, log))
	router.RegisterUsher(e, handler.NewUsherHandler(cfg.JWT, log), cfg.JWT.Secret)
	router.RegisterGate(e, gate, cfg.JWT.Secret, middleware.NewTokenBucket(rlCfg, rdb, log))
	router.RegisterAdmin(e, admin, cfg.JWT.Secret)

	consumer := queue.NewConsumer(cfg.RabbitMQ.URL, cfg.RabbitMQ.LogPath, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.App.Port
		log.Info(gctx, fmt.Sprintf("listening on %s (env=%s)", addr, cfg.App.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := consumer.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info(context.Background(), "shut down")
	return nil
}
