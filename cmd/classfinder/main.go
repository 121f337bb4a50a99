package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"classfinder/internal/cache"
	"classfinder/internal/config"
	"classfinder/internal/freeslot"
	"classfinder/internal/gviz"
	appLog "classfinder/internal/log"
	"classfinder/internal/metrics"
	"classfinder/internal/rooms"
	"classfinder/internal/schedule"
	"classfinder/internal/sheet"
	"classfinder/internal/web"
)

// staleRetention is how long the Redis store keeps entries past the TTL so
// that a failing upstream can still be answered from the last copy.
const staleRetention = 24 * time.Hour

type flagConfig struct {
	configPath string
	envFile    string
	listen     string
	once       bool
}

func main() {
	appLog.Info("classfinder starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if err := conf.ApplyEnv(flags.envFile); err != nil {
		appLog.Error("failed to apply environment", err, "env_file", flags.envFile)
		os.Exit(1)
	}

	// CLI --listen overrides config file and environment.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if err := conf.Validate(); err != nil {
		appLog.Error("invalid configuration", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("effective config", "config", conf.String(), "once", flags.once)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()

	store, closeStore, err := newStore(ctx, conf)
	if err != nil {
		appLog.Error("failed to initialize cache store", err, "backend", conf.Cache.Backend)
		os.Exit(1)
	}
	defer closeStore()

	svc := newService(conf, store, m)

	if flags.once {
		if err := runOnce(ctx, svc); err != nil {
			appLog.Error("single run failed", err)
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, conf, svc, m); err != nil {
		appLog.Error("server failed", err)
		os.Exit(1)
	}
	appLog.Info("classfinder exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/classfinder/config.yaml", "Path to config file")
	flag.StringVar(&cfg.envFile, "env", ".env", "Path to an optional .env file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Fetch the whole week once, print a summary and exit")

	flag.Parse()

	return cfg
}

func newStore(ctx context.Context, conf *config.Config) (cache.Store, func(), error) {
	if conf.Cache.Backend != "redis" {
		return cache.NewMemoryStore(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Cache.RedisAddr,
		Password: conf.Cache.RedisPassword,
		DB:       conf.Cache.RedisDB,
	})
	store := cache.NewRedisStore(client, conf.Cache.Prefix, conf.Cache.TTL+staleRetention)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis %s: %w", conf.Cache.RedisAddr, err)
	}
	appLog.Info("redis cache connected", "addr", conf.Cache.RedisAddr, "db", conf.Cache.RedisDB)
	return store, func() { _ = client.Close() }, nil
}

func newService(conf *config.Config, store cache.Store, m *metrics.Metrics) *schedule.Service {
	fetcher := gviz.NewFetcher(gviz.Options{
		BaseURL:       conf.Sheet.BaseURL,
		SheetID:       conf.Sheet.ID,
		Format:        conf.Sheet.Format,
		Timeout:       conf.Sheet.Timeout,
		RatePerSecond: conf.Sheet.RatePerSecond,
		Burst:         conf.Sheet.Burst,
		Observer:      m,
	})

	catalog := make(map[string]rooms.Info, len(conf.Rooms))
	for name, r := range conf.RoomIndex() {
		catalog[name] = rooms.Info{Capacity: r.Capacity, Floor: r.Floor}
	}

	c := cache.New(store, conf.Cache.TTL, cache.WithObserver(m))
	return schedule.New(fetcher, c, schedule.Options{
		Tabs:   conf.Sheet.Tabs.List(),
		Parser: sheet.Options{LabLookahead: conf.Parser.LabLookahead},
		Finder: &freeslot.Finder{
			Rooms:    rooms.NewCatalog(catalog),
			MaxRooms: conf.FreeRoomsLimit,
		},
		FetchTimeout: conf.Sheet.Timeout,
		Location:     conf.Location(),
	})
}

// runOnce fetches the week and prints a per-day summary as JSON.
func runOnce(ctx context.Context, svc *schedule.Service) error {
	week, err := svc.Week(ctx)
	if err != nil {
		return err
	}

	type daySummary struct {
		Classrooms int `json:"classrooms"`
		TimeSlots  int `json:"timeSlots"`
		Entries    int `json:"entries"`
	}
	summary := struct {
		Days   map[string]daySummary `json:"days"`
		Errors map[string]string     `json:"errors,omitempty"`
	}{Days: map[string]daySummary{}, Errors: week.Errors}

	for name, d := range week.Days {
		s := daySummary{Classrooms: len(d.Classrooms), TimeSlots: len(d.TimeSlots)}
		for _, c := range d.Classrooms {
			s.Entries += len(c.Schedule)
		}
		summary.Days[name] = s
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

func serve(ctx context.Context, conf *config.Config, svc *schedule.Service, m *metrics.Metrics) error {
	if conf.RefreshCron != "" {
		c := cron.New(cron.WithLocation(conf.Location()))
		_, err := c.AddFunc(conf.RefreshCron, func() {
			rctx, cancel := context.WithTimeout(ctx, 2*conf.Sheet.Timeout)
			defer cancel()
			if err := svc.Refresh(rctx); err != nil {
				appLog.Warn("scheduled refresh incomplete", "err", err)
				return
			}
			appLog.Info("scheduled refresh completed")
		})
		if err != nil {
			return fmt.Errorf("refresh schedule %q: %w", conf.RefreshCron, err)
		}
		c.Start()
		defer func() { <-c.Stop().Done() }()
		appLog.Info("refresh job scheduled", "spec", conf.RefreshCron)
	}

	// Warm the cache so the first requests do not wait on the upstream.
	go func() {
		if err := svc.Refresh(ctx); err != nil {
			appLog.Warn("initial warm-up incomplete", "err", err)
		}
	}()

	srv := &http.Server{
		Addr:              conf.Listen,
		Handler:           web.NewServer(conf, svc, m).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * conf.Sheet.Timeout,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
