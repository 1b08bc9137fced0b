package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater/v2"
	"github.com/jessevdk/go-flags"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"docfeedback/internal/app"
	"docfeedback/internal/config"
	"docfeedback/internal/email"
	"docfeedback/internal/store"
	"docfeedback/internal/throttle"
)

const purgeInterval = 10 * time.Minute

var revision = "unknown"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if cfg.Version {
		fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
		os.Exit(0)
	}

	setupLog(cfg.Debug, cfg.NoColor, cfg.Secrets()...)
	log.Printf("[INFO] starting docfeedback version %s", revision)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
	log.Print("[INFO] shutdown complete")
}

func run(ctx context.Context, cfg config.Config) error {
	db, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	migrations := store.MigrationsDir(cfg.MigrationsDir, db.DriverName())
	if err := store.ApplyMigrations(ctx, db, migrations); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	msgs, err := config.LoadMessages(cfg.MessagesFile)
	if err != nil {
		return err
	}

	dataStore := store.NewSQLStore(db)
	opts := cfg.FeedbackOptions()

	g, gctx := errgroup.WithContext(ctx)

	var throttleStore app.ThrottleBackend
	if cfg.RedisURL != "" {
		log.Printf("[INFO] using redis for throttle markers")
		redisStore, err := throttle.NewRedisStore(ctx, cfg.RedisURL, opts.ThrottlePrefix)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisStore.Close()
		throttleStore = redisStore
	} else {
		log.Printf("[INFO] using the database for throttle markers")
		sqlThrottle := store.NewSQLThrottle(db, opts.ThrottlePrefix)
		throttleStore = sqlThrottle
		g.Go(func() error {
			purgeThrottleMarkers(gctx, sqlThrottle)
			return nil
		})
	}

	mailer := email.NewService(cfg.Email())
	if opts.SendNotification && !mailer.IsConfigured() {
		log.Printf("[INFO] smtp is not configured, author notifications are off")
	}

	service, err := app.New(app.Deps{
		Secret:   []byte(cfg.TokenSecret),
		Store:    dataStore,
		Throttle: throttleStore,
		Mailer:   mailer,
		Options:  opts,
		Messages: msgs,
		AppName:  cfg.SMTP.FromName,
	})
	if err != nil {
		return err
	}
	defer service.Wait()

	httpServer := app.NewHTTPServer(service, app.ServerOptions{
		CORSOrigins: cfg.CORSOrigins,
		SubmitRate:  cfg.Feedback.SubmitRate,
		SubmitBurst: cfg.Feedback.SubmitBurst,
		Version:     revision,
		Debug:       cfg.Debug,
	})
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g.Go(func() error {
		log.Printf("[INFO] docfeedback api listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Print("[INFO] shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] shutdown error: %v", err)
		}
		return nil
	})

	return g.Wait()
}

// openDB retries the initial connection, the database may still be starting.
func openDB(ctx context.Context, url string) (*sqlx.DB, error) {
	var db *sqlx.DB
	retrier := repeater.NewBackoff(5, 500*time.Millisecond, repeater.WithMaxDelay(5*time.Second))
	err := retrier.Do(ctx, func() error {
		var err error
		db, err = store.Open(ctx, url)
		if err != nil {
			log.Printf("[WARN] database not ready: %v", err)
		}
		return err
	})
	return db, err
}

func purgeThrottleMarkers(ctx context.Context, t *store.SQLThrottle) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := t.PurgeExpired(ctx)
			if err != nil {
				log.Printf("[WARN] can't purge throttle markers: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("[DEBUG] purged %d expired throttle markers", n)
			}
		}
	}
}

func setupLog(dbg, noColor bool, secs ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	if !noColor {
		colorizer := lgr.Mapper{
			ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
			WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
			InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
			DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
			CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
			TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
		}
		logOpts = append(logOpts, lgr.Map(colorizer))
	}
	if len(secs) > 0 {
		logOpts = append(logOpts, lgr.Secret(secs...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
