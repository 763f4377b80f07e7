package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"smidi/billing/internal/apiclient"
	"smidi/billing/internal/cache"
	"smidi/billing/internal/config"
	"smidi/billing/internal/logger"
	"smidi/billing/internal/service"
	"smidi/billing/internal/session"
	"smidi/billing/internal/store"
	"smidi/billing/internal/store/memory"
	pgstore "smidi/billing/internal/store/postgres"
)

var errNotLoggedIn = errors.New("not logged in, run billingctl login first")

// runtime holds everything wired in the Before hook and released in After.
type runtime struct {
	cfg      config.Config
	out      io.Writer
	sessions *session.FileStore
	svc      *service.Service
	closers  []func() error
}

func main() {
	rt := &runtime{out: os.Stdout}
	if err := newApp(rt).Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("billingctl failed")
	}
}

func newApp(rt *runtime) *cli.App {
	return &cli.App{
		Name:                      "billingctl",
		Usage:                     "Smidi Fertilizers billing client",
		DisableSliceFlagSeparator: true,
		Before:                    rt.setup,
		After:                     rt.teardown,
		Commands:                  commands(rt),
	}
}

func (rt *runtime) setup(c *cli.Context) error {
	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)
	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	rt.cfg = cfg
	log := logger.Component("billingctl")

	ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	defer cancel()

	rt.sessions = session.NewFileStore(cfg.SessionFile)
	client, err := apiclient.New(cfg.APIBaseURL,
		apiclient.WithHTTPClient(&http.Client{Timeout: cfg.APITimeout()}),
		apiclient.WithTokenSource(rt.sessions),
		apiclient.WithRateLimit(cfg.APIRateLimitRPS, cfg.APIRateLimitBurst),
		apiclient.WithLogger(logger.Component("apiclient")),
	)
	if err != nil {
		return err
	}

	catalog := cache.CatalogCache(cache.NoopCatalogCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisCatalogCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, using noop cache")
			_ = redisCache.Close()
		} else {
			catalog = redisCache
			rt.closers = append(rt.closers, redisCache.Close)
			log.Debug().Msg("cache: redis")
		}
	} else {
		log.Debug().Msg("cache: noop")
	}

	var archive store.Archive
	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
		}
		rt.closers = append(rt.closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate archive: %w", err)
		}
		archive = pg
		log.Debug().Msg("archive: postgres")
	} else {
		archive = memory.New()
		log.Debug().Msg("archive: in-memory, not kept between runs")
	}

	rt.svc = service.New(client,
		service.WithCatalogCache(catalog, cfg.CatalogTTL()),
		service.WithArchive(archive),
		service.WithLogger(logger.Component("service")),
	)
	return nil
}

func (rt *runtime) teardown(_ *cli.Context) error {
	for _, closeFn := range rt.closers {
		if err := closeFn(); err != nil {
			logger.Log.Warn().Err(err).Msg("close error")
		}
	}
	rt.closers = nil
	return nil
}

// requireSession gates every command that talks to the billing API.
func (rt *runtime) requireSession(c *cli.Context) error {
	s, err := rt.sessions.Load(c.Context)
	if err != nil {
		return err
	}
	if !s.Valid(time.Now()) {
		return errNotLoggedIn
	}
	return nil
}

// commandContext bounds one command. Commands that page through the API scale
// the timeout by the number of requests they make.
func (rt *runtime) commandContext(c *cli.Context, requests int) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context, time.Duration(max(requests, 1))*rt.cfg.APITimeout())
}

func (rt *runtime) print(v any) error {
	enc := json.NewEncoder(rt.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func validateConfig(cfg config.Config) error {
	if cfg.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL must be set")
	}
	u, err := url.Parse(cfg.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an http or https URL")
	}
	if cfg.APIRateLimitRPS < 0 {
		return fmt.Errorf("API_RATE_LIMIT_RPS must not be negative")
	}
	if cfg.SessionFile == "" {
		return fmt.Errorf("SESSION_FILE must be set")
	}
	return nil
}
