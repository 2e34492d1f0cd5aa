package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/samjmck/opnfn/internal/cache"
	"github.com/samjmck/opnfn/internal/config"
	"github.com/samjmck/opnfn/internal/httpx"
	"github.com/samjmck/opnfn/internal/logging"
	"github.com/samjmck/opnfn/internal/server"
	"github.com/samjmck/opnfn/internal/store/adjust"
	"github.com/samjmck/opnfn/internal/store/alphavantage"
	"github.com/samjmck/opnfn/internal/store/cached"
	"github.com/samjmck/opnfn/internal/store/closing"
	"github.com/samjmck/opnfn/internal/store/combined"
	"github.com/samjmck/opnfn/internal/store/googlefinance"
	"github.com/samjmck/opnfn/internal/store/yahoo"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logging.New(cfg.Logging)

	timeout := time.Duration(cfg.Server.RequestTimeoutSec) * time.Second

	var (
		spotSources      []combined.SpotSource
		historicalSrcs   []combined.HistoricalSource
		splitSources     []combined.SplitSource
		fxSources        []combined.FXSource
		historicalFXSrcs []combined.HistoricalFXSource
		searchSources    []combined.SearchSource
		profileSources   []combined.ProfileSource
	)

	if cfg.Yahoo.Enabled {
		hc := httpx.New(timeout)
		hc.Limiter = limiter(cfg.Yahoo.MaxRequestsPerMinute, cfg.Yahoo.Burst, cfg.Yahoo.MinRequestIntervalSec)
		yh := yahoo.New(yahoo.Config{BaseURL: cfg.Yahoo.BaseURL}, hc)
		spotSources = append(spotSources, yh)
		historicalSrcs = append(historicalSrcs, yh)
		splitSources = append(splitSources, yh)
		fxSources = append(fxSources, yh)
		historicalFXSrcs = append(historicalFXSrcs, yh)
		searchSources = append(searchSources, yh)
		profileSources = append(profileSources, yh)
	}
	if cfg.GoogleFinance.Enabled {
		hc := httpx.New(timeout)
		hc.Limiter = limiter(cfg.GoogleFinance.MaxRequestsPerMinute, cfg.GoogleFinance.Burst, cfg.GoogleFinance.MinRequestIntervalSec)
		gf := googlefinance.New(googlefinance.Config{BaseURL: cfg.GoogleFinance.BaseURL}, hc)
		spotSources = append(spotSources, gf)
	}
	if cfg.AlphaVantage.Enabled {
		if cfg.AlphaVantage.APIKey == "" {
			log.Warn().Msg("alpha_vantage.enabled=true but ALPHA_VANTAGE_API_KEY not set; skipping")
		} else {
			opts := []alphavantage.ClientOption{
				alphavantage.WithHTTPClient(&httpx.Throttled{
					HTTP:    httpx.New(timeout).HTTP,
					Limiter: limiter(cfg.AlphaVantage.MaxRequestsPerMinute, cfg.AlphaVantage.Burst, cfg.AlphaVantage.MinRequestIntervalSec),
				}),
				alphavantage.WithHeader(http.Header{"User-Agent": []string{"opnfn/1.0"}}),
			}
			if cfg.AlphaVantage.BaseURL != "" {
				opts = append(opts, alphavantage.WithBaseURL(cfg.AlphaVantage.BaseURL))
			}
			avClient, err := alphavantage.NewClient(cfg.AlphaVantage.APIKey, opts...)
			if err != nil {
				log.Error().Err(err).Msg("alpha vantage client")
			} else {
				av := alphavantage.NewProvider(alphavantage.Config{}, avClient)
				spotSources = append(spotSources, av)
				searchSources = append(searchSources, av)
			}
		}
	}
	if len(spotSources) == 0 {
		log.Fatal().Msg("no providers enabled")
	}

	responseCache := buildCache(cfg.Cache, log)

	aggOpts := []combined.Option{
		combined.WithMaxPasses(cfg.Aggregator.MaxPasses),
		combined.WithLogger(log),
	}
	lookback := time.Duration(cfg.Aggregator.LookbackDays) * 24 * time.Hour

	spot := combined.NewSpotStore(spotSources, aggOpts...)
	splits := combined.NewSplitStore(splitSources, aggOpts...)

	// Historical stack: failover, then split reconstruction, then the
	// closed-window cache.
	historical := cached.NewHistoricalStore(
		adjust.NewHistoricalStore(
			combined.NewHistoricalStore(historicalSrcs, aggOpts...),
			splits,
		),
		responseCache,
	)
	closingResolver := closing.NewResolver(historical)
	closingResolver.Lookback = lookback
	closingStack := cached.NewResolver(closingResolver, responseCache)

	fx := combined.NewFXStore(fxSources, aggOpts...)
	historicalFX := cached.NewHistoricalFXStore(
		combined.NewHistoricalFXStore(historicalFXSrcs, aggOpts...),
		responseCache,
	)
	fxClosingResolver := closing.NewFXResolver(historicalFX)
	fxClosingResolver.Lookback = lookback
	fxClosingStack := cached.NewFXResolver(fxClosingResolver, responseCache)

	search := cached.NewSearchStore(combined.NewSearchStore(searchSources, aggOpts...), responseCache)
	profiles := cached.NewProfileStore(combined.NewProfileStore(profileSources, aggOpts...), responseCache)

	api := server.New(server.Stores{
		Spot:         spot,
		Historical:   historical,
		Closing:      closingStack,
		Splits:       splits,
		FX:           fx,
		HistoricalFX: historicalFX,
		FXClosing:    fxClosingStack,
		Search:       search,
		Profiles:     profiles,
	}, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// limiter prefers a token bucket with burst when an RPM cap is set,
// otherwise falls back to a minimum inter-request interval.
func limiter(maxRPM, burst, minIntervalSec int) httpx.Limiter {
	if maxRPM > 0 {
		if burst <= 0 {
			burst = 1
		}
		return httpx.NewTokenBucket(float64(maxRPM)/60.0, burst)
	}
	if minIntervalSec > 0 {
		return &httpx.MinInterval{Interval: time.Duration(minIntervalSec) * time.Second}
	}
	return nil
}

func buildCache(cfg config.CacheConfig, log zerolog.Logger) cache.Cache {
	if cfg.Backend == "redis" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		rc := cache.NewRedis(rdb, cfg.KeyPrefix)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rc.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, falling back to in-memory cache")
			return cache.NewMemory(cfg.MaxItems)
		}
		return rc
	}
	return cache.NewMemory(cfg.MaxItems)
}
