package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saralytics/saralytics/agent/contract"
	"github.com/saralytics/saralytics/agent/datasource"
	llmx "github.com/saralytics/saralytics/agent/llm"
	"github.com/saralytics/saralytics/agent/orchestrator"
	sessionx "github.com/saralytics/saralytics/agent/session"
	"github.com/saralytics/saralytics/agent/specialist"
	toolx "github.com/saralytics/saralytics/agent/tool"
	configx "github.com/saralytics/saralytics/pkg/config"
	_ "github.com/saralytics/saralytics/pkg/logx/autoload"
	openrouterx "github.com/saralytics/saralytics/pkg/openrouter"
	"github.com/saralytics/saralytics/server"
)

type AppConfig struct {
	// FallbackSpecialist absorbs queries the classifier cannot place. Set it
	// empty to ask the user to rephrase instead.
	FallbackSpecialist string        `envconfig:"FALLBACK_SPECIALIST" split_words:"true" default:"sales"`
	RouteTimeout       time.Duration `envconfig:"ROUTE_TIMEOUT" split_words:"true" default:"15s"`
	RespondTimeout     time.Duration `envconfig:"RESPOND_TIMEOUT" split_words:"true" default:"2m"`
	ShutdownTimeout    time.Duration `envconfig:"SHUTDOWN_TIMEOUT" split_words:"true" default:"15s"`
}

func main() {
	ctx := context.Background()

	appCfg := configx.MustLoad[AppConfig]("APP")
	llmCfg := configx.MustLoad[llmx.Config]("LLM")
	dbCfg := configx.MustLoad[datasource.Config]("DATABASE")
	redisCfg := configx.MustLoad[sessionx.UpstashRedisConfig]("SESSION_REDIS")
	serverCfg := configx.MustLoad[server.Config]("SERVER")

	source, err := datasource.NewPostgresSource(*dbCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open sales database")
	}
	defer source.Close()

	var store contract.SessionStore
	if redisCfg.Enabled() {
		store, err = sessionx.NewUpstashRedisStore(*redisCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("connect session store")
		}
		log.Info().Msg("using redis session store")
	} else {
		store = sessionx.NewMemoryStore()
		log.Warn().Msg("no redis configured, sessions are in-memory only")
	}

	registry, err := specialist.NewRegistry(ctx, *llmCfg, toolx.NewCatalog(source))
	if err != nil {
		log.Fatal().Err(err).Msg("build agent registry")
	}

	orchCfg := orchestrator.Config{
		RouteTimeout:   appCfg.RouteTimeout,
		RespondTimeout: appCfg.RespondTimeout,
	}
	if appCfg.FallbackSpecialist != "" {
		id, ok := contract.ParseSpecialistID(appCfg.FallbackSpecialist)
		if !ok {
			log.Fatal().Str("value", appCfg.FallbackSpecialist).Msg("invalid fallback specialist")
		}
		orchCfg.FallbackSpecialist = id
	}

	orch, err := orchestrator.New(store, registry, orchCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("build orchestrator")
	}

	gatewayClient := openrouterx.NewClient(llmCfg.ForRouter())
	modelPing := func(ctx context.Context) error {
		_, err := gatewayClient.Models.List(ctx)
		return err
	}

	srv, err := server.New(*serverCfg, orch, source, server.WithModelPing(modelPing))
	if err != nil {
		log.Fatal().Err(err).Msg("build http server")
	}

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, appCfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown incomplete")
	}
}
