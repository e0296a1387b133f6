package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cufee/reixi/config"
	"github.com/cufee/reixi/database"
	"github.com/cufee/reixi/handlers"
	"github.com/cufee/reixi/modules"
	"github.com/cufee/reixi/platform"
	"github.com/cufee/reixi/reactionroles"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	started := time.Now()

	// A missing .env is fine, the environment may already be set
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read config")
	}

	flags := pflag.NewFlagSet(config.Name, pflag.ExitOnError)
	flags.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "directory for log files")
	flags.StringVar(&cfg.DBDir, "db-dir", cfg.DBDir, "directory for the database")
	flags.BoolVar(&cfg.Sweep, "sweep", cfg.Sweep, "periodically drop reaction role messages that no longer exist")
	flags.Parse(os.Args[1:])

	logFile := initLogger(cfg)
	if logFile != nil {
		defer logFile.Close()
	}

	if cfg.Token == "" {
		log.Fatal().Msg("REIXI_TOKEN cannot be empty")
	}

	dbDir, err := config.DBDir(cfg)
	if err != nil {
		log.Error().Err(err).Msg("unable to write and read to any db directory")
		os.Exit(1)
	}
	store, err := database.Open(dbDir, config.DefaultPrefix)
	if err != nil {
		log.Error().Err(err).Str("dir", dbDir).Msg("failed to open database")
		os.Exit(1)
	}
	defer store.Close()
	stats := store.LoadStats()
	log.Info().Int("loaded", stats.Loaded).Int("failed", stats.Failed).Str("root", store.Root()).Msg("loaded guild settings")

	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create a session")
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	s.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		log.Info().Str("user", r.User.Username).Str("id", r.User.ID).Msg("ready")
	})

	feed := platform.NewFeed(16)
	discord := platform.NewDiscord(s, feed)

	manager := modules.NewManager(modules.NewRegistry(moduleSources))
	ctx := context.Background()
	if err := manager.SetCore(ctx, handlers.NewCore(store, manager, discord, started)); err != nil {
		log.Fatal().Err(err).Msg("failed to load the core module")
	}
	manager.Register(handlers.PrefixesPath, handlers.PrefixesFactory(store))
	manager.Register(reactionroles.Path, reactionroles.Factory(store, discord, feed, reactionroles.Options{
		Sweep:         cfg.Sweep,
		SweepInterval: cfg.SweepInterval,
	}))

	var loaded, failed int
	for _, path := range store.Config().Modules {
		if err := manager.Load(ctx, path); err != nil {
			log.Error().Err(err).Str("path", path).Msg("unable to load module")
			failed++
			continue
		}
		loaded++
	}
	log.Info().Int("loaded", loaded).Int("failed", failed).Msg("loaded modules")

	dispatcher := handlers.NewDispatcher(store, manager, discord)
	s.AddHandler(dispatcher.OnMessage)

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	if err := s.Open(); err != nil {
		log.Fatal().Err(err).Msg("failed to open a gateway connection")
	}
	log.Info().Str("version", config.Version).Msgf("%s is running", config.Name)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	manager.Shutdown()
	if err := s.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close the session")
	}
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsServer.Shutdown(shutdownCtx)
	}
}

// initLogger - Console output plus a JSON file in the first usable log directory
func initLogger(cfg config.Config) *os.File {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log.Logger = zerolog.New(console).With().Timestamp().Logger()

	dir, err := config.LogDir(cfg)
	if err != nil {
		log.Error().Err(err).Msg("unable to write to any log directory, not saving logs")
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, time.Now().Format("2006-01-02T15-04-05")+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Error().Err(err).Str("dir", dir).Msg("failed to open a log file")
		return nil
	}
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(console, f)).With().Timestamp().Logger()
	log.Info().Str("dir", dir).Msg("logging output to file")
	return f
}
