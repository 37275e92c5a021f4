package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/xeptore/lplay/cache"
	"github.com/xeptore/lplay/config"
	"github.com/xeptore/lplay/download"
	"github.com/xeptore/lplay/log"
	"github.com/xeptore/lplay/metadata"
	"github.com/xeptore/lplay/ratelimit"
	"github.com/xeptore/lplay/resolver"
	"github.com/xeptore/lplay/session"
	"github.com/xeptore/lplay/settings"
	"github.com/xeptore/lplay/thumbnail"
	"github.com/xeptore/lplay/transcode"
	"github.com/xeptore/lplay/waitqueue"
)

// env holds what every command needs: the config, a logger and the
// persisted settings.
type env struct {
	cfg      *config.Config
	logger   zerolog.Logger
	store    *settings.Store
	settings *settings.Settings
}

func loadConfig(cliCtx *cli.Context, logger zerolog.Logger) (*config.Config, error) {
	var (
		cfgEnv      = os.Getenv(envConfig)
		cfgFilePath = cliCtx.String(flagConfigFilePath)
	)
	switch {
	case cfgFilePath != "" && cfgEnv != "":
		return nil, fmt.Errorf("config file path and %s environment variable are both set. specify only one", envConfig)
	case cfgFilePath != "":
		logger.Debug().Str("config_file_path", cfgFilePath).Msg("Loading config from file")
		cfg, err := config.FromFile(cfgFilePath)
		if nil != err {
			return nil, fmt.Errorf("failed to load config file: %v", err)
		}
		return cfg, nil
	case cfgEnv != "":
		logger.Debug().Msg("Loading config from environment variable")
		cfg, err := config.FromString(cfgEnv)
		if nil != err {
			return nil, fmt.Errorf("failed to load config from environment variable: %v", err)
		}
		return cfg, nil
	default:
		logger.Debug().Msg("No config was given. Using defaults")
		return config.Default(), nil
	}
}

func loadEnv(cliCtx *cli.Context) (*env, error) {
	bootLogger := log.NewPretty(os.Stderr).Level(zerolog.InfoLevel)
	cfg, err := loadConfig(cliCtx, bootLogger)
	if nil != err {
		return nil, err
	}

	logger, err := log.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)
	if nil != err {
		return nil, fmt.Errorf("failed to create logger: %v", err)
	}

	if _, err := os.ReadDir(cfg.DataDir); nil != err && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read data directory: %v", err)
	} else if errors.Is(err, os.ErrNotExist) {
		logger.Warn().Str("data_dir", cfg.DataDir).Msg("Data directory does not exist. Creating...")
		if err := os.MkdirAll(cfg.DataDir, 0o0755); nil != err {
			return nil, fmt.Errorf("failed to create data directory: %v", err)
		}
		logger.Info().Msg("Data directory created")
	}

	store := settings.NewStore(cfg.SettingsFile(), logger.With().Str("module", "settings").Logger())
	s, err := store.Load()
	if nil != err {
		return nil, err
	}
	logger.Debug().Int("tracks", len(s.Audios)).Str("path", store.Path()).Msg("Settings loaded")

	return &env{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		settings: s,
	}, nil
}

func (e *env) moduleLogger(name string) zerolog.Logger {
	return e.logger.With().Str("module", name).Logger()
}

func (e *env) newResolver() *resolver.Resolver {
	opts := resolver.Options{
		Cache:       cache.New[*resolver.Resolved](cache.DefaultResolvedSize),
		Queue:       waitqueue.New(resolver.DefaultQueueOptions()),
		MaxAttempts: resolver.DefaultMaxAttempts,
		RetryDelay:  ratelimit.ResolveRetryDelay,
	}
	return resolver.New(resolver.NewYtDlp(e.cfg.YtDlpPath), opts, e.moduleLogger("resolver"))
}

func (e *env) newDownloads() (*download.Manager, error) {
	order, err := download.ParseOrder(e.cfg.Download.QueueOrder)
	if nil != err {
		return nil, err
	}
	logger := e.moduleLogger("download")
	downloader := download.NewDownloader(
		e.cfg.AudioDir(),
		e.cfg.Download.PartSize,
		http.DefaultClient,
		transcode.NewFFmpeg(e.cfg.FFmpegPath, logger),
		logger,
	)
	opts := download.Options{
		MaxConcurrent: e.cfg.Download.MaxConcurrent,
		MaxAttempts:   e.cfg.Download.MaxAttempts,
		Order:         order,
	}
	return download.NewManager(downloader, opts, logger), nil
}

func (e *env) newThumbnails() *thumbnail.Store {
	return thumbnail.NewStore(e.cfg.ThumbnailsDir(), http.DefaultClient, e.moduleLogger("thumbnail"))
}

func (e *env) newExtractor() metadata.Extractor {
	return metadata.NewRegistry(metadata.NewFFprobe(e.cfg.FFprobePath))
}

func (e *env) newSession(deps session.Deps) *session.Controller {
	deps.Store = e.store
	opts := session.Options{
		SampleInterval: e.cfg.Playback.SampleInterval,
		FlushEvery:     e.cfg.Playback.FlushEvery,
	}
	return session.New(e.settings, deps, opts, e.moduleLogger("session"))
}
