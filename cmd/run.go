package main

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/xeptore/lplay/config"
	"github.com/xeptore/lplay/ctxutil"
	"github.com/xeptore/lplay/errutil"
	"github.com/xeptore/lplay/log"
	"github.com/xeptore/lplay/mpris"
	"github.com/xeptore/lplay/mpv"
	"github.com/xeptore/lplay/player"
	"github.com/xeptore/lplay/session"
)

func run(cliCtx *cli.Context) (err error) {
	ctx, cancel := signal.NotifyContext(cliCtx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	e, err := loadEnv(cliCtx)
	if nil != err {
		return err
	}
	logger := e.logger

	engine, err := mpv.Start(ctx, mpv.Options{Path: e.cfg.MpvPath, Socket: e.cfg.MpvSocket()}, e.moduleLogger("mpv"))
	if nil != err {
		return err
	}
	p := player.New(engine, e.moduleLogger("player"))
	defer func() {
		if closeErr := p.Close(); nil != closeErr {
			logger.Warn().Err(closeErr).Msg("Failed to close player")
		}
	}()

	downloads, err := e.newDownloads()
	if nil != err {
		return err
	}
	defer downloads.Close()

	thumbnails := e.newThumbnails()
	defer thumbnails.Close()

	numTracks := len(e.settings.Audios)
	c := e.newSession(session.Deps{
		Player:     p,
		Downloads:  downloads,
		Extractor:  e.newExtractor(),
		Resolver:   e.newResolver(),
		Thumbnails: thumbnails,
		Store:      nil,
	})

	// The loop outlives an interrupt for a short while so completed
	// downloads still land in the catalog before the final flush.
	loopCtx, loopCancel := ctxutil.WithDelayedTimeout(ctx, config.ShutdownGracePeriod)
	defer loopCancel()
	errc := c.Start(loopCtx)

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
		case <-stopped:
			return
		}
		if err := c.Pause(loopCtx); nil != err && !errors.Is(err, session.ErrStopped) {
			logger.Warn().Func(log.Flaw(err)).Msg("Failed to pause playback on shutdown")
		}
	}()

	if conn, err := mpris.Connect(); nil != err {
		logger.Warn().Func(log.Flaw(err)).Msg("Media keys are not available")
	} else {
		srv := mpris.New(conn, c, cancel, e.moduleLogger("mpris"))
		defer func() {
			if closeErr := srv.Close(); nil != closeErr {
				logger.Warn().Err(closeErr).Msg("Failed to close session bus connection")
			}
		}()
		if err := srv.Export(); nil != err {
			switch {
			case errors.Is(err, mpris.ErrNameTaken):
				logger.Warn().Str("name", mpris.BusName).Msg("Another instance owns the media player bus name. Media keys are disabled")
			default:
				logger.Warn().Func(log.Flaw(err)).Msg("Failed to export media player interface")
			}
		}
	}

	if cliCtx.Bool(flagPlay) {
		if err := c.Resume(ctx); nil != err {
			switch {
			case errutil.IsContext(ctx):
			case errors.Is(err, session.ErrNotFound):
				logger.Info().Msg("Catalog is empty. Nothing to play")
			default:
				logger.Error().Func(log.Flaw(err)).Msg("Failed to start playback")
			}
		}
	}

	logger.Info().Int("tracks", numTracks).Msg("Player is running")
	if err := <-errc; nil != err {
		return err
	}
	logger.Info().Msg("Player stopped")
	return nil
}
