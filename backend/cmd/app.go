package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/remoteassist/relay/backend/config"
	"github.com/remoteassist/relay/backend/registry"
	"github.com/remoteassist/relay/backend/rooms"
	"github.com/remoteassist/relay/backend/router"
	httpServer "github.com/remoteassist/relay/backend/server/http"
	websocketServer "github.com/remoteassist/relay/backend/server/websocket"
	"github.com/remoteassist/relay/backend/service"
	sw "github.com/remoteassist/relay/backend/switch"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)

	var (
		apiListenAddr = fs.StringP("api-listen-addr", "a", cfg.APIListenAddr, "api listen address")
		wsListenAddr  = fs.StringP("ws-listen-addr", "w", cfg.WSListenAddr, "websocket relay listen address")
		logLevel      = fs.StringP("log-level", "l", cfg.LogLevel, "log level")
	)
	if err = fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	reg := registry.New()
	roomManager := rooms.NewManager(reg)
	rt := router.NewRouter(router.Config{
		Rooms:    roomManager,
		Registry: reg,
		Logger:   &logger,
	})
	netSwitch := sw.NewSwitch(rt, &logger)
	svc := service.NewService(service.Config{
		Registry:    reg,
		RoomManager: roomManager,
		Switch:      netSwitch,
		Logger:      &logger,
	})

	httpSrv := httpServer.NewServer(httpServer.Config{
		Logger:     &logger,
		RoomStatus: roomManager,
		ListenAddr: *apiListenAddr,
	})
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:         &logger,
		SessionService: svc,
		ListenAddr:     *wsListenAddr,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(2)
	go httpSrv.Run(ctx, wg, errc)
	go wsSrv.Run(ctx, wg, errc)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}
