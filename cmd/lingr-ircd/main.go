// Copyright 2024-2026 Aiku AI

// Command lingr-ircd is an IRC gateway to the Lingr chat service. It
// accepts plain IRC clients, logs them into Lingr with the credentials
// they present at registration, and bridges joined channels to Lingr
// rooms over the long-poll observe API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/aiku/lingr-ircd/pkg/gateway"
	"github.com/aiku/lingr-ircd/pkg/ircd"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// registrationTimeout bounds how long a fresh connection may take to
// finish NICK/USER registration.
const registrationTimeout = 30 * time.Second

var (
	configPath = flag.StringP("config", "c", "config.yaml", "Path to the config file")
	listenAddr = flag.StringP("listen", "l", "", "Listen address (overrides the config file)")
	apiKey     = flag.String("api-key", "", "Lingr API key (overrides the config file)")
	debug      = flag.Bool("debug", false, "Enable debug logging")
	jsonLogs   = flag.Bool("json-logs", false, "Log JSON instead of human-readable output")
	version    = flag.Bool("version", false, "Print the version and exit")
)

func main() {
	flag.Parse()
	if *version {
		fmt.Printf("lingr-ircd %s (%s, built %s)\n", Tag, Commit, BuildTime)
		return
	}

	log := setupLogging()

	cfg, err := gateway.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *listenAddr != "" {
		cfg.Listen = *listenAddr
	}
	if *apiKey != "" {
		cfg.APIKey = *apiKey
	}
	if err := cfg.PostProcess(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Gateway failed")
	}
	log.Info().Msg("Shutdown complete")
}

func setupLogging() zerolog.Logger {
	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	var log zerolog.Logger
	if *jsonLogs {
		log = zerolog.New(os.Stdout)
	} else {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp})
	}
	return log.Level(level).With().Timestamp().Logger()
}

func run(ctx context.Context, cfg *gateway.Config, log zerolog.Logger) error {
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Listen, err)
	}
	log.Info().Str("listen", cfg.Listen).Msg("Listening for IRC clients")

	var group errgroup.Group
	group.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})
	group.Go(func() error {
		for {
			nc, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("accept: %w", err)
			}
			go serve(ctx, cfg, nc, log)
		}
	})

	err = group.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// serve runs one client connection from registration to disconnect.
func serve(ctx context.Context, cfg *gateway.Config, nc net.Conn, log zerolog.Logger) {
	conn := ircd.NewConn(nc, cfg.ServerName, log)
	defer conn.Close()

	clog := log.With().Str("conn_id", conn.ID).Stringer("remote", conn.RemoteAddr()).Logger()
	clog.Info().Msg("Client connected")

	regCtx, cancel := context.WithTimeout(ctx, registrationTimeout)
	reg, err := conn.WaitRegistration(regCtx)
	cancel()
	if err != nil {
		clog.Warn().Err(err).Msg("Registration failed")
		return
	}
	clog.Info().Str("nick", reg.Nick).Msg("Client registered")

	sess := gateway.NewSession(cfg, conn, reg, clog)
	if err := sess.Run(ctx); err != nil {
		clog.Warn().Err(err).Msg("Session ended with error")
		return
	}
	clog.Info().Msg("Client disconnected")
}
