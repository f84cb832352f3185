package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/divyamohan1993/scry/client"
	"github.com/divyamohan1993/scry/config"
	"github.com/divyamohan1993/scry/pkg/actuator"
	"github.com/divyamohan1993/scry/pkg/backend"
	"github.com/divyamohan1993/scry/pkg/capture"
	"github.com/divyamohan1993/scry/pkg/command"
	"github.com/divyamohan1993/scry/pkg/protocol"
)

func newLogger(level, format string) *logrus.Logger {
	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func run() error {
	configPath := flag.String("config", "", "path to scry.yaml (optional)")
	email := flag.String("email", "", "override auth.email")
	dryRun := flag.Bool("dry-run", false, "record actions instead of logging actuation")
	seed := flag.Int64("seed", 0, "fixed timing seed (0 = random)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *email != "" {
		cfg.Email = *email
	}
	if cfg.Email == "" {
		return fmt.Errorf("auth.email is required (set SCRY_EMAIL or --email)")
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	log := logger.WithField("component", "agent")

	var act actuator.Actuator
	if *dryRun {
		act = &actuator.Recorder{}
		log.Info("dry run: actions recorded, not actuated")
	} else {
		act = actuator.NewLog(logger)
	}

	exec := command.New(command.Config{
		ScreenWidth:        cfg.ScreenWidth,
		ScreenHeight:       cfg.ScreenHeight,
		AutoExecute:        cfg.AutoExecute,
		InterStepDelay:     cfg.InterStepDelay,
		TypingMistakes:     cfg.TypingMistakes,
		OptimisticComplete: cfg.OptimisticComplete,
		Seed:               *seed,
	}, act, logger)

	var be *backend.Client
	if cfg.ServerAPIURL != "" {
		be = backend.NewClient(backend.Config{
			BaseURL:       cfg.ServerAPIURL,
			SessionCookie: cfg.SessionCookie,
		}, logger)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		info, err := be.CheckAuth(ctx)
		cancel()
		switch {
		case err != nil:
			log.WithError(err).Warn("auth probe failed, continuing")
		case !info.Authenticated:
			log.Warn("backend reports session unauthenticated")
		default:
			log.WithField("email", info.Email).Info("backend session valid")
		}
	}

	source, err := capture.NewPatternSource(cfg.CaptureFPS, logger)
	if err != nil {
		return fmt.Errorf("creating capture source: %w", err)
	}

	agent := client.New(client.Config{
		ServerURL:      cfg.ServerWsURL,
		Email:          cfg.Email,
		ICEServers:     cfg.ICEServers,
		PingInterval:   cfg.PingInterval,
		StatusInterval: cfg.StatusInterval,
	}, source, exec, be, logger)

	agent.Subscribe(client.ObserverFuncs{
		StateChange: func(st client.Status) {
			log.WithField("status", string(st)).Info("session status")
		},
		Command: func(env protocol.Envelope) {
			log.WithField("action", env.Action).Info("command received")
		},
		Executed: func(res command.Result) {
			entry := log.WithFields(logrus.Fields{
				"id":   res.Command.ID,
				"type": res.Command.Payload.Type,
			})
			if res.Err != nil {
				entry.WithError(res.Err).Warn("command failed")
			} else {
				entry.Info("command executed")
			}
		},
		StatusPoll: func(st backend.Status) {
			log.WithFields(logrus.Fields{
				"frames":   st.FramesProcessed,
				"commands": st.CommandCount,
			}).Debug("backend status")
		},
		Error: func(err error) {
			log.WithError(err).Error("session error")
		},
	})

	if err := agent.Start(); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")
	return agent.Stop()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
