// Package main runs a development harness for the coaching client: it opens
// a live coaching session, streams synthetic frames at the configured rate,
// prints coaching events and guide steps as they arrive, and reports session
// stats on exit. Point it at coachsim or a real backend.
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/reelcoach/companion/config"
	"github.com/reelcoach/companion/internal/coaching"
	"github.com/reelcoach/companion/internal/stream"
)

func main() {
	patternID := flag.String("pattern", "pattern_pov_reveal", "viral pattern id to load the guide for")
	duration := flag.Duration("duration", 20*time.Second, "how long to stream frames before stopping")
	flag.Parse()

	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	streamCfg := stream.Config{
		TargetFPS:       cfg.Stream.TargetFPS,
		Codec:           stream.Codec(cfg.Stream.Codec),
		InitialBitrate:  cfg.Stream.InitialBitrate,
		MaxWidth:        cfg.Stream.MaxWidth,
		MaxHeight:       cfg.Stream.MaxHeight,
		AdaptiveBitrate: cfg.Stream.AdaptiveBitrate,
	}

	session := coaching.NewSession(coaching.SessionOptions{
		PatternID:  *patternID,
		WSBaseURL:  cfg.Coach.WSBaseURL,
		APIBaseURL: cfg.Coach.APIBaseURL,
		Token:      cfg.Coach.Token,
		OutputMode: cfg.Coach.OutputMode,
		Persona:    cfg.Coach.Persona,
		Platform:   "harness",
		Stream:     streamCfg,
		Logger:     logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := session.Start(ctx); err != nil {
		logger.Fatal("start session", zap.Error(err))
	}

	go printEvents(session, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Synthetic frame source: fixed-size random payloads at camera rate. The
	// pipeline throttles these down to TargetFPS.
	frame := make([]byte, 48*1024)
	_, _ = rand.Read(frame)
	cameraTick := time.NewTicker(time.Second / 30)
	defer cameraTick.Stop()
	deadline := time.NewTimer(*duration)
	defer deadline.Stop()
	start := time.Now()

	guidePrinter := newGuidePrinter(session, logger)

running:
	for {
		select {
		case <-cameraTick.C:
			session.SubmitFrame(frame, cfg.Stream.MaxWidth, cfg.Stream.MaxHeight)
			guidePrinter.tick(time.Since(start).Seconds())
		case <-deadline.C:
			break running
		case <-quit:
			break running
		}
	}

	_ = session.SendControl(coaching.ControlStop)
	session.Close()
	logger.Info("session finished", zap.String("stats", session.Stats().String()))
}

func printEvents(session *coaching.Session, logger *zap.Logger) {
	for ev := range session.Events() {
		switch ev.Kind {
		case coaching.EventFeedback:
			logger.Info("coach", zap.String("message", ev.Feedback.Message), zap.String("priority", ev.Feedback.Priority))
		case coaching.EventTextCoach:
			logger.Info("text coach", zap.String("message", ev.TextCoach.Message))
		case coaching.EventGraphicGuide:
			logger.Info("graphic guide", zap.String("icon", ev.GraphicGuide.ActionIcon), zap.String("position", ev.GraphicGuide.TargetPosition))
		case coaching.EventStateChange:
			logger.Info("connection", zap.String("state", string(ev.State)))
		case coaching.EventCoachError:
			logger.Warn("coach error", zap.String("message", ev.Error))
		case coaching.EventTerminal:
			logger.Warn("connection terminal, no more reconnects")
			return
		}
	}
}

// guidePrinter logs each guide step once as the take crosses into it.
type guidePrinter struct {
	session *coaching.Session
	logger  *zap.Logger
	lastKey string
}

func newGuidePrinter(session *coaching.Session, logger *zap.Logger) *guidePrinter {
	return &guidePrinter{session: session, logger: logger}
}

func (g *guidePrinter) tick(elapsedSec float64) {
	step := g.session.CurrentStep(elapsedSec)
	if step == nil {
		return
	}
	key := step.Action
	if key == g.lastKey {
		return
	}
	g.lastKey = key
	g.logger.Info("guide step",
		zap.Float64("start_sec", step.StartSec),
		zap.String("action", step.Action),
		zap.String("icon", step.Icon))
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
