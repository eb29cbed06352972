// relay-server hosts a Twilio ConversationRelay endpoint: it serves TwiML
// pointing calls at its own WebSocket, then bridges each call to a frame
// pipeline. The built-in pipeline echoes the caller's words back; real
// deployments swap it out through handlers.SinkFactory.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mrbaboon/pipecat-conversation-relay-transport/pkg/relay/config"
	"github.com/mrbaboon/pipecat-conversation-relay-transport/pkg/relay/handlers"
	"github.com/mrbaboon/pipecat-conversation-relay-transport/pkg/relay/pipeline"
	"github.com/mrbaboon/pipecat-conversation-relay-transport/pkg/relay/session"
	"github.com/mrbaboon/pipecat-conversation-relay-transport/pkg/relay/sessions"
)

type serverDeps struct {
	loadConfig   func() (config.Config, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultServerDeps() serverDeps {
	return serverDeps{
		loadConfig: config.LoadFromEnv,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

// echoSink is the demo pipeline: every final transcript comes back as speech.
type echoSink struct {
	tr     *session.Transport
	logger *slog.Logger
}

func (s *echoSink) PushFrame(ctx context.Context, frame pipeline.Frame) error {
	switch frame := frame.(type) {
	case pipeline.TranscriptionFrame:
		out := s.tr.Outbound()
		if err := out.ProcessFrame(ctx, pipeline.TextFrame{Text: "You said: " + frame.Text}); err != nil {
			return err
		}
		return out.ProcessFrame(ctx, pipeline.ResponseEndFrame{})
	case pipeline.ErrorFrame:
		s.logger.Error("relay reported an error", "description", frame.Description)
	}
	return nil
}

func (s *echoSink) Cancel(context.Context) error {
	s.logger.Info("pipeline canceled")
	return nil
}

func buildHandler(cfg config.Config, logger *slog.Logger, lc *handlers.Lifecycle, calls *sessions.Tracker) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/healthz", handlers.HealthHandler{Lifecycle: lc})
	mux.Handle("/twiml", handlers.TwiMLHandler{Config: cfg, Logger: logger})
	mux.Handle("/ws", handlers.RelayHandler{
		Config:    cfg,
		Logger:    logger,
		Lifecycle: lc,
		Calls:     calls,
		NewSink: func(tr *session.Transport) pipeline.Sink {
			return &echoSink{tr: tr, logger: logger}
		},
	})
	return mux
}

func runServer(ctx context.Context, logger *slog.Logger, deps serverDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	lc := &handlers.Lifecycle{}
	calls := sessions.NewTracker()
	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           buildHandler(cfg, logger, lc, calls),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	logger.Info("starting relay server", "addr", cfg.Addr, "public_ws_url", cfg.PublicWSURL)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	lc.SetDraining(true)
	if sent := calls.EndAll(""); sent > 0 {
		logger.Info("asked live calls to end", "count", sent)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !calls.Wait(waitCtx) {
		logger.Warn("calls did not drain in time; canceling", "remaining", calls.Count())
		calls.CancelAll()
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("relay server stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps serverDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(stderr, "relay-server: %v\n", err)
		return 1
	}

	if err := runServer(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "relay-server: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultServerDeps()))
}
