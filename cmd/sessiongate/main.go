// Command sessiongate is the gateway binary: it owns the HTTP listener,
// the session registry, the watchdog, and (optionally) the admin
// diagnostics stream.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"sessiongate/internal/backend"
	"sessiongate/internal/config"
	"sessiongate/internal/gatewayhttp"
	"sessiongate/internal/monitor"
	"sessiongate/internal/session"
	"sessiongate/internal/watchdog"
)

func main() {
	port := flag.Int("p", 1441, "listen port")
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	if flagSet("p") {
		cfg.ListenAddr = fmt.Sprintf(":%d", *port)
	}

	// A dead backend must not take the gateway down with it.
	signal.Ignore(syscall.SIGPIPE)

	reg := session.NewRegistry(cfg.MaxSessions, backend.Config{
		Path: cfg.BackendPath,
		Args: cfg.BackendArgs,
	}, log)

	wd := watchdog.New(watchdog.Config{
		Interval:       time.Duration(cfg.SweepInterval),
		SessionTimeout: time.Duration(cfg.SessionTimeout),
	}, reg, log)

	var hub *monitor.Hub
	if cfg.MonitorAddr != "" {
		hub = monitor.NewHub(log)
		wd.OnSweep = func(count int, event string) {
			hub.Broadcast(monitor.Event{Sessions: count, Event: event})
		}
		go func() {
			mux := http.NewServeMux()
			mux.HandleFunc("/", hub.Handler)
			log.WithField("addr", cfg.MonitorAddr).Info("admin monitor listening")
			if err := http.ListenAndServe(cfg.MonitorAddr, mux); err != nil {
				log.WithError(err).Error("admin monitor stopped")
			}
		}()
	}

	ctx, cancelWatchdog := context.WithCancel(context.Background())
	go wd.Run(ctx)

	dispatcher := gatewayhttp.New(reg, time.Duration(cfg.EvalTimeout), log)
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: dispatcher.Router(),
	}

	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("gateway stopped")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	cancelWatchdog()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	var all []*session.Session
	reg.ForEach(func(s *session.Session) {
		s.Status = session.Terminating
		all = append(all, s)
	})

	// Give workers their select-budget window to notice and release the
	// control socket before the backend is killed out from under them.
	// Kill/ClosePipes are syscalls and must run with the registry lock
	// released, so this happens after ForEach returns, not inside it.
	time.Sleep(150 * time.Millisecond)
	for _, s := range all {
		_ = s.Kill()
		s.ClosePipes()
	}

	log.Info("shutdown complete")
}

// flagSet reports whether name was explicitly passed on the command line,
// so a config file value isn't silently overridden by flag.Int's default.
func flagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
