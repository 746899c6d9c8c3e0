// Package main runs the inference load balancer.
//
// The balancer fronts a fixed set of inference nodes, probes them in the
// background, and relays each inference request to one online node:
//
//	┌──────────┐      ┌──────────────────────────┐      ┌─────────┐
//	│ clients  │─────▶│ gateway  :8000           │─────▶│ node-a  │
//	└──────────┘      │  dispatcher ▶ router     │      ├─────────┤
//	                  │  prober (every 5s)       │─────▶│ node-b  │
//	                  └──────────────────────────┘      └─────────┘
//
// Configuration:
//   - LB_CONFIG: YAML config file (default: "balancer.yaml", optional)
//   - LB_SECRETS_FILE: admin token and node credentials (optional)
//   - LB_LISTEN: listen address override
//   - LB_LOG_LEVEL: log level override
//
// Example usage:
//
//	LB_CONFIG=/etc/llmbalancer/balancer.yaml ./balancer
//	curl -X POST localhost:8000/generate -d '{"model":"llama3:8b","prompt":"hi"}'
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/llmbalancer/internal/admin"
	"github.com/dreamware/llmbalancer/internal/cluster"
	"github.com/dreamware/llmbalancer/internal/config"
	"github.com/dreamware/llmbalancer/internal/coordinator"
	"github.com/dreamware/llmbalancer/internal/gateway"
)

// logFatal is a variable so tests can intercept fatal errors.
var logFatal = logrus.Fatalf

const shutdownGrace = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logFatal("config: %v", err)
		return
	}
	if err := setupLogging(cfg); err != nil {
		logFatal("logging: %v", err)
		return
	}
	secrets, err := config.LoadSecrets()
	if err != nil {
		logFatal("secrets: %v", err)
		return
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		logFatal("listen on %s: %v", cfg.Listen, err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, secrets, ln); err != nil {
		logFatal("balancer: %v", err)
	}
	logrus.Info("balancer stopped")
}

func setupLogging(cfg config.Config) error {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	switch cfg.LogFormat {
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}
	return nil
}

type balancer struct {
	state  *cluster.State
	prober *coordinator.Prober
	server *gateway.Server
}

func newBalancer(cfg config.Config, secrets *config.Secrets, executor admin.Executor) *balancer {
	state := cluster.NewState(cfg.ClusterNodes())
	forwarder := coordinator.NewForwarder(state, cfg.ShortTimeout, cfg.LongTimeout)
	router := coordinator.NewRouter()

	b := &balancer{
		state:  state,
		prober: coordinator.NewProber(state, cfg.ProbeInterval, cfg.ProbeTimeout),
		server: gateway.NewServer(gateway.Options{
			State:      state,
			Dispatcher: coordinator.NewDispatcher(state, router, forwarder),
			Admin:      admin.NewChannel(secrets, executor),
			AdminToken: secrets.AdminToken,
			RateLimit:  cfg.RateLimit,
			ListenAddr: cfg.Listen,
		}),
	}
	logrus.Infof("routing policy %s over %d nodes", router.Name(), len(cfg.Nodes))
	if secrets.AdminToken == "" {
		logrus.Warn("no admin token configured, administrative endpoint is closed")
	}
	return b
}

// banner probes every node once and logs the result before traffic is served.
func (b *balancer) banner(ctx context.Context) {
	snap := b.prober.ProbeAll(ctx)
	for _, v := range snap.Nodes {
		logrus.WithFields(logrus.Fields{
			"node":   v.Node.ID,
			"url":    v.Node.URL,
			"models": len(v.Models),
		}).Infof("%s is %s", v.Node.Name, v.Status)
	}
	logrus.Infof("%d/%d nodes online", len(snap.Online()), len(snap.Nodes))
}

// run serves on ln until ctx is done, then drains in-flight requests.
func run(ctx context.Context, cfg config.Config, secrets *config.Secrets, ln net.Listener) error {
	b := newBalancer(cfg, secrets, admin.NewSSHExecutor())
	return b.serve(ctx, ln)
}

func (b *balancer) serve(ctx context.Context, ln net.Listener) error {
	b.banner(ctx)
	b.prober.Start(ctx)
	defer b.prober.Stop()

	httpSrv := &http.Server{
		Handler:           b.server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logrus.Infof("balancer listening on %s", ln.Addr())
		errc <- httpSrv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logrus.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
