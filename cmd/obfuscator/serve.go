package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	apiv1 "github.com/mundrapranay/silhouette-obfuscator/api/v1"
	"github.com/mundrapranay/silhouette-obfuscator/internal/server"
	"github.com/mundrapranay/silhouette-obfuscator/internal/store"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		bootstrap bool
		peers     []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a replicated obfuscation node",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("bootstrap") {
				a.cfg.Server.Bootstrap = bootstrap
			}
			return a.serve(cmd.Context(), peers)
		},
	}

	cmd.Flags().BoolVar(&bootstrap, "bootstrap", false, "bootstrap a new cluster (first node)")
	cmd.Flags().StringSliceVar(&peers, "peer", nil, "id=raft_addr of a voter to add once this node leads")
	return cmd
}

func (a *app) serve(ctx context.Context, peers []string) error {
	sc := a.cfg.Server
	logger := a.logger

	if err := sc.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := os.MkdirAll(sc.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	s, err := store.NewStore(store.Config{
		NodeID:           sc.NodeID,
		ListenAddr:       sc.RaftAddr,
		DataDir:          sc.DataDir,
		Bootstrap:        sc.Bootstrap,
		HeartbeatTimeout: sc.HeartbeatTimeout,
		ElectionTimeout:  sc.ElectionTimeout,
		CommitTimeout:    sc.CommitTimeout,
		Logger:           logger.Named("store"),
	})
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	defer func() {
		if err := s.Shutdown(); err != nil {
			logger.Error("store shutdown failed", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	srv := server.NewServer(s, logger.Named("server"), server.NewMetrics(reg))

	lis, err := net.Listen("tcp", sc.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	grpcSrv := grpc.NewServer()
	apiv1.RegisterObfuscationServiceServer(grpcSrv, srv)

	errCh := make(chan error, 2)
	go func() {
		logger.Info("starting gRPC server", "addr", sc.GRPCAddr)
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	var metricsSrv *http.Server
	if sc.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: sc.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("starting metrics server", "addr", sc.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	if sc.Bootstrap {
		logger.Info("bootstrapping cluster")
		if err := s.WaitForLeader(30 * time.Second); err != nil {
			return err
		}
		logger.Info("became leader")
		for _, peer := range peers {
			id, addr, ok := strings.Cut(peer, "=")
			if !ok {
				return fmt.Errorf("invalid peer %q, want id=raft_addr", peer)
			}
			if err := s.AddPeer(id, addr); err != nil {
				return fmt.Errorf("failed to add peer %s: %w", id, err)
			}
			logger.Info("added peer", "id", id, "addr", addr)
		}
	}

	logger.Info("node is ready", "node", sc.NodeID, "raft", s.Addr(), "grpc", sc.GRPCAddr)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		logger.Error("server failed", "error", err)
	}

	grpcSrv.GracefulStop()
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", "error", err)
		}
	}
	return err
}
