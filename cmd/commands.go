package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pce/etcd"
	"pce/feasibility"
	"pce/metrics"
	"pce/routing"
)

var (
	requestFile string
	outputFile  string
	waitTimeout time.Duration

	stubListenAddr   string
	stubMaxResources int

	computeCmd = &cobra.Command{
		Use:   "compute",
		Short: "Compute the path of one request file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				return runCompute(ctx, a, requestFile, outputFile)
			})
		},
	}

	batchCmd = &cobra.Command{
		Use:   "batch",
		Short: "Compute every request of a request file, results in request order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				return runBatch(ctx, a, requestFile, outputFile)
			})
		},
	}

	submitCmd = &cobra.Command{
		Use:   "submit",
		Short: "Queue a request for a running pce serve and optionally wait for its result",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				return runSubmit(ctx, a, requestFile, outputFile, waitTimeout)
			})
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Watch etcd for requests, refresh the topology and export metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return withApp(ctx, runServe)
		},
	}

	feasibilityStubCmd = &cobra.Command{
		Use:   "feasibility-stub",
		Short: "Serve a lab feasibility endpoint approving paths up to a resource count",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			addr := stubListenAddr
			if addr == "" {
				addr = cfg.Feasibility.Address
			}
			if addr == "" {
				return errors.New("feasibility-stub needs --listen or [feasibility] address")
			}
			return feasibility.NewServer(addr, feasibility.StubChecker(stubMaxResources)).Start(ctx)
		},
	}
)

func init() {
	for _, c := range []*cobra.Command{computeCmd, batchCmd, submitCmd} {
		c.Flags().StringVarP(&requestFile, "request", "r", "", "request file, JSON or YAML")
		c.Flags().StringVarP(&outputFile, "output", "o", "", "result file, stdout when empty")
		_ = c.MarkFlagRequired("request")
	}
	feasibilityStubCmd.Flags().StringVarP(&stubListenAddr, "listen", "l", "", "listen address, [feasibility] address when empty")
	feasibilityStubCmd.Flags().IntVar(&stubMaxResources, "max-resources", 0, "reject directions with more resources, 0 approves all")
	submitCmd.Flags().DurationVarP(&waitTimeout, "wait", "w", 30*time.Second, "how long to wait for the result, 0 returns right away")
}

func withApp(ctx context.Context, run func(context.Context, *app) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(cfg, metrics.DefaultRegistry())
	if err != nil {
		return err
	}
	defer a.close()
	return run(ctx, a)
}

func runCompute(ctx context.Context, a *app, in, out string) error {
	reqs, err := readRequests(in)
	if err != nil {
		return err
	}
	if len(reqs) != 1 {
		return fmt.Errorf("%s holds %d requests, compute takes one; use batch", in, len(reqs))
	}
	resp := a.orchestrator.Compute(ctx, reqs[0])
	a.storePath(ctx, resp)
	return writeJSON(out, resp)
}

func runBatch(ctx context.Context, a *app, in, out string) error {
	reqs, err := readRequests(in)
	if err != nil {
		return err
	}
	results := a.orchestrator.ComputeAll(ctx, reqs)
	for _, resp := range results {
		a.storePath(ctx, resp)
	}
	return writeJSON(out, results)
}

func runSubmit(ctx context.Context, a *app, in, out string, wait time.Duration) error {
	reqs, err := readRequests(in)
	if err != nil {
		return err
	}
	client, err := a.etcd()
	if err != nil {
		return err
	}
	publisher := etcd.NewResultPublisher(client, client)

	ids := make([]string, 0, len(reqs))
	for _, req := range reqs {
		id, err := publisher.SubmitRequest(ctx, req)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	if wait <= 0 {
		return writeJSON(out, ids)
	}

	results := make([]*routing.Response, 0, len(ids))
	for _, id := range ids {
		resp, err := publisher.WaitForResult(ctx, id, wait)
		if err != nil {
			return err
		}
		results = append(results, resp)
	}
	return writeJSON(out, results)
}

func runServe(ctx context.Context, a *app) error {
	if err := a.topology.Refresh(ctx); err != nil {
		log.Warningf("Initial topology load failed: %v, requests will retry it", err)
	}
	go a.topology.Run(ctx, time.Duration(a.cfg.Topology.RefreshInterval)*time.Second)

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	server := &http.Server{Addr: a.cfg.Metrics.ListenAddr, Handler: mux}
	go func() {
		log.Infof("Metrics listening on %s", a.cfg.Metrics.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Metrics server failed: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	client, err := a.etcd()
	if err != nil {
		return err
	}
	worker := etcd.NewRequestWorker(client, client, a.orchestrator,
		etcd.WithResultPaths(a.paths),
		etcd.WithRefresh(a.topology.Refresh),
		etcd.WithWorkerMetrics(a.metrics),
		etcd.WithMaxConflictRetries(a.cfg.Worker.MaxConflictRetries))

	err = worker.Start(ctx)
	worker.Wait()
	log.Infof("pce serve stopped")
	return err
}

// readRequests accepts a single request or a list of them.
func readRequests(path string) ([]*routing.PathComputationRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read request file: %w", err)
	}

	unmarshal := json.Unmarshal
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
		unmarshal = yaml.Unmarshal
	}

	var reqs []*routing.PathComputationRequest
	if err := unmarshal(data, &reqs); err == nil {
		return reqs, nil
	}
	var req routing.PathComputationRequest
	if err := unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request file %s: %w", path, err)
	}
	return []*routing.PathComputationRequest{&req}, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	data = append(data, '\n')
	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
