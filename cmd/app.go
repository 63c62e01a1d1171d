package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	log "github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"

	"pce/common"
	"pce/config"
	"pce/etcd"
	"pce/feasibility"
	"pce/metrics"
	"pce/path_computation/solver"
	"pce/pathstore"
	"pce/routing"
	"pce/topology"
)

// app holds everything one command needs, built from the configuration.
type app struct {
	cfg          *config.Config
	metrics      *metrics.Registry
	topology     *common.TopologyManager
	paths        pathstore.Store
	etcdClient   *clientv3.Client
	orchestrator *routing.Orchestrator

	closers []func()
}

func newApp(c *config.Config, m *metrics.Registry) (*app, error) {
	a := &app{cfg: c, metrics: m}
	if err := a.init(); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) init() error {
	store, err := a.topologyStore()
	if err != nil {
		return err
	}
	a.topology = common.NewTopologyManager(store, a.metrics)

	if a.paths, err = a.pathStore(); err != nil {
		return err
	}

	var solverOpts []solver.Option
	if a.cfg.Solver.Pool.MaxWorkers > 0 {
		pool, err := a.pool(a.cfg.Solver.Pool)
		if err != nil {
			return err
		}
		solverOpts = append(solverOpts, solver.WithPool(pool))
	}

	opts := []routing.Option{
		routing.WithSolver(solver.New(solverOpts...)),
		routing.WithPathStore(a.paths),
		routing.WithMetrics(a.metrics),
	}
	if a.cfg.Worker.Pool.MaxWorkers > 0 {
		pool, err := a.pool(a.cfg.Worker.Pool)
		if err != nil {
			return err
		}
		opts = append(opts, routing.WithPool(pool))
	}
	if a.cfg.Feasibility.Enabled {
		client, err := feasibility.NewClient(a.cfg.Feasibility.Address, time.Duration(a.cfg.Feasibility.Timeout)*time.Second)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		opts = append(opts, routing.WithFeasibility(client))
	}

	a.orchestrator = routing.NewOrchestrator(a.topology, opts...)
	return nil
}

func (a *app) topologyStore() (topology.Store, error) {
	switch a.cfg.Topology.Source {
	case "mysql":
		db, err := topology.ConnectToDB(a.cfg.Topology.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { closeDB(db) })
		return topology.NewSQLStore(db), nil
	default:
		return topology.NewFileStore(a.cfg.Topology.Path)
	}
}

func (a *app) pathStore() (pathstore.Store, error) {
	switch a.cfg.PathStore.Backend {
	case "etcd":
		client, err := a.etcd()
		if err != nil {
			return nil, err
		}
		return pathstore.NewEtcdStore(client), nil
	case "redis":
		redisPool := pathstore.NewRedisPool(a.cfg.PathStore.Redis)
		a.closers = append(a.closers, func() { _ = redisPool.Close() })
		return pathstore.NewRedisStore(redisPool, time.Duration(a.cfg.PathStore.Redis.TTL)*time.Second), nil
	default:
		return pathstore.NewMemoryStore(), nil
	}
}

// etcd connects on first use; compute and batch only need it for the etcd
// path store.
func (a *app) etcd() (*clientv3.Client, error) {
	if a.etcdClient != nil {
		return a.etcdClient, nil
	}
	client, err := etcd.NewClient(a.cfg.Etcd)
	if err != nil {
		return nil, err
	}
	a.etcdClient = client
	a.closers = append(a.closers, func() { _ = client.Close() })
	return client, nil
}

func (a *app) pool(pc common.PoolConfig) (*ants.Pool, error) {
	pool, err := common.NewPool(pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create goroutine pool: %w", err)
	}
	a.closers = append(a.closers, pool.Release)
	return pool, nil
}

// storePath records the nodes of a successful result for later diversity
// requests.
func (a *app) storePath(ctx context.Context, resp *routing.Response) {
	if !resp.OK() {
		return
	}
	if err := a.paths.PutPath(ctx, resp.ServiceName, resp.Nodes()); err != nil {
		log.Warningf("Failed to store path of %s: %v", resp.ServiceName, err)
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		log.Warningf("Failed to close inventory database: %v", err)
	}
}
