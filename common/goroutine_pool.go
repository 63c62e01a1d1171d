package common

import (
	"fmt"

	"github.com/panjf2000/ants/v2"
	log "github.com/sirupsen/logrus"
)

type PoolConfig struct {
	MaxWorkers  int  `toml:"max_workers"`
	Nonblocking bool `toml:"nonblocking"`
}

func NewPool(config PoolConfig) (*ants.Pool, error) {
	if config.MaxWorkers <= 0 {
		return nil, fmt.Errorf("invalid pool size %d", config.MaxWorkers)
	}

	pool, err := ants.NewPool(config.MaxWorkers, ants.WithNonblocking(config.Nonblocking))
	if err != nil {
		log.Warnf("Failed to create ants goroutine pool: %v", err)
		return nil, err
	}

	log.Infof("NewPool: max workers=%d, nonblocking=%v", config.MaxWorkers, config.Nonblocking)
	return pool, nil
}
