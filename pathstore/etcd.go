package pathstore

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const PathPrefix = "/pce/paths/"

// EtcdStore keeps one key per service under PathPrefix.
type EtcdStore struct {
	kv clientv3.KV
}

func NewEtcdStore(kv clientv3.KV) *EtcdStore {
	return &EtcdStore{kv: kv}
}

func (s *EtcdStore) GetPath(ctx context.Context, serviceName string) ([]string, bool, error) {
	resp, err := s.kv.Get(ctx, PathPrefix+serviceName)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get path of %s: %w", serviceName, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, false, nil
	}
	nodes, err := decode(serviceName, resp.Kvs[0].Value)
	if err != nil {
		return nil, false, err
	}
	return nodes, true, nil
}

func (s *EtcdStore) PutPath(ctx context.Context, serviceName string, nodes []string) error {
	data, err := encode(serviceName, nodes)
	if err != nil {
		return err
	}
	if _, err := s.kv.Put(ctx, PathPrefix+serviceName, string(data)); err != nil {
		return fmt.Errorf("failed to put path of %s: %w", serviceName, err)
	}
	log.Infof("PutPath: service=%s, nodes=%d", serviceName, len(nodes))
	return nil
}

func (s *EtcdStore) DeletePath(ctx context.Context, serviceName string) error {
	if _, err := s.kv.Delete(ctx, PathPrefix+serviceName); err != nil {
		return fmt.Errorf("failed to delete path of %s: %w", serviceName, err)
	}
	return nil
}
