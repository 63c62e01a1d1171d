package topology

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// FileStore serves a topology file exported by the inventory. The file is
// re-parsed only when its md5 changes.
type FileStore struct {
	path    string
	hash    string
	lock    sync.RWMutex
	network *Network
}

func NewFileStore(path string) (*FileStore, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("error getting absolute path for %s: %w", path, err)
	}
	return &FileStore{path: absPath}, nil
}

func (fs *FileStore) Read(ctx context.Context) (*Network, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash, err := calculateFileMD5(fs.path)
	if err != nil {
		return nil, fmt.Errorf("topology file hash failed, file: %s: %w", fs.path, err)
	}

	fs.lock.RLock()
	if fs.network != nil && hash == fs.hash {
		network := fs.network.Copy()
		fs.lock.RUnlock()
		return network, nil
	}
	fs.lock.RUnlock()

	network, err := fs.load()
	if err != nil {
		return nil, err
	}

	fs.lock.Lock()
	fs.network = network
	fs.hash = hash
	fs.lock.Unlock()
	log.Infof("topology loaded, file: %s, nodes: %d, links: %d, hash: %s",
		fs.path, len(network.Nodes), len(network.Links), hash)

	return network.Copy(), nil
}

// Hash returns the md5 of the last loaded file content.
func (fs *FileStore) Hash() string {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return fs.hash
}

// Save writes the network back in the format implied by the file extension.
func (fs *FileStore) Save(network *Network) error {
	data, err := encode(fs.path, network)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fs.path), 0755); err != nil {
		return fmt.Errorf("failed to create topology dir: %w", err)
	}
	if err := os.WriteFile(fs.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write topology file: %w", err)
	}
	return nil
}

func (fs *FileStore) load() (*Network, error) {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		return nil, fmt.Errorf("error reading topology file %s: %w", fs.path, err)
	}

	var network Network
	if isYAML(fs.path) {
		err = yaml.Unmarshal(data, &network)
	} else {
		err = json.Unmarshal(data, &network)
	}
	if err != nil {
		return nil, fmt.Errorf("error decoding topology file %s: %w", fs.path, err)
	}
	if err := network.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", fs.path, err)
	}
	return &network, nil
}

func encode(path string, network *Network) ([]byte, error) {
	if isYAML(path) {
		data, err := yaml.Marshal(network)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal topology: %w", err)
		}
		return data, nil
	}
	data, err := json.MarshalIndent(network, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal topology: %w", err)
	}
	return data, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func calculateFileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
