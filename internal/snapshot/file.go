package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tradelab/draudit/pkg/errclass"
	"github.com/tradelab/draudit/pkg/fsutil"
	"github.com/tradelab/draudit/pkg/jsonutil"
	"github.com/tradelab/draudit/pkg/logging"
	"github.com/tradelab/draudit/pkg/metrics"
	"github.com/tradelab/draudit/pkg/model"
)

const (
	filePrefix = "snapshot_"
	fileSuffix = ".json"
)

// FileName returns the on-disk name for a snapshot address.
func FileName(hash model.HashValue) string {
	return filePrefix + string(hash) + fileSuffix
}

// ParseFileName extracts the address from a snapshot file name.
func ParseFileName(name string) (model.HashValue, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return "", false
	}
	h := model.HashValue(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
	return h, h.Valid()
}

// FileStore keeps one snapshot_<hash>.json file per payload in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at dir. The directory is created
// on first Put.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the snapshot directory.
func (s *FileStore) Dir() string { return s.dir }

// Path returns the file path for hash.
func (s *FileStore) Path(hash model.HashValue) string {
	return filepath.Join(s.dir, FileName(hash))
}

// Put implements Store.
func (s *FileStore) Put(ctx context.Context, payload jsonutil.Value) (model.HashValue, error) {
	data, hash, err := Encode(payload)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	created, err := fsutil.AtomicCreate(s.Path(hash), data, 0444)
	if err != nil {
		return "", fmt.Errorf("store snapshot %s: %w", hash, err)
	}
	metrics.Default().RecordSnapshotPut(created)
	logging.Debug("snapshot stored", map[string]any{
		"hash":    string(hash),
		"created": created,
		"bytes":   len(data),
	})
	return hash, nil
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, hash model.HashValue) (jsonutil.Value, error) {
	if err := checkAddress(hash); err != nil {
		return jsonutil.Value{}, err
	}
	if err := ctx.Err(); err != nil {
		return jsonutil.Value{}, err
	}
	data, err := os.ReadFile(s.Path(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return jsonutil.Value{}, errclass.ErrNotFound.WithMessagef("snapshot %s", hash)
		}
		return jsonutil.Value{}, fmt.Errorf("read snapshot %s: %w", hash, err)
	}
	return Decode(hash, data)
}

// Exists implements Store.
func (s *FileStore) Exists(ctx context.Context, hash model.HashValue) (bool, error) {
	if !hash.Valid() {
		return false, nil
	}
	_, err := os.Stat(s.Path(hash))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat snapshot %s: %w", hash, err)
}

// List implements Store.
func (s *FileStore) List(ctx context.Context) ([]model.HashValue, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}
	var hashes []model.HashValue
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if h, ok := ParseFileName(e.Name()); ok {
			hashes = append(hashes, h)
		}
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })
	return hashes, nil
}
