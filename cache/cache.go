package cache

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/OneOfOne/xxhash"
	"github.com/dgraph-io/badger/v3"

	"github.com/RyanBlaney/sonido-tempo/logging"
)

// Cache stores analysis results keyed by file content and analysis
// settings. It is safe for concurrent use.
type Cache struct {
	db     *badger.DB
	logger logging.Logger
}

// Open opens or creates a cache in dir
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return open(badger.DefaultOptions(dir).WithLogger(nil))
}

// OpenInMemory opens a cache that lives only as long as the process
func OpenInMemory() (*Cache, error) {
	return open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}

func open(opts badger.Options) (*Cache, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	return &Cache{
		db: db,
		logger: logging.WithFields(logging.Fields{
			"component": "result_cache",
		}),
	}, nil
}

// Close flushes and closes the cache
func (c *Cache) Close() error {
	return c.db.Close()
}

// FileKey derives a key from a namespace, the xxhash64 of the file's bytes
// and the xxhash64 of the settings string.
func FileKey(path, namespace, settings string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := xxhash.New64()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", path, err)
	}

	return buildKey(namespace, h.Sum64(), xxhash.ChecksumString64(settings)), nil
}

// BytesKey is FileKey for in-memory content
func BytesKey(data []byte, namespace, settings string) []byte {
	return buildKey(namespace, xxhash.Checksum64(data), xxhash.ChecksumString64(settings))
}

func buildKey(namespace string, content, settings uint64) []byte {
	key := make([]byte, len(namespace)+1+16)
	n := copy(key, namespace)
	key[n] = '/'
	binary.BigEndian.PutUint64(key[n+1:], content)
	binary.BigEndian.PutUint64(key[n+9:], settings)
	return key
}

// Get decodes the value stored under key into v. It reports false when the
// key is absent.
func (c *Cache) Get(key []byte, v any) (bool, error) {
	var data []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache read failed: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		c.logger.Warn("Discarding unreadable cache entry", logging.Fields{
			"reason": err.Error(),
		})
		return false, nil
	}
	return true, nil
}

// Put stores v as JSON under key
func (c *Cache) Put(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("cache write failed: %w", err)
	}
	return nil
}

// Delete removes key if present
func (c *Cache) Delete(key []byte) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}
