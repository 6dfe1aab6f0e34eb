// Package database provides bbolt-backed storage for svnsync
package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/pulsepoint/svnsync/pkg/logger"
)

// History buckets
const (
	// BucketTransactions stores one record per sync operation
	BucketTransactions = "transactions"

	// BucketConflicts stores the conflicts resolved by those operations
	BucketConflicts = "conflicts"
)

// HistoryBuckets are the buckets created for the operation history database
var HistoryBuckets = []string{BucketTransactions, BucketConflicts}

// ErrNotFound is returned by Get when the key does not exist
var ErrNotFound = errors.New("key not found")

// Manager manages a BoltDB database connection
type Manager struct {
	DB      *bolt.DB // Exported for direct access
	path    string
	logger  *zap.Logger
	mu      sync.RWMutex
	isOpen  bool
	options *Options
}

// Options represents database options
type Options struct {
	Path     string        `json:"path"`
	FileMode uint32        `json:"file_mode"`
	Timeout  time.Duration `json:"timeout"`
	ReadOnly bool          `json:"read_only"`
	NoSync   bool          `json:"no_sync"`
	// Buckets are created on open if missing
	Buckets []string `json:"buckets"`
}

// DefaultOptions returns default options for the history database at path
func DefaultOptions(path string) *Options {
	return &Options{
		Path:     path,
		FileMode: 0600,
		Timeout:  1 * time.Second,
		Buckets:  HistoryBuckets,
	}
}

// NewManager creates a new database manager
func NewManager(options *Options) (*Manager, error) {
	if options == nil || options.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	return &Manager{
		path:    options.Path,
		logger:  logger.Named("database"),
		options: options,
	}, nil
}

// Open opens the database connection
func (m *Manager) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isOpen {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := bolt.Open(m.path, os.FileMode(m.options.FileMode), &bolt.Options{
		Timeout:  m.options.Timeout,
		ReadOnly: m.options.ReadOnly,
		NoSync:   m.options.NoSync,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	m.DB = db
	m.isOpen = true

	if !m.options.ReadOnly {
		if err := m.initBuckets(); err != nil {
			m.DB.Close()
			m.isOpen = false
			return fmt.Errorf("failed to initialize buckets: %w", err)
		}
	}

	m.logger.Debug("Database opened", zap.String("path", m.path))
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isOpen || m.DB == nil {
		return nil
	}

	if err := m.DB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	m.isOpen = false
	m.logger.Debug("Database closed", zap.String("path", m.path))
	return nil
}

func (m *Manager) initBuckets() error {
	return m.DB.Update(func(tx *bolt.Tx) error {
		for _, bucket := range m.options.Buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
}

// IsOpen checks if the database is open
func (m *Manager) IsOpen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isOpen
}

// Transaction executes a function within a database transaction
func (m *Manager) Transaction(writable bool, fn func(*bolt.Tx) error) error {
	if !m.IsOpen() {
		return fmt.Errorf("database is not open")
	}

	if writable {
		return m.DB.Update(fn)
	}
	return m.DB.View(fn)
}

// Put stores a JSON-encoded value in a bucket
func (m *Manager) Put(bucket, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return m.Transaction(true, func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}
		return b.Put([]byte(key), data)
	})
}

// Get decodes the value stored under key into value
func (m *Manager) Get(bucket, key string, value interface{}) error {
	return m.Transaction(false, func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}

		data := b.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%w: %s in bucket %s", ErrNotFound, key, bucket)
		}

		return json.Unmarshal(data, value)
	})
}

// Count returns the number of items in a bucket
func (m *Manager) Count(bucket string) (int, error) {
	count := 0

	err := m.Transaction(false, func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}
		count = b.Stats().KeyN
		return nil
	})

	return count, err
}

// Clear removes all items from a bucket
func (m *Manager) Clear(bucket string) error {
	return m.Transaction(true, func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucket)); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket([]byte(bucket))
		return err
	})
}

// Backup writes a consistent copy of the database to path
func (m *Manager) Backup(path string) error {
	if !m.IsOpen() {
		return fmt.Errorf("database is not open")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	return m.DB.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(path, 0600)
	})
}
