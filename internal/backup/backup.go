// Package backup uploads encrypted snapshots of the cartwise database to
// S3-compatible storage.
package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

const DefaultPrefix = "backups/"

// Config holds backup manager configuration. A zero Retention keeps every
// snapshot.
type Config struct {
	Bucket    string
	Prefix    string
	Retention time.Duration
}

// Status holds the outcome of the most recent backup.
type Status struct {
	LastBackup *time.Time `json:"last_backup,omitempty"`
	LastKey    string     `json:"last_key,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// StatusCallback is called after every backup attempt.
type StatusCallback func(Status, error)

// Manager snapshots the database, seals it and uploads it.
type Manager struct {
	cfg    Config
	db     *sql.DB
	client s3Client
	sealer *Sealer
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	status   Status
	callback StatusCallback
}

// NewManager creates a backup manager. Snapshots are sealed with a key
// derived from passphrase.
func NewManager(cfg Config, db *sql.DB, client s3Client, passphrase string, logger *slog.Logger) (*Manager, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("backup: bucket is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	sealer, err := NewSealer(passphrase)
	if err != nil {
		return nil, err
	}
	return &Manager{
		cfg:    cfg,
		db:     db,
		client: client,
		sealer: sealer,
		logger: logger,
		now:    time.Now,
	}, nil
}

// OnStatus registers fn to be called after every backup attempt.
func (m *Manager) OnStatus(fn StatusCallback) {
	m.mu.Lock()
	m.callback = fn
	m.mu.Unlock()
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Backup writes a consistent copy of the database with VACUUM INTO, seals it
// and uploads it. It returns the object key.
func (m *Manager) Backup(ctx context.Context) (string, error) {
	key, err := m.backup(ctx)

	m.mu.Lock()
	if err != nil {
		m.status.Error = err.Error()
	} else {
		at := m.now().UTC()
		m.status = Status{LastBackup: &at, LastKey: key}
	}
	status, callback := m.status, m.callback
	m.mu.Unlock()

	if callback != nil {
		callback(status, err)
	}
	return key, err
}

func (m *Manager) backup(ctx context.Context) (string, error) {
	dir, err := os.MkdirTemp("", "cartwise-backup-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	snapshot := filepath.Join(dir, "snapshot.db")
	if _, err := m.db.ExecContext(ctx, `VACUUM INTO ?`, snapshot); err != nil {
		return "", fmt.Errorf("snapshot database: %w", err)
	}
	plaintext, err := os.ReadFile(snapshot)
	if err != nil {
		return "", fmt.Errorf("read snapshot: %w", err)
	}

	sealed, err := m.sealer.Seal(plaintext)
	if err != nil {
		return "", fmt.Errorf("seal snapshot: %w", err)
	}

	key := m.cfg.Prefix + "cartwise-" + m.now().UTC().Format("20060102T150405Z") + ".db.enc"
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}

	m.logger.Info("backup uploaded", "key", key, "bytes", len(sealed))
	return key, nil
}

// Cleanup deletes snapshots under the prefix older than the retention
// period and returns how many were removed.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	if m.cfg.Retention <= 0 {
		return 0, nil
	}
	before := m.now().Add(-m.cfg.Retention)

	var stale []string
	p := s3.NewListObjectsV2Paginator(m.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(m.cfg.Bucket),
		Prefix: aws.String(m.cfg.Prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("list backups: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".db.enc") {
				continue
			}
			if obj.LastModified != nil && obj.LastModified.Before(before) {
				stale = append(stale, key)
			}
		}
	}

	removed := 0
	for _, key := range stale {
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.cfg.Bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.logger.Warn("failed to delete old backup", "key", key, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// Run backs up every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Backup(ctx); err != nil {
				m.logger.Error("backup failed", "error", err)
				continue
			}
			if n, err := m.Cleanup(ctx); err != nil {
				m.logger.Error("backup cleanup failed", "error", err)
			} else if n > 0 {
				m.logger.Info("old backups removed", "count", n)
			}
		}
	}
}
