package backup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dukerupert/cartwise/internal/database"
)

type object struct {
	data     []byte
	modified time.Time
}

type mockS3Client struct {
	mu      sync.Mutex
	objects map[string]object
	putErr  error
}

func newMockS3Client() *mockS3Client {
	return &mockS3Client{objects: make(map[string]object)}
}

func (m *mockS3Client) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.objects[aws.ToString(in.Key)] = object{data: data, modified: time.Now()}
	m.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{}
	for _, k := range keys {
		modified := m.objects[k].modified
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), LastModified: &modified})
	}
	return out, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	delete(m.objects, aws.ToString(in.Key))
	m.mu.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3Client) put(key string, modified time.Time) {
	m.mu.Lock()
	m.objects[key] = object{data: []byte("x"), modified: modified}
	m.mu.Unlock()
}

func (m *mockS3Client) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSealOpen(t *testing.T) {
	s, err := NewSealer("correct horse battery")
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}

	plaintext := []byte("cartwise database bytes")
	sealed, err := s.Seal(plaintext)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Fatal("sealed output contains the plaintext")
	}

	got, err := Open(sealed, "correct horse battery")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("open = %q, want %q", got, plaintext)
	}

	if _, err := Open(sealed, "wrong passphrase"); err == nil {
		t.Error("expected error for wrong passphrase")
	}
	if _, err := Open(sealed[:10], "correct horse battery"); !errors.Is(err, ErrCorrupt) {
		t.Errorf("short input error = %v, want ErrCorrupt", err)
	}
}

func TestNewSealerRequiresPassphrase(t *testing.T) {
	if _, err := NewSealer(""); err == nil {
		t.Error("expected error for empty passphrase")
	}
}

func TestBackupUploadsRestorableSnapshot(t *testing.T) {
	dir := t.TempDir()
	db, err := database.Open(filepath.Join(dir, "cartwise.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`INSERT INTO workspaces (name) VALUES ('Home')`); err != nil {
		t.Fatalf("insert workspace: %v", err)
	}

	client := newMockS3Client()
	m, err := NewManager(Config{Bucket: "b"}, db, client, "correct horse battery", discardLogger())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	m.now = func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) }

	var calls int
	m.OnStatus(func(s Status, err error) {
		calls++
		if err != nil {
			t.Errorf("callback error: %v", err)
		}
	})

	key, err := m.Backup(context.Background())
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if key != "backups/cartwise-20260314T093000Z.db.enc" {
		t.Errorf("key = %q", key)
	}
	if calls != 1 {
		t.Errorf("callback calls = %d, want 1", calls)
	}
	if st := m.Status(); st.LastKey != key || st.LastBackup == nil || st.Error != "" {
		t.Errorf("status = %+v", st)
	}

	plaintext, err := Open(client.objects[key].data, "correct horse battery")
	if err != nil {
		t.Fatalf("open backup: %v", err)
	}
	restored := filepath.Join(dir, "restored.db")
	if err := os.WriteFile(restored, plaintext, 0600); err != nil {
		t.Fatalf("write restored: %v", err)
	}
	rdb, err := database.Open(restored)
	if err != nil {
		t.Fatalf("open restored: %v", err)
	}
	defer rdb.Close()

	var name string
	if err := rdb.QueryRow(`SELECT name FROM workspaces`).Scan(&name); err != nil {
		t.Fatalf("query restored: %v", err)
	}
	if name != "Home" {
		t.Errorf("restored workspace = %q, want Home", name)
	}
}

func TestBackupUploadFailure(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "cartwise.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	client := newMockS3Client()
	client.putErr = errors.New("bucket gone")
	m, err := NewManager(Config{Bucket: "b"}, db, client, "pass phrase", discardLogger())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	var gotErr error
	m.OnStatus(func(_ Status, err error) { gotErr = err })

	if _, err := m.Backup(context.Background()); err == nil {
		t.Fatal("expected upload error")
	}
	if gotErr == nil {
		t.Error("callback did not receive the error")
	}
	if st := m.Status(); st.Error == "" || st.LastBackup != nil {
		t.Errorf("status = %+v", st)
	}
}

func TestCleanupRemovesExpiredSnapshots(t *testing.T) {
	now := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	client := newMockS3Client()
	client.put("backups/cartwise-old.db.enc", now.Add(-40*24*time.Hour))
	client.put("backups/cartwise-new.db.enc", now.Add(-2*24*time.Hour))
	client.put("backups/notes.txt", now.Add(-90*24*time.Hour))
	client.put("receipts/1/2026-01/a.jpg", now.Add(-90*24*time.Hour))

	m, err := NewManager(Config{Bucket: "b", Retention: 30 * 24 * time.Hour}, nil, client, "pass phrase", discardLogger())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	m.now = func() time.Time { return now }

	n, err := m.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("removed = %d, want 1", n)
	}
	if client.has("backups/cartwise-old.db.enc") {
		t.Error("expired snapshot still present")
	}
	for _, key := range []string{"backups/cartwise-new.db.enc", "backups/notes.txt", "receipts/1/2026-01/a.jpg"} {
		if !client.has(key) {
			t.Errorf("%s was removed", key)
		}
	}
}

func TestCleanupWithoutRetention(t *testing.T) {
	client := newMockS3Client()
	client.put("backups/cartwise-old.db.enc", time.Now().Add(-365*24*time.Hour))

	m, err := NewManager(Config{Bucket: "b"}, nil, client, "pass phrase", discardLogger())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if n, err := m.Cleanup(context.Background()); err != nil || n != 0 {
		t.Errorf("cleanup = %d, %v; want 0, nil", n, err)
	}
	if !client.has("backups/cartwise-old.db.enc") {
		t.Error("snapshot removed without retention")
	}
}

func TestNewManagerRequiresBucket(t *testing.T) {
	if _, err := NewManager(Config{}, nil, newMockS3Client(), "pass phrase", discardLogger()); err == nil {
		t.Error("expected error without bucket")
	}
}
