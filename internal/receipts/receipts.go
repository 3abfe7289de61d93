// Package receipts keeps the original receipt images behind their purchases.
package receipts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("receipt image not found")

// Image is a stored receipt photo.
type Image struct {
	Key         string
	ContentType string
	Data        []byte
}

type Store interface {
	Put(ctx context.Context, workspaceID int64, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) (*Image, error)
}

// NewKey builds an object key of the form receipts/{workspace}/{yyyy-mm}/{uuid}{ext}.
func NewKey(workspaceID int64, contentType string, now time.Time) string {
	return fmt.Sprintf("receipts/%d/%s/%s%s", workspaceID, now.UTC().Format("2006-01"), uuid.NewString(), extension(contentType))
}

func extension(contentType string) string {
	ct, _, _ := strings.Cut(contentType, ";")
	switch strings.TrimSpace(strings.ToLower(ct)) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/heic":
		return ".heic"
	case "application/pdf":
		return ".pdf"
	default:
		return ""
	}
}

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration. Without static keys the
// default AWS credential chain is used.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	PathStyle bool
}

func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

type S3Store struct {
	bucket string
	client s3Client
	now    func() time.Time
}

// NewS3Client builds an S3 client from cfg. It is shared with the database
// backup uploader.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// NewS3Store builds an S3 backed store on client.
func NewS3Store(cfg S3Config, client *s3.Client) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("receipts: bucket is required")
	}
	return newS3Store(cfg.Bucket, client), nil
}

func newS3Store(bucket string, client s3Client) *S3Store {
	return &S3Store{bucket: bucket, client: client, now: time.Now}
}

func (s *S3Store) Put(ctx context.Context, workspaceID int64, data []byte, contentType string) (string, error) {
	key := NewKey(workspaceID, contentType, s.now())
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("put receipt %s: %w", key, err)
	}
	return key, nil
}

func (s *S3Store) Get(ctx context.Context, key string) (*Image, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get receipt %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read receipt %s: %w", key, err)
	}
	return &Image{Key: key, ContentType: aws.ToString(out.ContentType), Data: data}, nil
}

// MemoryStore keeps images in process memory. Used when no bucket is
// configured and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Image
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]Image), now: time.Now}
}

func (m *MemoryStore) Put(_ context.Context, workspaceID int64, data []byte, contentType string) (string, error) {
	key := NewKey(workspaceID, contentType, m.now())
	m.mu.Lock()
	m.objects[key] = Image{Key: key, ContentType: contentType, Data: bytes.Clone(data)}
	m.mu.Unlock()
	return key, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (*Image, error) {
	m.mu.RLock()
	img, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	img.Data = bytes.Clone(img.Data)
	return &img, nil
}

// Len returns the number of stored images.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
