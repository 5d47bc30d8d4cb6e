package runstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/scheduler"
)

// Object metadata keys. minio canonicalizes user metadata names.
const (
	metaStatus     = "Adl-Status"
	metaStartedAt  = "Adl-Started-At"
	metaFinishedAt = "Adl-Finished-At"
)

// ObjectConfig configures an ObjectStore.
type ObjectConfig struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// Validate reports the first missing field.
func (c ObjectConfig) Validate() error {
	if c.Endpoint == "" {
		return errors.New("object store endpoint is required")
	}
	if c.Bucket == "" {
		return errors.New("object store bucket is required")
	}
	return nil
}

// ObjectStore persists each run record as <prefix><run id>.json in an
// S3-compatible bucket.
type ObjectStore struct {
	client *minio.Client
	bucket string
	prefix string

	mu     sync.RWMutex
	closed bool
}

// NewObjectStore connects to the object store and creates the bucket when
// it is missing.
func NewObjectStore(ctx context.Context, cfg ObjectConfig) (*ObjectStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return NewObjectStoreWithClient(ctx, client, cfg.Bucket, cfg.Prefix, cfg.Region)
}

// NewObjectStoreWithClient wraps an existing client.
func NewObjectStoreWithClient(ctx context.Context, client *minio.Client, bucket, prefix, region string) (*ObjectStore, error) {
	if client == nil {
		return nil, errors.New("minio client is required")
	}
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, fmt.Errorf("make bucket %s: %w", bucket, err)
		}
	}
	return &ObjectStore{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *ObjectStore) key(runID string) string {
	return s.prefix + runID + ".json"
}

// Save implements Store.
func (s *ObjectStore) Save(ctx context.Context, rec *Record) error {
	if err := validate(rec); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.client.PutObject(ctx, s.bucket, s.key(rec.RunID),
		bytes.NewReader(rec.Data), int64(len(rec.Data)),
		minio.PutObjectOptions{
			ContentType: "application/json",
			UserMetadata: map[string]string{
				metaStatus:     string(rec.Status),
				metaStartedAt:  rec.StartedAt.UTC().Format(timeLayout),
				metaFinishedAt: rec.FinishedAt.UTC().Format(timeLayout),
			},
		})
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.RunID, err)
	}
	return nil
}

// Load implements Store.
func (s *ObjectStore) Load(ctx context.Context, runID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	key := s.key(runID)
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, objectError(runID, err)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, objectError(runID, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, objectError(runID, err)
	}
	rec := recordMeta(runID, info.UserMetadata)
	rec.Data = data
	return &rec, nil
}

// List implements Store.
func (s *ObjectStore) List(ctx context.Context) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	infos := []Info{}
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:       s.prefix,
		Recursive:    true,
		WithMetadata: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list runs: %w", obj.Err)
		}
		name := strings.TrimPrefix(obj.Key, s.prefix)
		if path.Ext(name) != ".json" || strings.Contains(name, "/") {
			continue
		}
		runID := strings.TrimSuffix(name, ".json")
		rec := recordMeta(runID, obj.UserMetadata)
		info := rec.Info()
		info.Size = obj.Size
		infos = append(infos, info)
	}
	sortInfos(infos)
	return infos, nil
}

// Delete implements Store.
func (s *ObjectStore) Delete(ctx context.Context, runID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}
	if err := s.client.RemoveObject(ctx, s.bucket, s.key(runID), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	return nil
}

// Close implements Store.
func (s *ObjectStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// recordMeta reads record metadata. Listings may report keys with or
// without the X-Amz-Meta- prefix.
func recordMeta(runID string, meta map[string]string) Record {
	get := func(k string) string {
		if v, ok := meta[k]; ok {
			return v
		}
		return meta["X-Amz-Meta-"+k]
	}
	rec := Record{RunID: runID, Status: scheduler.Status(get(metaStatus))}
	rec.StartedAt, _ = time.Parse(timeLayout, get(metaStartedAt))
	rec.FinishedAt, _ = time.Parse(timeLayout, get(metaFinishedAt))
	return rec
}

func objectError(runID string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrNotFound
	}
	return fmt.Errorf("load run %s: %w", runID, err)
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
