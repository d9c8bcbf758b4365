// Package artifact archives rendered exports in an S3-compatible bucket and
// hands back time-limited download links.
package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"

	"mapchat/api/internal/export"
	"mapchat/api/internal/util"
)

const DefaultLinkTTL = 15 * time.Minute

var ErrNotConfigured = errors.New("artifact store not configured")

// Config points at a bucket.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	LinkTTL   time.Duration
}

// Stored describes an archived export.
type Stored struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// objectClient is the subset of *minio.Client used here.
type objectClient interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucket, object string, expiry time.Duration, params url.Values) (*url.URL, error)
}

type Store struct {
	client objectClient
	bucket string
	ttl    time.Duration
	now    func() time.Time
}

// NewMinio connects to the bucket, creating it when missing.
func NewMinio(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, ErrNotConfigured
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		log.Info().Str("bucket", cfg.Bucket).Msg("Created artifact bucket")
	}
	return newStore(client, cfg.Bucket, cfg.LinkTTL), nil
}

func newStore(client objectClient, bucket string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultLinkTTL
	}
	return &Store{client: client, bucket: bucket, ttl: ttl, now: time.Now}
}

// Put uploads an export result and returns a presigned download link.
func (s *Store) Put(ctx context.Context, res *export.Result) (Stored, error) {
	if res == nil {
		return Stored{}, errors.New("nil export result")
	}
	now := s.now().UTC()
	key := ObjectKey(now, util.NewID(""), res.Filename)

	if _, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(res.Data), int64(len(res.Data)), minio.PutObjectOptions{
		ContentType: res.MimeType,
	}); err != nil {
		return Stored{}, fmt.Errorf("upload %s: %w", key, err)
	}

	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	link, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.ttl, params)
	if err != nil {
		return Stored{}, fmt.Errorf("presign %s: %w", key, err)
	}

	return Stored{Key: key, URL: link.String(), ExpiresAt: now.Add(s.ttl)}, nil
}

// ObjectKey lays archived files out by day: exports/YYYY/MM/DD/<id>/<file>.
func ObjectKey(now time.Time, id, filename string) string {
	name := strings.TrimSpace(path.Base(filename))
	if name == "" || name == "." || name == "/" {
		name = "export"
	}
	return path.Join("exports", now.UTC().Format("2006/01/02"), id, name)
}
