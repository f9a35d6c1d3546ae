package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig configures an S3-compatible store.
type MinIOConfig struct {
	Endpoint   string
	Bucket     string
	AccessKey  string
	SecretKey  string
	Region     string
	UseSSL     bool
	RootFolder string
	Limiter    *Limiter
	Logger     *slog.Logger
}

// MinIO is a Store backed by an S3-compatible bucket. Folders are key
// prefixes; an empty "<folder>/" marker object makes a folder exist before
// anything is stored in it.
type MinIO struct {
	cfg    MinIOConfig
	logger *slog.Logger

	client    *minio.Client
	rootReady bool
}

// NewMinIO creates an unauthenticated MinIO store.
func NewMinIO(cfg MinIOConfig) *MinIO {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &MinIO{cfg: cfg, logger: cfg.Logger}
}

// Init drops the client; the next Authenticate builds a new one.
func (s *MinIO) Init() {
	s.client = nil
	s.rootReady = false
}

// Authenticate builds a client from the static credentials and checks that
// the bucket is reachable with them. Static keys cannot be refreshed, so a
// repeated call simply rebuilds the client.
func (s *MinIO) Authenticate(ctx context.Context) error {
	client, err := minio.New(s.cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(s.cfg.AccessKey, s.cfg.SecretKey, ""),
		Secure:       s.cfg.UseSSL,
		Region:       s.cfg.Region,
		BucketLookup: minio.BucketLookupAuto,
	})
	if err != nil {
		return fmt.Errorf("%w: creating S3 client: %w", ErrAuthentication, err)
	}

	if _, err := client.BucketExists(ctx, s.cfg.Bucket); err != nil {
		return classifyMinIOError(fmt.Errorf("remote: checking bucket %s: %w", s.cfg.Bucket, err))
	}

	s.client = client

	s.logger.Debug("s3 session validated",
		slog.String("endpoint", s.cfg.Endpoint),
		slog.String("bucket", s.cfg.Bucket),
	)

	return nil
}

// EnsureRootFolder creates the bucket if needed and writes the root marker.
func (s *MinIO) EnsureRootFolder(ctx context.Context) error {
	if s.rootReady {
		return nil
	}

	err := s.withAuth(ctx, "ensure-root", "", func(c *minio.Client) error {
		exists, err := c.BucketExists(ctx, s.cfg.Bucket)
		if err != nil {
			return err
		}

		if !exists {
			s.logger.Info("creating bucket", slog.String("bucket", s.cfg.Bucket))

			if err := c.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
				return err
			}
		}

		_, err = c.PutObject(ctx, s.cfg.Bucket, s.folderKey(""), strings.NewReader(""), 0, minio.PutObjectOptions{})

		return err
	})
	if err != nil {
		return err
	}

	s.rootReady = true

	return nil
}

// ListChildren lists objects and sub-prefixes directly below folder.
func (s *MinIO) ListChildren(ctx context.Context, folder string) ([]Item, error) {
	var items []Item

	err := s.withAuth(ctx, "list", folder, func(c *minio.Client) error {
		prefix := s.folderKey(folder)
		sawMarker := false
		items = nil

		for obj := range c.ListObjects(ctx, s.cfg.Bucket, minio.ListObjectsOptions{Prefix: prefix}) {
			if obj.Err != nil {
				return obj.Err
			}

			if obj.Key == prefix {
				sawMarker = true
				continue
			}

			items = append(items, itemFromObject(obj, prefix))
		}

		if len(items) == 0 && !sawMarker {
			return fmt.Errorf("%w: folder %q", ErrNotFound, folder)
		}

		return nil
	})

	return items, err
}

// TryGetItem looks up folder/name as an object, then as a prefix.
func (s *MinIO) TryGetItem(ctx context.Context, name, folder string) (*Item, error) {
	item, err := s.GetItem(ctx, Join(folder, name))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}

	return item, err
}

// GetItem stats an object; a key that exists only as a prefix is reported
// as a folder.
func (s *MinIO) GetItem(ctx context.Context, remotePath string) (*Item, error) {
	var item *Item

	err := s.withAuth(ctx, "get", remotePath, func(c *minio.Client) error {
		key := s.objectKey(remotePath)

		info, err := c.StatObject(ctx, s.cfg.Bucket, key, minio.StatObjectOptions{})
		if err == nil {
			converted := itemFromObject(info, s.folderKey(parentOf(remotePath)))
			item = &converted

			return nil
		}

		if !errors.Is(classifyMinIOError(err), ErrNotFound) {
			return err
		}

		isPrefix, listErr := s.prefixExists(ctx, c, key+"/")
		if listErr != nil {
			return listErr
		}

		if !isPrefix {
			return err
		}

		_, name := Split(remotePath)
		item = &Item{Name: name, IsFolder: true}

		return nil
	})

	return item, err
}

// prefixExists reports whether any key starts with prefix.
func (s *MinIO) prefixExists(ctx context.Context, c *minio.Client, prefix string) (bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for obj := range c.ListObjects(ctx, s.cfg.Bucket, minio.ListObjectsOptions{Prefix: prefix, MaxKeys: 1}) {
		if obj.Err != nil {
			return false, obj.Err
		}

		return true, nil
	}

	return false, nil
}

// Download writes the object to destination through a temp file.
func (s *MinIO) Download(ctx context.Context, remotePath, destination string) error {
	return s.withAuth(ctx, "download", remotePath, func(c *minio.Client) error {
		obj, err := c.GetObject(ctx, s.cfg.Bucket, s.objectKey(remotePath), minio.GetObjectOptions{})
		if err != nil {
			return err
		}
		defer obj.Close()

		return writeFileAtomic(destination, func(w io.Writer) error {
			_, copyErr := io.Copy(s.cfg.Limiter.WrapWriter(ctx, w), obj)
			return copyErr
		})
	})
}

// Upload puts source at remotePath. Prefixes need no creation.
func (s *MinIO) Upload(ctx context.Context, source, remotePath string) error {
	return s.withAuth(ctx, "upload", remotePath, func(c *minio.Client) error {
		f, err := os.Open(source)
		if err != nil {
			return fmt.Errorf("remote: opening upload source %s: %w", source, err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return fmt.Errorf("remote: stat upload source %s: %w", source, err)
		}

		_, err = c.PutObject(ctx, s.cfg.Bucket, s.objectKey(remotePath),
			s.cfg.Limiter.WrapReader(ctx, f), info.Size(),
			minio.PutObjectOptions{ContentType: "application/octet-stream"})

		return err
	})
}

// Delete removes an object. S3 deletes are idempotent; a NoSuchKey from a
// strict implementation is swallowed too.
func (s *MinIO) Delete(ctx context.Context, remotePath string) error {
	err := s.withAuth(ctx, "delete", remotePath, func(c *minio.Client) error {
		return c.RemoveObject(ctx, s.cfg.Bucket, s.objectKey(remotePath), minio.RemoveObjectOptions{})
	})
	if errors.Is(err, ErrNotFound) {
		return nil
	}

	return err
}

// Close drops the client.
func (s *MinIO) Close() error {
	s.client = nil
	return nil
}

// TranslateError renders err for the user.
func (s *MinIO) TranslateError(err error) string {
	return TranslateError("the S3 bucket", err)
}

func (s *MinIO) withAuth(ctx context.Context, opName, remotePath string, op func(c *minio.Client) error) error {
	return retryOnAuth(ctx, s.Authenticate, s.logger, opName, remotePath, func() error {
		if s.client == nil {
			return fmt.Errorf("%w: S3 client not initialized", ErrAuthentication)
		}

		return classifyMinIOError(op(s.client))
	})
}

func (s *MinIO) objectKey(remotePath string) string {
	return Join(s.cfg.RootFolder, remotePath)
}

func (s *MinIO) folderKey(folder string) string {
	key := s.objectKey(folder)
	if key == "" {
		return ""
	}

	return key + "/"
}

func parentOf(remotePath string) string {
	folder, _ := Split(remotePath)
	return folder
}

// itemFromObject converts a listing entry; keys ending in "/" are prefixes.
func itemFromObject(obj minio.ObjectInfo, prefix string) Item {
	name := strings.TrimPrefix(obj.Key, prefix)

	if strings.HasSuffix(name, "/") {
		return Item{Name: strings.TrimSuffix(name, "/"), IsFolder: true}
	}

	item := Item{Name: name, Size: obj.Size}

	if !obj.LastModified.IsZero() {
		mtime := obj.LastModified.Unix()
		item.LastModified = &mtime
	}

	return item
}

// classifyMinIOError tags S3 error codes with the remote sentinels.
func classifyMinIOError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrAuthentication) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAccessDenied) || errors.Is(err, ErrQuotaExceeded) {
		return err
	}

	var resp minio.ErrorResponse
	if !errors.As(err, &resp) {
		return err
	}

	switch resp.Code {
	case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "InvalidToken":
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	case "NoSuchKey", "NoSuchBucket", "NoSuchUpload":
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case "AccessDenied", "AllAccessDisabled":
		return fmt.Errorf("%w: %w", ErrAccessDenied, err)
	case "QuotaExceeded", "XMinioStorageFull", "EntityTooLarge":
		return fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
	default:
		return err
	}
}
