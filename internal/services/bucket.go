package services

import (
  "context"
  "fmt"
  "io"
  "os"
  "strings"
  "time"

  "cloud.google.com/go/storage"
  "google.golang.org/api/option"
  "gorm.io/gorm"

  "github.com/medcurio/taxonomy-backend/internal/logger"
)

type BucketService interface {
  UploadFile(ctx context.Context, tx *gorm.DB, key string, file io.Reader) error
  DownloadFile(ctx context.Context, key string) ([]byte, error)
  DeleteFile(ctx context.Context, tx *gorm.DB, key string) error
  ReplaceFile(ctx context.Context, tx *gorm.DB, key string, newFile io.Reader) error
  GetPublicURL(key string) string
  ResolveKey(storageURI string) (string, error)
}

type bucketService struct {
  log           *logger.Logger
  storageClient *storage.Client
  bucketName    string
  cdnDomain     string
}

func NewBucketService(log *logger.Logger) (BucketService, error) {
  serviceLog := log.With("service", "BucketService")
  bucket := os.Getenv("GCS_BUCKET_NAME")
  if bucket == "" {
    return nil, fmt.Errorf("missing env var GCS_BUCKET_NAME")
  }
  cdnDomain := os.Getenv("CDN_DOMAIN")
  saPath := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON")
  if saPath == "" {
    serviceLog.Warn("The storage client may rely on other ADC or fail because GOOGLE_APPLICATION_CLIENT_JSON env var missing...")
  }
  ctx := context.Background()
  var stClient *storage.Client
  var err error
  if saPath != "" {
    stClient, err = storage.NewClient(ctx, option.WithCredentialsFile(saPath), option.WithScopes(storage.ScopeReadWrite))
  } else {
    stClient, err = storage.NewClient(ctx, option.WithScopes(storage.ScopeReadWrite))
  }
  if err != nil {
    return nil, fmt.Errorf("Failed to create storage client: %w", err)
  }
  return &bucketService{
    log:           serviceLog,
    storageClient: stClient,
    bucketName:    bucket,
    cdnDomain:     cdnDomain,
  }, nil
}

func (bs *bucketService) UploadFile(ctx context.Context, tx *gorm.DB, key string, file io.Reader) error {
  ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
  defer cancel()
  w := bs.storageClient.Bucket(bs.bucketName).Object(key).NewWriter(ctx)
  if _, err := io.Copy(w, file); err != nil {
    _ = w.Close()
    return fmt.Errorf("Failed to write data to GCS: %w", err)
  }
  if err := w.Close(); err != nil {
    return fmt.Errorf("Failed to write GCS writer: %w", err)
  }
  return nil
}

func (bs *bucketService) DownloadFile(ctx context.Context, key string) ([]byte, error) {
  ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
  defer cancel()
  r, err := bs.storageClient.Bucket(bs.bucketName).Object(key).NewReader(ctx)
  if err != nil {
    return nil, fmt.Errorf("Failed to open GCS object %q: %w", key, err)
  }
  defer r.Close()
  raw, err := io.ReadAll(r)
  if err != nil {
    return nil, fmt.Errorf("Failed to read GCS object %q: %w", key, err)
  }
  return raw, nil
}

func (bs *bucketService) DeleteFile(ctx context.Context, tx *gorm.DB, key string) error {
  ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
  defer cancel()
  o := bs.storageClient.Bucket(bs.bucketName).Object(key)
  if err := o.Delete(ctx); err != nil {
    return fmt.Errorf("Failed to delete GCS object %q: %w", key, err)
  }
  return nil
}

func (bs *bucketService) ReplaceFile(ctx context.Context, tx *gorm.DB, key string, newFile io.Reader) error {
  if err := bs.DeleteFile(ctx, tx, key); err != nil {
    return fmt.Errorf("Failed deleting old file: %w", err)
  }
  if err := bs.UploadFile(ctx, tx, key, newFile); err != nil {
    return fmt.Errorf("Failed uploading new file: %w", err)
  }
  return nil
}

func (bs *bucketService) GetPublicURL(key string) string {
  if bs.cdnDomain != "" {
    return fmt.Sprintf("https://%s/%s", bs.cdnDomain, key)
  }
  return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bs.bucketName, key)
}

// ResolveKey turns a gs:// URI or a bare object key into a bucket-relative
// key, rejecting URIs that point at a different bucket.
func (bs *bucketService) ResolveKey(storageURI string) (string, error) {
  if !strings.HasPrefix(storageURI, "gs://") {
    return storageURI, nil
  }
  rest := strings.TrimPrefix(storageURI, "gs://")
  parts := strings.SplitN(rest, "/", 2)
  if len(parts) != 2 || parts[1] == "" {
    return "", fmt.Errorf("malformed storage uri %q", storageURI)
  }
  if parts[0] != bs.bucketName {
    return "", fmt.Errorf("storage uri %q references foreign bucket %q", storageURI, parts[0])
  }
  return parts[1], nil
}
