package services

import (
  "context"
  "fmt"
  "os"
  "strings"
  "time"

  documentai "cloud.google.com/go/documentai/apiv1"
  "cloud.google.com/go/documentai/apiv1/documentaipb"
  "google.golang.org/api/option"

  "github.com/medcurio/taxonomy-backend/internal/logger"
)

// ContentExtractionService turns a stored document into plain text suitable
// for classification. Plain text objects pass through untouched; scanned or
// structured formats (PDF, TIFF, images) go through Document AI OCR.
type ContentExtractionService interface {
  ExtractText(ctx context.Context, storageURI, contentType string) (string, error)
}

type contentExtractionService struct {
  log    *logger.Logger
  bucket BucketService
  docai  *documentai.DocumentProcessorClient

  processorName string
  maxBytes      int64
}

func NewContentExtractionService(log *logger.Logger, bucket BucketService) (ContentExtractionService, error) {
  serviceLog := log.With("service", "ContentExtractionService")

  projectID := os.Getenv("GCP_PROJECT_ID")
  location := os.Getenv("DOCUMENTAI_LOCATION")
  if location == "" {
    location = "us"
  }
  processorID := os.Getenv("DOCUMENTAI_PROCESSOR_ID")
  if projectID == "" || processorID == "" {
    return nil, fmt.Errorf("missing GCP_PROJECT_ID or DOCUMENTAI_PROCESSOR_ID")
  }

  opts := []option.ClientOption{
    option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", location)),
  }
  if saPath := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"); saPath != "" {
    opts = append(opts, option.WithCredentialsFile(saPath))
  }
  client, err := documentai.NewDocumentProcessorClient(context.Background(), opts...)
  if err != nil {
    return nil, fmt.Errorf("Failed to create Document AI client: %w", err)
  }

  return &contentExtractionService{
    log:           serviceLog,
    bucket:        bucket,
    docai:         client,
    processorName: fmt.Sprintf("projects/%s/locations/%s/processors/%s", projectID, location, processorID),
    maxBytes:      20 * 1024 * 1024, // sync ProcessDocument request cap
  }, nil
}

func (s *contentExtractionService) ExtractText(ctx context.Context, storageURI, contentType string) (string, error) {
  key, err := s.bucket.ResolveKey(storageURI)
  if err != nil {
    return "", err
  }
  raw, err := s.bucket.DownloadFile(ctx, key)
  if err != nil {
    return "", err
  }
  if int64(len(raw)) > s.maxBytes {
    return "", fmt.Errorf("document %q exceeds extraction size cap (%d bytes)", storageURI, len(raw))
  }

  if isPlainText(contentType) {
    return string(raw), nil
  }

  ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
  defer cancel()
  started := time.Now()
  resp, err := s.docai.ProcessDocument(ctx, &documentaipb.ProcessRequest{
    Name: s.processorName,
    Source: &documentaipb.ProcessRequest_RawDocument{
      RawDocument: &documentaipb.RawDocument{
        Content:  raw,
        MimeType: normalizeMimeType(contentType),
      },
    },
  })
  if err != nil {
    return "", fmt.Errorf("Document AI processing failed for %q: %w", storageURI, err)
  }
  text := resp.GetDocument().GetText()
  if strings.TrimSpace(text) == "" {
    return "", fmt.Errorf("Document AI returned no text for %q", storageURI)
  }
  s.log.Info("Document text extracted",
    "storage_uri", storageURI,
    "bytes_in", len(raw),
    "chars_out", len(text),
    "took", time.Since(started).String(),
  )
  return text, nil
}

func isPlainText(contentType string) bool {
  ct := strings.ToLower(strings.TrimSpace(contentType))
  if idx := strings.Index(ct, ";"); idx >= 0 {
    ct = ct[:idx]
  }
  switch ct {
  case "text/plain", "text/markdown", "application/json":
    return true
  }
  return false
}

func normalizeMimeType(contentType string) string {
  ct := strings.ToLower(strings.TrimSpace(contentType))
  if idx := strings.Index(ct, ";"); idx >= 0 {
    ct = ct[:idx]
  }
  if ct == "" {
    return "application/pdf"
  }
  return ct
}
