// Package referencestore persists reference files durably: bytes go to an
// S3-compatible object store, a metadata row goes to Postgres, and main PDFs
// get their plain text extracted for downstream search indexing. It is the
// production implementation of the orchestrator's persist operation.
package referencestore

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/alliancegenome/litupload/internal/config"
	"github.com/alliancegenome/litupload/internal/filename"
	pdfutil "github.com/alliancegenome/litupload/internal/pdf"
	"github.com/alliancegenome/litupload/internal/upload"
)

// Store wraps the object store and database used for reference files.
type Store struct {
	client *minio.Client
	bucket string
	region string
	pool   *pgxpool.Pool
}

// New creates a Store from the Config.
func New(cfg *config.Config, pool *pgxpool.Pool) (*Store, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init object store: %w", err)
	}
	return &Store{
		client: client,
		bucket: cfg.S3Bucket,
		region: cfg.S3Region,
		pool:   pool,
	}, nil
}

// EnsureBucket makes sure the reference file bucket exists before use.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// PersistFile stores one file against its reference and satisfies
// upload.PersistFunc. Re-uploading the same display name for a reference
// replaces the earlier row, matching curator resubmission behavior.
func (s *Store) PersistFile(ctx context.Context, fileBytes []byte, meta filename.Metadata) (upload.PersistResult, error) {
	failure := func(err error) (upload.PersistResult, error) {
		return upload.PersistResult{
			Status:         upload.PersistError,
			ReferenceCurie: meta.ReferenceCurie,
			FileClass:      meta.FileClass,
			Error:          err.Error(),
		}, nil
	}

	sum := md5.Sum(fileBytes)
	md5sum := hex.EncodeToString(sum[:])

	contentText := ""
	if meta.FileClass == filename.ClassMain && strings.EqualFold(meta.FileExtension, "pdf") {
		text, err := pdfutil.ExtractText(fileBytes)
		if err != nil {
			// A PDF we cannot decode is still worth keeping.
			log.Printf("extract text for %s/%s: %v", meta.ReferenceCurie, meta.DisplayName, err)
		} else {
			contentText = text
		}
	}

	objectKey := s.objectKey(meta)
	opts := minio.PutObjectOptions{ContentType: "application/octet-stream"}
	if _, err := s.client.PutObject(ctx, s.bucket, objectKey, bytes.NewReader(fileBytes), int64(len(fileBytes)), opts); err != nil {
		return failure(fmt.Errorf("upload object %s: %w", objectKey, err))
	}

	if err := s.insertRow(ctx, meta, md5sum, int64(len(fileBytes)), contentText); err != nil {
		return failure(err)
	}

	log.Printf("persisted %s file %s.%s for %s", meta.FileClass, meta.DisplayName, meta.FileExtension, meta.ReferenceCurie)
	return upload.PersistResult{
		Status:         upload.PersistSuccess,
		ReferenceCurie: meta.ReferenceCurie,
		FileClass:      meta.FileClass,
	}, nil
}

// objectKey builds the storage key: reference/{curie}/{class}/{name}.{ext}
// with the CURIE's colon flattened for S3 friendliness.
func (s *Store) objectKey(meta filename.Metadata) string {
	curie := strings.ReplaceAll(meta.ReferenceCurie, ":", "_")
	name := meta.DisplayName
	if meta.FileExtension != "" {
		name += "." + meta.FileExtension
	}
	return fmt.Sprintf("reference/%s/%s/%s", curie, meta.FileClass, name)
}

func (s *Store) insertRow(ctx context.Context, meta filename.Metadata, md5sum string, size int64, contentText string) error {
	now := time.Now().UTC()
	var pdfType *string
	if meta.PDFType != "" {
		pdfType = &meta.PDFType
	}
	var content *string
	if contentText != "" {
		content = &contentText
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO referencefiles
			(reference_curie, display_name, file_extension, file_class,
			 file_publication_status, pdf_type, mod_abbreviation, md5sum,
			 file_size, content_text, is_annotation, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (reference_curie, display_name, file_extension) DO UPDATE
		SET file_class = EXCLUDED.file_class,
			file_publication_status = EXCLUDED.file_publication_status,
			pdf_type = EXCLUDED.pdf_type,
			mod_abbreviation = EXCLUDED.mod_abbreviation,
			md5sum = EXCLUDED.md5sum,
			file_size = EXCLUDED.file_size,
			content_text = EXCLUDED.content_text,
			updated_at = EXCLUDED.updated_at
	`, meta.ReferenceCurie, meta.DisplayName, meta.FileExtension, meta.FileClass,
		meta.FilePublicationStatus, pdfType, meta.ModAbbreviation, md5sum,
		size, content, meta.IsAnnotation, now, now)
	if err != nil {
		return fmt.Errorf("insert referencefile row: %w", err)
	}
	return nil
}
