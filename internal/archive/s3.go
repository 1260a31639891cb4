// Package archive uploads a JSON copy of every poll batch to S3.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/aidd/paper-tracker/internal/config"
	"github.com/aidd/paper-tracker/internal/domain"
)

// Batch is one source's fetch result from one poll.
type Batch struct {
	PollID    string
	Source    domain.SourceType
	DateFrom  string
	DateTo    string
	FetchedAt time.Time
	Papers    []*domain.Paper
}

// Archiver stores poll batches.
type Archiver interface {
	Archive(ctx context.Context, batch Batch) (string, error)
}

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes batches under
// <prefix>/<source>/<yyyy>/<mm>/<dd>/<poll id>.json.
type S3Archiver struct {
	client objectPutter
	bucket string
	prefix string
	logger zerolog.Logger
}

var _ Archiver = (*S3Archiver)(nil)

// NewS3Archiver loads AWS credentials from the default chain. A configured
// endpoint targets S3-compatible stores such as MinIO.
func NewS3Archiver(ctx context.Context, cfg config.ArchiveConfig, logger zerolog.Logger) (*S3Archiver, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return newS3Archiver(client, cfg.Bucket, cfg.Prefix, logger), nil
}

func newS3Archiver(client objectPutter, bucket, prefix string, logger zerolog.Logger) *S3Archiver {
	return &S3Archiver{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.With().Str("component", "archive").Str("bucket", bucket).Logger(),
	}
}

// Archive uploads batch and returns the object key.
func (a *S3Archiver) Archive(ctx context.Context, batch Batch) (string, error) {
	body, err := json.MarshalIndent(newDocument(batch), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal batch: %w", err)
	}

	key := a.objectKey(batch)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload batch to S3: %w", err)
	}

	a.logger.Debug().Str("key", key).Int("papers", len(batch.Papers)).Msg("batch archived")
	return key, nil
}

func (a *S3Archiver) objectKey(batch Batch) string {
	at := batch.FetchedAt.UTC()
	return path.Join(a.prefix, string(batch.Source), at.Format("2006/01/02"), batch.PollID+".json")
}

type document struct {
	PollID    string        `json:"poll_id"`
	Source    string        `json:"source"`
	DateFrom  string        `json:"date_from"`
	DateTo    string        `json:"date_to"`
	FetchedAt time.Time     `json:"fetched_at"`
	Count     int           `json:"count"`
	Papers    []paperRecord `json:"papers"`
}

type paperRecord struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Abstract      string   `json:"abstract"`
	Authors       []string `json:"authors"`
	Categories    []string `json:"categories"`
	PublishedDate string   `json:"published_date"`
	URL           string   `json:"url"`
	PDFURL        string   `json:"pdf_url,omitempty"`
	DOI           string   `json:"doi,omitempty"`
}

func newDocument(batch Batch) document {
	doc := document{
		PollID:    batch.PollID,
		Source:    string(batch.Source),
		DateFrom:  batch.DateFrom,
		DateTo:    batch.DateTo,
		FetchedAt: batch.FetchedAt.UTC(),
		Count:     len(batch.Papers),
		Papers:    make([]paperRecord, 0, len(batch.Papers)),
	}
	for _, p := range batch.Papers {
		doc.Papers = append(doc.Papers, paperRecord{
			ID:            p.ID,
			Title:         p.Title,
			Abstract:      p.Abstract,
			Authors:       p.Authors,
			Categories:    p.Categories,
			PublishedDate: p.PublishedDate,
			URL:           p.URL,
			PDFURL:        p.PDFURL,
			DOI:           p.DOI,
		})
	}
	return doc
}
