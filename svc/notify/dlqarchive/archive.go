// Package dlqarchive exports dead-letter records to S3 or any S3-compatible
// store as JSON lines, one object per export.
package dlqarchive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dmitrymomot/notifyhub/pkg/logger"
	"github.com/dmitrymomot/notifyhub/svc/notify"
)

var (
	ErrInvalidConfig = errors.New("dlqarchive: bucket and region are required")
	ErrLoadConfig    = errors.New("dlqarchive: failed to load aws config")
	ErrUploadFailed  = errors.New("dlqarchive: upload failed")
)

// Config describes the target bucket.
type Config struct {
	Bucket         string `env:"DLQ_S3_BUCKET"`
	Region         string `env:"DLQ_S3_REGION" envDefault:"us-east-1"`
	Endpoint       string `env:"DLQ_S3_ENDPOINT"`
	AccessKeyID    string `env:"DLQ_S3_ACCESS_KEY_ID"`
	SecretKey      string `env:"DLQ_S3_SECRET_ACCESS_KEY"`
	ForcePathStyle bool   `env:"DLQ_S3_FORCE_PATH_STYLE" envDefault:"false"`
	Prefix         string `env:"DLQ_S3_PREFIX" envDefault:"dead-letters"`
}

// S3Client is the subset of *s3.Client the archiver calls.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Source lists dead letters. notify.Store implementations satisfy it.
type Source interface {
	ListDeadLetters(ctx context.Context, filter notify.DeadLetterFilter) ([]*notify.DeadLetterRecord, error)
}

// Archiver uploads dead-letter exports.
type Archiver struct {
	client S3Client
	bucket string
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Archiver.
type Option func(*options)

type options struct {
	client        S3Client
	configOptions []func(*config.LoadOptions) error
	logger        *slog.Logger
	now           func() time.Time
}

// WithS3Client uses client instead of building one from Config.
func WithS3Client(client S3Client) Option {
	return func(o *options) { o.client = client }
}

// WithAWSConfigOption passes an extra option to config.LoadDefaultConfig.
func WithAWSConfigOption(opt func(*config.LoadOptions) error) Option {
	return func(o *options) { o.configOptions = append(o.configOptions, opt) }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock overrides time.Now for object keys.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates an Archiver for cfg.
func New(ctx context.Context, cfg Config, opts ...Option) (*Archiver, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, ErrInvalidConfig
	}

	o := &options{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	client := o.client
	if client == nil {
		awsOptions := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
		if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
			awsOptions = append(awsOptions, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
			))
		}
		awsOptions = append(awsOptions, o.configOptions...)

		awsConfig, err := config.LoadDefaultConfig(ctx, awsOptions...)
		if err != nil {
			return nil, errors.Join(ErrLoadConfig, err)
		}
		client = s3.NewFromConfig(awsConfig, func(so *s3.Options) {
			if cfg.Endpoint != "" {
				so.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			so.UsePathStyle = cfg.ForcePathStyle
		})
	}

	return &Archiver{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: o.logger,
		now:    o.now,
	}, nil
}

// Result describes one export.
type Result struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key,omitempty"`
	Count  int    `json:"count"`
}

// Export lists dead letters matching filter and uploads them as one JSON
// lines object. Nothing is uploaded when no record matches.
func (a *Archiver) Export(ctx context.Context, src Source, filter notify.DeadLetterFilter) (Result, error) {
	records, err := src.ListDeadLetters(ctx, filter)
	if err != nil {
		return Result{}, fmt.Errorf("list dead letters: %w", err)
	}
	res := Result{Bucket: a.bucket, Count: len(records)}
	if len(records) == 0 {
		return res, nil
	}

	body, err := EncodeJSONLines(records)
	if err != nil {
		return Result{}, err
	}

	res.Key = a.objectKey(filter.Channel)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(res.Key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/x-ndjson"),
	})
	if err != nil {
		return Result{}, errors.Join(ErrUploadFailed, err)
	}

	a.logger.LogAttrs(ctx, slog.LevelInfo, "dead letters exported",
		slog.String("bucket", a.bucket),
		slog.String("key", res.Key),
		slog.Int("count", res.Count),
		logger.Channel(string(filter.Channel)),
	)
	return res, nil
}

// EncodeJSONLines writes one JSON document per record, newline terminated.
func EncodeJSONLines(records []*notify.DeadLetterRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return nil, fmt.Errorf("encode dead letter %s/%s: %w", r.EventID, r.Channel, err)
		}
	}
	return buf.Bytes(), nil
}

// objectKey is <prefix>/YYYY/MM/DD/[channel-]<unix-nanos>.jsonl.
func (a *Archiver) objectKey(channel notify.Channel) string {
	now := a.now().UTC()
	name := fmt.Sprintf("%d.jsonl", now.UnixNano())
	if channel != "" {
		name = strings.ToLower(string(channel)) + "-" + name
	}
	parts := []string{now.Format("2006/01/02"), name}
	if a.prefix != "" {
		parts = append([]string{a.prefix}, parts...)
	}
	return strings.Join(parts, "/")
}
