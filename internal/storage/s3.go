package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Element stores files in an S3 bucket, keyed by prefix and LFN.
type S3Element struct {
	name       string
	site       string
	bucket     string
	prefix     string
	uploader   *manager.Uploader
	downloader *manager.Downloader
}

// NewS3Element creates an S3Element from cfg using the default AWS
// credential chain.
func NewS3Element(ctx context.Context, cfg Config) (*S3Element, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 storage element needs a bucket")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Element{
		name:       cfg.Name,
		site:       cfg.Site,
		bucket:     cfg.Bucket,
		prefix:     cfg.Prefix,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
	}, nil
}

func (e *S3Element) Name() string { return e.name }
func (e *S3Element) Site() string { return e.site }

// ObjectKey maps an LFN to the object key under prefix.
func ObjectKey(prefix, lfn string) string {
	lfn = strings.TrimPrefix(strings.TrimPrefix(lfn, "LFN:"), "/")
	if prefix == "" {
		return lfn
	}
	return path.Join(strings.Trim(prefix, "/"), lfn)
}

func (e *S3Element) Put(ctx context.Context, localPath, lfn string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = e.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(ObjectKey(e.prefix, lfn)),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("upload %s to s3://%s: %w", lfn, e.bucket, err)
	}
	return nil
}

func (e *S3Element) Get(ctx context.Context, lfn, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	tmp := localPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	_, err = e.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(ObjectKey(e.prefix, lfn)),
	})
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("download %s from s3://%s: %w", lfn, e.bucket, err)
	}
	return os.Rename(tmp, localPath)
}
