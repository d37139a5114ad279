// Package blobstore stores uploaded sources and asset containers in S3.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// DefaultPartSize is the largest object copied in one request. Larger
// objects are copied in parts of this size.
const DefaultPartSize int64 = 64 << 20

const maxDeleteBatch = 1000

var ErrNotFound = errors.New("blobstore: object not found")

// S3API is the subset of the S3 client the store uses.
type S3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, opts ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, opts ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPartCopy(ctx context.Context, in *s3.UploadPartCopyInput, opts ...func(*s3.Options)) (*s3.UploadPartCopyOutput, error)
	CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, opts ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, opts ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, opts ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

type Config struct {
	Bucket   string
	Region   string
	Endpoint string
	PartSize int64
}

type Store struct {
	client   S3API
	bucket   string
	partSize int64
}

// New creates a store from the default AWS credential chain. A custom
// endpoint switches to path style addressing for S3 compatible servers.
func New(ctx context.Context, cfg Config) (*Store, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithClient(client, cfg.Bucket, cfg.PartSize), nil
}

func NewWithClient(client S3API, bucket string, partSize int64) *Store {
	if partSize <= 0 {
		partSize = DefaultPartSize
	}
	return &Store{client: client, bucket: bucket, partSize: partSize}
}

func (s *Store) Bucket() string { return s.bucket }

// Size returns the size of an object, ErrNotFound when it does not exist.
func (s *Store) Size(ctx context.Context, key string) (int64, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("head object %s: %w", key, err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Size(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Copy copies src to dst inside the bucket. progress is called with the
// number of bytes copied after each request.
func (s *Store) Copy(ctx context.Context, src, dst string, progress func(copied, total int64)) error {
	size, err := s.Size(ctx, src)
	if err != nil {
		return err
	}
	if progress == nil {
		progress = func(int64, int64) {}
	}

	source := s.bucket + "/" + url.PathEscape(src)
	if size <= s.partSize {
		_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(s.bucket),
			Key:        aws.String(dst),
			CopySource: aws.String(source),
		})
		if err != nil {
			return fmt.Errorf("copy object %s: %w", src, err)
		}
		progress(size, size)
		return nil
	}

	upload, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(dst),
	})
	if err != nil {
		return fmt.Errorf("create multipart upload %s: %w", dst, err)
	}

	parts, err := s.copyParts(ctx, source, dst, upload.UploadId, size, progress)
	if err != nil {
		_, abortErr := s.client.AbortMultipartUpload(context.WithoutCancel(ctx), &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(s.bucket),
			Key:      aws.String(dst),
			UploadId: upload.UploadId,
		})
		if abortErr != nil {
			slog.Warn("failed to abort multipart copy", "key", dst, "error", abortErr)
		}
		return err
	}

	_, err = s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(dst),
		UploadId:        upload.UploadId,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		return fmt.Errorf("complete multipart copy %s: %w", dst, err)
	}
	return nil
}

func (s *Store) copyParts(ctx context.Context, source, dst string, uploadID *string, size int64, progress func(int64, int64)) ([]types.CompletedPart, error) {
	var parts []types.CompletedPart
	var number int32 = 1
	for start := int64(0); start < size; start += s.partSize {
		end := min(start+s.partSize, size) - 1

		out, err := s.client.UploadPartCopy(ctx, &s3.UploadPartCopyInput{
			Bucket:          aws.String(s.bucket),
			Key:             aws.String(dst),
			UploadId:        uploadID,
			PartNumber:      aws.Int32(number),
			CopySource:      aws.String(source),
			CopySourceRange: aws.String(fmt.Sprintf("bytes=%d-%d", start, end)),
		})
		if err != nil {
			return nil, fmt.Errorf("copy part %d of %s: %w", number, dst, err)
		}

		part := types.CompletedPart{PartNumber: aws.Int32(number)}
		if out.CopyPartResult != nil {
			part.ETag = out.CopyPartResult.ETag
		}
		parts = append(parts, part)
		progress(end+1, size)
		number++
	}
	return parts, nil
}

// List returns the keys under prefix relative to it.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			names = append(names, strings.TrimPrefix(aws.ToString(obj.Key), prefix))
		}
	}
	return names, nil
}

// DeletePrefix deletes every object under prefix.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) error {
	if prefix == "" || prefix == "/" {
		return errors.New("blobstore: refusing to delete the whole bucket")
	}
	names, err := s.List(ctx, prefix)
	if err != nil {
		return err
	}

	for len(names) > 0 {
		batch := names[:min(len(names), maxDeleteBatch)]
		names = names[len(batch):]

		ids := make([]types.ObjectIdentifier, 0, len(batch))
		for _, n := range batch {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(prefix + n)})
		}
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("delete objects under %s: %w", prefix, err)
		}
		if len(out.Errors) > 0 {
			return fmt.Errorf("delete objects under %s: %d objects failed, first: %s",
				prefix, len(out.Errors), aws.ToString(out.Errors[0].Message))
		}
	}
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
