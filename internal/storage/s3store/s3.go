package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/nkoval/pgkeep/internal/storage/prunable"
)

var errUploadAborted = errors.New("upload aborted")

type Storage struct {
	name   string
	bucket string
	prefix string
	client *s3.Client
}

type Options struct {
	Name      string
	Bucket    string
	Region    string
	Prefix    string
	AccessKey string
	SecretKey string
}

func New(ctx context.Context, opt Options) (*Storage, error) {
	if opt.Bucket == "" || opt.Region == "" {
		return nil, fmt.Errorf("s3: bucket and region are required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opt.Region),
	}
	if opt.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opt.AccessKey, opt.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Storage{
		name:   opt.Name,
		bucket: opt.Bucket,
		prefix: strings.Trim(opt.Prefix, "/"),
		client: s3.NewFromConfig(cfg),
	}, nil
}

func (s *Storage) Name() string { return s.name }

func (s *Storage) fullKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

// OpenWriter streams the artifact to S3 through a pipe so the dump is never
// buffered whole in memory. Close blocks until PutObject finishes and
// returns its error, which keeps the atomic-on-success contract: S3 objects
// only become visible once the upload completes.
func (s *Storage) OpenWriter(ctx context.Context, key string) (io.WriteCloser, string, error) {
	pr, pw := io.Pipe()

	fullKey := s.fullKey(key)
	w := &uploadWriter{
		pw:   pw,
		done: make(chan error, 1),
	}

	go func() {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(fullKey),
			Body:   pr,
		})
		_ = pr.CloseWithError(err)

		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			w.done <- fmt.Errorf("s3 put object: %s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
			return
		}
		if err != nil {
			w.done <- fmt.Errorf("s3 put object: %w", err)
			return
		}
		w.done <- nil
	}()

	return w, fmt.Sprintf("s3://%s/%s", s.bucket, fullKey), nil
}

type uploadWriter struct {
	pw     *io.PipeWriter
	done   chan error
	closed bool
}

func (w *uploadWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

// Abort breaks the pipe so PutObject fails and the object never becomes
// visible. Close still drains the upload goroutine.
func (w *uploadWriter) Abort() {
	_ = w.pw.CloseWithError(errUploadAborted)
}

func (w *uploadWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	// Closing the pipe writer signals EOF to the upload.
	_ = w.pw.Close()

	return <-w.done
}

func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
			return false, nil
		}
		return false, fmt.Errorf("s3 head object: %w", err)
	}
	return true, nil
}

func (s *Storage) List(ctx context.Context, prefix string) ([]prunable.ObjectInfo, error) {
	listPrefix := s.fullKey(prefix)

	var out []prunable.ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(listPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if s.prefix != "" {
				key = strings.TrimPrefix(strings.TrimPrefix(key, s.prefix), "/")
			}
			out = append(out, prunable.ObjectInfo{
				Key:     key,
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			})
		}
	}
	return out, nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}
