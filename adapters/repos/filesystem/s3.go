//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package filesystem

import (
	"context"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	enterrors "github.com/weaviate/mergecommit/entities/errors"
	"github.com/weaviate/mergecommit/usecases/monitoring"
)

const (
	AWS_ROLE_ARN                = "AWS_ROLE_ARN"
	AWS_WEB_IDENTITY_TOKEN_FILE = "AWS_WEB_IDENTITY_TOKEN_FILE"
	AWS_REGION                  = "AWS_REGION"
	AWS_DEFAULT_REGION          = "AWS_DEFAULT_REGION"

	DEFAULT_ENDPOINT  = "s3.amazonaws.com"
	DEFAULT_TIMEOUT   = 30 * time.Second
	s3ErrNoSuchKey    = "NoSuchKey"
	s3ContentTypeData = "application/octet-stream"
)

type S3Config struct {
	Endpoint string
	Bucket   string
	UseSSL   bool
	// Timeout bounds every single metadata operation. Uploads are not
	// bounded.
	Timeout time.Duration
}

func (c S3Config) endpoint() string {
	if len(c.Endpoint) > 0 {
		return c.Endpoint
	}
	return DEFAULT_ENDPOINT
}

func (c S3Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DEFAULT_TIMEOUT
}

// S3 is a FileSystem on an S3 compatible object store. Paths map to object
// keys below the bucket root. Object stores cannot rename: Rename is a
// server-side copy followed by removal of the source, so it replaces dst
// atomically but briefly leaves both objects visible.
type S3 struct {
	client  *minio.Client
	config  S3Config
	logger  logrus.FieldLogger
	metrics *monitoring.Metrics
}

var _ FileSystem = (*S3)(nil)

func NewS3(config S3Config, logger logrus.FieldLogger, metrics *monitoring.Metrics) (*S3, error) {
	region := os.Getenv(AWS_REGION)
	if len(region) == 0 {
		region = os.Getenv(AWS_DEFAULT_REGION)
	}
	creds := credentials.NewEnvAWS()
	if len(os.Getenv(AWS_WEB_IDENTITY_TOKEN_FILE)) > 0 && len(os.Getenv(AWS_ROLE_ARN)) > 0 {
		creds = credentials.NewIAM("")
	}
	client, err := minio.New(config.endpoint(), &minio.Options{
		Creds:  creds,
		Region: region,
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, enterrors.NewErrIO("connect", config.endpoint(), err)
	}

	return &S3{
		client:  client,
		config:  config,
		logger:  logger.WithField("action", "s3_filesystem").WithField("bucket", config.Bucket),
		metrics: metrics,
	}, nil
}

var errUploadAborted = errors.New("upload aborted")

func objectKey(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

func isS3NotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == s3ErrNoSuchKey || resp.StatusCode == http.StatusNotFound
}

func classifyS3(op Operation, p string, err error) error {
	if isS3NotFound(err) {
		return enterrors.NewErrNotFound(p, err)
	}
	return enterrors.NewErrIO(string(op), p, err)
}

func (s *S3) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.config.timeout())
}

func (s *S3) Exists(p string) (bool, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.client.StatObject(ctx, s.config.Bucket, objectKey(p), minio.StatObjectOptions{})
	if err != nil && isS3NotFound(err) {
		s.metrics.FileOp(string(OpExists), nil)
		return false, nil
	}
	s.metrics.FileOp(string(OpExists), err)
	if err != nil {
		return false, enterrors.NewErrIO(string(OpExists), p, err)
	}
	return true, nil
}

func (s *S3) Delete(p string, recursive bool) (err error) {
	defer func() { s.metrics.FileOp(string(OpDelete), err) }()

	ctx, cancel := s.ctx()
	defer cancel()

	if recursive {
		return s.deletePrefix(ctx, p)
	}

	key := objectKey(p)
	// removing a missing key succeeds on S3, probe first to keep the
	// NotFound contract
	if _, err := s.client.StatObject(ctx, s.config.Bucket, key, minio.StatObjectOptions{}); err != nil {
		return classifyS3(OpDelete, p, err)
	}
	if err := s.client.RemoveObject(ctx, s.config.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return classifyS3(OpDelete, p, err)
	}
	return nil
}

func (s *S3) deletePrefix(ctx context.Context, p string) error {
	prefix := objectKey(p)
	found := false
	for obj := range s.client.ListObjects(ctx, s.config.Bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return classifyS3(OpDelete, p, obj.Err)
		}
		if obj.Key != prefix && !strings.HasPrefix(obj.Key, prefix+"/") {
			continue
		}
		if err := s.client.RemoveObject(ctx, s.config.Bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return classifyS3(OpDelete, obj.Key, err)
		}
		found = true
	}
	if !found {
		return enterrors.NewErrNotFound(p, nil)
	}
	return nil
}

func (s *S3) Rename(src, dst string) (err error) {
	defer func() { s.metrics.FileOp(string(OpRename), err) }()

	ctx, cancel := s.ctx()
	defer cancel()

	_, err = s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.config.Bucket, Object: objectKey(dst)},
		minio.CopySrcOptions{Bucket: s.config.Bucket, Object: objectKey(src)})
	if err != nil {
		return classifyS3(OpRename, src, err)
	}

	if err := s.client.RemoveObject(ctx, s.config.Bucket, objectKey(src), minio.RemoveObjectOptions{}); err != nil {
		s.logger.WithField("src", src).WithField("dst", dst).WithError(err).
			Warn("renamed object was copied but its source could not be removed")
		return enterrors.NewErrIO(string(OpRename), src, err)
	}
	return nil
}

// Create streams the written bytes into a single PutObject call. The object
// becomes visible when the writer is closed; an empty placeholder is put
// first so the path exists while the round is in progress.
func (s *S3) Create(p string) (io.WriteCloser, error) {
	key := objectKey(p)
	ctx, cancel := s.ctx()
	_, err := s.client.PutObject(ctx, s.config.Bucket, key, strings.NewReader(""), 0,
		minio.PutObjectOptions{ContentType: s3ContentTypeData})
	cancel()
	s.metrics.FileOp(string(OpCreate), err)
	if err != nil {
		return nil, classifyS3(OpCreate, p, err)
	}

	return startUpload(p, func(r io.Reader) (int64, error) {
		info, err := s.client.PutObject(context.Background(), s.config.Bucket, key, r, -1,
			minio.PutObjectOptions{ContentType: s3ContentTypeData})
		return info.Size, err
	}, s.logger, s.metrics), nil
}

// startUpload runs upload in the background, fed by the returned writer.
// The upload result is handed to Close even if upload panics.
func startUpload(p string, upload func(io.Reader) (int64, error),
	logger logrus.FieldLogger, metrics *monitoring.Metrics,
) *s3Writer {
	pr, pw := io.Pipe()
	w := &s3Writer{pw: pw, done: make(chan error, 1), path: p}
	enterrors.GoWrapper(func() {
		err := errUploadAborted
		defer func() {
			pr.CloseWithError(err)
			w.done <- err
		}()

		var size int64
		size, err = upload(pr)
		if err == nil {
			metrics.BytesWritten(size)
		}
	}, logger)
	return w
}

type s3Writer struct {
	pw     *io.PipeWriter
	done   chan error
	path   string
	closed bool
	err    error
}

func (w *s3Writer) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *s3Writer) Close() error {
	if w.closed {
		return w.err
	}
	w.closed = true

	w.pw.Close()
	if err := <-w.done; err != nil {
		w.err = classifyS3(OpCreate, w.path, err)
	}
	return w.err
}

func (s *S3) Open(p string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(context.Background(), s.config.Bucket, objectKey(p), minio.GetObjectOptions{})
	if err == nil {
		// GetObject is lazy, a missing key only surfaces on first access
		_, err = obj.Stat()
	}
	s.metrics.FileOp(string(OpOpen), err)
	if err != nil {
		if obj != nil {
			obj.Close()
		}
		return nil, classifyS3(OpOpen, p, err)
	}
	return obj, nil
}
