package objstore

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	jsoniter "github.com/json-iterator/go"

	"github.com/hsds-go/hsds/cmn"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// S3Store implements Client against a real S3-compatible bucket (AWS S3,
// or any gateway speaking the S3 API, per §6's aws_s3_gateway setting).
// A single process-wide pooled connection is shared; at most
// maxTCPConnections requests may be outstanding at once, with backpressure
// applied by blocking the acquirer (§4.2).
type S3Store struct {
	svc    *s3.S3
	bucket string
	pool   chan struct{}
}

// NewS3Store builds an S3Store from the resolved Config (§6).
func NewS3Store(c *cmn.Config) (*S3Store, error) {
	cfg := aws.NewConfig().WithRegion(c.AWSRegion)
	if c.AWSGateway != "" {
		cfg = cfg.WithEndpoint(c.AWSGateway).WithS3ForcePathStyle(true)
	}
	if c.AWSAccessKey != "" {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(c.AWSAccessKey, c.AWSSecretKey, ""))
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, cmn.Wrap(err, "creating S3 session")
	}
	n := c.MaxTCPConnections
	if n <= 0 {
		n = 100
	}
	return &S3Store{
		svc:    s3.New(sess),
		bucket: c.BucketName,
		pool:   make(chan struct{}, n),
	}, nil
}

func (s *S3Store) acquire(ctx context.Context) error {
	select {
	case s.pool <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *S3Store) release() { <-s.pool }

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, string, time.Time, int64, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, "", time.Time{}, 0, NewTransientErr(key, err)
	}
	defer s.release()

	out, err := s.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", time.Time{}, 0, classifyErr(key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", time.Time{}, 0, NewTransientErr(key, err)
	}
	etag, lm := "", time.Time{}
	if out.ETag != nil {
		etag = *out.ETag
	}
	if out.LastModified != nil {
		lm = *out.LastModified
	}
	size := int64(len(data))
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return data, etag, lm, size, nil
}

func (s *S3Store) GetRange(ctx context.Context, key string, off, length int64) ([]byte, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, NewTransientErr(key, err)
	}
	defer s.release()

	rng := aws.String(httpRange(off, length))
	out, err := s.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Range:  rng,
	})
	if err != nil {
		return nil, classifyErr(key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, NewTransientErr(key, err)
	}
	return data, nil
}

func (s *S3Store) GetJSON(ctx context.Context, key string, v interface{}) error {
	data, _, _, _, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return NewFatalErr(key, err)
	}
	return nil
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte) (string, int64, error) {
	if err := s.acquire(ctx); err != nil {
		return "", 0, NewTransientErr(key, err)
	}
	defer s.release()

	out, err := s.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", 0, classifyErr(key, err)
	}
	etag := ""
	if out.ETag != nil {
		etag = *out.ETag
	}
	return etag, int64(len(data)), nil
}

func (s *S3Store) PutJSON(ctx context.Context, key string, v interface{}) (string, int64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", 0, NewFatalErr(key, err)
	}
	return s.Put(ctx, key, data)
}

func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.acquire(ctx); err != nil {
		return false, NewTransientErr(key, err)
	}
	defer s.release()

	_, err := s.svc.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
		return false, nil
	}
	if aerr, ok := err.(awserr.RequestFailure); ok && aerr.StatusCode() == 404 {
		return false, nil
	}
	// any other I/O error never reports NotFound, per §4.2
	return false, NewTransientErr(key, err)
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	if err := s.acquire(ctx); err != nil {
		return NewTransientErr(key, err)
	}
	defer s.release()

	_, err := s.svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return classifyErr(key, err)
	}
	return nil
}

func (s *S3Store) List(ctx context.Context, prefix, delimiter string) ([]Entry, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, NewTransientErr(prefix, err)
	}
	defer s.release()

	var entries []Entry
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}
	if delimiter != "" {
		input.Delimiter = aws.String(delimiter)
	}
	err := s.svc.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			e := Entry{}
			if obj.Key != nil {
				e.Key = *obj.Key
			}
			if obj.ETag != nil {
				e.ETag = *obj.ETag
			}
			if obj.LastModified != nil {
				e.LastModified = *obj.LastModified
			}
			if obj.Size != nil {
				e.Size = *obj.Size
			}
			entries = append(entries, e)
		}
		return true
	})
	if err != nil {
		return nil, classifyErr(prefix, err)
	}
	return entries, nil
}

func classifyErr(key string, err error) error {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return NewNotFoundErr(key)
		}
		if req, ok := err.(awserr.RequestFailure); ok && req.StatusCode() == 404 {
			return NewNotFoundErr(key)
		}
	}
	return NewTransientErr(key, err)
}

func httpRange(off, length int64) string {
	end := off + length - 1
	return "bytes=" + strconv.FormatInt(off, 10) + "-" + strconv.FormatInt(end, 10)
}
