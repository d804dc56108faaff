// Package objectstore is the thin client wrapper around the object
// storage backend (minio-go) that the Model layer builds payload
// storage and table access on top of.
//
// Operations: Put/Get of arbitrary byte payloads keyed by (bucket,
// object), plus BucketExists/List used only by Model.ToTable() to
// discover the metadata/ prefix.
//
// Called by: public/model (payload PUT/GET, ToTable discovery)
// Calls: github.com/minio/minio-go/v7
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Options configures a Client, derived from a Model's normalized
// storage_options (see public/model.Model).
type Options struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	// Secure selects HTTPS. Callers derive this from AWS_ALLOW_HTTP:
	// Secure = !AllowHTTP.
	Secure bool
}

// Client wraps a minio-go client with the narrow PUT/GET/list surface
// the Model layer needs. Safe for concurrent use; minio.Client itself
// is concurrency-safe.
type Client struct {
	minio *minio.Client
}

// New constructs a Client against the given endpoint and credentials.
func New(opts Options) (*Client, error) {
	mc, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.Secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: construct client for %s: %w", opts.Endpoint, err)
	}
	return &Client{minio: mc}, nil
}

// Put uploads data to bucket/object and returns the canonical stored
// object name (minio never renames on PUT, so this echoes object back,
// mirroring the put(bucket, object, bytes) -> {object_name} contract).
func (c *Client) Put(ctx context.Context, bucket, object string, data []byte) (string, error) {
	_, err := c.minio.PutObject(ctx, bucket, object, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return "", fmt.Errorf("objectstore: put %s/%s: %w", bucket, object, err)
	}
	return object, nil
}

// Get downloads the full contents of bucket/object.
func (c *Client) Get(ctx context.Context, bucket, object string) ([]byte, error) {
	obj, err := c.minio.GetObject(ctx, bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("objectstore: get %s/%s: %w", bucket, object, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("objectstore: read %s/%s: %w", bucket, object, err)
	}
	return data, nil
}

// BucketExists reports whether bucket exists.
func (c *Client) BucketExists(ctx context.Context, bucket string) (bool, error) {
	ok, err := c.minio.BucketExists(ctx, bucket)
	if err != nil {
		return false, fmt.Errorf("objectstore: bucket exists %s: %w", bucket, err)
	}
	return ok, nil
}

// List returns every object key under prefix in bucket, recursively.
func (c *Client) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	for info := range c.minio.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, fmt.Errorf("objectstore: list %s/%s: %w", bucket, prefix, info.Err)
		}
		keys = append(keys, info.Key)
	}
	return keys, nil
}

// IsNotFound reports whether err represents a missing bucket or object,
// the classification Model.ToTable() needs to surface TableNotFound.
func IsNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchBucket" || resp.Code == "NoSuchKey"
}
