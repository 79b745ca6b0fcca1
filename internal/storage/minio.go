package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
)

type MinIO struct {
	client *minio.Client
}

func NewMinIO(client *minio.Client) *MinIO {
	return &MinIO{client: client}
}

func (m *MinIO) Upload(ctx context.Context, obj Object, r io.Reader) error {
	_, err := m.client.PutObject(ctx, obj.Bucket, obj.Key, r, obj.Size,
		minio.PutObjectOptions{ContentType: obj.ContentType})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", obj.Bucket, obj.Key, err)
	}
	return nil
}

func (m *MinIO) Open(ctx context.Context, bucket, key string) (io.ReadCloser, Object, error) {
	info, err := m.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, Object{}, ErrObjectNotFound
		}
		return nil, Object{}, err
	}
	rc, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, Object{}, err
	}
	return rc, Object{Bucket: bucket, Key: key, Size: info.Size, ContentType: info.ContentType}, nil
}

func (m *MinIO) Remove(ctx context.Context, bucket, key string) error {
	return m.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
}

func (m *MinIO) SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, bucket, key, ttl, make(url.Values))
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (m *MinIO) PublicURL(bucket, key string) string {
	u := *m.client.EndpointURL()
	u.Path = "/" + bucket + "/" + key
	return u.String()
}
