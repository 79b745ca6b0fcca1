// Package storage abstrait le stockage objet (ordonnances, images, avatars).
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

var ErrObjectNotFound = errors.New("objet introuvable")

type Object struct {
	Bucket      string
	Key         string
	Size        int64
	ContentType string
}

type Store interface {
	Upload(ctx context.Context, obj Object, r io.Reader) error
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, Object, error)
	Remove(ctx context.Context, bucket, key string) error
	SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	PublicURL(bucket, key string) string
}

// CleanKey normalise une clé d'objet: pas de slash initial, pas de "..".
func CleanKey(parts ...string) string {
	joined := path.Clean("/" + path.Join(parts...))
	return strings.TrimPrefix(joined, "/")
}

// Ext renvoie l'extension associée à un type MIME accepté, "" sinon.
func Ext(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "application/pdf":
		return ".pdf"
	}
	return ""
}
