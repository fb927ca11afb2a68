package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	storagev1 "google.golang.org/api/storage/v1"
)

// GCS stores slide images in a Google Cloud Storage bucket under a key
// prefix.
type GCS struct {
	svc     *storagev1.Service
	bucket  string
	prefix  string
	baseURL string
}

// NewGCS resolves default credentials and builds the storage client. An
// unreachable or unconfigured backend fails here, at construction.
func NewGCS(ctx context.Context, bucket, prefix, baseURL string) (*GCS, error) {
	creds, err := google.FindDefaultCredentials(ctx, storagev1.DevstorageReadWriteScope)
	if err != nil {
		return nil, fmt.Errorf("resolve GCS credentials: %w", err)
	}
	svc, err := storagev1.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}

	if baseURL == "" {
		baseURL = "https://storage.googleapis.com/" + bucket
	}
	return &GCS{
		svc:     svc,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Store uploads the image and returns its public URL and object key.
func (g *GCS) Store(data []byte, key, sessionID string) (Result, error) {
	name := path.Join(g.prefix, sessionID, key)
	obj := &storagev1.Object{Name: name, ContentType: "image/jpeg"}

	_, err := g.svc.Objects.Insert(g.bucket, obj).Media(bytes.NewReader(data)).Do()
	if err != nil {
		return Result{}, fmt.Errorf("upload keyframe to GCS: %w", err)
	}

	return Result{URL: g.baseURL + "/" + name, Key: name}, nil
}
