// Package objectstore hands out signed URLs so resource files never transit the API.
package objectstore

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/socportal/jumuiya/core"
	"github.com/socportal/jumuiya/core/resource"
)

type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
	expiry time.Duration
}

var _ resource.ObjectStore = (*GCSStore)(nil)

func NewGCSStore(ctx context.Context, conf core.StorageConfig) (*GCSStore, error) {
	if conf.Bucket == "" {
		return nil, errors.New("gcs: bucket not set")
	}
	var opts []option.ClientOption
	if conf.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(conf.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating storage client")
	}
	return &GCSStore{
		client: client,
		bucket: client.Bucket(conf.Bucket),
		expiry: conf.SignedURLExpiry,
	}, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) SignedUploadURL(_ context.Context, key, contentType string) (string, error) {
	u, err := s.bucket.SignedURL(key, &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      http.MethodPut,
		ContentType: contentType,
		Expires:     time.Now().Add(s.expiry),
	})
	return u, errors.Wrap(err, "signing upload url")
}

func (s *GCSStore) SignedDownloadURL(_ context.Context, key, fileName string) (string, error) {
	q := url.Values{}
	q.Set("response-content-disposition", `attachment; filename="`+fileName+`"`)
	u, err := s.bucket.SignedURL(key, &storage.SignedURLOptions{
		Scheme:          storage.SigningSchemeV4,
		Method:          http.MethodGet,
		QueryParameters: q,
		Expires:         time.Now().Add(s.expiry),
	})
	return u, errors.Wrap(err, "signing download url")
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	err := s.bucket.Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return errors.Wrap(err, "deleting object")
}
