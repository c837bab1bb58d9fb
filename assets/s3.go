package assets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// S3Store keeps images in an S3 bucket. Objects are public-read; the bucket
// policy or a CDN in front of publicBaseURL serves them.
type S3Store struct {
	client        s3iface.S3API
	bucket        string
	publicBaseURL string
}

// NewS3Store builds a client from the default AWS credential chain.
func NewS3Store(bucket, region, publicBaseURL string) (*S3Store, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("error creating AWS session: %w", err)
	}
	if publicBaseURL == "" {
		publicBaseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	}
	return NewS3StoreWithClient(s3.New(sess), bucket, publicBaseURL), nil
}

func NewS3StoreWithClient(client s3iface.S3API, bucket, publicBaseURL string) *S3Store {
	return &S3Store{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}
}

func (s *S3Store) PublicURL(key string) string {
	return s.publicBaseURL + "/" + key
}

func (s *S3Store) Upload(ctx context.Context, originalName, contentType string, r io.Reader) (Asset, error) {
	key, err := newKey(originalName)
	if err != nil {
		return Asset{}, err
	}

	// PutObject needs a seekable body
	body, err := io.ReadAll(r)
	if err != nil {
		return Asset{}, fmt.Errorf("read upload: %w", err)
	}

	_, err = s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(body),
		ContentType:  aws.String(contentTypeFor(key, contentType)),
		CacheControl: aws.String("max-age=3600"),
	})
	if err != nil {
		return Asset{}, fmt.Errorf("upload %s: %w", key, err)
	}
	return Asset{Key: key, URL: s.PublicURL(key), Size: int64(len(body))}, nil
}

// List returns images newest first.
func (s *S3Store) List(ctx context.Context) ([]Asset, error) {
	var out []Asset
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(KeyPrefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			if _, err := extension(key); err != nil {
				continue
			}
			out = append(out, Asset{
				Key:          key,
				URL:          s.PublicURL(key),
				Size:         aws.Int64Value(obj.Size),
				LastModified: aws.TimeValue(obj.LastModified),
			})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastModified.After(out[j].LastModified)
	})
	return out, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
