package services

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/vesperbot/vesper/vesper/errs"
)

const (
	thumbnailRoot  = "thumbnails"
	maxThumbBytes  = 8 << 20
	mirrorTimeout  = 20 * time.Second
	thumbCacheCtrl = "public, max-age=31536000"
)

// SpacesService mirrors upstream channel thumbnails into a
// DigitalOcean Spaces bucket so posts keep working after the upstream
// rotates or deletes the image.
type SpacesService struct {
	client *s3.Client
	http   *http.Client
	bucket string
	region string
}

func NewSpacesService(spacesKey, spacesSecret, region, bucket string) (*SpacesService, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: fmt.Sprintf("https://%s.digitaloceanspaces.com", region),
		}, nil
	})

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithEndpointResolverWithOptions(resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(spacesKey, spacesSecret, "")),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "load spaces config", err)
	}

	return &SpacesService{
		client: s3.NewFromConfig(cfg),
		http:   &http.Client{Timeout: mirrorTimeout},
		bucket: bucket,
		region: region,
	}, nil
}

// Mirror downloads imageURL and re-uploads it under a content-addressed
// key, returning the bucket URL.
func (s *SpacesService) Mirror(ctx context.Context, imageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", errs.Wrap(errs.InvalidArgument, "build thumbnail request", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return "", errs.Wrap(errs.Upstream, "fetch thumbnail", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errs.Newf(errs.Upstream, "fetch thumbnail: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxThumbBytes))
	if err != nil {
		return "", errs.Wrap(errs.Upstream, "read thumbnail", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	sum := sha1.Sum([]byte(imageURL))
	key := fmt.Sprintf("%s/%s%s", thumbnailRoot, hex.EncodeToString(sum[:]), extensionFor(contentType))

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(thumbCacheCtrl),
		ACL:          types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", errs.Wrap(errs.Upstream, "upload thumbnail", err)
	}

	return fmt.Sprintf("https://%s.%s.digitaloceanspaces.com/%s", s.bucket, s.region, key), nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}

func (s *SpacesService) Bucket() string { return s.bucket }
func (s *SpacesService) Region() string { return s.region }
