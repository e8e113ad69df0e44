package storage

import (
	"context"
	"errors"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const (
	attachmentPrefix  = "attachments"
	defaultPresignTTL = 15 * time.Minute
)

type S3Config struct {
	Region     string
	Bucket     string
	AccessKey  string
	SecretKey  string
	Endpoint   string
	PublicBase string
	PresignTTL time.Duration
}

// Client presigns uploads for message attachments. The chat core never
// proxies file bytes; clients PUT directly and send the resulting file URL.
type Client struct {
	cfg     S3Config
	presign *s3.PresignClient
}

// PresignedUpload is what a client needs to upload one attachment.
type PresignedUpload struct {
	URL       string
	Headers   map[string]string
	Key       string
	FileURL   string
	ExpiresAt time.Time
}

func NewClient(ctx context.Context, cfg S3Config) (*Client, error) {
	if cfg.Region == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 region and bucket are required")
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = defaultPresignTTL
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// S3-compatible stores (minio, localstack) need path-style addressing
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Client{
		cfg:     cfg,
		presign: s3.NewPresignClient(s3Client),
	}, nil
}

// AttachmentKey builds a collision-free object key under the uploader's prefix.
func AttachmentKey(userID, fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
	if name == "" || name == "." || name == "/" {
		name = "file"
	}
	return path.Join(attachmentPrefix, userID, uuid.NewString()+"-"+name)
}

func (c *Client) PresignPut(ctx context.Context, key, contentType string, sizeBytes int64) (PresignedUpload, error) {
	if c == nil {
		return PresignedUpload{}, errors.New("s3 client not initialized")
	}
	if key == "" {
		return PresignedUpload{}, errors.New("object key is required")
	}
	input := &s3.PutObjectInput{
		Bucket:      aws.String(c.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}
	if sizeBytes > 0 {
		input.ContentLength = aws.Int64(sizeBytes)
	}

	presigned, err := c.presign.PresignPutObject(ctx, input, s3.WithPresignExpires(c.cfg.PresignTTL))
	if err != nil {
		return PresignedUpload{}, err
	}

	headers := map[string]string{}
	if contentType != "" {
		headers["Content-Type"] = contentType
	}
	if sizeBytes > 0 {
		headers["Content-Length"] = strconv.FormatInt(sizeBytes, 10)
	}

	return PresignedUpload{
		URL:       presigned.URL,
		Headers:   headers,
		Key:       key,
		FileURL:   c.FileURL(key),
		ExpiresAt: time.Now().Add(c.cfg.PresignTTL),
	}, nil
}

// FileURL is the public address of an uploaded object, or "" when no public
// base is configured.
func (c *Client) FileURL(key string) string {
	if c == nil || key == "" || c.cfg.PublicBase == "" {
		return ""
	}
	return strings.TrimRight(c.cfg.PublicBase, "/") + "/" + key
}
