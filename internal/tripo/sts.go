package tripo

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// STSCredentials are the temporary object-storage credentials Tripo issues for
// one large upload.
type STSCredentials struct {
	Host         string `json:"s3_host"`
	Bucket       string `json:"resource_bucket"`
	Key          string `json:"resource_uri"`
	SessionToken string `json:"session_token"`
	AccessKeyID  string `json:"sts_ak"`
	SecretKey    string `json:"sts_sk"`
}

func (c STSCredentials) complete() bool {
	return c.Bucket != "" && c.Key != "" && c.AccessKeyID != "" && c.SecretKey != ""
}

// ObjectUploader stores an object with temporary credentials.
type ObjectUploader interface {
	PutObject(ctx context.Context, creds STSCredentials, body []byte, contentType string) error
}

// S3Uploader puts objects through the AWS S3 API.
type S3Uploader struct {
	region string
	// endpoint overrides the host Tripo returns, mainly for tests.
	endpoint string
}

func NewS3Uploader(region, endpoint string) *S3Uploader {
	if region == "" {
		region = "us-west-2"
	}
	return &S3Uploader{region: region, endpoint: endpoint}
}

func (u *S3Uploader) PutObject(ctx context.Context, creds STSCredentials, body []byte, contentType string) error {
	endpoint := u.endpoint
	if endpoint == "" {
		endpoint = stsEndpoint(creds.Host, creds.Bucket)
	}

	client := s3.New(s3.Options{
		Region:       u.region,
		Credentials:  credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretKey, creds.SessionToken),
		BaseEndpoint: aws.String(endpoint),
		UsePathStyle: u.endpoint != "",
	})

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(creds.Bucket),
		Key:         aws.String(creds.Key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object to %s/%s: %w", creds.Bucket, creds.Key, err)
	}
	return nil
}

// stsEndpoint turns the returned s3_host into a base endpoint. Tripo may return
// the virtual-hosted name "<bucket>.s3.<region>.amazonaws.com"; the SDK adds
// the bucket itself, so the prefix is stripped.
func stsEndpoint(host, bucket string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return "https://s3.amazonaws.com"
	}
	scheme := "https://"
	if i := strings.Index(host, "://"); i >= 0 {
		scheme = host[:i+3]
		host = host[i+3:]
	}
	host = strings.TrimSuffix(host, "/")
	if bucket != "" {
		host = strings.TrimPrefix(host, bucket+".")
	}
	return scheme + host
}
