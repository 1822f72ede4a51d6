// Package importer moves CSV uploads from object storage into sales rows.
// Clients upload through a presigned PUT URL and then ask the server to
// import the object by its import id.
package importer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/models"
)

// Config addresses the bucket imports are uploaded to.
type Config struct {
	User         string
	Password     string
	Bucket       string
	Region       string
	BaseEndpoint string
	UploadTTL    time.Duration
}

type objectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type putPresigner interface {
	PresignPutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Importer presigns uploads and reads uploaded CSV objects.
type Importer struct {
	cfg       Config
	objects   objectGetter
	presigner putPresigner
	now       func() time.Time
}

// loadAWSConfig is a seam for tests.
var loadAWSConfig = config.LoadDefaultConfig

// New builds an Importer backed by an S3-compatible endpoint.
func New(ctx context.Context, cfg Config) (*Importer, error) {
	awsCfg, err := loadAWSConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.User, cfg.Password, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
			o.UsePathStyle = true
		}
	})
	return newImporter(cfg, client, s3.NewPresignClient(client)), nil
}

func newImporter(cfg Config, objects objectGetter, presigner putPresigner) *Importer {
	if cfg.UploadTTL <= 0 {
		cfg.UploadTTL = 15 * time.Minute
	}
	return &Importer{cfg: cfg, objects: objects, presigner: presigner, now: time.Now}
}

// ObjectKey is where the upload of importID lives.
func ObjectKey(importID string) string {
	return "imports/" + importID + ".csv"
}

// PresignUpload returns a fresh import id and the URL to PUT the CSV to.
func (i *Importer) PresignUpload(ctx context.Context) (models.ImportUpload, error) {
	id := uuid.NewString()
	req, err := i.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(i.cfg.Bucket),
		Key:         aws.String(ObjectKey(id)),
		ContentType: aws.String("text/csv"),
	}, s3.WithPresignExpires(i.cfg.UploadTTL))
	if err != nil {
		return models.ImportUpload{}, fmt.Errorf("presign upload: %w", err)
	}
	return models.ImportUpload{
		ImportID: id,
		URL:      req.URL,
		Expires:  i.now().Add(i.cfg.UploadTTL).UTC(),
	}, nil
}

// Fetch downloads and parses the upload of importID.
func (i *Importer) Fetch(ctx context.Context, importID string) ([]models.Row, error) {
	if _, err := uuid.Parse(importID); err != nil {
		return nil, fmt.Errorf("%w: bad import id", common.ErrValidation)
	}

	out, err := i.objects.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(i.cfg.Bucket),
		Key:    aws.String(ObjectKey(importID)),
	})
	if err != nil {
		return nil, fmt.Errorf("get import object: %w", err)
	}
	defer out.Body.Close()

	return ParseCSV(io.LimitReader(out.Body, maxUploadBytes), i.now().UTC())
}
