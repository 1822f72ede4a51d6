package importer

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/teamsync/internal/common"
)

type fakeS3 struct {
	body      string
	getErr    error
	gotKey    string
	putKey    string
	presigned string
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.gotKey = aws.ToString(in.Key)
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func (f *fakeS3) PresignPutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.putKey = aws.ToString(in.Key)
	return &v4.PresignedHTTPRequest{URL: f.presigned + f.putKey, Method: "PUT"}, nil
}

func TestPresignUpload(t *testing.T) {
	fake := &fakeS3{presigned: "https://s3.local/bucket/"}
	imp := newImporter(Config{Bucket: "bucket", UploadTTL: time.Minute}, fake, fake)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	imp.now = func() time.Time { return fixed }

	up, err := imp.PresignUpload(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, up.ImportID)
	assert.Equal(t, ObjectKey(up.ImportID), fake.putKey)
	assert.Equal(t, "https://s3.local/bucket/"+fake.putKey, up.URL)
	assert.Equal(t, fixed.Add(time.Minute), up.Expires)
}

func TestFetch(t *testing.T) {
	fake := &fakeS3{body: "client,amount,date\nAcme,1200,2024-02-10\nGlobex,,\n"}
	imp := newImporter(Config{Bucket: "bucket"}, fake, fake)

	id := "6f1c1f6e-4c55-4f59-9b8e-1f1d8f1c2a10"
	rows, err := imp.Fetch(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, ObjectKey(id), fake.gotKey)
	require.Len(t, rows, 2)
	assert.Equal(t, map[string]any{"client": "Acme", "amount": 1200.0}, rows[0].Fields)
	assert.Equal(t, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), rows[0].Date)
	assert.Equal(t, map[string]any{"client": "Globex"}, rows[1].Fields)
}

func TestFetch_Errors(t *testing.T) {
	fake := &fakeS3{getErr: errors.New("no such key")}
	imp := newImporter(Config{Bucket: "bucket"}, fake, fake)

	_, err := imp.Fetch(context.Background(), "../../etc/passwd")
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = imp.Fetch(context.Background(), "6f1c1f6e-4c55-4f59-9b8e-1f1d8f1c2a10")
	assert.ErrorContains(t, err, "no such key")
}

func TestParseCSV(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		in      string
		rows    int
		wantErr bool
	}{
		{name: "empty", in: "", wantErr: true},
		{name: "header only", in: "client\n", rows: 0},
		{name: "blank header", in: "client,\nA,B\n", wantErr: true},
		{name: "bad date", in: "date\nyesterday\n", wantErr: true},
		{name: "ragged", in: "a,b\n1\n", wantErr: true},
		{name: "dotted date", in: "Date,a\n01.02.2024,x\n", rows: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := ParseCSV(strings.NewReader(tt.in), now)
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Len(t, rows, tt.rows)
		})
	}
}

func TestNew_ConfigError(t *testing.T) {
	orig := loadAWSConfig
	t.Cleanup(func() { loadAWSConfig = orig })
	loadAWSConfig = func(ctx context.Context, optFns ...func(*config.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("boom")
	}

	_, err := New(context.Background(), Config{Region: "us-east-1"})
	assert.ErrorContains(t, err, "boom")
}

func TestNew_BuildsClients(t *testing.T) {
	imp, err := New(context.Background(), Config{
		User: "u", Password: "p", Bucket: "b", Region: "us-east-1", BaseEndpoint: "http://127.0.0.1:9000",
	})
	require.NoError(t, err)

	up, err := imp.PresignUpload(context.Background())
	require.NoError(t, err)
	assert.Contains(t, up.URL, "http://127.0.0.1:9000/b/imports/")
}
