package imagestore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "media/a.png", NormalizeKey("/media/a.png"))
	assert.Equal(t, "a.png", NormalizeKey("../../a.png"))
	assert.Equal(t, "media/b.png", NormalizeKey(`media\b.png`))
	assert.Equal(t, "", NormalizeKey("  "))
}

func TestCourseImageKey(t *testing.T) {
	assert.Equal(t, "media/course/image/abc-card.png", CourseImageKey("abc", "uploads/publisher/card.png"))
	assert.Equal(t, "media/course/image/abc-image", CourseImageKey("abc", ""))
}

func TestLocalCopy(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocal(root, "https://cdn.example.com/")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "publisher/card.png", pngHeader, ""))

	url, err := Copy(ctx, store, "publisher/card.png", "media/course/image/u-card.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/media/course/image/u-card.png", url)

	got, err := os.ReadFile(filepath.Join(root, "media", "course", "image", "u-card.png"))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, got)

	_, err = store.Open(ctx, "missing.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

type fakeBucket struct {
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeBucket) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (f *fakeBucket) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = body
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Copy(t *testing.T) {
	bucket := &fakeBucket{
		objects: map[string][]byte{"publisher/card.png": pngHeader},
		types:   map[string]string{},
	}
	store := newS3(bucket, "catalog", "https://images.example.com")

	url, err := Copy(context.Background(), store, "/publisher/card.png", "media/course/image/u-card.png")
	require.NoError(t, err)
	assert.Equal(t, "https://images.example.com/media/course/image/u-card.png", url)
	assert.Equal(t, pngHeader, bucket.objects["media/course/image/u-card.png"])
	assert.Equal(t, "image/png", bucket.types["media/course/image/u-card.png"])

	_, err = store.Open(context.Background(), "nope.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewS3RequiresBucketAndRegion(t *testing.T) {
	_, err := NewS3(context.Background(), S3Options{Bucket: "b"})
	assert.Error(t, err)
}
