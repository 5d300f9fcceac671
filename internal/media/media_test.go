package media

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	assert.Equal(t, "stories/u1-1700000000123.mp4", ObjectKey("stories", "u1", "Clip.MP4", now))
	assert.Equal(t, "posts/u1-1700000000123.bin", ObjectKey("/posts/", "u1", "noext", now))
	assert.Equal(t, "u1-1700000000123.jpg", ObjectKey("", "u1", "a.b.jpg", now))
}

func TestCleanKey(t *testing.T) {
	for _, bad := range []string{"", "../x", "a/../../x", "a/./b"} {
		_, err := cleanKey(bad)
		assert.ErrorIs(t, err, ErrInvalidKey, bad)
	}
	k, err := cleanKey("stories/a.png")
	require.NoError(t, err)
	assert.Equal(t, "stories/a.png", k)
}

func TestLocalStore_Put(t *testing.T) {
	dir := t.TempDir()
	st, err := NewLocalStore(filepath.Join(dir, "media"), "http://localhost:8080/media/")
	require.NoError(t, err)

	url, err := st.Put(context.Background(), "posts/u1-1.jpg", "image/jpeg", strings.NewReader("0123456789"), 4)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/media/posts/u1-1.jpg", url)

	b, err := os.ReadFile(filepath.Join(dir, "media", "posts", "u1-1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "0123", string(b))

	_, err = st.Put(context.Background(), "../escape", "image/jpeg", strings.NewReader("x"), 1)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

type fakeS3 struct {
	in  *s3.PutObjectInput
	err error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	if in.Body != nil {
		_, _ = io.Copy(io.Discard, in.Body)
	}
	return &s3.PutObjectOutput{}, f.err
}

func TestS3Store_Put(t *testing.T) {
	fake := &fakeS3{}
	st := newS3Store(fake, S3Options{Bucket: "bkt", Region: "eu-west-1"})

	url, err := st.Put(context.Background(), "stories/u-1.mp4", "video/mp4", strings.NewReader("abc"), 3)
	require.NoError(t, err)
	assert.Equal(t, "https://bkt.s3.eu-west-1.amazonaws.com/stories/u-1.mp4", url)
	assert.Equal(t, "bkt", aws.ToString(fake.in.Bucket))
	assert.Equal(t, "video/mp4", aws.ToString(fake.in.ContentType))
	assert.Equal(t, int64(3), aws.ToInt64(fake.in.ContentLength))

	cdn := newS3Store(fake, S3Options{Bucket: "bkt", PublicBaseURL: "https://cdn.example.com"})
	url, err = cdn.Put(context.Background(), "a.png", "image/png", strings.NewReader("x"), 0)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.png", url)

	fake.err = errors.New("denied")
	_, err = st.Put(context.Background(), "a.png", "image/png", strings.NewReader("x"), 1)
	assert.ErrorContains(t, err, "denied")
}
