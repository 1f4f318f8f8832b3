package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sequence-downloader/setupusb/pkg/security"
)

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	for key := range f.objects {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
		}
	}
	return out, nil
}

func sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func TestDownload(t *testing.T) {
	exe := []byte("MZ downloader build")
	api := &fakeS3{objects: map[string][]byte{"payload/SequenceDownloaderUSB.exe": exe}}
	fs := afero.NewMemMapFs()
	c := NewClientWithAPI(api, "bucket", fs)

	res, err := c.Download(context.Background(), "payload/SequenceDownloaderUSB.exe",
		"assets/SequenceDownloaderUSB.exe", sum(exe), security.NewValidator(1024, 4096))
	require.NoError(t, err)
	assert.Equal(t, int64(len(exe)), res.Size)
	assert.Equal(t, sum(exe), res.SHA256)

	got, err := afero.ReadFile(fs, "assets/SequenceDownloaderUSB.exe")
	require.NoError(t, err)
	assert.Equal(t, exe, got)

	exists, _ := afero.Exists(fs, "assets/SequenceDownloaderUSB.exe.part")
	assert.False(t, exists)
}

func TestDownload_ChecksumMismatch(t *testing.T) {
	api := &fakeS3{objects: map[string][]byte{"payload/README.txt": []byte("readme")}}
	fs := afero.NewMemMapFs()
	c := NewClientWithAPI(api, "bucket", fs)

	_, err := c.Download(context.Background(), "payload/README.txt", "assets/README.txt",
		sum([]byte("other")), security.NewValidator(1024, 4096))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	exists, _ := afero.Exists(fs, "assets/README.txt")
	assert.False(t, exists)
}

func TestDownload_TooLarge(t *testing.T) {
	api := &fakeS3{objects: map[string][]byte{"payload/big.bin": bytes.Repeat([]byte{1}, 2048)}}
	fs := afero.NewMemMapFs()
	c := NewClientWithAPI(api, "bucket", fs)

	_, err := c.Download(context.Background(), "payload/big.bin", "assets/big.bin", "", security.NewValidator(1024, 4096))
	require.Error(t, err)

	exists, _ := afero.Exists(fs, "assets/big.bin")
	assert.False(t, exists)
}

func TestDownload_Missing(t *testing.T) {
	c := NewClientWithAPI(&fakeS3{objects: map[string][]byte{}}, "bucket", afero.NewMemMapFs())
	_, err := c.Download(context.Background(), "payload/missing", "assets/missing", "", security.NewValidator(1024, 4096))
	assert.Error(t, err)
}

func TestListAndExists(t *testing.T) {
	api := &fakeS3{objects: map[string][]byte{
		"payload/settings.json": []byte("{}"),
		"payload/README.txt":    []byte("readme"),
		"other/file":            []byte("x"),
	}}
	c := NewClientWithAPI(api, "bucket", afero.NewMemMapFs())

	keys, err := c.ListObjects(context.Background(), "payload/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"payload/settings.json", "payload/README.txt"}, keys)

	ok, err := c.Exists(context.Background(), "payload/README.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Exists(context.Background(), "payload/missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
