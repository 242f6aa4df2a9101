package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBundleRoundTrip(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "results")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "charts"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "summary.json"), []byte(`{"ok":true}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "charts", "metrics.png"), []byte("png-bytes"), 0o600))

	archive, err := Bundle(dir)
	require.NoError(t, err)
	assert.Equal(t, dir+".tar.gz", archive)

	dest := filepath.Join(root, "extracted")
	require.NoError(t, Unbundle(archive, dest))

	data, err := os.ReadFile(filepath.Join(dest, "summary.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(data))

	data, err = os.ReadFile(filepath.Join(dest, "charts", "metrics.png"))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}

func TestBundleMissingDir(t *testing.T) {
	_, err := Bundle(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

type capturingS3 struct {
	input *s3.PutObjectInput
}

func (c *capturingS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	c.input = in
	return &s3.PutObjectOutput{}, nil
}

func TestUploaderKeysUnderPrefix(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "results.tar.gz")
	require.NoError(t, os.WriteFile(local, []byte("archive"), 0o600))

	fake := &capturingS3{}
	u := NewUploaderWithClient(fake, "loadtest-artifacts", "savesbench/2026", zap.NewNop())

	key, err := u.Upload(context.Background(), local)
	require.NoError(t, err)
	assert.Equal(t, "savesbench/2026/results.tar.gz", key)
	require.NotNil(t, fake.input)
	assert.Equal(t, "loadtest-artifacts", *fake.input.Bucket)
	assert.Equal(t, key, *fake.input.Key)
}
