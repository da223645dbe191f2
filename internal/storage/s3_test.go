//go:build integration

package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragdesk/ragdesk/internal/testutil"
)

func newTestClient(ctx context.Context, t *testing.T) (*S3Client, func()) {
	t.Helper()

	mc := testutil.NewMinIOContainer(ctx, t)

	client, err := NewS3Client(ctx, S3ClientConfig{
		Endpoint:        mc.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     mc.AccessKey,
		SecretAccessKey: mc.SecretKey,
		Bucket:          "ragdesk-ingest",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	require.NoError(t, client.EnsureBucket(ctx))

	return client, func() { mc.Terminate(ctx) }
}

func TestS3Client_PutFetchDelete(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newTestClient(ctx, t)
	defer cleanup()

	key := "ingest/hr/handbook.txt"
	content := "Vacation policy: employees accrue 25 days per year."

	require.NoError(t, client.PutDocument(ctx, key, content))

	got, err := client.FetchDocument(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	require.NoError(t, client.DeleteObject(ctx, key))

	_, err = client.FetchDocument(ctx, key)
	assert.Error(t, err)
}

func TestS3Client_EnsureBucketIsIdempotent(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newTestClient(ctx, t)
	defer cleanup()

	assert.NoError(t, client.EnsureBucket(ctx))
}
