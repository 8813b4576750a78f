//go:build integration

// Integration tests for the networked cache backends. They start MinIO and
// Postgres containers and only build with:
//
//	go test -tags=integration ./src/arbiter/storage/...
package storage

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testBucket = "arbiter-cache"

// startMinio runs a MinIO server with an empty bucket and returns an S3
// store on it.
func startMinio(t *testing.T, prefix string) *S3Storage {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()

	ctr, err := tcminio.Run(ctx, "minio/minio:RELEASE.2024-01-16T16-07-38Z")
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	endpoint, err := ctr.ConnectionString(ctx)
	require.NoError(t, err)

	admin, err := minio.New(endpoint, &minio.Options{
		Creds: miniocreds.NewStaticV4(ctr.Username, ctr.Password, ""),
	})
	require.NoError(t, err)
	require.NoError(t, admin.MakeBucket(ctx, testBucket, minio.MakeBucketOptions{}))

	s, err := NewS3(S3Config{
		Endpoint:  endpoint,
		Bucket:    testBucket,
		Prefix:    prefix,
		AccessKey: ctr.Username,
		SecretKey: ctr.Password,
	})
	require.NoError(t, err)
	return s
}

func TestS3Storage(t *testing.T) {
	s := startMinio(t, "arbiter/")
	exerciseStorage(t, s)

	// Keys live under the prefix.
	obj, err := s.client.StatObject(context.Background(), testBucket, "arbiter/public_recipes.json", minio.StatObjectOptions{})
	require.NoError(t, err)
	assert.Equal(t, "application/json", obj.ContentType)
}

func TestS3StorageMissingKey(t *testing.T) {
	s := startMinio(t, "")
	ctx := context.Background()

	_, err := s.Get(ctx, "content/dist_recipes.json")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "content/dist_recipes.json", strings.NewReader(`{}`), "application/json"))
	rc, err := s.Get(ctx, "content/dist_recipes.json")
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(b))

	// Other namespaces stay misses.
	_, err = s.Get(ctx, "metadata/dist_recipes.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStorage(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("arbiter"),
		tcpostgres.WithUsername("arbiter"),
		tcpostgres.WithPassword("arbiter"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := NewPostgres(url)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx))
	exerciseStorage(t, s)
}
