package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Run with: GO_TEST_INTEGRATION=1 go test ./internal/storage -run Integration -v

const (
	minioUser     = "root"
	minioPassword = "rootpass"
	minioBucket   = "companions"
)

func startMinio(t *testing.T) (endpoint string) {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image: "docker.io/minio/minio:latest",
		Env: map[string]string{
			"MINIO_ROOT_USER":     minioUser,
			"MINIO_ROOT_PASSWORD": minioPassword,
		},
		Cmd:          []string{"server", "/data"},
		ExposedPorts: []string{"9000/tcp"},
		WaitingFor:   wait.ForListeningPort("9000/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "9000/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("http://%s:%s", host, port.Port())
}

func makeBucket(t *testing.T, endpoint string) {
	t.Helper()
	admin, err := minio.New(endpoint[len("http://"):], &minio.Options{
		Creds: credentials.NewStaticV4(minioUser, minioPassword, ""),
	})
	require.NoError(t, err)
	require.NoError(t, admin.MakeBucket(context.Background(), minioBucket, minio.MakeBucketOptions{Region: "us-east-1"}))
}

func TestIntegration_MinioBucketMustExist(t *testing.T) {
	endpoint := startMinio(t)
	_, err := NewMinioStore(context.Background(), MinioOptions{
		Endpoint: endpoint, AccessKey: minioUser, SecretKey: minioPassword, Bucket: minioBucket,
	})
	require.Error(t, err)
}

func TestIntegration_MinioPutGetDelete(t *testing.T) {
	endpoint := startMinio(t)
	makeBucket(t, endpoint)
	ctx := context.Background()

	store, err := NewMinioStore(ctx, MinioOptions{
		Endpoint: endpoint, AccessKey: minioUser, SecretKey: minioPassword,
		Bucket: minioBucket, PublicBaseURL: "http://cdn.local/",
	})
	require.NoError(t, err)

	body := bytes.Repeat([]byte{0x42}, 64)
	url, err := store.Put(ctx, "companions/u1/c1/face.jpg", bytes.NewReader(body), int64(len(body)), "image/jpeg")
	require.NoError(t, err)
	require.Equal(t, "http://cdn.local/companions/u1/c1/face.jpg", url)

	got, err := store.Get(ctx, "companions/u1/c1/face.jpg")
	require.NoError(t, err)
	require.Equal(t, body, got)

	require.NoError(t, store.Delete(ctx, "companions/u1/c1/face.jpg"))
	_, err = store.Get(ctx, "companions/u1/c1/face.jpg")
	require.Error(t, err)
}

func TestIntegration_MinioDefaultPublicURL(t *testing.T) {
	endpoint := startMinio(t)
	makeBucket(t, endpoint)

	store, err := NewMinioStore(context.Background(), MinioOptions{
		Endpoint: endpoint, AccessKey: minioUser, SecretKey: minioPassword, Bucket: minioBucket,
	})
	require.NoError(t, err)

	url, err := store.Put(context.Background(), "k.jpg", bytes.NewReader([]byte("x")), 1, "")
	require.NoError(t, err)
	require.Equal(t, endpoint+"/"+minioBucket+"/k.jpg", url)

	// Buckets are private by default; the object exists but is not public.
	resp, err := http.Get(url)
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}
