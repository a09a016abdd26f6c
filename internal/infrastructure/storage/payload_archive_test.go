package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/config"
)

type mockObjectAPI struct {
	mock.Mock
}

func (m *mockObjectAPI) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, in)
	return &s3.PutObjectOutput{}, args.Error(0)
}

func (m *mockObjectAPI) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	args := m.Called(ctx, in)
	return &s3.HeadBucketOutput{}, args.Error(0)
}

func (m *mockObjectAPI) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	args := m.Called(ctx, in)
	return &s3.CreateBucketOutput{}, args.Error(0)
}

var fixedNow = func() time.Time { return time.Date(2026, 3, 7, 23, 30, 0, 0, time.FixedZone("X", -5*3600)) }

func TestS3PayloadArchive_Key(t *testing.T) {
	a := newS3PayloadArchive(&mockObjectAPI{}, "bucket", "/webhooks/")

	tests := []struct {
		name    string
		eventID string
		want    string
	}{
		{"plain id", "evt-1", "webhooks/order_api/2026/03/08/evt-1.json"},
		{"slashes flattened", "a/b", "webhooks/order_api/2026/03/08/a_b.json"},
		{"traversal neutralised", "../x", "webhooks/order_api/2026/03/08/__x.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Key(integration.ProviderOrderAPI, tt.eventID, fixedNow()))
		})
	}
}

func TestS3PayloadArchive_Archive(t *testing.T) {
	t.Run("uploads body and returns location", func(t *testing.T) {
		api := &mockObjectAPI{}
		api.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
			body, _ := io.ReadAll(in.Body)
			return aws.ToString(in.Bucket) == "archive" &&
				aws.ToString(in.Key) == "webhooks/proof_api/2026/03/08/evt-9.json" &&
				aws.ToString(in.ContentType) == "application/json" &&
				in.Metadata["event-id"] == "evt-9" &&
				string(body) == `{"id":1}`
		})).Return(nil).Once()

		a := newS3PayloadArchive(api, "archive", "webhooks", WithClock(fixedNow))
		location, err := a.Archive(context.Background(), integration.ProviderProofAPI, "evt-9", []byte(`{"id":1}`))
		require.NoError(t, err)
		assert.Equal(t, "s3://archive/webhooks/proof_api/2026/03/08/evt-9.json", location)
		api.AssertExpectations(t)
	})

	t.Run("upload error is wrapped", func(t *testing.T) {
		api := &mockObjectAPI{}
		api.On("PutObject", mock.Anything, mock.Anything).Return(errors.New("access denied"))

		a := newS3PayloadArchive(api, "archive", "webhooks")
		_, err := a.Archive(context.Background(), integration.ProviderMessaging, "evt-1", nil)
		assert.ErrorContains(t, err, "access denied")
	})

	t.Run("event id required", func(t *testing.T) {
		a := newS3PayloadArchive(&mockObjectAPI{}, "archive", "webhooks")
		_, err := a.Archive(context.Background(), integration.ProviderMessaging, "", nil)
		assert.Error(t, err)
	})
}

func TestS3PayloadArchive_EnsureBucket(t *testing.T) {
	t.Run("existing bucket", func(t *testing.T) {
		api := &mockObjectAPI{}
		api.On("HeadBucket", mock.Anything, mock.Anything).Return(nil)

		require.NoError(t, newS3PayloadArchive(api, "b", "").EnsureBucket(context.Background()))
		api.AssertNotCalled(t, "CreateBucket", mock.Anything, mock.Anything)
	})

	t.Run("missing bucket is created", func(t *testing.T) {
		api := &mockObjectAPI{}
		api.On("HeadBucket", mock.Anything, mock.Anything).Return(&types.NotFound{})
		api.On("CreateBucket", mock.Anything, mock.Anything).Return(nil).Once()

		require.NoError(t, newS3PayloadArchive(api, "b", "").EnsureBucket(context.Background()))
		api.AssertExpectations(t)
	})

	t.Run("create race is tolerated", func(t *testing.T) {
		api := &mockObjectAPI{}
		api.On("HeadBucket", mock.Anything, mock.Anything).Return(&types.NoSuchBucket{})
		api.On("CreateBucket", mock.Anything, mock.Anything).Return(&types.BucketAlreadyOwnedByYou{})

		assert.NoError(t, newS3PayloadArchive(api, "b", "").EnsureBucket(context.Background()))
	})

	t.Run("other head errors surface", func(t *testing.T) {
		api := &mockObjectAPI{}
		api.On("HeadBucket", mock.Anything, mock.Anything).Return(errors.New("forbidden"))

		assert.ErrorContains(t, newS3PayloadArchive(api, "b", "").EnsureBucket(context.Background()), "forbidden")
	})
}

func TestNewS3PayloadArchive(t *testing.T) {
	_, err := NewS3PayloadArchive(context.Background(), config.ArchiveConfig{})
	assert.ErrorContains(t, err, "bucket is required")

	assert.Equal(t, "https://minio:9000", normalizeEndpoint("minio:9000"))
	assert.Equal(t, "http://minio:9000", normalizeEndpoint("http://minio:9000"))
}

func TestNewS3PayloadArchive_PutsToEndpoint(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
		body  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a, err := NewS3PayloadArchive(context.Background(), config.ArchiveConfig{
		Bucket:          "archive",
		Endpoint:        srv.URL,
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Prefix:          "webhooks",
		UsePathStyle:    true,
	}, WithClock(fixedNow))
	require.NoError(t, err)

	location, err := a.Archive(context.Background(), integration.ProviderOrderAPI, "evt-1", []byte(`{"ok":true}`))
	require.NoError(t, err)
	assert.Equal(t, "s3://archive/webhooks/order_api/2026/03/08/evt-1.json", location)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, paths, 1)
	assert.Equal(t, "PUT /archive/webhooks/order_api/2026/03/08/evt-1.json", paths[0])
	assert.True(t, strings.Contains(body, `{"ok":true}`))
}

func TestNoopArchive(t *testing.T) {
	location, err := NoopArchive{}.Archive(context.Background(), integration.ProviderOrderAPI, "evt", []byte("x"))
	assert.NoError(t, err)
	assert.Empty(t, location)
}
