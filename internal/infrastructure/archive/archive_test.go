// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
)

type memoryObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func (m *memoryObjectStore) PutBytes(ctx context.Context, name string, data []byte) (*jetstream.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.objects[name] = append([]byte(nil), data...)
	return &jetstream.ObjectInfo{}, nil
}

func (m *memoryObjectStore) GetBytes(ctx context.Context, name string, opts ...jetstream.GetObjectOpt) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[name]
	if !ok {
		return nil, jetstream.ErrObjectNotFound
	}
	return data, nil
}

func TestNatsObjectArchive(t *testing.T) {
	ctx := context.Background()
	store := &memoryObjectStore{objects: map[string][]byte{}}
	archive := NewNatsObjectArchive(store)

	require.NoError(t, archive.Store(ctx, "zoom/m-1.vtt", []byte("WEBVTT")))
	require.NoError(t, archive.Store(ctx, "zoom/m-1.vtt", []byte("WEBVTT\n\nv2")))

	data, err := archive.Load(ctx, "zoom/m-1.vtt")
	require.NoError(t, err)
	assert.Equal(t, "WEBVTT\n\nv2", string(data))

	_, err = archive.Load(ctx, "missing")
	assert.Equal(t, domain.ErrorTypeNotFound, domain.GetErrorType(err))

	store.putErr = errors.New("nats: timeout")
	err = archive.Store(ctx, "zoom/m-2.vtt", []byte("WEBVTT"))
	assert.True(t, domain.IsRetryable(err))

	err = NewNatsObjectArchive(nil).Store(ctx, "k", nil)
	assert.Equal(t, domain.ErrorTypeUnavailable, domain.GetErrorType(err))
}

type mockS3 struct {
	mock.Mock
}

func (m *mockS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func (m *mockS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.GetObjectOutput), args.Error(1)
}

func TestS3Archive(t *testing.T) {
	ctx := context.Background()
	cfg := S3Config{Bucket: "captions", Prefix: "transcripts/"}

	t.Run("bucket is required", func(t *testing.T) {
		_, err := NewS3Archive(new(mockS3), S3Config{})
		assert.Equal(t, domain.ErrorTypeValidation, domain.GetErrorType(err))
	})

	t.Run("store uses the prefixed key", func(t *testing.T) {
		client := new(mockS3)
		client.On("PutObject", ctx, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
			return aws.ToString(in.Bucket) == "captions" &&
				aws.ToString(in.Key) == "transcripts/zoom/m-1.vtt" &&
				aws.ToInt64(in.ContentLength) == 6
		})).Return(&s3.PutObjectOutput{}, nil)

		archive, err := NewS3Archive(client, cfg)
		require.NoError(t, err)
		require.NoError(t, archive.Store(ctx, "zoom/m-1.vtt", []byte("WEBVTT")))
		client.AssertExpectations(t)
	})

	t.Run("store failure is retryable", func(t *testing.T) {
		client := new(mockS3)
		client.On("PutObject", ctx, mock.Anything).Return(nil, errors.New("RequestTimeout"))

		archive, err := NewS3Archive(client, cfg)
		require.NoError(t, err)
		assert.True(t, domain.IsRetryable(archive.Store(ctx, "k", []byte("x"))))
	})

	t.Run("load", func(t *testing.T) {
		client := new(mockS3)
		client.On("GetObject", ctx, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
			return aws.ToString(in.Key) == "transcripts/zoom/m-1.vtt"
		})).Return(&s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte("WEBVTT")))}, nil)
		client.On("GetObject", ctx, mock.Anything).Return(nil, &types.NoSuchKey{})

		archive, err := NewS3Archive(client, cfg)
		require.NoError(t, err)

		data, err := archive.Load(ctx, "zoom/m-1.vtt")
		require.NoError(t, err)
		assert.Equal(t, "WEBVTT", string(data))

		_, err = archive.Load(ctx, "zoom/missing.vtt")
		assert.Equal(t, domain.ErrorTypeNotFound, domain.GetErrorType(err))
	})
}
