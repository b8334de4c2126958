package ml_service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DRSN-tech/photo-search/internal/cfg"
	"github.com/DRSN-tech/photo-search/internal/domain"
	"github.com/DRSN-tech/photo-search/pkg/e"
	"github.com/DRSN-tech/photo-search/pkg/logger"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// fakeConn отвечает на Invoke заранее заданными ошибками, затем вектором.
type fakeConn struct {
	calls  atomic.Int32
	errs   []error
	vector []any
	gotReq []byte
}

func (f *fakeConn) Invoke(ctx context.Context, method string, args any, reply any, opts ...grpc.CallOption) error {
	n := int(f.calls.Add(1)) - 1
	if method != VectorizeMethod {
		return status.Error(codes.Unimplemented, method)
	}
	f.gotReq = args.(*wrapperspb.BytesValue).GetValue()

	if n < len(f.errs) {
		return f.errs[n]
	}

	res, err := structpb.NewStruct(map[string]any{
		"vector":        f.vector,
		"model_version": "test-1",
	})
	if err != nil {
		return err
	}
	proto.Merge(reply.(*structpb.Struct), res)

	return nil
}

func (f *fakeConn) NewStream(ctx context.Context, desc *grpc.StreamDesc, method string, opts ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, status.Error(codes.Unimplemented, "streams are not supported")
}

func newService(conn grpc.ClientConnInterface, retries int) *MLService {
	svc := NewMLService(conn, &cfg.MLServiceCfg{MaxConcurrent: 2, MaxRetries: retries, Timeout: time.Second}, 3, logger.NewNopLogger())
	svc.backoff.Base = time.Millisecond
	svc.backoff.Max = time.Millisecond
	return svc
}

func TestMLService_Embed(t *testing.T) {
	conn := &fakeConn{vector: []any{0.5, 0.25, 1.0}}
	svc := newService(conn, 3)

	vec, err := svc.Embed(context.Background(), domain.NewDecodedImage(nil, "png", []byte("img")))
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25, 1.0}, vec)
	assert.Equal(t, []byte("img"), conn.gotReq)
	assert.Equal(t, 3, svc.Dimension())
}

func TestMLService_RetriesTransientErrors(t *testing.T) {
	conn := &fakeConn{
		errs:   []error{status.Error(codes.Unavailable, "down"), status.Error(codes.DeadlineExceeded, "slow")},
		vector: []any{1.0, 0.0, 0.0},
	}
	svc := newService(conn, 3)

	_, err := svc.Embed(context.Background(), domain.NewDecodedImage(nil, "png", []byte("img")))
	require.NoError(t, err)
	assert.Equal(t, int32(3), conn.calls.Load())
}

func TestMLService_GivesUp(t *testing.T) {
	conn := &fakeConn{errs: []error{
		status.Error(codes.Unavailable, "down"),
		status.Error(codes.Unavailable, "down"),
	}}
	svc := newService(conn, 2)

	_, err := svc.Embed(context.Background(), domain.NewDecodedImage(nil, "png", []byte("img")))
	assert.ErrorIs(t, err, e.ErrEmbeddingFailure)
	assert.Equal(t, int32(2), conn.calls.Load())
}

func TestMLService_DoesNotRetryPermanentErrors(t *testing.T) {
	conn := &fakeConn{errs: []error{status.Error(codes.InvalidArgument, "bad image")}}
	svc := newService(conn, 5)

	_, err := svc.Embed(context.Background(), domain.NewDecodedImage(nil, "png", []byte("img")))
	assert.ErrorIs(t, err, e.ErrEmbeddingFailure)
	assert.Equal(t, int32(1), conn.calls.Load())
}

func TestMLService_BreakerFailsFast(t *testing.T) {
	down := status.Error(codes.Unavailable, "down")
	conn := &fakeConn{errs: []error{down, down, down, down}, vector: []any{1.0, 0.0, 0.0}}
	svc := NewMLService(conn, &cfg.MLServiceCfg{
		MaxConcurrent:   1,
		MaxRetries:      1,
		Timeout:         time.Second,
		BreakerFailures: 2,
		BreakerTimeout:  time.Hour,
	}, 3, logger.NewNopLogger())

	img := domain.NewDecodedImage(nil, "png", []byte("img"))
	for range 2 {
		_, err := svc.Embed(context.Background(), img)
		assert.ErrorIs(t, err, e.ErrEmbeddingFailure)
	}
	require.Equal(t, int32(2), conn.calls.Load())

	_, err := svc.Embed(context.Background(), img)
	assert.ErrorIs(t, err, e.ErrEmbeddingFailure)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), conn.calls.Load())
}

func TestMLService_PermanentErrorsKeepBreakerClosed(t *testing.T) {
	bad := status.Error(codes.InvalidArgument, "bad image")
	conn := &fakeConn{errs: []error{bad, bad, bad}, vector: []any{1.0, 0.0, 0.0}}
	svc := NewMLService(conn, &cfg.MLServiceCfg{MaxConcurrent: 1, MaxRetries: 1, BreakerFailures: 2}, 3, logger.NewNopLogger())

	img := domain.NewDecodedImage(nil, "png", []byte("img"))
	for range 3 {
		_, err := svc.Embed(context.Background(), img)
		assert.ErrorIs(t, err, e.ErrEmbeddingFailure)
	}

	_, err := svc.Embed(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, int32(4), conn.calls.Load())
}

func TestParseVector_RejectsMalformed(t *testing.T) {
	res, err := structpb.NewStruct(map[string]any{"vector": []any{1.0, "x"}})
	require.NoError(t, err)

	_, err = parseVector(res)
	assert.Error(t, err)

	_, err = parseVector(&structpb.Struct{})
	assert.Error(t, err)
}
