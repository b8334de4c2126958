package grpc

import (
	"errors"

	"github.com/DRSN-tech/photo-search/pkg/e"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func GRPCErrorResponse(err error) error {
	switch {
	case errors.Is(err, e.ErrProductNotFound), errors.Is(err, e.ErrImageNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, e.ErrIndexEmpty):
		return status.Error(codes.FailedPrecondition, e.ErrIndexEmpty.Error())
	case errors.Is(err, e.ErrInvalidK),
		errors.Is(err, e.ErrNoImages),
		errors.Is(err, e.ErrUnsupportedMediaType),
		errors.Is(err, e.ErrFileTooLarge),
		errors.Is(err, e.ErrDecodeFailure):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, e.ErrEmbeddingFailure), errors.Is(err, e.ErrIndexStale):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, e.ErrInternalServerError.Error())
	}
}
