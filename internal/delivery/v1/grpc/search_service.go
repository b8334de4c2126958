package grpc

import (
	"context"
	"strconv"

	"github.com/DRSN-tech/photo-search/internal/infrastructure"
	"github.com/DRSN-tech/photo-search/internal/usecase"
	"github.com/DRSN-tech/photo-search/pkg/e"
	"github.com/DRSN-tech/photo-search/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	SearchServiceName = "photosearch.v1.SearchService"
	SearchMethod      = "/" + SearchServiceName + "/Search"

	// KMetadataKey: ключ метаданных запроса с числом товаров в выдаче.
	KMetadataKey = "k"
	defaultK     = 5
)

// SearchServer принимает фото в BytesValue и отвечает Struct вида
// {"matches": [{"product_id", "score", "photos"}]}.
type SearchServer interface {
	Search(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error)
}

var searchServiceDesc = grpc.ServiceDesc{
	ServiceName: SearchServiceName,
	HandlerType: (*SearchServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Search", Handler: searchHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "photosearch/v1/search.proto",
}

func searchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SearchServer).Search(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SearchMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SearchServer).Search(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

type SearchService struct {
	prUC   usecase.ProductUC
	logger logger.Logger
}

func NewSearchService(prUC usecase.ProductUC, logger logger.Logger) *SearchService {
	return &SearchService{prUC: prUC, logger: logger}
}

func (g *SearchService) Search(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error) {
	const op = "grpc.Search"

	k, err := kFromMetadata(ctx)
	if err != nil {
		return nil, GRPCErrorResponse(e.Wrap(op, err))
	}

	data := req.GetValue()
	if len(data) == 0 {
		return nil, GRPCErrorResponse(e.Wrap(op, e.ErrNoImages))
	}

	mimeType, err := infrastructure.DetectImageMIME(data)
	if err != nil {
		return nil, GRPCErrorResponse(e.Wrap(op+": "+mimeType, err))
	}

	img := usecase.NewProductImage(data, mimeType, int64(len(data)), "query")
	matches, err := g.prUC.Search(ctx, usecase.NewSearchReq(img, k))
	if err != nil {
		return nil, GRPCErrorResponse(e.Wrap(op, err))
	}

	res, err := toGRPCMatches(matches)
	if err != nil {
		g.logger.Errorf(err, "%s: encode response", op)
		return nil, GRPCErrorResponse(e.Wrap(op, err))
	}

	return res, nil
}

func kFromMetadata(ctx context.Context) (int, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return defaultK, nil
	}

	vals := md.Get(KMetadataKey)
	if len(vals) == 0 || vals[0] == "" {
		return defaultK, nil
	}

	k, err := strconv.Atoi(vals[0])
	if err != nil || k <= 0 {
		return 0, e.Wrap("k="+vals[0], e.ErrInvalidK)
	}

	return k, nil
}

func toGRPCMatches(matches []usecase.ProductMatch) (*structpb.Struct, error) {
	list := make([]any, 0, len(matches))
	for _, m := range matches {
		photos := make([]any, 0, len(m.Photos))
		for _, p := range m.Photos {
			photos = append(photos, p)
		}

		list = append(list, map[string]any{
			"product_id": m.ProductID,
			"score":      float64(m.Score),
			"photos":     photos,
		})
	}

	return structpb.NewStruct(map[string]any{"matches": list})
}
