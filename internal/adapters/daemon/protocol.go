package daemon

import (
	"context"
	"strings"
	"time"

	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/zerr"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	// CacheServiceName is the gRPC service serving the shared result cache.
	CacheServiceName = "dval.cache.v1.ResultCache"
	// EvaluatorServiceName is the gRPC service serving remote utility evaluations.
	EvaluatorServiceName = "dval.worker.v1.Evaluator"
)

const (
	methodGet      = "/" + CacheServiceName + "/Get"
	methodPut      = "/" + CacheServiceName + "/Put"
	methodClear    = "/" + CacheServiceName + "/Clear"
	methodStats    = "/" + CacheServiceName + "/Stats"
	methodEvaluate = "/" + EvaluatorServiceName + "/Evaluate"
)

// cacheService is the server side of CacheServiceName.
type cacheService interface {
	Get(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
	Put(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error)
	Clear(ctx context.Context, req *emptypb.Empty) (*emptypb.Empty, error)
	Stats(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

// evaluatorService is the server side of EvaluatorServiceName.
type evaluatorService interface {
	Evaluate(ctx context.Context, req *structpb.Struct) (*wrapperspb.DoubleValue, error)
}

// cacheServiceDesc implements api/cache/v1/cache.proto.
var cacheServiceDesc = grpc.ServiceDesc{
	ServiceName: CacheServiceName,
	HandlerType: (*cacheService)(nil),
	Methods: []grpc.MethodDesc{
		unary(methodGet, func() proto.Message { return new(wrapperspb.StringValue) },
			func(ctx context.Context, srv any, in proto.Message) (any, error) {
				return srv.(cacheService).Get(ctx, in.(*wrapperspb.StringValue)) //nolint:forcetypeassert // registered type
			}),
		unary(methodPut, func() proto.Message { return new(structpb.Struct) },
			func(ctx context.Context, srv any, in proto.Message) (any, error) {
				return srv.(cacheService).Put(ctx, in.(*structpb.Struct)) //nolint:forcetypeassert // registered type
			}),
		unary(methodClear, func() proto.Message { return new(emptypb.Empty) },
			func(ctx context.Context, srv any, in proto.Message) (any, error) {
				return srv.(cacheService).Clear(ctx, in.(*emptypb.Empty)) //nolint:forcetypeassert // registered type
			}),
		unary(methodStats, func() proto.Message { return new(emptypb.Empty) },
			func(ctx context.Context, srv any, in proto.Message) (any, error) {
				return srv.(cacheService).Stats(ctx, in.(*emptypb.Empty)) //nolint:forcetypeassert // registered type
			}),
	},
	Streams: []grpc.StreamDesc{},
}

// evaluatorServiceDesc implements api/worker/v1/worker.proto.
var evaluatorServiceDesc = grpc.ServiceDesc{
	ServiceName: EvaluatorServiceName,
	HandlerType: (*evaluatorService)(nil),
	Methods: []grpc.MethodDesc{
		unary(methodEvaluate, func() proto.Message { return new(structpb.Struct) },
			func(ctx context.Context, srv any, in proto.Message) (any, error) {
				return srv.(evaluatorService).Evaluate(ctx, in.(*structpb.Struct)) //nolint:forcetypeassert // registered type
			}),
	},
	Streams: []grpc.StreamDesc{},
}

func registerResultCacheServer(s grpc.ServiceRegistrar, srv cacheService) {
	s.RegisterService(&cacheServiceDesc, srv)
}

func registerEvaluatorServer(s grpc.ServiceRegistrar, srv evaluatorService) {
	s.RegisterService(&evaluatorServiceDesc, srv)
}

// unary builds a method descriptor the way protoc-gen-go-grpc lays out its handlers.
func unary(
	fullMethod string,
	newRequest func() proto.Message,
	call func(ctx context.Context, srv any, in proto.Message) (any, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: fullMethod[strings.LastIndexByte(fullMethod, '/')+1:],
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newRequest()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(ctx, srv, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(ctx, srv, req.(proto.Message)) //nolint:forcetypeassert // decoded above
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// Wire field names.
const (
	fieldFingerprint = "fingerprint"
	fieldScore       = "score"
	fieldCreatedAt   = "created_at"
	fieldTTL         = "ttl"
	fieldEntries     = "entries"
	fieldUptime      = "uptime"
	fieldIdle        = "idle_remaining"
	fieldUtility     = "utility_id"
	fieldSubset      = "subset"
	fieldConfig      = "config"
)

func encodeEntry(entry domain.CacheEntry) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(map[string]any{
		fieldFingerprint: entry.Fingerprint.String(),
		fieldScore:       entry.Score,
		fieldCreatedAt:   entry.CreatedAt.UTC().Format(time.RFC3339Nano),
		fieldTTL:         entry.TTL.String(),
	})
	if err != nil {
		return nil, zerr.Wrap(err, "failed to encode cache entry")
	}
	return s, nil
}

func decodeEntry(s *structpb.Struct) (domain.CacheEntry, error) {
	fields := s.GetFields()
	fp := fields[fieldFingerprint].GetStringValue()
	if fp == "" {
		return domain.CacheEntry{}, zerr.New("cache entry has no fingerprint")
	}

	createdAt, err := time.Parse(time.RFC3339Nano, fields[fieldCreatedAt].GetStringValue())
	if err != nil {
		return domain.CacheEntry{}, zerr.With(zerr.Wrap(err, "invalid cache entry timestamp"), "fingerprint", fp)
	}
	ttl, err := time.ParseDuration(fields[fieldTTL].GetStringValue())
	if err != nil {
		return domain.CacheEntry{}, zerr.With(zerr.Wrap(err, "invalid cache entry ttl"), "fingerprint", fp)
	}

	return domain.CacheEntry{
		Fingerprint: domain.Fingerprint(fp),
		Score:       fields[fieldScore].GetNumberValue(),
		CreatedAt:   createdAt,
		TTL:         ttl,
	}, nil
}

func encodeCall(call domain.UtilityCall) (*structpb.Struct, error) {
	indices := call.Subset.Indices()
	members := make([]any, len(indices))
	for i, idx := range indices {
		members[i] = idx
	}
	config := make(map[string]any, len(call.Config))
	for k, v := range call.Config {
		config[k] = v
	}

	s, err := structpb.NewStruct(map[string]any{
		fieldUtility: call.UtilityID,
		fieldSubset:  members,
		fieldConfig:  config,
	})
	if err != nil {
		return nil, zerr.Wrap(err, "failed to encode utility call")
	}
	return s, nil
}

func decodeCall(s *structpb.Struct) domain.UtilityCall {
	fields := s.GetFields()

	values := fields[fieldSubset].GetListValue().GetValues()
	indices := make([]int, len(values))
	for i, v := range values {
		indices[i] = int(v.GetNumberValue())
	}

	var config map[string]string
	if raw := fields[fieldConfig].GetStructValue().GetFields(); len(raw) > 0 {
		config = make(map[string]string, len(raw))
		for k, v := range raw {
			config[k] = v.GetStringValue()
		}
	}

	return domain.UtilityCall{
		Subset:    domain.NewSubset(indices...),
		UtilityID: fields[fieldUtility].GetStringValue(),
		Config:    config,
	}
}
