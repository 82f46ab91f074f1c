package grpc

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"liyu1981.xyz/greenhouse-relay/pkg/common"
	"liyu1981.xyz/greenhouse-relay/pkg/metrics"
	"liyu1981.xyz/greenhouse-relay/pkg/relay"
)

const (
	ServiceName   = "greenhouse.v1.Relay"
	transportName = "grpc"

	MethodIngest     = "Ingest"
	MethodHistory    = "History"
	MethodSetCommand = "SetCommand"
	MethodGetCommand = "GetCommand"
)

// FullMethod returns the wire name of a method, e.g. /greenhouse.v1.Relay/Ingest.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// RelayService carries the same JSON-shaped documents as the HTTP api, as
// protobuf Struct values, so no generated message types are needed.
type RelayService interface {
	Ingest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	History(context.Context, *structpb.Struct) (*structpb.ListValue, error)
	SetCommand(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetCommand(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// methodHandler is the signature grpc.MethodDesc expects for a unary handler.
type methodHandler = func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error)

func unaryHandler[Resp any](method string, call func(RelayService, context.Context, *structpb.Struct) (Resp, error)) methodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RelayService), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: FullMethod(method),
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(RelayService), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var RelayServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RelayService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodIngest, Handler: unaryHandler(MethodIngest, RelayService.Ingest)},
		{MethodName: MethodHistory, Handler: unaryHandler(MethodHistory, RelayService.History)},
		{MethodName: MethodSetCommand, Handler: unaryHandler(MethodSetCommand, RelayService.SetCommand)},
		{MethodName: MethodGetCommand, Handler: unaryHandler(MethodGetCommand, RelayService.GetCommand)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "greenhouse/v1/relay.proto",
}

func RegisterRelayServer(s grpc.ServiceRegistrar, srv RelayService) {
	s.RegisterService(&RelayServiceDesc, srv)
}

type RelayServer struct {
	Relay            *relay.Relay
	RateLimiterStore *relay.RateLimiterStore
	Metrics          *metrics.Metrics
	// APIKey guards Ingest and SetCommand, empty falls back to common.DefaultAPIKey.
	APIKey string
}

func (s *RelayServer) logger() *zap.Logger {
	return common.GetLoggerWith(common.LoggerNameGrpcServer)
}

func (s *RelayServer) CheckDeviceLimiter(device string) bool {
	return s.RateLimiterStore.Allow(device)
}

// NewServer builds a grpc.Server with the relay registered behind the
// metrics, api key and rate limit interceptors, in that order.
func (s *RelayServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	if s.APIKey == "" {
		s.APIKey = common.DefaultAPIKey
	}

	opts = append(opts, grpc.ChainUnaryInterceptor(
		s.CreateMetricsInterceptor(),
		s.CreateAuthInterceptor([]string{MethodIngest, MethodSetCommand}),
		s.CreateRateLimitInterceptor([]string{MethodIngest, MethodGetCommand}),
	))

	server := grpc.NewServer(opts...)
	RegisterRelayServer(server, s)
	return server
}
