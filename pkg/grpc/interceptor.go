package grpc

import (
	"context"
	"path"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"liyu1981.xyz/greenhouse-relay/pkg/common"
	"liyu1981.xyz/greenhouse-relay/pkg/models"
	"liyu1981.xyz/greenhouse-relay/pkg/relay"
)

func methodSet(methods []string) map[string]bool {
	return common.Reducer(methods,
		func(m map[string]bool, method string) map[string]bool {
			m[FullMethod(method)] = true
			return m
		},
		map[string]bool{},
	)
}

// requestDevice resolves the device a request is stored under, the same way
// the handler will. Payloads that fail to parse are charged to the default
// device; the handler rejects them anyway.
func requestDevice(fullMethod string, req any) string {
	in, ok := req.(*structpb.Struct)
	if !ok {
		return models.DefaultDevice
	}

	if fullMethod == FullMethod(MethodIngest) {
		if reading, err := relay.ParseIngest(in.AsMap()); err == nil {
			return reading.Device
		}
		return models.DefaultDevice
	}

	if device, err := relay.ParseDevice(in.AsMap()); err == nil {
		return device
	}
	return models.DefaultDevice
}

func (s *RelayServer) CreateAuthInterceptor(targetMethods []string) grpc.UnaryServerInterceptor {
	targets := methodSet(targetMethods)

	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if !targets[info.FullMethod] {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		keys := md.Get(common.HeaderAPIKey)
		if len(keys) == 0 || keys[0] != s.APIKey {
			s.logger().Warn("Rejected request with bad api key",
				zap.String(common.LoggerFieldCategory, common.LoggerCategoryAuth),
				zap.String("method", info.FullMethod))
			s.Metrics.ObserveAuthFailure(transportName, path.Base(info.FullMethod))
			return nil, status.Error(codes.Unauthenticated, "bad key")
		}

		return handler(ctx, req)
	}
}

func (s *RelayServer) CreateRateLimitInterceptor(targetMethods []string) grpc.UnaryServerInterceptor {
	targets := methodSet(targetMethods)

	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if targets[info.FullMethod] && !s.CheckDeviceLimiter(requestDevice(info.FullMethod, req)) {
			return nil, status.Errorf(codes.ResourceExhausted, "rate limit exceeded")
		}

		return handler(ctx, req)
	}
}

func (s *RelayServer) CreateMetricsInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		s.Metrics.ObserveRequest(transportName, path.Base(info.FullMethod), status.Code(err).String(), time.Since(start))
		return resp, err
	}
}
