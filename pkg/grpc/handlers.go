package grpc

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"liyu1981.xyz/greenhouse-relay/pkg/models"
	"liyu1981.xyz/greenhouse-relay/pkg/relay"
)

func optional[T int | float64](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func readingToStruct(r models.Reading) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"ts":       r.Ts.UTC().Format(time.RFC3339Nano),
		"temp":     optional(r.Temp),
		"hum":      optional(r.Hum),
		"soil_pct": optional(r.SoilPct),
		"ldr_pct":  optional(r.LdrPct),
		"pump":     optional(r.Pump),
		"fan":      optional(r.Fan),
	})
}

func okStruct() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"ok": structpb.NewBoolValue(true),
	}}
}

func (s *RelayServer) failure(method string, err error) error {
	var payloadErr *relay.PayloadError
	if errors.As(err, &payloadErr) || errors.Is(err, relay.ErrInvalidLimit) {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	s.logger().Error("Request failed", zap.String("method", method), zap.Error(err))
	return status.Error(codes.Internal, err.Error())
}

func (s *RelayServer) Ingest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	reading, err := relay.ParseIngest(in.AsMap())
	if err != nil {
		return nil, s.failure(MethodIngest, err)
	}

	if err := s.Relay.Reading.Ingest(ctx, reading); err != nil {
		return nil, s.failure(MethodIngest, err)
	}

	return okStruct(), nil
}

func (s *RelayServer) History(ctx context.Context, in *structpb.Struct) (*structpb.ListValue, error) {
	device, limit, err := relay.ParseHistoryQuery(in.AsMap())
	if err != nil {
		return nil, s.failure(MethodHistory, err)
	}

	readings, err := s.Relay.Reading.History(ctx, device, limit)
	if err != nil {
		return nil, s.failure(MethodHistory, err)
	}

	values := make([]*structpb.Value, 0, len(readings))
	for _, r := range readings {
		entry, err := readingToStruct(r)
		if err != nil {
			return nil, s.failure(MethodHistory, err)
		}
		values = append(values, structpb.NewStructValue(entry))
	}

	return &structpb.ListValue{Values: values}, nil
}

func (s *RelayServer) SetCommand(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	command, err := relay.ParseCommand(in.AsMap())
	if err != nil {
		return nil, s.failure(MethodSetCommand, err)
	}

	if err := s.Relay.Command.SetCommand(ctx, command); err != nil {
		return nil, s.failure(MethodSetCommand, err)
	}

	return okStruct(), nil
}

func (s *RelayServer) GetCommand(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	device, err := relay.ParseDevice(in.AsMap())
	if err != nil {
		return nil, s.failure(MethodGetCommand, err)
	}

	command, err := s.Relay.Command.GetCommand(ctx, device)
	if err != nil {
		return nil, s.failure(MethodGetCommand, err)
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"manualpump": structpb.NewNumberValue(float64(command.ManualPump)),
		"manualfans": structpb.NewNumberValue(float64(command.ManualFans)),
	}}, nil
}
