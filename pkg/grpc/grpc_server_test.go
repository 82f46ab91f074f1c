package grpc

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"liyu1981.xyz/greenhouse-relay/pkg/common"
	"liyu1981.xyz/greenhouse-relay/pkg/db"
	"liyu1981.xyz/greenhouse-relay/pkg/metrics"
	"liyu1981.xyz/greenhouse-relay/pkg/models"
	"liyu1981.xyz/greenhouse-relay/pkg/relay"
	"liyu1981.xyz/greenhouse-relay/pkg/relay/mocks"
	_ "liyu1981.xyz/greenhouse-relay/pkg/testing"
)

const (
	bufSize    = 1024 * 1024
	testAPIKey = "SuperSecret123"
)

func startTestServerWithLimiter(t *testing.T, limiterStore *relay.RateLimiterStore) (RelayClient, *RelayServer) {
	listener := bufconn.Listen(bufSize)

	dbInstance, err := db.Open(db.UseNamedMemorySqliteDialector(uuid.NewString()), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbInstance.Close() })

	m := metrics.New()
	relayServer := &RelayServer{
		Relay:            relay.New(dbInstance, m),
		RateLimiterStore: limiterStore,
		Metrics:          m,
		APIKey:           testAPIKey,
	}
	server := relayServer.NewServer()

	go func() {
		_ = server.Serve(listener)
	}()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, s string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewRelayClient(conn), relayServer
}

func startTestServer(t *testing.T) (RelayClient, *RelayServer) {
	return startTestServerWithLimiter(t, nil)
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func authed() context.Context {
	return WithAPIKey(context.Background(), testAPIKey)
}

func TestIngestAndHistory(t *testing.T) {
	common.SetTestLoggerNop()
	client, _ := startTestServer(t)

	device := uuid.NewString()

	for _, temp := range []float64{21.5, 22.5, 23.5} {
		resp, err := client.Ingest(authed(), mustStruct(t, map[string]any{
			"device": device, "temp": temp, "soil_pct": 40,
		}))
		require.NoError(t, err)
		assert.True(t, resp.GetFields()["ok"].GetBoolValue())
	}

	list, err := client.History(context.Background(), mustStruct(t, map[string]any{"device": device, "limit": 2}))
	require.NoError(t, err)
	require.Len(t, list.GetValues(), 2)

	first := list.GetValues()[0].GetStructValue().GetFields()
	second := list.GetValues()[1].GetStructValue().GetFields()
	assert.Equal(t, 22.5, first["temp"].GetNumberValue())
	assert.Equal(t, 23.5, second["temp"].GetNumberValue())
	assert.Equal(t, 40.0, first["soil_pct"].GetNumberValue())

	// absent sensors come back as null
	_, isNull := first["hum"].GetKind().(*structpb.Value_NullValue)
	assert.True(t, isNull)

	_, err = time.Parse(time.RFC3339Nano, first["ts"].GetStringValue())
	assert.NoError(t, err)
}

func TestSetAndGetCommand(t *testing.T) {
	common.SetTestLoggerNop()
	client, _ := startTestServer(t)

	resp, err := client.GetCommand(context.Background(), mustStruct(t, map[string]any{}))
	require.NoError(t, err)
	assert.Equal(t, -1.0, resp.GetFields()["manualpump"].GetNumberValue())
	assert.Equal(t, -1.0, resp.GetFields()["manualfans"].GetNumberValue())

	_, err = client.SetCommand(authed(), mustStruct(t, map[string]any{
		"device": models.DefaultDevice, "manualPump": 1, "manualFans": -1,
	}))
	require.NoError(t, err)

	resp, err = client.GetCommand(context.Background(), mustStruct(t, map[string]any{"device": models.DefaultDevice}))
	require.NoError(t, err)
	assert.Equal(t, 1.0, resp.GetFields()["manualpump"].GetNumberValue())
	assert.Equal(t, -1.0, resp.GetFields()["manualfans"].GetNumberValue())
}

func TestAuthInterceptor(t *testing.T) {
	common.SetTestLoggerNop()
	client, relayServer := startTestServer(t)

	device := uuid.NewString()

	{
		// missing key
		_, err := client.Ingest(context.Background(), mustStruct(t, map[string]any{"device": device, "temp": 20}))
		require.Error(t, err)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	}

	{
		// wrong key
		_, err := client.SetCommand(WithAPIKey(context.Background(), "nope"), mustStruct(t, map[string]any{"device": device, "manualPump": 1}))
		require.Error(t, err)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	}

	// nothing was written by the rejected calls
	list, err := client.History(context.Background(), mustStruct(t, map[string]any{"device": device}))
	require.NoError(t, err)
	assert.Empty(t, list.GetValues())

	resp, err := client.GetCommand(context.Background(), mustStruct(t, map[string]any{"device": device}))
	require.NoError(t, err)
	assert.Equal(t, -1.0, resp.GetFields()["manualpump"].GetNumberValue())

	assert.Equal(t, 1.0, testutil.ToFloat64(relayServer.Metrics.AuthFailures.WithLabelValues("grpc", MethodIngest)))
	assert.Equal(t, 1.0, testutil.ToFloat64(relayServer.Metrics.AuthFailures.WithLabelValues("grpc", MethodSetCommand)))
}

func TestInvalidArguments(t *testing.T) {
	common.SetTestLoggerNop()
	client, _ := startTestServer(t)

	_, err := client.Ingest(authed(), mustStruct(t, map[string]any{"temp": "warm"}))
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.History(context.Background(), mustStruct(t, map[string]any{"limit": -5}))
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.SetCommand(authed(), mustStruct(t, map[string]any{"manualPump": "on"}))
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Ingest(authed(), mustStruct(t, map[string]any{"soil_pct": 40.7, "pump": true}))
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.NotContains(t, status.Convert(err).Message(), "$first")
}

func TestRateLimitUsesStoredDevice(t *testing.T) {
	common.SetTestLoggerNop()

	limiterStore := relay.NewRateLimiterStore(0.001, 1)
	client, _ := startTestServerWithLimiter(t, limiterStore)

	// a numeric device is stored and limited as its string form
	_, err := client.Ingest(authed(), mustStruct(t, map[string]any{"device": 5, "temp": 25}))
	require.NoError(t, err)

	list, err := client.History(context.Background(), mustStruct(t, map[string]any{"device": "5"}))
	require.NoError(t, err)
	require.Len(t, list.GetValues(), 1)

	_, err = client.Ingest(authed(), mustStruct(t, map[string]any{"device": "5", "temp": 26}))
	require.Error(t, err)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	// the default device bucket was never charged
	_, err = client.Ingest(authed(), mustStruct(t, map[string]any{"temp": 27}))
	require.NoError(t, err)
}

func TestRateLimitInterceptor(t *testing.T) {
	common.SetTestLoggerNop()

	limiterStore := relay.NewRateLimiterStore(2, 2) // Allow 2 req/sec per device
	client, _ := startTestServerWithLimiter(t, limiterStore)

	device := uuid.NewString()
	req := mustStruct(t, map[string]any{"device": device, "temp": 25})

	// First 2 requests should pass
	for i := 0; i < 2; i++ {
		_, err := client.Ingest(authed(), req)
		require.NoError(t, err, "expected request %d to pass", i+1)
	}

	// 3rd request should fail immediately
	_, err := client.Ingest(authed(), req)
	require.Error(t, err, "expected third request to be rate limited")
	require.Equal(t, codes.ResourceExhausted, status.Code(err))

	// other devices have their own bucket
	_, err = client.Ingest(authed(), mustStruct(t, map[string]any{"device": uuid.NewString(), "temp": 25}))
	require.NoError(t, err)

	limiterStore.SetLimiter(device, 3, 2)
	_, err = client.Ingest(authed(), req)
	require.NoError(t, err, "expected request after raising the limit to pass")
}

func startTestServerWithMocks(t *testing.T) (*gomock.Controller, RelayClient, *mocks.MockIReading, *mocks.MockICommand) {
	ctrl := gomock.NewController(t)
	client, relayServer := startTestServer(t)

	mockIReading := mocks.NewMockIReading(ctrl)
	mockICommand := mocks.NewMockICommand(ctrl)
	relayServer.Relay.WithServices(relay.ServiceOpts{
		Reading: mockIReading,
		Command: mockICommand,
	})

	return ctrl, client, mockIReading, mockICommand
}

func TestStorageErrors(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, client, mockIReading, mockICommand := startTestServerWithMocks(t)
	defer ctrl.Finish()

	mockIReading.EXPECT().
		Ingest(gomock.Any(), gomock.Any()).
		Return(fmt.Errorf("test error")).
		Times(1)
	mockIReading.EXPECT().
		History(gomock.Any(), gomock.Eq(models.DefaultDevice), gomock.Eq(relay.DefaultHistoryLimit)).
		Return(nil, fmt.Errorf("test error")).
		Times(1)
	mockICommand.EXPECT().
		SetCommand(gomock.Any(), gomock.Any()).
		Return(fmt.Errorf("test error")).
		Times(1)
	mockICommand.EXPECT().
		GetCommand(gomock.Any(), gomock.Eq(models.DefaultDevice)).
		Return(nil, fmt.Errorf("test error")).
		Times(1)

	_, err := client.Ingest(authed(), mustStruct(t, map[string]any{"temp": 20}))
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "test error")

	_, err = client.History(context.Background(), mustStruct(t, map[string]any{}))
	assert.Equal(t, codes.Internal, status.Code(err))

	_, err = client.SetCommand(authed(), mustStruct(t, map[string]any{"manualFans": 1}))
	assert.Equal(t, codes.Internal, status.Code(err))

	_, err = client.GetCommand(context.Background(), mustStruct(t, map[string]any{}))
	assert.Equal(t, codes.Internal, status.Code(err))
}
