package relay

import (
	"bufio"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/mock/gomock"
	"liyu1981.xyz/greenhouse-relay/pkg/db"
	"liyu1981.xyz/greenhouse-relay/pkg/metrics"
	"liyu1981.xyz/greenhouse-relay/pkg/relay/mocks"
)

func GetMockRelayWithMemorySqliteDialector(t *testing.T, useMockIReading, useMockICommand bool) (
	*gomock.Controller,
	*Relay,
	*mocks.MockIReading,
	*mocks.MockICommand,
) {
	ctrl := gomock.NewController(t)

	mockIReading := mocks.NewMockIReading(ctrl)
	mockICommand := mocks.NewMockICommand(ctrl)

	dbInstance, err := db.Open(db.UseNamedMemorySqliteDialector(uuid.NewString()), time.Second)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = dbInstance.Close() })

	relayInstance := &Relay{Db: dbInstance, Metrics: metrics.New()}

	readingService := relayInstance.GetIReading()
	if useMockIReading {
		readingService = mockIReading
	}

	commandService := relayInstance.GetICommand()
	if useMockICommand {
		commandService = mockICommand
	}

	relayInstance.WithServices(ServiceOpts{
		Reading: readingService,
		Command: commandService,
	})

	return ctrl, relayInstance, mockIReading, mockICommand
}

func ParseLogs(r io.Reader) []any {
	scanner := bufio.NewScanner(r)
	var logs []any

	for scanner.Scan() {
		line := scanner.Text()
		var j any
		if err := json.Unmarshal([]byte(line), &j); err == nil {
			logs = append(logs, j)
		}
	}
	return logs
}

func ptr[T any](v T) *T {
	return &v
}
