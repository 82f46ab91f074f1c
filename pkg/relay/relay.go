package relay

import (
	"context"

	"liyu1981.xyz/greenhouse-relay/pkg/db"
	"liyu1981.xyz/greenhouse-relay/pkg/metrics"
	"liyu1981.xyz/greenhouse-relay/pkg/models"
)

//go:generate mockgen -source=relay.go -destination=mocks/relay_mock.go -package=mocks

type IReading interface {
	Ingest(ctx context.Context, input *models.Reading) error
	History(ctx context.Context, device string, limit int) ([]models.Reading, error)
}

type ICommand interface {
	SetCommand(ctx context.Context, input *models.Command) error
	GetCommand(ctx context.Context, device string) (*models.Command, error)
}

// Relay is the telemetry/command core shared by the HTTP and gRPC servers.
// Every request is one statement against Db, there is no in-process state.
type Relay struct {
	Db      *db.DB
	Metrics *metrics.Metrics
	Reading IReading
	Command ICommand
}

type ServiceOpts struct {
	Reading IReading
	Command ICommand
}

func (r *Relay) WithServices(opts ServiceOpts) *Relay {
	if opts.Reading != nil {
		r.Reading = opts.Reading
	}
	if opts.Command != nil {
		r.Command = opts.Command
	}
	return r
}

// New wires the storage-backed services.
func New(dbInstance *db.DB, m *metrics.Metrics) *Relay {
	r := &Relay{Db: dbInstance, Metrics: m}
	return r.WithServices(ServiceOpts{
		Reading: r.GetIReading(),
		Command: r.GetICommand(),
	})
}
