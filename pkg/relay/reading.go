package relay

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
	"liyu1981.xyz/greenhouse-relay/pkg/common"
	"liyu1981.xyz/greenhouse-relay/pkg/models"
)

const DefaultHistoryLimit = 200

var ErrInvalidLimit = errors.New("limit must not be negative")

// ingest appends one reading. Values are stored as given, without range checks.
// The stored id and server timestamp are copied back into input.
func (r *Relay) ingest(ctx context.Context, input *models.Reading) error {
	logger := common.GetLoggerWith(
		common.LoggerNameRelayCore,
		zap.String(common.LoggerFieldCategory, common.LoggerCategoryReading),
	)

	reading := models.Reading{
		Device:  common.OrDefault(input.Device, models.DefaultDevice),
		Ts:      time.Now().UTC(),
		Temp:    input.Temp,
		Hum:     input.Hum,
		SoilPct: input.SoilPct,
		LdrPct:  input.LdrPct,
		Pump:    input.Pump,
		Fan:     input.Fan,
	}

	logger.Info("Received reading for device", zap.Reflect("reading", reading))

	if err := r.Db.Conn.WithContext(ctx).Create(&reading).Error; err != nil {
		return fmt.Errorf("store reading for %s: %w", reading.Device, err)
	}

	logger.Info("Stored reading for device", zap.String("device", reading.Device), zap.Uint64("id", reading.ID))

	input.ID = reading.ID
	input.Device = reading.Device
	input.Ts = reading.Ts

	r.Metrics.ObserveReading()
	return nil
}

// history returns up to limit latest readings of device, oldest first.
func (r *Relay) history(ctx context.Context, device string, limit int) ([]models.Reading, error) {
	if limit < 0 {
		return nil, ErrInvalidLimit
	}

	readings := []models.Reading{}
	err := r.Db.Conn.WithContext(ctx).
		Where("device = ?", device).
		Order("ts desc").
		Order("id desc").
		Limit(limit).
		Find(&readings).Error
	if err != nil {
		return nil, fmt.Errorf("query history for %s: %w", device, err)
	}

	slices.Reverse(readings)
	return readings, nil
}

type IReadingImpl struct {
	relay *Relay
}

func (ir *IReadingImpl) Ingest(ctx context.Context, input *models.Reading) error {
	return ir.relay.ingest(ctx, input)
}

func (ir *IReadingImpl) History(ctx context.Context, device string, limit int) ([]models.Reading, error) {
	return ir.relay.history(ctx, device, limit)
}

func (r *Relay) GetIReading() IReading {
	return &IReadingImpl{relay: r}
}
