package relay

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"
	"liyu1981.xyz/greenhouse-relay/pkg/common"
	"liyu1981.xyz/greenhouse-relay/pkg/models"
)

// setCommand replaces both overrides and the timestamp of the device row in a
// single upsert statement. The last writer wins, there is no versioning.
// The device is used as given, defaults are resolved when parsing the payload.
func (r *Relay) setCommand(ctx context.Context, input *models.Command) error {
	logger := common.GetLoggerWith(
		common.LoggerNameRelayCore,
		zap.String(common.LoggerFieldCategory, common.LoggerCategoryCommand),
	)

	command := models.Command{
		Device:     input.Device,
		Updated:    time.Now().UTC(),
		ManualPump: input.ManualPump,
		ManualFans: input.ManualFans,
	}

	logger.Info("Received command for device", zap.Reflect("command", command))

	err := r.Db.Conn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device"}},
		DoUpdates: clause.AssignmentColumns([]string{"manualpump", "manualfans", "updated"}),
	}).Create(&command).Error
	if err != nil {
		return fmt.Errorf("upsert command for %s: %w", command.Device, err)
	}

	logger.Info("Upserted command for device", zap.Reflect("command", command))

	r.Metrics.ObserveCommandSet()
	return nil
}

// getCommand never reports a missing row, a device without one runs on automatic.
func (r *Relay) getCommand(ctx context.Context, device string) (*models.Command, error) {
	var rows []models.Command
	err := r.Db.Conn.WithContext(ctx).
		Where("device = ?", device).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query command for %s: %w", device, err)
	}

	r.Metrics.ObserveCommandPoll()

	if len(rows) == 0 {
		return models.DefaultCommand(device), nil
	}
	return &rows[0], nil
}

type ICommandImpl struct {
	relay *Relay
}

func (ic *ICommandImpl) SetCommand(ctx context.Context, input *models.Command) error {
	return ic.relay.setCommand(ctx, input)
}

func (ic *ICommandImpl) GetCommand(ctx context.Context, device string) (*models.Command, error) {
	return ic.relay.getCommand(ctx, device)
}

func (r *Relay) GetICommand() ICommand {
	return &ICommandImpl{relay: r}
}
