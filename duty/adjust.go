package duty

import (
	"context"

	"go.uber.org/zap"
)

// Adjuster applies manual, audited corrections to the current month's rollup.
// Totals are never clamped; a removal larger than the total leaves it negative.
type Adjuster struct {
	Store    TxStore
	Clock    Clock
	Logger   *zap.Logger
	Observer Observer
}

func NewAdjuster(store TxStore, clock Clock, logger *zap.Logger) *Adjuster {
	return &Adjuster{Store: store, Clock: clock, Logger: loggerOrNop(logger)}
}

// Adjust adds secondsDelta (signed) to the person's current-month total and
// records who did it and why. Shift count is untouched. Both writes commit
// together or not at all.
func (a *Adjuster) Adjust(ctx context.Context, personID string, secondsDelta int64, adminID, reason string) (AdjustmentRecord, error) {
	if err := required("person_id", personID); err != nil {
		return AdjustmentRecord{}, err
	}
	if err := required("admin_id", adminID); err != nil {
		return AdjustmentRecord{}, err
	}

	now := a.Clock.Current()
	record := AdjustmentRecord{
		PersonID:     personID,
		AdminID:      adminID,
		Timestamp:    now,
		SecondsDelta: secondsDelta,
		Reason:       reason,
	}

	err := a.Store.WithTx(ctx, func(tx Store) error {
		if err := tx.AddToRollup(ctx, RollupDelta{
			PersonID: personID,
			Key:      a.Clock.Month(now),
			Seconds:  secondsDelta,
		}); err != nil {
			return err
		}
		id, err := tx.AppendAdjustment(ctx, record)
		if err != nil {
			return err
		}
		record.ID = id
		return nil
	})
	if err != nil {
		return AdjustmentRecord{}, storeErr("adjust time", err)
	}

	loggerOrNop(a.Logger).Info("time adjusted",
		zap.String("person_id", personID),
		zap.String("admin_id", adminID),
		zap.Int64("seconds_delta", secondsDelta),
		zap.String("reason", reason))
	observerOrNop(a.Observer).Adjusted(personID, secondsDelta)
	return record, nil
}

// SecondsFromHoursMinutes converts an hours+minutes entry into seconds.
func SecondsFromHoursMinutes(hours, minutes int) int64 {
	return int64(hours)*3600 + int64(minutes)*60
}
