package db

import (
	"context"

	"github.com/NasaVasa/cryptowatch/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const saveBatchSize = 200

// SubscriberRepository stores the full subscriber snapshot in one table.
type SubscriberRepository struct {
	db *gorm.DB
}

func NewSubscriberRepository(db *gorm.DB) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

// Save upserts every subscriber and removes rows that are no longer in the
// snapshot, in one transaction.
func (r *SubscriberRepository) Save(ctx context.Context, subscribers []domain.Subscriber) error {
	models := make([]subscriberModel, 0, len(subscribers))
	ids := make([]int64, 0, len(subscribers))
	for _, sub := range subscribers {
		models = append(models, mapSubscriberToModel(sub))
		ids = append(ids, sub.ID)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(models) > 0 {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(&models, saveBatchSize).Error; err != nil {
				return err
			}
		}

		stale := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if len(ids) > 0 {
			stale = stale.Where("id NOT IN ?", ids)
		}
		return stale.Delete(&subscriberModel{}).Error
	})
}

func (r *SubscriberRepository) Load(ctx context.Context) ([]domain.Subscriber, error) {
	var models []subscriberModel
	if err := r.db.WithContext(ctx).Order("id").Find(&models).Error; err != nil {
		return nil, err
	}
	subscribers := make([]domain.Subscriber, 0, len(models))
	for _, model := range models {
		subscribers = append(subscribers, mapSubscriberToDomain(model))
	}
	return subscribers, nil
}

// mapSubscriberToDomain leaves the schedule empty when the stored row cannot be
// decoded; the store then restores the subscriber as inactive.
func mapSubscriberToDomain(model subscriberModel) domain.Subscriber {
	record := domain.ScheduleRecord{
		Kind:    domain.ScheduleKind(model.ScheduleKind),
		Minutes: model.IntervalMinutes,
		Hour:    model.DailyHour,
		Minute:  model.DailyMinute,
	}
	spec, err := record.Spec()
	if err != nil {
		spec = nil
	}
	return domain.Subscriber{
		ID:        model.ID,
		Watchlist: append([]string(nil), model.Watchlist...),
		Schedule:  spec,
		Active:    model.Active,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

func mapSubscriberToModel(sub domain.Subscriber) subscriberModel {
	record := domain.RecordOf(sub.Schedule)
	watchlist := sub.Watchlist
	if watchlist == nil {
		watchlist = []string{}
	}
	return subscriberModel{
		ID:              sub.ID,
		Watchlist:       watchlist,
		ScheduleKind:    string(record.Kind),
		IntervalMinutes: record.Minutes,
		DailyHour:       record.Hour,
		DailyMinute:     record.Minute,
		Active:          sub.Active,
		CreatedAt:       sub.CreatedAt,
		UpdatedAt:       sub.UpdatedAt,
	}
}
