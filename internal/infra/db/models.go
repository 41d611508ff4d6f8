package db

import "time"

type subscriberModel struct {
	ID              int64    `gorm:"primaryKey;autoIncrement:false"`
	Watchlist       []string `gorm:"serializer:json;not null"`
	ScheduleKind    string   `gorm:"not null;default:''"`
	IntervalMinutes int
	DailyHour       int
	DailyMinute     int
	Active          bool      `gorm:"index"`
	CreatedAt       time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime:false"`
}

func (subscriberModel) TableName() string {
	return "subscribers"
}
