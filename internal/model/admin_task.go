package model

import (
	"time"
)

const (
	AdminTaskStatusOpen     = "open"
	AdminTaskStatusResolved = "resolved"
)

// AdminTask 需要人工复核的后台任务，目前由对账告警生成
type AdminTask struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TaskNo    string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"task_no"`
	Kind      string    `gorm:"type:varchar(32);not null" json:"kind"`
	Priority  string    `gorm:"type:varchar(20);not null" json:"priority"`
	Subject   string    `gorm:"type:varchar(64);index" json:"subject"`
	Title     string    `gorm:"type:varchar(256);not null" json:"title"`
	Detail    string    `gorm:"type:text" json:"detail"`
	Status    string    `gorm:"type:varchar(20);not null;index" json:"status"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AdminTask) TableName() string {
	return "admin_task"
}
