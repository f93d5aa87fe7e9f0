package model

import "time"

// Cycle 是一段管理员手动开合的生产时间窗，用于按班次归档订单。
// 同一 mode 下最多只有一个未结束（EndedAt 为空）的周期。
type Cycle struct {
	ID        uint       `gorm:"primarykey" json:"id"`
	StartedAt time.Time  `gorm:"not null" json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`
	Mode      Mode       `gorm:"size:16;not null;default:'Normal';index" json:"mode"`
}

func (Cycle) TableName() string { return "cycles" }
