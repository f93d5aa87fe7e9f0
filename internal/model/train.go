package model

// Train 是沿站点环线巡回的运输小火车在库里的游标，每个 mode 恰好一条记录。
// PositionID 指向当前停靠站；若该站已被删除，装载时回退到环线首站。
type Train struct {
	ID         uint `gorm:"primarykey" json:"id"`
	PositionID uint `gorm:"not null" json:"position_id"`
	Mode       Mode `gorm:"size:16;not null;uniqueIndex" json:"mode"`
}

func (Train) TableName() string { return "trains" }
