package model

import "time"

// Box 是通过条码追踪的零件箱。
// Quantity 只允许两个地方修改：订单推进（-1）与补货调度器 / 管理员全局补货（+1）。
type Box struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Barcode     string `gorm:"size:64;uniqueIndex;not null" json:"barcode"`
	PieceName   string `gorm:"size:128" json:"piece_name"`
	Description string `gorm:"size:255" json:"description"`
	Quantity    int    `gorm:"not null;default:0" json:"quantity"`

	// 箱子的常驻库房与（可选）绑定工位；由网格编译器按站点类别写入。
	HomeWarehouseID *uint `gorm:"index" json:"home_warehouse_id"`
	HomePostID      *uint `gorm:"index" json:"home_post_id"`

	// ReplenishDelaySec 为补货倒计时（秒），0 表示立即补货。
	ReplenishDelaySec int `gorm:"not null;default:0" json:"replenish_delay_sec"`
}

func (Box) TableName() string { return "boxes" }

// DisplayName 优先返回零件名，缺失时退回条码。
func (b Box) DisplayName() string {
	if b.PieceName != "" {
		return b.PieceName
	}
	return b.Barcode
}
