package model

import "time"

// Mode 区分常规流转与管理员自定义流转两套并行的小火车。
type Mode string

const (
	ModeNormal Mode = "Normal"
	ModeCustom Mode = "Custom"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return m == ModeNormal || m == ModeCustom }

// OrderStatus 是订单状态机的封闭枚举。
// 合法迁移：Requested → Retrieved → Completed，
// 以及 {Requested, Retrieved} → {Missing, Cancelled}（终态）。
type OrderStatus int

const (
	StatusRequested OrderStatus = iota // 已下单，等待去库房取货
	StatusRetrieved                    // 已取货，等待送达工位
	StatusCompleted                    // 已送达（终态）
	StatusMissing                      // 缺件（终态）
	StatusCancelled                    // 已取消（终态）
)

// statusLabels 保留遗留系统的法语文案，看板与日志仍按它渲染。
var statusLabels = map[OrderStatus]string{
	StatusRequested: "A récupérer",
	StatusRetrieved: "A déposer",
	StatusCompleted: "Commande finie",
	StatusMissing:   "Produit manquant",
	StatusCancelled: "Annulée",
}

// Label 返回状态对外展示用的文案。
func (s OrderStatus) Label() string { return statusLabels[s] }

// Terminal reports whether no further transition is allowed.
func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusMissing || s == StatusCancelled
}

// Order 记录一次扫码产生的搬运任务：从库房取一箱，送到工位。
// 除状态与时间戳外只增不改。
type Order struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	BoxID       uint  `gorm:"not null;index" json:"box_id"`
	WarehouseID *uint `gorm:"index" json:"warehouse_id"`
	PostID      uint  `gorm:"not null;index" json:"post_id"`

	RetrievedAt *time.Time `json:"retrieved_at"`
	DeliveredAt *time.Time `json:"delivered_at"`

	Status OrderStatus `gorm:"not null;default:0;index" json:"status"`
	Mode   Mode        `gorm:"size:16;not null;default:'Normal';index" json:"mode"`
}

func (Order) TableName() string { return "orders" }
