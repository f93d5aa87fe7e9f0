package engine

import (
	"context"
	"time"

	"milk_run/internal/model"
)

// ScanEvent 是扫码建单后推给外部看板的通知载荷。
// Row/Col 在箱子没有已知格位时为 "-"。
type ScanEvent struct {
	EventID       string     `json:"event_id"`
	OrderID       uint       `json:"order_id"`
	Mode          model.Mode `json:"mode"`
	StationID     uint       `json:"station_id"`
	Barcode       string     `json:"barcode"`
	PieceName     string     `json:"piece_name"`
	WarehouseName string     `json:"warehouse_name"`
	Row           string     `json:"row"`
	Col           string     `json:"col"`
	StockLevel    int        `json:"stock_level"`
	Timestamp     time.Time  `json:"timestamp"`
}

// Broadcaster 是引擎向外扇出事件的汇点，由 queue 包提供生产实现。
// 广播是尽力而为：失败只记日志，不回滚已建的订单。
type Broadcaster interface {
	Broadcast(ctx context.Context, ev ScanEvent) error
}
