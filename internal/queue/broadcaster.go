package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"milk_run/internal/engine"
	"milk_run/internal/model"

	rd "github.com/redis/go-redis/v9"
)

// StreamBroadcaster 把扫码事件原子写进 Redis Stream outbox，
// 由 Relay 异步转发 Kafka。引擎侧只感知 engine.Broadcaster 接口。
type StreamBroadcaster struct {
	rdb    *rd.Client
	stream string
}

func NewStreamBroadcaster(rdb *rd.Client, stream string) *StreamBroadcaster {
	return &StreamBroadcaster{rdb: rdb, stream: stream}
}

// Broadcast XADD 一条扫码事件。
func (b *StreamBroadcaster) Broadcast(ctx context.Context, ev engine.ScanEvent) error {
	return b.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: b.stream,
		Values: flattenScanEvent(ev),
	}).Err()
}

// flattenScanEvent 把事件摊平成 Stream 的字符串字段。
func flattenScanEvent(ev engine.ScanEvent) map[string]interface{} {
	return map[string]interface{}{
		"event_id":       ev.EventID,
		"order_id":       strconv.FormatUint(uint64(ev.OrderID), 10),
		"mode":           string(ev.Mode),
		"station_id":     strconv.FormatUint(uint64(ev.StationID), 10),
		"barcode":        ev.Barcode,
		"piece_name":     ev.PieceName,
		"warehouse_name": ev.WarehouseName,
		"row":            ev.Row,
		"col":            ev.Col,
		"stock_level":    strconv.Itoa(ev.StockLevel),
		"timestamp":      ev.Timestamp.Format(time.RFC3339Nano),
	}
}

// parseScanEvent 从 Stream 字段还原事件，Relay 消费时使用。
func parseScanEvent(values map[string]interface{}) (engine.ScanEvent, error) {
	eventID, err := getStreamString(values, "event_id")
	if err != nil {
		return engine.ScanEvent{}, err
	}
	orderStr, err := getStreamString(values, "order_id")
	if err != nil {
		return engine.ScanEvent{}, err
	}
	modeStr, err := getStreamString(values, "mode")
	if err != nil {
		return engine.ScanEvent{}, err
	}
	stationStr, err := getStreamString(values, "station_id")
	if err != nil {
		return engine.ScanEvent{}, err
	}
	barcode, err := getStreamString(values, "barcode")
	if err != nil {
		return engine.ScanEvent{}, err
	}

	orderID, err := strconv.ParseUint(orderStr, 10, 64)
	if err != nil {
		return engine.ScanEvent{}, fmt.Errorf("invalid order_id %q", orderStr)
	}
	stationID, err := strconv.ParseUint(stationStr, 10, 64)
	if err != nil {
		return engine.ScanEvent{}, fmt.Errorf("invalid station_id %q", stationStr)
	}
	mode := model.Mode(modeStr)
	if !mode.Valid() {
		return engine.ScanEvent{}, fmt.Errorf("invalid mode %q", modeStr)
	}

	ev := engine.ScanEvent{
		EventID:   eventID,
		OrderID:   uint(orderID),
		Mode:      mode,
		StationID: uint(stationID),
		Barcode:   barcode,
	}
	if ev.EventID == "" || ev.OrderID == 0 || ev.Barcode == "" {
		return engine.ScanEvent{}, fmt.Errorf("incomplete scan event %q", eventID)
	}

	// 展示类字段缺了不算脏消息。
	ev.PieceName, _ = getStreamString(values, "piece_name")
	ev.WarehouseName, _ = getStreamString(values, "warehouse_name")
	ev.Row, _ = getStreamString(values, "row")
	ev.Col, _ = getStreamString(values, "col")
	if s, err := getStreamString(values, "stock_level"); err == nil {
		ev.StockLevel, _ = strconv.Atoi(s)
	}
	if s, err := getStreamString(values, "timestamp"); err == nil {
		ev.Timestamp, _ = time.Parse(time.RFC3339Nano, s)
	}
	return ev, nil
}

func getStreamString(values map[string]interface{}, key string) (string, error) {
	v, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing field %s", key)
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float64:
		return strconv.FormatInt(int64(x), 10), nil
	default:
		return "", fmt.Errorf("unsupported field type %s: %T", key, v)
	}
}
