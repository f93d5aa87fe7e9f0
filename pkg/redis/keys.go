package redis

import "fmt"

// LayoutKey 缓存某站点编译后的布局 JSON。
func LayoutKey(standID uint) string {
	return fmt.Sprintf("milk_run:layout:%d", standID)
}

// ScanDedupeKey 标记「某工位刚扫过某条码」，窗口内的重复扫码直接丢弃。
func ScanDedupeKey(stationID uint, barcode string) string {
	return fmt.Sprintf("milk_run:scan:dedupe:%d:%s", stationID, barcode)
}

// ScanRateLimitKey 是扫码限流的滑动窗口键（按工位）。
func ScanRateLimitKey(stationID uint) string {
	return fmt.Sprintf("milk_run:rate_limit:station:%d", stationID)
}
