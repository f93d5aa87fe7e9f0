package redis

import (
	"context"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// luaScanOnce 通过 SETNX 锁保证「同一工位同一条码在窗口内只放行一次」。
// 扫码枪经常连击两下，窗口内的第二次按重复处理。
const luaScanOnce = `
local key = KEYS[1]
local ttlMs = tonumber(ARGV[1])

if redis.call('SET', key, '1', 'NX', 'PX', ttlMs) then
  return 1
end
return 0
`

// DedupeScanOnce 返回 true 表示首次扫码（放行），false 表示窗口内重复。
// window <= 0 时去重关闭，一律放行。
func DedupeScanOnce(ctx context.Context, rdb *rd.Client, stationID uint, barcode string, window time.Duration) (bool, error) {
	if window <= 0 {
		return true, nil
	}
	key := ScanDedupeKey(stationID, barcode)
	n, err := rdb.Eval(ctx, luaScanOnce, []string{key}, window.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
