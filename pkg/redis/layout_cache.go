package redis

import (
	"context"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// PutLayout 缓存站点布局 JSON（前端 GET 时直接回放，替代落盘的静态文件）。
func PutLayout(ctx context.Context, rdb *rd.Client, standID uint, layoutJSON []byte, ttl time.Duration) error {
	return rdb.Set(ctx, LayoutKey(standID), layoutJSON, ttl).Err()
}

// GetLayout 读取站点布局。found=false 表示该站点还没编译过。
func GetLayout(ctx context.Context, rdb *rd.Client, standID uint) ([]byte, bool, error) {
	b, err := rdb.Get(ctx, LayoutKey(standID)).Bytes()
	if err != nil {
		if err == rd.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}
