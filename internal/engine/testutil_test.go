package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"milk_run/internal/model"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB 给每个测试开一个独立命名的内存库，互不串数据。
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, model.Migrate(db))
	return db
}

func ptrUint(v uint) *uint { return &v }

// seedFloor 写入一套最小车间：三个工位、一个库房、两个箱子。
// 箱子 1 绑定工位 1、常驻库房 4；箱子 2 无任何绑定且库存为 0。
func seedFloor(t *testing.T, db *gorm.DB) {
	t.Helper()
	stands := []model.Stand{
		{ID: 1, Name: "Poste A", Category: model.CategoryPost},
		{ID: 2, Name: "Poste B", Category: model.CategoryPost},
		{ID: 3, Name: "Poste C", Category: model.CategoryPost},
		{ID: 4, Name: "Magasin", Category: model.CategoryWarehouse},
	}
	for _, s := range stands {
		require.NoError(t, db.Create(&s).Error)
	}

	boxes := []model.Box{
		{ID: 1, Barcode: "VIS-01", PieceName: "Vis", Quantity: 10,
			HomeWarehouseID: ptrUint(4), HomePostID: ptrUint(1), ReplenishDelaySec: 120},
		{ID: 2, Barcode: "ECROU-02", PieceName: "Ecrou", Quantity: 0, ReplenishDelaySec: 120},
	}
	for _, b := range boxes {
		require.NoError(t, db.Create(&b).Error)
	}
}

// captureBroadcaster 把广播事件留在内存里供断言。
type captureBroadcaster struct {
	events []ScanEvent
	err    error
}

func (c *captureBroadcaster) Broadcast(_ context.Context, ev ScanEvent) error {
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, ev)
	return nil
}
