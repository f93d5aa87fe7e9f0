package engine

import (
	"context"
	"testing"
	"time"

	"milk_run/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_ReplenishesAfterDelay(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&model.Box{ID: 1, Barcode: "B1", Quantity: 5, ReplenishDelaySec: 3}).Error)
	s := NewReplenishmentScheduler(db, time.Second)
	ctx := context.Background()

	// 第一个 tick 只是把新箱子纳入跟踪
	s.tick(ctx)
	assert.Equal(t, 3, s.countdown[1])

	// 倒计时 3 → 2 → 1 → 0，第 4 个 tick 补 1
	s.tick(ctx)
	s.tick(ctx)
	var box model.Box
	require.NoError(t, db.First(&box, 1).Error)
	assert.Equal(t, 5, box.Quantity)

	s.tick(ctx)
	require.NoError(t, db.First(&box, 1).Error)
	assert.Equal(t, 6, box.Quantity)
	assert.Equal(t, 3, s.countdown[1]) // 倒计时重置
}

func TestScheduler_NotifyClampsShortenedDelay(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&model.Box{ID: 1, Barcode: "B1", Quantity: 5, ReplenishDelaySec: 10}).Error)
	s := NewReplenishmentScheduler(db, time.Second)
	ctx := context.Background()

	s.tick(ctx)
	assert.Equal(t, 10, s.countdown[1])

	// 管理端把延时从 10 缩到 3：下一个 tick 先收紧再递减
	require.NoError(t, db.Model(&model.Box{}).Where("id = ?", 1).
		Update("replenish_delay_sec", 3).Error)
	s.Notify()
	s.tick(ctx)
	assert.Equal(t, 2, s.countdown[1])

	var box model.Box
	require.NoError(t, db.First(&box, 1).Error)
	assert.Equal(t, 5, box.Quantity)
}

func TestScheduler_NotifyNeverBlocks(t *testing.T) {
	s := NewReplenishmentScheduler(newTestDB(t), time.Second)
	// 信号通道容量 1：连续通知合并，不阻塞调用方
	for i := 0; i < 10; i++ {
		s.Notify()
	}
}

func TestScheduler_SurvivesStoreFailure(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&model.Box{ID: 1, Barcode: "B1", Quantity: 5, ReplenishDelaySec: 1}).Error)
	s := NewReplenishmentScheduler(db, time.Second)
	ctx := context.Background()

	s.tick(ctx)
	require.NoError(t, db.Migrator().DropTable(&model.Box{}))

	// 到期但查库失败：保留倒计时现场，等下一个 tick 重试
	s.tick(ctx)
	remaining, tracked := s.countdown[1]
	assert.True(t, tracked)
	assert.LessOrEqual(t, remaining, 0)
}

func TestScheduler_PrunesDeletedBoxes(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&model.Box{ID: 1, Barcode: "B1", Quantity: 5, ReplenishDelaySec: 1}).Error)
	require.NoError(t, db.Create(&model.Box{ID: 2, Barcode: "B2", Quantity: 5, ReplenishDelaySec: 1}).Error)
	s := NewReplenishmentScheduler(db, time.Second)
	ctx := context.Background()

	s.tick(ctx)
	require.Len(t, s.countdown, 2)

	require.NoError(t, db.Delete(&model.Box{}, 2).Error)
	s.tick(ctx)

	_, tracked := s.countdown[2]
	assert.False(t, tracked)
	assert.Equal(t, 1, s.countdown[1])

	var box model.Box
	require.NoError(t, db.First(&box, 1).Error)
	assert.Equal(t, 6, box.Quantity)
}

func TestScheduler_DefaultsPeriod(t *testing.T) {
	s := NewReplenishmentScheduler(newTestDB(t), 0)
	assert.Equal(t, time.Second, s.period)
}
