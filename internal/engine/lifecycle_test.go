package engine

import (
	"context"
	"errors"
	"testing"

	"milk_run/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrder_UnknownBarcode(t *testing.T) {
	db := newTestDB(t)
	seedFloor(t, db)
	lc := NewLifecycle(db, nil)

	_, err := lc.CreateOrder(context.Background(), "NOPE", 1, model.ModeNormal)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateOrder_UnknownStation(t *testing.T) {
	db := newTestDB(t)
	seedFloor(t, db)
	lc := NewLifecycle(db, nil)

	_, err := lc.CreateOrder(context.Background(), "VIS-01", 99, model.ModeNormal)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateOrder_PostBinding(t *testing.T) {
	db := newTestDB(t)
	seedFloor(t, db)
	lc := NewLifecycle(db, nil)
	ctx := context.Background()

	// 箱子 1 绑定工位 1：在工位 2 扫码要被拒
	_, err := lc.CreateOrder(ctx, "VIS-01", 2, model.ModeNormal)
	assert.ErrorIs(t, err, ErrForbidden)

	// 在自己的工位扫码正常建单
	order, err := lc.CreateOrder(ctx, "VIS-01", 1, model.ModeNormal)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRequested, order.Status)
	assert.Equal(t, uint(1), order.PostID)
	require.NotNil(t, order.WarehouseID)
	assert.Equal(t, uint(4), *order.WarehouseID)

	// Custom 模式无视绑定
	_, err = lc.CreateOrder(ctx, "VIS-01", 2, model.ModeCustom)
	assert.NoError(t, err)

	// 库房扫码（补货侧）同样无视绑定
	_, err = lc.CreateOrder(ctx, "VIS-01", 4, model.ModeNormal)
	assert.NoError(t, err)
}

func TestCreateOrder_BroadcastsScanEvent(t *testing.T) {
	db := newTestDB(t)
	seedFloor(t, db)
	require.NoError(t, db.Create(&model.GridCell{StandID: 4, BoxID: 1, Row: 2, Col: 3}).Error)
	bc := &captureBroadcaster{}
	lc := NewLifecycle(db, bc)

	order, err := lc.CreateOrder(context.Background(), "VIS-01", 1, model.ModeNormal)
	require.NoError(t, err)

	require.Len(t, bc.events, 1)
	ev := bc.events[0]
	assert.NotEmpty(t, ev.EventID)
	assert.Equal(t, order.ID, ev.OrderID)
	assert.Equal(t, model.ModeNormal, ev.Mode)
	assert.Equal(t, uint(1), ev.StationID)
	assert.Equal(t, "VIS-01", ev.Barcode)
	assert.Equal(t, "Vis", ev.PieceName)
	assert.Equal(t, "Magasin", ev.WarehouseName)
	assert.Equal(t, "2", ev.Row)
	assert.Equal(t, "3", ev.Col)
	assert.Equal(t, 10, ev.StockLevel)
}

func TestCreateOrder_BroadcastWithoutWarehouse(t *testing.T) {
	db := newTestDB(t)
	seedFloor(t, db)
	bc := &captureBroadcaster{}
	lc := NewLifecycle(db, bc)

	_, err := lc.CreateOrder(context.Background(), "ECROU-02", 1, model.ModeNormal)
	require.NoError(t, err)

	require.Len(t, bc.events, 1)
	ev := bc.events[0]
	assert.Equal(t, "Non localisé", ev.WarehouseName)
	assert.Equal(t, "-", ev.Row)
	assert.Equal(t, "-", ev.Col)
}

func TestCreateOrder_BroadcastFailureTolerated(t *testing.T) {
	db := newTestDB(t)
	seedFloor(t, db)
	lc := NewLifecycle(db, &captureBroadcaster{err: errors.New("stream down")})

	// 看板掉线不能影响扫码建单
	order, err := lc.CreateOrder(context.Background(), "VIS-01", 1, model.ModeNormal)
	require.NoError(t, err)
	assert.NotZero(t, order.ID)
}

func TestCreateCustomOrder(t *testing.T) {
	db := newTestDB(t)
	seedFloor(t, db)
	lc := NewLifecycle(db, nil)
	ctx := context.Background()

	// 工位 3 不是箱子 1 的绑定工位，手工建单照样允许
	order, err := lc.CreateCustomOrder(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, model.ModeCustom, order.Mode)
	assert.Equal(t, uint(3), order.PostID)
	assert.Equal(t, model.StatusRequested, order.Status)

	_, err = lc.CreateCustomOrder(ctx, 999, 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdvance_FullChain(t *testing.T) {
	db := newTestDB(t)
	seedFloor(t, db)
	lc := NewLifecycle(db, nil)
	ctx := context.Background()

	order, err := lc.CreateOrder(ctx, "VIS-01", 1, model.ModeNormal)
	require.NoError(t, err)

	// Requested → Retrieved：扣 1 库存
	res, err := lc.Advance(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, model.StatusRetrieved, res.Order.Status)
	require.NotNil(t, res.Order.RetrievedAt)

	var box model.Box
	require.NoError(t, db.First(&box, 1).Error)
	assert.Equal(t, 9, box.Quantity)

	// Retrieved → Completed：库存不再变
	res, err = lc.Advance(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, model.StatusCompleted, res.Order.Status)
	require.NotNil(t, res.Order.DeliveredAt)

	require.NoError(t, db.First(&box, 1).Error)
	assert.Equal(t, 9, box.Quantity)

	// 终态上的 Advance 是幂等空转
	res, err = lc.Advance(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, model.StatusCompleted, res.Order.Status)
}

func TestAdvance_StockFloorsAtZero(t *testing.T) {
	db := newTestDB(t)
	seedFloor(t, db)
	lc := NewLifecycle(db, nil)
	ctx := context.Background()

	order, err := lc.CreateOrder(ctx, "ECROU-02", 1, model.ModeNormal)
	require.NoError(t, err)

	res, err := lc.Advance(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, model.StatusRetrieved, res.Order.Status)

	// 库存已经是 0：状态照迁，数量不变负
	var box model.Box
	require.NoError(t, db.First(&box, 2).Error)
	assert.Equal(t, 0, box.Quantity)
}

func TestAdvance_NotFound(t *testing.T) {
	db := newTestDB(t)
	seedFloor(t, db)
	lc := NewLifecycle(db, nil)

	_, err := lc.Advance(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkMissingAndCancel(t *testing.T) {
	db := newTestDB(t)
	seedFloor(t, db)
	lc := NewLifecycle(db, nil)
	ctx := context.Background()

	o1, err := lc.CreateOrder(ctx, "VIS-01", 1, model.ModeNormal)
	require.NoError(t, err)

	changed, err := lc.MarkMissing(ctx, o1.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	var reloaded model.Order
	require.NoError(t, db.First(&reloaded, o1.ID).Error)
	assert.Equal(t, model.StatusMissing, reloaded.Status)
	assert.NotNil(t, reloaded.DeliveredAt)

	// 终态上的再次终结是 no_change
	changed, err = lc.MarkMissing(ctx, o1.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = lc.Cancel(ctx, o1.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	o2, err := lc.CreateOrder(ctx, "VIS-01", 1, model.ModeNormal)
	require.NoError(t, err)
	changed, err = lc.Cancel(ctx, o2.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	reloaded = model.Order{}
	require.NoError(t, db.First(&reloaded, o2.ID).Error)
	assert.Equal(t, model.StatusCancelled, reloaded.Status)

	_, err = lc.Cancel(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListPending(t *testing.T) {
	db := newTestDB(t)
	seedFloor(t, db)
	lc := NewLifecycle(db, nil)
	ctx := context.Background()

	o1, err := lc.CreateOrder(ctx, "VIS-01", 1, model.ModeNormal)
	require.NoError(t, err)
	o2, err := lc.CreateOrder(ctx, "VIS-01", 1, model.ModeNormal)
	require.NoError(t, err)
	o3, err := lc.CreateOrder(ctx, "VIS-01", 2, model.ModeCustom)
	require.NoError(t, err)

	// o2 推到 Retrieved（仍算待处理），再造一单取消掉
	_, err = lc.Advance(ctx, o2.ID)
	require.NoError(t, err)
	o4, err := lc.CreateOrder(ctx, "VIS-01", 1, model.ModeNormal)
	require.NoError(t, err)
	_, err = lc.Cancel(ctx, o4.ID)
	require.NoError(t, err)

	pending, err := lc.ListPending(ctx, model.ModeNormal)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, o1.ID, pending[0].ID)
	assert.Equal(t, o2.ID, pending[1].ID)

	pending, err = lc.ListPending(ctx, model.ModeCustom)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, o3.ID, pending[0].ID)
}

func TestPendingFromStand_FollowsRing(t *testing.T) {
	db := newTestDB(t)
	seedFloor(t, db)
	lc := NewLifecycle(db, nil)
	ctx := context.Background()

	// 工位绑定只限制 Normal 模式下的扫码，手工建单随意指定工位
	o1, err := lc.CreateCustomOrder(ctx, 1, 1)
	require.NoError(t, err)
	o2, err := lc.CreateCustomOrder(ctx, 1, 3)
	require.NoError(t, err)
	o3, err := lc.CreateCustomOrder(ctx, 1, 1)
	require.NoError(t, err)
	o4, err := lc.CreateCustomOrder(ctx, 1, 2)
	require.NoError(t, err)

	// 环线 [1 2 3 4] 从 3 号站起步 → [3 4 1 2]
	orders, err := lc.PendingFromStand(ctx, 3, model.ModeCustom)
	require.NoError(t, err)
	require.Len(t, orders, 4)
	assert.Equal(t, o2.ID, orders[0].ID)
	assert.Equal(t, o1.ID, orders[1].ID) // 同站内按建单先后
	assert.Equal(t, o3.ID, orders[2].ID)
	assert.Equal(t, o4.ID, orders[3].ID)
}
