package engine

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"milk_run/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Lifecycle 驱动订单状态机。所有状态迁移都在单个事务里完成，
// 保证状态与库存不会写一半。
type Lifecycle struct {
	db *gorm.DB
	bc Broadcaster
}

// NewLifecycle 构造订单生命周期引擎；bc 可为 nil（不广播）。
func NewLifecycle(db *gorm.DB, bc Broadcaster) *Lifecycle {
	return &Lifecycle{db: db, bc: bc}
}

// AdvanceResult 区分「真的迁移了」与「终态上的幂等空转」。
type AdvanceResult struct {
	Changed bool
	Order   model.Order
}

// CreateOrder 处理一次扫码：按条码定位箱子、校验工位绑定、落一条
// Requested 订单，再向看板广播扫码事件。
// Normal 模式下在工位扫码时，箱子若绑定了别的工位则返回 ErrForbidden。
func (l *Lifecycle) CreateOrder(ctx context.Context, barcode string, stationID uint, mode model.Mode) (model.Order, error) {
	db := l.db.WithContext(ctx)

	var box model.Box
	if err := db.Where("barcode = ?", barcode).First(&box).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Order{}, ErrNotFound
		}
		return model.Order{}, err
	}
	var stand model.Stand
	if err := db.First(&stand, stationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Order{}, ErrNotFound
		}
		return model.Order{}, err
	}

	if mode == model.ModeNormal && stand.Category == model.CategoryPost {
		if box.HomePostID != nil && *box.HomePostID != stationID {
			return model.Order{}, ErrForbidden
		}
	}

	order := model.Order{
		BoxID:       box.ID,
		WarehouseID: box.HomeWarehouseID,
		PostID:      stationID,
		Status:      model.StatusRequested,
		Mode:        mode,
	}
	if err := db.Create(&order).Error; err != nil {
		return model.Order{}, err
	}

	l.broadcastScan(ctx, order, box)
	return order, nil
}

// CreateCustomOrder 是管理端的手工建单入口（自定义发车清单），
// 不做工位绑定校验，订单固定为 Custom 模式。
func (l *Lifecycle) CreateCustomOrder(ctx context.Context, boxID, postID uint) (model.Order, error) {
	db := l.db.WithContext(ctx)

	var box model.Box
	if err := db.First(&box, boxID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Order{}, ErrNotFound
		}
		return model.Order{}, err
	}

	order := model.Order{
		BoxID:       box.ID,
		WarehouseID: box.HomeWarehouseID,
		PostID:      postID,
		Status:      model.StatusRequested,
		Mode:        model.ModeCustom,
	}
	if err := db.Create(&order).Error; err != nil {
		return model.Order{}, err
	}
	return order, nil
}

// Advance 让订单沿主线前进一步：
// Requested → Retrieved（记录取货时间并在同一事务里扣减箱子库存），
// Retrieved → Completed（记录送达时间）。已在终态时返回 no_change，不写库。
func (l *Lifecycle) Advance(ctx context.Context, orderID uint) (AdvanceResult, error) {
	var res AdvanceResult
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order model.Order
		if err := tx.First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		now := time.Now()
		switch order.Status {
		case model.StatusRequested:
			order.Status = model.StatusRetrieved
			order.RetrievedAt = &now
			if err := tx.Model(&order).Select("status", "retrieved_at").Updates(&order).Error; err != nil {
				return err
			}
			// 库存下限为 0：已经空了就只迁移状态，不再扣减。
			if err := tx.Model(&model.Box{}).
				Where("id = ? AND quantity > 0", order.BoxID).
				Update("quantity", gorm.Expr("quantity - 1")).Error; err != nil {
				return err
			}
		case model.StatusRetrieved:
			order.Status = model.StatusCompleted
			order.DeliveredAt = &now
			if err := tx.Model(&order).Select("status", "delivered_at").Updates(&order).Error; err != nil {
				return err
			}
		default:
			res = AdvanceResult{Changed: false, Order: order}
			return nil
		}

		res = AdvanceResult{Changed: true, Order: order}
		return nil
	})
	if err != nil {
		return AdvanceResult{}, err
	}
	return res, nil
}

// MarkMissing 把未完结的订单标记为缺件（终态）。
// 订单已在终态时按 no_change 处理，返回 false。
func (l *Lifecycle) MarkMissing(ctx context.Context, orderID uint) (bool, error) {
	return l.terminate(ctx, orderID, model.StatusMissing)
}

// Cancel 取消未完结的订单（终态）。终态订单同样按 no_change 处理。
func (l *Lifecycle) Cancel(ctx context.Context, orderID uint) (bool, error) {
	return l.terminate(ctx, orderID, model.StatusCancelled)
}

func (l *Lifecycle) terminate(ctx context.Context, orderID uint, to model.OrderStatus) (bool, error) {
	changed := false
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order model.Order
		if err := tx.First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if order.Status.Terminal() {
			return nil
		}

		now := time.Now()
		order.Status = to
		order.DeliveredAt = &now
		if err := tx.Model(&order).Select("status", "delivered_at").Updates(&order).Error; err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// ListPending 返回某模式下所有未完结（非 Completed/Cancelled）的订单，按 id 升序。
func (l *Lifecycle) ListPending(ctx context.Context, mode model.Mode) ([]model.Order, error) {
	var orders []model.Order
	err := l.db.WithContext(ctx).
		Where("mode = ? AND status NOT IN ?", mode, []model.OrderStatus{model.StatusCompleted, model.StatusCancelled}).
		Order("id asc").
		Find(&orders).Error
	return orders, err
}

// PendingFromStand 按小火车的巡回顺序返回待处理订单：
// 站点环从 startID 开始旋转，站内按订单 id 先进先出。
func (l *Lifecycle) PendingFromStand(ctx context.Context, startID uint, mode model.Mode) ([]model.Order, error) {
	ring, err := standRing(ctx, l.db)
	if err != nil {
		return nil, err
	}
	pending, err := l.ListPending(ctx, mode)
	if err != nil {
		return nil, err
	}

	byPost := make(map[uint][]model.Order, len(ring))
	for _, o := range pending {
		byPost[o.PostID] = append(byPost[o.PostID], o)
	}

	out := make([]model.Order, 0, len(pending))
	for _, standID := range Rotate(ring, startID) {
		out = append(out, byPost[standID]...)
	}
	return out, nil
}

// broadcastScan 组装并发出扫码通知。失败只记日志：广播是尽力而为，
// 不能因为看板掉线而拒绝一次合法扫码。
func (l *Lifecycle) broadcastScan(ctx context.Context, order model.Order, box model.Box) {
	if l.bc == nil {
		return
	}
	db := l.db.WithContext(ctx)

	ev := ScanEvent{
		EventID:    uuid.New().String(),
		OrderID:    order.ID,
		Mode:       order.Mode,
		StationID:  order.PostID,
		Barcode:    box.Barcode,
		PieceName:  box.DisplayName(),
		StockLevel: box.Quantity,
		Timestamp:  time.Now(),
		Row:        "-",
		Col:        "-",
	}

	ev.WarehouseName = "Non localisé"
	if box.HomeWarehouseID != nil {
		var warehouse model.Stand
		if err := db.First(&warehouse, *box.HomeWarehouseID).Error; err == nil {
			ev.WarehouseName = warehouse.Name
		}
		var cell model.GridCell
		if err := db.Where("box_id = ? AND stand_id = ?", box.ID, *box.HomeWarehouseID).First(&cell).Error; err == nil {
			ev.Row = strconv.Itoa(cell.Row)
			ev.Col = strconv.Itoa(cell.Col)
		}
	}

	if err := l.bc.Broadcast(ctx, ev); err != nil {
		log.Printf("broadcast scan order=%d: %v", order.ID, err)
	}
}
