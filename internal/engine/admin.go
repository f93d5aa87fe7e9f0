package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"milk_run/internal/model"

	"gorm.io/gorm"
)

// DelayUpdate 是管理端批量调整补货延时的一项。
type DelayUpdate struct {
	BoxID    uint `json:"box_id" binding:"required,min=1"`
	DelaySec int  `json:"delay_sec" binding:"min=0"`
}

// UpdateDelays 在一个事务里批量改写补货延时。负延时拒绝；
// 不存在的箱子跳过不报错（管理端界面可能拿着过期列表）。
// 调用方负责随后给调度器发 Notify。
func UpdateDelays(ctx context.Context, db *gorm.DB, updates []DelayUpdate) error {
	for _, u := range updates {
		if u.DelaySec < 0 {
			return fmt.Errorf("%w: delay for box %d is negative", ErrInvalidInput, u.BoxID)
		}
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			if err := tx.Model(&model.Box{}).
				Where("id = ?", u.BoxID).
				Update("replenish_delay_sec", u.DelaySec).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// BoxDelay 是延时配置页的一行。
type BoxDelay struct {
	BoxID     uint   `json:"box_id"`
	Barcode   string `json:"barcode"`
	PieceName string `json:"piece_name"`
	DelaySec  int    `json:"delay_sec"`
}

// BoxDelays 返回所有箱子的当前补货延时。
func BoxDelays(ctx context.Context, db *gorm.DB) ([]BoxDelay, error) {
	var boxes []model.Box
	if err := db.WithContext(ctx).Order("id asc").Find(&boxes).Error; err != nil {
		return nil, err
	}
	out := make([]BoxDelay, 0, len(boxes))
	for _, b := range boxes {
		out = append(out, BoxDelay{
			BoxID:     b.ID,
			Barcode:   b.Barcode,
			PieceName: b.DisplayName(),
			DelaySec:  b.ReplenishDelaySec,
		})
	}
	return out, nil
}

// GlobalRestock 给所有箱子的库存 +1（管理员手动全局补货）。
func GlobalRestock(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Model(&model.Box{}).
		Where("1 = 1").
		Update("quantity", gorm.Expr("quantity + 1")).Error
}

// ClearProductionData 清空生产数据（格位、订单、周期），
// 保留站点、箱子等基础配置。
func ClearProductionData(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&model.GridCell{}).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&model.Order{}).Error; err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&model.Cycle{}).Error
	})
}

// DeleteCustomOrders 清空自定义模式的全部订单（重新编排发车清单前调用）。
func DeleteCustomOrders(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Where("mode = ?", model.ModeCustom).Delete(&model.Order{}).Error
}

// BoxStock 是自定义建单选择器需要的箱子投影。
type BoxStock struct {
	BoxID          uint   `json:"box_id"`
	Name           string `json:"name"`
	Barcode        string `json:"barcode"`
	Quantity       int    `json:"quantity"`
	AssignedPostID *uint  `json:"assigned_post_id"`
}

// AvailableStocks 返回全部箱子的库存视图。
func AvailableStocks(ctx context.Context, db *gorm.DB) ([]BoxStock, error) {
	var boxes []model.Box
	if err := db.WithContext(ctx).Order("id asc").Find(&boxes).Error; err != nil {
		return nil, err
	}
	out := make([]BoxStock, 0, len(boxes))
	for _, b := range boxes {
		out = append(out, BoxStock{
			BoxID:          b.ID,
			Name:           b.DisplayName(),
			Barcode:        b.Barcode,
			Quantity:       b.Quantity,
			AssignedPostID: b.HomePostID,
		})
	}
	return out, nil
}

// FlowStats 统计一段时间内的流量：各工位收到的送达数、各库房被取货的次数。
type FlowStats struct {
	DeliveredByPost      map[uint]int `json:"delivered_by_post"`
	RetrievedByWarehouse map[uint]int `json:"retrieved_by_warehouse"`
}

// Stats 统计 since 之后某模式的送达/取货分布。
func Stats(ctx context.Context, db *gorm.DB, mode model.Mode, since time.Time) (FlowStats, error) {
	var orders []model.Order
	if err := db.WithContext(ctx).
		Where("mode = ? AND created_at >= ?", mode, since).
		Find(&orders).Error; err != nil {
		return FlowStats{}, err
	}

	stats := FlowStats{
		DeliveredByPost:      make(map[uint]int),
		RetrievedByWarehouse: make(map[uint]int),
	}
	for _, o := range orders {
		if o.Status == model.StatusCompleted {
			stats.DeliveredByPost[o.PostID]++
		}
		if o.RetrievedAt != nil && o.WarehouseID != nil {
			stats.RetrievedByWarehouse[*o.WarehouseID]++
		}
	}
	return stats, nil
}

// DashboardEntry 是管理看板历史区的一行：同一（对象, 来源, 目的地,
// 状态, 周期）的订单折叠成一条并计数，时间取最近一单。
type DashboardEntry struct {
	OrderID    uint   `json:"order_id"`
	Object     string `json:"object"`
	Status     string `json:"status"`
	Count      int    `json:"count"`
	Time       string `json:"time"`
	DateFull   string `json:"date_full"`
	CycleID    *uint  `json:"cycle_id"`
	SourceID   *uint  `json:"source_id"`
	SourceName string `json:"source_name"`
	DestID     uint   `json:"dest_id"`
	DestName   string `json:"dest_name"`
}

// DashboardData 汇总站点列表与折叠后的订单历史。
type DashboardData struct {
	Stands  []model.Stand    `json:"stands"`
	History []DashboardEntry `json:"history"`
}

// Dashboard 组装管理看板数据。
func Dashboard(ctx context.Context, db *gorm.DB, mode model.Mode) (DashboardData, error) {
	var stands []model.Stand
	if err := db.WithContext(ctx).Order("id asc").Find(&stands).Error; err != nil {
		return DashboardData{}, err
	}
	standNames := make(map[uint]string, len(stands))
	for _, s := range stands {
		standNames[s.ID] = s.Name
	}

	cycles, err := ListCycles(ctx, db, mode)
	if err != nil {
		return DashboardData{}, err
	}
	if len(cycles) == 0 {
		return DashboardData{Stands: stands, History: []DashboardEntry{}}, nil
	}

	var orders []model.Order
	if err := db.WithContext(ctx).
		Where("mode = ?", mode).
		Order("created_at desc").
		Find(&orders).Error; err != nil {
		return DashboardData{}, err
	}

	boxNames, _, err := displayNames(ctx, db)
	if err != nil {
		return DashboardData{}, err
	}

	type groupKey struct {
		object  string
		source  uint
		dest    uint
		status  model.OrderStatus
		cycleID uint
	}
	type groupVal struct {
		entry   DashboardEntry
		rawDate time.Time
	}
	grouped := make(map[groupKey]*groupVal)
	now := time.Now()

	for _, o := range orders {
		var cycleID *uint
		for _, cy := range cycles {
			end := now
			if cy.EndedAt != nil {
				end = *cy.EndedAt
			}
			if !o.CreatedAt.Before(cy.StartedAt) && !o.CreatedAt.After(end) {
				id := cy.ID
				cycleID = &id
				break
			}
		}

		object := boxNames[o.BoxID]
		if object == "" {
			object = "Objet Inconnu"
		}

		key := groupKey{object: object, dest: o.PostID, status: o.Status}
		if o.WarehouseID != nil {
			key.source = *o.WarehouseID
		}
		if cycleID != nil {
			key.cycleID = *cycleID
		}

		if g, ok := grouped[key]; ok {
			g.entry.Count++
			if o.CreatedAt.After(g.rawDate) {
				g.rawDate = o.CreatedAt
				g.entry.Time = o.CreatedAt.Format("15:04")
				g.entry.DateFull = o.CreatedAt.Format("02/01 15:04")
			}
			continue
		}

		sourceName := "Inconnu"
		if o.WarehouseID != nil && standNames[*o.WarehouseID] != "" {
			sourceName = standNames[*o.WarehouseID]
		}
		destName := standNames[o.PostID]
		if destName == "" {
			destName = "Inconnu"
		}

		grouped[key] = &groupVal{
			rawDate: o.CreatedAt,
			entry: DashboardEntry{
				OrderID:    o.ID,
				Object:     object,
				Status:     o.Status.Label(),
				Count:      1,
				Time:       o.CreatedAt.Format("15:04"),
				DateFull:   o.CreatedAt.Format("02/01 15:04"),
				CycleID:    cycleID,
				SourceID:   o.WarehouseID,
				SourceName: sourceName,
				DestID:     o.PostID,
				DestName:   destName,
			},
		}
	}

	history := make([]DashboardEntry, 0, len(grouped))
	dates := make(map[uint]time.Time, len(grouped))
	for _, g := range grouped {
		history = append(history, g.entry)
		dates[g.entry.OrderID] = g.rawDate
	}
	sort.Slice(history, func(i, j int) bool {
		return dates[history[i].OrderID].After(dates[history[j].OrderID])
	})

	return DashboardData{Stands: stands, History: history}, nil
}
