package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"milk_run/internal/model"

	"gorm.io/gorm"
)

// StartCycle 开启一个新的生产周期。同一模式已有未结束的周期时返回 ErrCycleActive。
func StartCycle(ctx context.Context, db *gorm.DB, mode model.Mode) (model.Cycle, error) {
	var cycle model.Cycle
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active model.Cycle
		err := tx.Where("ended_at IS NULL AND mode = ?", mode).First(&active).Error
		if err == nil {
			return ErrCycleActive
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		cycle = model.Cycle{StartedAt: time.Now(), Mode: mode}
		return tx.Create(&cycle).Error
	})
	if err != nil {
		return model.Cycle{}, err
	}
	return cycle, nil
}

// StopCycle 结束当前未完结的周期（不分模式，跟遗留行为一致）。
// 没有进行中的周期时返回 ErrNotFound。
func StopCycle(ctx context.Context, db *gorm.DB) (model.Cycle, error) {
	var active model.Cycle
	if err := db.WithContext(ctx).Where("ended_at IS NULL").First(&active).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Cycle{}, ErrNotFound
		}
		return model.Cycle{}, err
	}
	now := time.Now()
	active.EndedAt = &now
	if err := db.WithContext(ctx).Model(&active).Update("ended_at", now).Error; err != nil {
		return model.Cycle{}, err
	}
	return active, nil
}

// ListCycles 按开始时间倒序返回某模式的全部周期。
func ListCycles(ctx context.Context, db *gorm.DB, mode model.Mode) ([]model.Cycle, error) {
	var cycles []model.Cycle
	err := db.WithContext(ctx).
		Where("mode = ?", mode).
		Order("started_at desc").
		Find(&cycles).Error
	return cycles, err
}

// CycleLogs 把某个周期内的订单活动渲染成看板用的文本日志（时间倒序）。
// 文案沿用遗留前端期待的法语格式。
func CycleLogs(ctx context.Context, db *gorm.DB, cycleID uint, mode model.Mode) ([]string, error) {
	var cycle model.Cycle
	if err := db.WithContext(ctx).Where("id = ? AND mode = ?", cycleID, mode).First(&cycle).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	end := time.Now()
	if cycle.EndedAt != nil {
		end = *cycle.EndedAt
	}

	var orders []model.Order
	if err := db.WithContext(ctx).
		Where("mode = ? AND created_at >= ? AND created_at <= ?", mode, cycle.StartedAt, end).
		Find(&orders).Error; err != nil {
		return nil, err
	}

	boxNames, standNames, err := displayNames(ctx, db)
	if err != nil {
		return nil, err
	}

	suffix := ""
	if mode == model.ModeCustom {
		suffix = " (Personnalisé)"
	}

	type event struct {
		t   time.Time
		msg string
	}
	events := make([]event, 0, len(orders)*3)
	for _, o := range orders {
		piece := boxNames[o.BoxID]
		if piece == "" {
			piece = "Inconnu"
		}
		post := standNames[o.PostID]
		if post == "" {
			post = "?"
		}
		warehouse := "?"
		if o.WarehouseID != nil && standNames[*o.WarehouseID] != "" {
			warehouse = standNames[*o.WarehouseID]
		}

		events = append(events, event{o.CreatedAt,
			fmt.Sprintf("[%s] Demande : %s (par %s)%s", o.CreatedAt.Format("15:04:05"), piece, post, suffix)})
		if o.RetrievedAt != nil {
			events = append(events, event{*o.RetrievedAt,
				fmt.Sprintf("[%s] Retrait : %s (au %s)%s", o.RetrievedAt.Format("15:04:05"), piece, warehouse, suffix)})
		}
		if o.DeliveredAt != nil {
			label, place := "Livré", fmt.Sprintf(" (au %s)", post)
			if o.Status == model.StatusCancelled {
				label, place = "Annulé", ""
			}
			events = append(events, event{*o.DeliveredAt,
				fmt.Sprintf("[%s] %s : %s%s%s", o.DeliveredAt.Format("15:04:05"), label, piece, place, suffix)})
		}
	}

	sort.Slice(events, func(i, j int) bool { return events[i].t.After(events[j].t) })

	logs := make([]string, 0, len(events))
	for _, e := range events {
		logs = append(logs, e.msg)
	}
	if len(logs) == 0 {
		logs = append(logs, fmt.Sprintf("Aucune activité dans ce cycle %s.", mode))
	}
	return logs, nil
}

// displayNames 一次性捞出箱子与站点的展示名，避免日志渲染时逐行查库。
func displayNames(ctx context.Context, db *gorm.DB) (map[uint]string, map[uint]string, error) {
	var boxes []model.Box
	if err := db.WithContext(ctx).Select("id", "piece_name", "barcode").Find(&boxes).Error; err != nil {
		return nil, nil, err
	}
	boxNames := make(map[uint]string, len(boxes))
	for _, b := range boxes {
		boxNames[b.ID] = b.DisplayName()
	}

	var stands []model.Stand
	if err := db.WithContext(ctx).Find(&stands).Error; err != nil {
		return nil, nil, err
	}
	standNames := make(map[uint]string, len(stands))
	for _, s := range stands {
		standNames[s.ID] = s.Name
	}
	return boxNames, standNames, nil
}
