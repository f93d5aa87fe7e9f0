package engine

import (
	"context"
	"errors"

	"milk_run/internal/model"

	"gorm.io/gorm"
)

// Rotate 返回以 startID 为首、保持相对顺序的环形排列。
// startID 不在环上时原样返回（从下标 0 开始），不视为错误。
func Rotate(ids []uint, startID uint) []uint {
	for i, id := range ids {
		if id == startID {
			out := make([]uint, 0, len(ids))
			out = append(out, ids[i:]...)
			out = append(out, ids[:i]...)
			return out
		}
	}
	out := make([]uint, len(ids))
	copy(out, ids)
	return out
}

// standRing 每次都从库里重读站点环（按 id 升序），容忍站点的增删。
func standRing(ctx context.Context, db *gorm.DB) ([]uint, error) {
	var ids []uint
	if err := db.WithContext(ctx).Model(&model.Stand{}).Order("id asc").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// resolveTrain 装载某模式的小火车并对照当前环线校正：
// 持久化的停靠站已不在环上时回退到环线首站。
func resolveTrain(ctx context.Context, db *gorm.DB, mode model.Mode) (model.Train, []uint, int, error) {
	ring, err := standRing(ctx, db)
	if err != nil {
		return model.Train{}, nil, 0, err
	}
	if len(ring) == 0 {
		return model.Train{}, nil, 0, ErrNotFound
	}

	var train model.Train
	if err := db.WithContext(ctx).Where("mode = ?", mode).First(&train).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Train{}, nil, 0, ErrNotFound
		}
		return model.Train{}, nil, 0, err
	}

	index := 0
	for i, id := range ring {
		if id == train.PositionID {
			index = i
			break
		}
	}
	train.PositionID = ring[index]
	return train, ring, index, nil
}

// TrainPosition 返回小火车当前停靠的站点 id（已对照环线自愈）。
func TrainPosition(ctx context.Context, db *gorm.DB, mode model.Mode) (uint, error) {
	train, _, _, err := resolveTrain(ctx, db, mode)
	if err != nil {
		return 0, err
	}
	return train.PositionID, nil
}

// MoveTrainForward 让小火车前进一站（环形取模）并持久化新停靠站。
func MoveTrainForward(ctx context.Context, db *gorm.DB, mode model.Mode) (uint, error) {
	train, ring, index, err := resolveTrain(ctx, db, mode)
	if err != nil {
		return 0, err
	}
	next := ring[(index+1)%len(ring)]
	if err := db.WithContext(ctx).Model(&model.Train{}).
		Where("id = ?", train.ID).
		Update("position_id", next).Error; err != nil {
		return 0, err
	}
	return next, nil
}

// SetTrainPosition 管理端直接改写停靠站；该模式还没有小火车记录时顺手补建。
func SetTrainPosition(ctx context.Context, db *gorm.DB, mode model.Mode, standID uint) (uint, error) {
	var train model.Train
	err := db.WithContext(ctx).Where("mode = ?", mode).First(&train).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		train = model.Train{PositionID: standID, Mode: mode}
		if err := db.WithContext(ctx).Create(&train).Error; err != nil {
			return 0, err
		}
	case err != nil:
		return 0, err
	default:
		if err := db.WithContext(ctx).Model(&train).Update("position_id", standID).Error; err != nil {
			return 0, err
		}
	}
	return standID, nil
}
