package engine

import (
	"context"
	"testing"

	"milk_run/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotate(t *testing.T) {
	ring := []uint{1, 2, 3, 4}

	assert.Equal(t, []uint{3, 4, 1, 2}, Rotate(ring, 3))
	assert.Equal(t, []uint{1, 2, 3, 4}, Rotate(ring, 1))

	// 起点不在环上：原样返回，不报错
	assert.Equal(t, []uint{1, 2, 3, 4}, Rotate(ring, 9))

	assert.Empty(t, Rotate(nil, 1))

	// 原切片不能被改动
	Rotate(ring, 3)
	assert.Equal(t, []uint{1, 2, 3, 4}, ring)
}

func TestMoveTrainForward_WrapsAround(t *testing.T) {
	db := newTestDB(t)
	seedFloor(t, db)
	require.NoError(t, db.Create(&model.Train{ID: 1, PositionID: 4, Mode: model.ModeNormal}).Error)
	ctx := context.Background()

	pos, err := MoveTrainForward(ctx, db, model.ModeNormal)
	require.NoError(t, err)
	assert.Equal(t, uint(1), pos) // 末站之后回到首站

	var train model.Train
	require.NoError(t, db.First(&train, 1).Error)
	assert.Equal(t, uint(1), train.PositionID)
}

func TestTrainPosition_HealsStalePosition(t *testing.T) {
	db := newTestDB(t)
	seedFloor(t, db)
	// 停靠站 99 已不存在，读取时应回退到环线首站
	require.NoError(t, db.Create(&model.Train{ID: 1, PositionID: 99, Mode: model.ModeNormal}).Error)

	pos, err := TrainPosition(context.Background(), db, model.ModeNormal)
	require.NoError(t, err)
	assert.Equal(t, uint(1), pos)
}

func TestMoveTrainForward_NoTrain(t *testing.T) {
	db := newTestDB(t)
	seedFloor(t, db)

	_, err := MoveTrainForward(context.Background(), db, model.ModeCustom)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMoveTrainForward_NoStands(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&model.Train{ID: 1, PositionID: 1, Mode: model.ModeNormal}).Error)

	_, err := MoveTrainForward(context.Background(), db, model.ModeNormal)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetTrainPosition_CreatesMissingTrain(t *testing.T) {
	db := newTestDB(t)
	seedFloor(t, db)
	ctx := context.Background()

	pos, err := SetTrainPosition(ctx, db, model.ModeCustom, 2)
	require.NoError(t, err)
	assert.Equal(t, uint(2), pos)

	var train model.Train
	require.NoError(t, db.Where("mode = ?", model.ModeCustom).First(&train).Error)
	assert.Equal(t, uint(2), train.PositionID)

	// 已有记录时只改写停靠站
	pos, err = SetTrainPosition(ctx, db, model.ModeCustom, 3)
	require.NoError(t, err)
	assert.Equal(t, uint(3), pos)

	var count int64
	require.NoError(t, db.Model(&model.Train{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}
