package model

// GridCell 是站点货架上的一个格位：某箱子在某站点网格中的锚点坐标。
// 同一站点的 (Row, Col) 唯一；网格重新编译时该站点的格位整体重建。
type GridCell struct {
	ID      uint `gorm:"primarykey" json:"id"`
	StandID uint `gorm:"not null;uniqueIndex:uq_cell_stand_pos,priority:1" json:"stand_id"`
	BoxID   uint `gorm:"not null;index" json:"box_id"`
	Row     int  `gorm:"not null;uniqueIndex:uq_cell_stand_pos,priority:2" json:"row"`
	Col     int  `gorm:"not null;uniqueIndex:uq_cell_stand_pos,priority:3" json:"col"`
}

func (GridCell) TableName() string { return "grid_cells" }
