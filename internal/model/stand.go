package model

// StandCategory 区分消耗侧工位与供给侧库房。
type StandCategory int

const (
	CategoryPost      StandCategory = iota // 工位（Post，消耗侧）
	CategoryWarehouse                      // 库房（Warehouse，供给侧）
)

// Stand 是车间里的一个物理站点：工位或库房。
type Stand struct {
	ID       uint          `gorm:"primarykey" json:"id"`
	Name     string        `gorm:"size:128;not null" json:"name"`
	Category StandCategory `gorm:"not null;default:0" json:"category"`
}

func (Stand) TableName() string { return "stands" }

// IsWarehouse reports whether the stand is a supply location.
func (s Stand) IsWarehouse() bool { return s.Category == CategoryWarehouse }
