// Package grid 把管理员上传的货架 CSV 编译成规范化的格位分配：
// 相邻同值的格子用洪泛填充合并成一个区域，区域锚点落库，
// 同时产出前端 CSS-grid 渲染用的布局描述。
package grid

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"

	"milk_run/internal/engine"
	"milk_run/internal/model"

	"gorm.io/gorm"
)

// Placement 是 CSS grid 的摆放描述（"2 / span 3" 形式）。
type Placement struct {
	GridRow    string `json:"gridRow"`
	GridColumn string `json:"gridColumn"`
}

// Item 是布局里的一个合并区域；空位（X）的 Val 为空串。
type Item struct {
	ID    string    `json:"id"`
	Val   string    `json:"val"`
	Style Placement `json:"style"`
}

// Template 描述整张网格的行列模板。
type Template struct {
	TemplateRows    string `json:"templateRows"`
	TemplateColumns string `json:"templateColumns"`
}

// Layout 是编译产物，直接序列化给前端。
type Layout struct {
	Layout Template `json:"layout"`
	Items  []Item   `json:"items"`
}

// Compiler 持有存储句柄；一次 Compile 对应一次管理员上传。
type Compiler struct {
	db *gorm.DB
}

func NewCompiler(db *gorm.DB) *Compiler {
	return &Compiler{db: db}
}

// Compile 处理一张站点配置表：
//  1. 首行首格非空时重命名站点；
//  2. 整体重建该站点的格位（全量替换）；
//  3. 第 2 行起为网格：四邻域合并同值格子，区域锚点写 GridCell，
//     并按站点类别回写箱子的常驻库房/绑定工位；
//  4. 条码查不到箱子时只渲染不落库；非相邻的同值区域各自落库，后写覆盖先写。
//
// CSV 为空返回 ErrInvalidInput，站点不存在返回 ErrNotFound，两者都不产生写入。
func (c *Compiler) Compile(ctx context.Context, standID uint, csvContent string) (Layout, error) {
	reader := csv.NewReader(strings.NewReader(csvContent))
	reader.FieldsPerRecord = -1 // 行长允许参差
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return Layout{}, fmt.Errorf("%w: %v", engine.ErrInvalidInput, err)
	}
	if len(rows) == 0 {
		return Layout{}, fmt.Errorf("%w: empty csv", engine.ErrInvalidInput)
	}

	var layout Layout
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stand model.Stand
		if err := tx.First(&stand, standID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return engine.ErrNotFound
			}
			return err
		}

		if len(rows[0]) > 0 {
			if name := strings.TrimSpace(rows[0][0]); name != "" {
				stand.Name = name
				if err := tx.Model(&stand).Update("name", name).Error; err != nil {
					return err
				}
			}
		}

		// 旧格位整体作废，按新表重建。
		if err := tx.Where("stand_id = ?", standID).Delete(&model.GridCell{}).Error; err != nil {
			return err
		}

		cells := normalize(rows[1:])
		layout = Layout{Items: []Item{}}
		nbRows, nbCols := len(cells), 0
		for _, r := range cells {
			if len(r) > nbCols {
				nbCols = len(r)
			}
		}
		layout.Layout = Template{
			TemplateRows:    fmt.Sprintf("repeat(%d, 1fr)", nbRows),
			TemplateColumns: fmt.Sprintf("repeat(%d, 1fr)", nbCols),
		}

		for _, region := range mergeRegions(cells) {
			item := Item{
				ID:  fmt.Sprintf("%d-%d", region.anchorRow, region.anchorCol),
				Val: region.token,
				Style: Placement{
					GridRow:    fmt.Sprintf("%d / span %d", region.rowStart, region.rowSpan),
					GridColumn: fmt.Sprintf("%d / span %d", region.colStart, region.colSpan),
				},
			}

			if region.empty() {
				item.Val = ""
				layout.Items = append(layout.Items, item)
				continue
			}

			var box model.Box
			err := tx.Where("barcode = ?", region.token).First(&box).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				// 未知条码只参与渲染，不落库。
			case err != nil:
				return err
			default:
				if err := upsertCell(tx, standID, box.ID, region.rowStart, region.colStart); err != nil {
					return err
				}
				column := "home_post_id"
				if stand.IsWarehouse() {
					column = "home_warehouse_id"
				}
				if err := tx.Model(&box).Update(column, standID).Error; err != nil {
					return err
				}
			}
			layout.Items = append(layout.Items, item)
		}
		return nil
	})
	if err != nil {
		return Layout{}, err
	}
	return layout, nil
}

// upsertCell 保证一个箱子在一个站点快照里至多占一个格位：
// 先清掉该箱子的旧锚点再写新锚点（重复条码区域后写覆盖先写）。
func upsertCell(tx *gorm.DB, standID, boxID uint, row, col int) error {
	if err := tx.Where("stand_id = ? AND box_id = ?", standID, boxID).
		Delete(&model.GridCell{}).Error; err != nil {
		return err
	}
	return tx.Create(&model.GridCell{
		StandID: standID,
		BoxID:   boxID,
		Row:     row,
		Col:     col,
	}).Error
}

// normalize 去掉每格首尾空白并丢弃整行全空的行。
func normalize(rows [][]string) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		cleaned := make([]string, len(r))
		blank := true
		for i, cell := range r {
			cleaned[i] = strings.TrimSpace(cell)
			if cleaned[i] != "" {
				blank = false
			}
		}
		if !blank {
			out = append(out, cleaned)
		}
	}
	return out
}

// region 是一片四邻域相连、取值相同的格子的包围盒（对外 1 起始）。
type region struct {
	token                string
	anchorRow, anchorCol int
	rowStart, colStart   int
	rowSpan, colSpan     int
}

// empty 表示哨兵值 X：只是视觉占位，不对应任何箱子。
func (r region) empty() bool { return strings.EqualFold(r.token, "X") }

// mergeRegions 按行优先扫描网格，对每个未访问的非空格子做显式栈的
// 深度优先搜索（上下左右），把同值相邻格子合并成一个区域。
func mergeRegions(cells [][]string) []region {
	type pos struct{ r, c int }
	visited := make(map[pos]bool)
	regions := []region{}

	for r := range cells {
		for c := range cells[r] {
			if visited[pos{r, c}] || cells[r][c] == "" {
				continue
			}
			token := cells[r][c]

			stack := []pos{{r, c}}
			visited[pos{r, c}] = true
			minR, maxR, minC, maxC := r, r, c, c
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if p.r < minR {
					minR = p.r
				}
				if p.r > maxR {
					maxR = p.r
				}
				if p.c < minC {
					minC = p.c
				}
				if p.c > maxC {
					maxC = p.c
				}
				for _, d := range [4]pos{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
					n := pos{p.r + d.r, p.c + d.c}
					if n.r < 0 || n.r >= len(cells) || n.c < 0 || n.c >= len(cells[n.r]) {
						continue
					}
					if visited[n] || cells[n.r][n.c] != token {
						continue
					}
					visited[n] = true
					stack = append(stack, n)
				}
			}

			regions = append(regions, region{
				token:     token,
				anchorRow: r,
				anchorCol: c,
				rowStart:  minR + 1,
				colStart:  minC + 1,
				rowSpan:   maxR - minR + 1,
				colSpan:   maxC - minC + 1,
			})
		}
	}
	return regions
}
