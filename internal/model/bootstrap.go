package model

import "gorm.io/gorm"

// Migrate 为引擎用到的全部表建表/补列。
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Stand{},
		&Box{},
		&GridCell{},
		&Order{},
		&Cycle{},
		&Train{},
	)
}

// Seed 写入车间的基础参考数据（站点、零件箱、两列小火车）。
// 幂等：已存在的主键不会重复插入。
func Seed(db *gorm.DB) error {
	stands := []Stand{
		{ID: 1, Name: "Poste 1", Category: CategoryPost},
		{ID: 2, Name: "Poste 2", Category: CategoryPost},
		{ID: 3, Name: "Poste 3", Category: CategoryPost},
		{ID: 4, Name: "Presse à injecter", Category: CategoryWarehouse},
		{ID: 5, Name: "Magasin externe", Category: CategoryWarehouse},
		{ID: 6, Name: "Tour CN", Category: CategoryWarehouse},
		{ID: 7, Name: "Presse à emboutir", Category: CategoryWarehouse},
	}
	for _, s := range stands {
		if err := db.Where(Stand{ID: s.ID}).FirstOrCreate(&s).Error; err != nil {
			return err
		}
	}

	boxes := []Box{
		{ID: 1, PieceName: "Phare Bas de Gamme", Barcode: "TEST1"},
		{ID: 2, PieceName: "Phare Moyenne Gamme", Barcode: "TEST2"},
		{ID: 3, PieceName: "Phare Haut de Gamme", Barcode: "TEST3"},
		{ID: 4, PieceName: "Vis Diametre 2", Barcode: "TEST4"},
		{ID: 5, PieceName: "Ecrou 6 pans", Barcode: "TEST5"},
		{ID: 6, PieceName: "Vis Diametre 4", Barcode: "TEST6"},
		{ID: 7, PieceName: "Rondelle", Barcode: "TEST7"},
		{ID: 8, PieceName: "Corps de phare", Barcode: "TEST8"},
		{ID: 9, PieceName: "Capot pour phare", Barcode: "TEST9"},
		{ID: 10, PieceName: "Notice", Description: "Notice papier", Barcode: "TEST10"},
		{ID: 6767, PieceName: "Pièce Test (Cahier)", Description: "Objet de test", Barcode: "3601020016223"},
	}
	for _, b := range boxes {
		b.Quantity = 10
		b.ReplenishDelaySec = 120
		if err := db.Where(Box{ID: b.ID}).FirstOrCreate(&b).Error; err != nil {
			return err
		}
	}

	trains := []Train{
		{ID: 1, PositionID: 4, Mode: ModeNormal},
		{ID: 2, PositionID: 1, Mode: ModeCustom},
	}
	for _, t := range trains {
		if err := db.Where(Train{Mode: t.Mode}).FirstOrCreate(&t).Error; err != nil {
			return err
		}
	}
	return nil
}
