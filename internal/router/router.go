package router

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"milk_run/internal/config"
	"milk_run/internal/engine"
	"milk_run/internal/grid"
	"milk_run/internal/middleware"
	"milk_run/internal/model"
	rediskey "milk_run/pkg/redis"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, db *gorm.DB, rdb *rd.Client, lc *engine.Lifecycle, sched *engine.ReplenishmentScheduler, cfg config.AppConfig) {
	compiler := grid.NewCompiler(db)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})

	// 扫码入口（外部扫码源调用）
	r.POST("/scan", middleware.ScanRateLimit(rdb, cfg.ScanRateLimit, cfg.ScanRateWindow),
		receiveScan(rdb, lc, cfg))

	// 订单
	r.GET("/api/orders/pending", listPending(lc))
	r.GET("/api/orders/from/:stand_id", pendingFromStand(lc))
	r.PUT("/api/orders/:id/advance", advanceOrder(lc))
	r.PUT("/api/orders/:id/missing", markMissing(lc))
	r.DELETE("/api/orders/:id", cancelOrder(lc))

	// 站点 / 小火车 / 布局
	r.GET("/api/stands", listStands(db))
	r.GET("/api/stands/:id/layout", getLayout(rdb))
	r.GET("/api/train/position", trainPosition(db))
	r.PUT("/api/train/position", setTrainPosition(db))
	r.POST("/api/train/forward", moveTrainForward(db))

	// 生产周期
	r.POST("/api/cycles/start", startCycle(db))
	r.POST("/api/cycles/stop", stopCycle(db))
	r.GET("/api/cycles", listCycles(db))
	r.GET("/api/cycles/:id/logs", cycleLogs(db))

	// 管理端
	admin := r.Group("/api/admin", adminOnly(cfg.AdminToken))
	admin.POST("/upload-config", uploadConfig(rdb, compiler, cfg))
	admin.GET("/delays", listDelays(db))
	admin.POST("/delays", updateDelays(db, sched))
	admin.POST("/restock", globalRestock(db))
	admin.POST("/custom-order", createCustomOrder(lc))
	admin.DELETE("/custom-orders", deleteCustomOrders(db))
	admin.GET("/stocks", availableStocks(db))
	admin.GET("/dashboard", dashboard(db))
	admin.GET("/stats", flowStats(db))
	admin.POST("/clear", clearProduction(db))
}

// adminOnly 要求请求携带正确的 X-Admin-Token，避免管理接口被任意调用。
func adminOnly(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-Admin-Token") != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": "admin token 无效"})
			return
		}
		c.Next()
	}
}

// fail 把引擎错误翻译成 HTTP 状态码。
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, engine.ErrInvalidInput), errors.Is(err, engine.ErrCycleActive):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"code": status, "msg": err.Error()})
}

// modeQuery 解析 ?mode= 参数，缺省 Normal，非法值拒绝。
func modeQuery(c *gin.Context) (model.Mode, bool) {
	mode := model.Mode(c.DefaultQuery("mode", string(model.ModeNormal)))
	if !mode.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "mode 必须是 Normal 或 Custom"})
		return "", false
	}
	return mode, true
}

// idParam 解析路径里的整数 id。
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": name + " 无效"})
		return 0, false
	}
	return uint(id), true
}

// receiveScan 是扫码建单入口。
// 关键流程：
// 1. 参数与模式校验
// 2. Redis SETNX 去重（扫码枪连击只放行第一下）
// 3. 引擎建单（含工位绑定校验）+ 广播
func receiveScan(rdb *rd.Client, lc *engine.Lifecycle, cfg config.AppConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Barcode   string     `json:"barcode" binding:"required"`
			StationID uint       `json:"station_id" binding:"required,min=1"`
			Mode      model.Mode `json:"mode"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		if req.Mode == "" {
			req.Mode = model.ModeNormal
		}
		if !req.Mode.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "mode 必须是 Normal 或 Custom"})
			return
		}

		first, err := rediskey.DedupeScanOnce(c.Request.Context(), rdb, req.StationID, req.Barcode, cfg.ScanDedupeTTL)
		if err != nil {
			// Redis 出错时放行（降级策略），去重丢了总比收不了扫码强。
			log.Printf("scan dedupe: %v", err)
			first = true
		}
		if !first {
			c.JSON(http.StatusOK, gin.H{"code": 0, "status": "duplicate", "msg": "扫码重复，已忽略"})
			return
		}

		order, err := lc.CreateOrder(c.Request.Context(), req.Barcode, req.StationID, req.Mode)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "status": "ok", "data": order})
	}
}

func listPending(lc *engine.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		mode, ok := modeQuery(c)
		if !ok {
			return
		}
		orders, err := lc.ListPending(c.Request.Context(), mode)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": orders})
	}
}

// pendingFromStand 按小火车巡回顺序返回待处理订单（调度视图）。
func pendingFromStand(lc *engine.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		standID, ok := idParam(c, "stand_id")
		if !ok {
			return
		}
		mode, ok := modeQuery(c)
		if !ok {
			return
		}
		orders, err := lc.PendingFromStand(c.Request.Context(), standID, mode)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": orders})
	}
}

func advanceOrder(lc *engine.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		res, err := lc.Advance(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		if !res.Changed {
			c.JSON(http.StatusOK, gin.H{"code": 0, "status": "no_change", "data": res.Order})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "status": "ok", "data": res.Order})
	}
}

func markMissing(lc *engine.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		changed, err := lc.MarkMissing(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		status := "ok"
		if !changed {
			status = "no_change"
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "status": status})
	}
}

func cancelOrder(lc *engine.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		changed, err := lc.Cancel(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		status := "ok"
		if !changed {
			status = "no_change"
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "status": status})
	}
}

// listStands 返回 { id: 名称 } 字典，方便前端直接做映射。
func listStands(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var stands []model.Stand
		if err := db.WithContext(c.Request.Context()).Order("id asc").Find(&stands).Error; err != nil {
			fail(c, err)
			return
		}
		out := make(map[string]string, len(stands))
		for _, s := range stands {
			out[strconv.FormatUint(uint64(s.ID), 10)] = s.Name
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": out})
	}
}

func getLayout(rdb *rd.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		standID, ok := idParam(c, "id")
		if !ok {
			return
		}
		raw, found, err := rediskey.GetLayout(c.Request.Context(), rdb, standID)
		if err != nil {
			fail(c, err)
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "该站点还没有布局"})
			return
		}
		c.Data(http.StatusOK, "application/json", raw)
	}
}

func trainPosition(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		mode, ok := modeQuery(c)
		if !ok {
			return
		}
		pos, err := engine.TrainPosition(c.Request.Context(), db, mode)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"position": pos}})
	}
}

func setTrainPosition(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Position uint       `json:"position" binding:"required,min=1"`
			Mode     model.Mode `json:"mode"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		if req.Mode == "" {
			req.Mode = model.ModeNormal
		}
		pos, err := engine.SetTrainPosition(c.Request.Context(), db, req.Mode, req.Position)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"position": pos}})
	}
}

func moveTrainForward(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		mode, ok := modeQuery(c)
		if !ok {
			return
		}
		pos, err := engine.MoveTrainForward(c.Request.Context(), db, mode)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"position": pos}})
	}
}

func startCycle(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		mode, ok := modeQuery(c)
		if !ok {
			return
		}
		cycle, err := engine.StartCycle(c.Request.Context(), db, mode)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": cycle})
	}
}

func stopCycle(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		cycle, err := engine.StopCycle(c.Request.Context(), db)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": cycle})
	}
}

func listCycles(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		mode, ok := modeQuery(c)
		if !ok {
			return
		}
		cycles, err := engine.ListCycles(c.Request.Context(), db, mode)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": cycles})
	}
}

func cycleLogs(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		mode, ok := modeQuery(c)
		if !ok {
			return
		}
		logs, err := engine.CycleLogs(c.Request.Context(), db, id, mode)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"logs": logs}})
	}
}

// uploadConfig 编译管理员上传的货架 CSV，并把布局 JSON 缓存进 Redis
// 供前端 GET 回放。
func uploadConfig(rdb *rd.Client, compiler *grid.Compiler, cfg config.AppConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			StandID    uint   `json:"stand_id" binding:"required,min=1"`
			CSVContent string `json:"csv_content" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}

		layout, err := compiler.Compile(c.Request.Context(), req.StandID, req.CSVContent)
		if err != nil {
			fail(c, err)
			return
		}

		raw, err := json.Marshal(layout)
		if err != nil {
			fail(c, err)
			return
		}
		if err := rediskey.PutLayout(c.Request.Context(), rdb, req.StandID, raw, cfg.LayoutCacheTTL); err != nil {
			// 缓存失败不致命，布局仍随响应返回。
			log.Printf("cache layout stand=%d: %v", req.StandID, err)
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": layout})
	}
}

func listDelays(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		delays, err := engine.BoxDelays(c.Request.Context(), db)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": delays})
	}
}

// updateDelays 批量改写补货延时，落库后给调度器发同步信号。
func updateDelays(db *gorm.DB, sched *engine.ReplenishmentScheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Updates []engine.DelayUpdate `json:"updates" binding:"required,min=1,dive"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		if err := engine.UpdateDelays(c.Request.Context(), db, req.Updates); err != nil {
			fail(c, err)
			return
		}
		sched.Notify()
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "延时已更新"})
	}
}

func globalRestock(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := engine.GlobalRestock(c.Request.Context(), db); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "全局补货完成"})
	}
}

func createCustomOrder(lc *engine.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			BoxID  uint `json:"box_id" binding:"required,min=1"`
			PostID uint `json:"post_id" binding:"required,min=1"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		order, err := lc.CreateCustomOrder(c.Request.Context(), req.BoxID, req.PostID)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": order})
	}
}

func deleteCustomOrders(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := engine.DeleteCustomOrders(c.Request.Context(), db); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "自定义订单已清空"})
	}
}

func availableStocks(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		stocks, err := engine.AvailableStocks(c.Request.Context(), db)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": stocks})
	}
}

func dashboard(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		mode, ok := modeQuery(c)
		if !ok {
			return
		}
		data, err := engine.Dashboard(c.Request.Context(), db, mode)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": data})
	}
}

// flowStats 统计最近 N 小时（默认 24）的送达/取货分布。
func flowStats(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		mode, ok := modeQuery(c)
		if !ok {
			return
		}
		hours, err := strconv.Atoi(c.DefaultQuery("hours", "24"))
		if err != nil || hours <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "hours 无效"})
			return
		}
		since := time.Now().Add(-time.Duration(hours) * time.Hour)
		stats, err := engine.Stats(c.Request.Context(), db, mode, since)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": stats})
	}
}

func clearProduction(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := engine.ClearProductionData(c.Request.Context(), db); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "生产数据已清空"})
	}
}
