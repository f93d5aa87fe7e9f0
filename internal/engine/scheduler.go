package engine

import (
	"context"
	"log"
	"time"

	"milk_run/internal/model"

	"gorm.io/gorm"
)

// ReplenishmentScheduler 模拟供应链按节拍补货：每秒一个 tick，
// 给倒计时归零的箱子 +1 库存。
//
// countdown 只属于调度器自己这一个 goroutine，不需要锁；管理端改完
// 补货延时后通过 Notify 发边沿触发信号，由下一个 tick 消费。
type ReplenishmentScheduler struct {
	db     *gorm.DB
	period time.Duration

	countdown map[uint]int  // boxID → 剩余秒数
	reconfig  chan struct{} // 容量 1，边沿触发
}

// NewReplenishmentScheduler 构造调度器；period 非正时取 1 秒。
func NewReplenishmentScheduler(db *gorm.DB, period time.Duration) *ReplenishmentScheduler {
	if period <= 0 {
		period = time.Second
	}
	return &ReplenishmentScheduler{
		db:        db,
		period:    period,
		countdown: make(map[uint]int),
		reconfig:  make(chan struct{}, 1),
	}
}

// Notify 通知调度器补货延时的配置变了。可以从任意 goroutine 调用，
// 从不阻塞；同一 tick 内多次变更合并成一次同步。
func (s *ReplenishmentScheduler) Notify() {
	select {
	case s.reconfig <- struct{}{}:
	default:
	}
}

// Run 以固定节拍驱动 tick，直到 ctx 取消。单个 tick 的失败只记日志，
// 不会终止循环。
func (s *ReplenishmentScheduler) Run(ctx context.Context) {
	log.Printf("[replenish] scheduler started, tick=%s", s.period)
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[replenish] scheduler stopped: %v", ctx.Err())
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick 是一个完整的调度步：同步配置 → 倒计时递减 → 到期的箱子批量 +1。
// 批量提交失败时保留倒计时现场，下一个 tick 自然重试。
func (s *ReplenishmentScheduler) tick(ctx context.Context) {
	select {
	case <-s.reconfig:
		s.clampToConfigured(ctx)
	default:
	}

	due := make(map[uint]bool)
	for id := range s.countdown {
		s.countdown[id]--
		if s.countdown[id] <= 0 {
			due[id] = true
		}
	}

	// 没到期且已有跟踪对象时不碰数据库。
	if len(due) == 0 && len(s.countdown) > 0 {
		return
	}

	var boxes []model.Box
	if err := s.db.WithContext(ctx).Find(&boxes).Error; err != nil {
		log.Printf("[replenish] load boxes: %v", err)
		return
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, b := range boxes {
			if !due[b.ID] {
				continue
			}
			if err := tx.Model(&model.Box{}).
				Where("id = ?", b.ID).
				Update("quantity", gorm.Expr("quantity + 1")).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("[replenish] commit: %v", err)
		return
	}

	known := make(map[uint]bool, len(boxes))
	for _, b := range boxes {
		known[b.ID] = true
		if _, tracked := s.countdown[b.ID]; !tracked || due[b.ID] {
			s.countdown[b.ID] = b.ReplenishDelaySec
		}
		if due[b.ID] {
			log.Printf("[replenish] +1 stock %s (id=%d)", b.DisplayName(), b.ID)
		}
	}
	// 库里已删除的箱子停止跟踪，避免每个 tick 都空转一次查询。
	for id := range s.countdown {
		if !known[id] {
			delete(s.countdown, id)
		}
	}
}

// clampToConfigured 把剩余倒计时收紧到新配置：缩短立即生效，
// 延长要等当前倒计时自然到期后重置时才生效。
func (s *ReplenishmentScheduler) clampToConfigured(ctx context.Context) {
	var boxes []model.Box
	if err := s.db.WithContext(ctx).Select("id", "replenish_delay_sec").Find(&boxes).Error; err != nil {
		log.Printf("[replenish] reload delays: %v", err)
		return
	}
	for _, b := range boxes {
		if remaining, ok := s.countdown[b.ID]; ok && remaining > b.ReplenishDelaySec {
			s.countdown[b.ID] = b.ReplenishDelaySec
		}
	}
	log.Printf("[replenish] delays synchronized")
}
