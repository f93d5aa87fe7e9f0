package engine

import "errors"

// 引擎对外的错误分类。调用方用 errors.Is 判别后映射为 HTTP 状态码。
var (
	// ErrNotFound 引用的箱子/站点/订单不存在，未发生任何写入。
	ErrNotFound = errors.New("not found")
	// ErrForbidden 箱子绑定了别的工位，当前扫码被拒绝。
	ErrForbidden = errors.New("box is pinned to another post")
	// ErrInvalidInput 上传的网格 CSV 为空或无法解析。
	ErrInvalidInput = errors.New("invalid input")
	// ErrCycleActive 同一模式下已有未结束的生产周期。
	ErrCycleActive = errors.New("a cycle is already running")
)
