package crdt

import "errors"

// Sentinel errors
var (
	// ErrUnknownOperation 未知操作变体（畸形远端输入，拒绝并丢弃）
	ErrUnknownOperation = errors.New("crdt: unknown operation variant")

	// ErrDanglingOperation 悬挂操作超时（父元素/目标元素始终未到达）
	//
	// 可恢复告警：状态不会被破坏，超时条目被丢弃。
	ErrDanglingOperation = errors.New("crdt: dangling operation timed out")

	// ErrTombstoned 目标元素已被删除
	ErrTombstoned = errors.New("crdt: element is tombstoned")

	// ErrElementNotFound 目标元素不存在
	ErrElementNotFound = errors.New("crdt: element not found")
)
