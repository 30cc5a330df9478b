package types

import (
	"errors"
	"fmt"
)

// ============================================================================
//                              DocumentOperation
// ============================================================================

// OperationKind 文档操作类型
type OperationKind uint8

const (
	// OpInsert 插入新元素
	OpInsert OperationKind = iota + 1
	// OpDelete 删除元素（标记墓碑，不物理移除）
	OpDelete
	// OpUpdate 替换已有元素的值
	OpUpdate
)

// String 返回操作类型名称
func (k OperationKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpDelete:
		return "delete"
	case OpUpdate:
		return "update"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// IsValid 检查操作类型是否已知
func (k OperationKind) IsValid() bool {
	return k == OpInsert || k == OpDelete || k == OpUpdate
}

// ErrInvalidOperation 操作字段不合法
var ErrInvalidOperation = errors.New("invalid document operation")

// DocumentOperation 文档操作（带标签的变体类型）
//
// 三种变体共享一个结构，Kind 决定哪些字段有效：
//
//   - Insert: ID + Value + Position（建议位置）+ Parent（可选，锚定排序）
//   - Delete: ID 指向目标元素
//   - Update: ID 指向目标元素 + Value 为新值
//
// ID 在文档生命周期内全局唯一，由产生操作的引擎分配。
type DocumentOperation struct {
	// Kind 操作变体
	Kind OperationKind

	// ID 操作的因果标识
	//
	// Insert 时是新元素的标识；Delete/Update 时指向目标元素。
	ID OperationID

	// Parent 父元素标识（仅 Insert，可为空表示插入到根层）
	Parent OperationID

	// Position 建议位置（仅 Insert，用于初始摆放，不参与收敛决策）
	Position int

	// Value 元素值（Insert/Update）
	Value string
}

// Validate 检查操作自身字段是否一致
func (op DocumentOperation) Validate() error {
	if !op.Kind.IsValid() {
		return fmt.Errorf("%w: kind %d", ErrInvalidOperation, uint8(op.Kind))
	}
	if op.ID.IsEmpty() {
		return fmt.Errorf("%w: empty id", ErrInvalidOperation)
	}
	if op.Kind == OpInsert && op.Position < 0 {
		return fmt.Errorf("%w: negative position", ErrInvalidOperation)
	}
	return nil
}

// String 返回操作的简短描述，用于日志
func (op DocumentOperation) String() string {
	switch op.Kind {
	case OpInsert:
		if !op.Parent.IsEmpty() {
			return fmt.Sprintf("insert(%s under %s)", op.ID, op.Parent)
		}
		return fmt.Sprintf("insert(%s at %d)", op.ID, op.Position)
	case OpDelete:
		return fmt.Sprintf("delete(%s)", op.ID)
	case OpUpdate:
		return fmt.Sprintf("update(%s)", op.ID)
	default:
		return fmt.Sprintf("unknown(%s)", op.ID)
	}
}
