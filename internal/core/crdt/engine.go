package crdt

import (
	"fmt"
	"sort"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-collab/config"
	"github.com/dep2p/go-collab/internal/util/logger"
	"github.com/dep2p/go-collab/pkg/types"
)

var log = logger.Logger("core/crdt")

// element CRDT 元素内部状态
type element struct {
	id        types.OperationID
	value     string
	tombstone bool
	parent    types.OperationID
}

// Engine 单个文档的 CRDT 引擎
//
// 非并发安全：拥有者（编排器）负责串行化变更。
type Engine struct {
	local   types.PeerID
	counter uint64

	// elems 全部元素（含墓碑）
	elems map[types.OperationID]*element

	// children parent → 已排序的子元素 ID（按 OperationID 确定性序）
	//
	// 根层元素挂在 EmptyOperationID 下。
	children map[types.OperationID][]types.OperationID

	// buffer 悬挂操作缓冲
	buffer *danglingBuffer
}

// NewEngine 创建空引擎
//
// clk 用于悬挂缓冲的超时计时，测试中可注入 mock。
func NewEngine(local types.PeerID, cfg config.CRDTConfig, clk clock.Clock) *Engine {
	if clk == nil {
		clk = clock.New()
	}
	return &Engine{
		local:    local,
		elems:    make(map[types.OperationID]*element),
		children: make(map[types.OperationID][]types.OperationID),
		buffer:   newDanglingBuffer(cfg.MaxDanglingOps, cfg.DanglingTimeout, clk),
	}
}

// LocalPeer 返回本地节点 ID
func (e *Engine) LocalPeer() types.PeerID {
	return e.local
}

// GenerateID 铸造一个新的本地操作 ID
//
// 计数器按节点单调递增，保证同节点操作全序、
// 跨节点无重复。
func (e *Engine) GenerateID() types.OperationID {
	e.counter++
	return types.OperationID{Peer: e.local, Counter: e.counter}
}

// ============================================================================
//                              本地编辑
// ============================================================================

// LocalInsert 产生并应用一个本地插入，返回应当广播的操作
func (e *Engine) LocalInsert(parent types.OperationID, position int, value string) (types.DocumentOperation, error) {
	op := types.DocumentOperation{
		Kind:     types.OpInsert,
		ID:       e.GenerateID(),
		Parent:   parent,
		Position: position,
		Value:    value,
	}
	if err := e.Apply(op); err != nil {
		return types.DocumentOperation{}, err
	}
	return op, nil
}

// LocalDelete 产生并应用一个本地删除
func (e *Engine) LocalDelete(id types.OperationID) (types.DocumentOperation, error) {
	if _, ok := e.elems[id]; !ok {
		return types.DocumentOperation{}, fmt.Errorf("%w: %s", ErrElementNotFound, id)
	}
	op := types.DocumentOperation{Kind: types.OpDelete, ID: id}
	if err := e.Apply(op); err != nil {
		return types.DocumentOperation{}, err
	}
	return op, nil
}

// LocalUpdate 产生并应用一个本地更新
func (e *Engine) LocalUpdate(id types.OperationID, value string) (types.DocumentOperation, error) {
	el, ok := e.elems[id]
	if !ok {
		return types.DocumentOperation{}, fmt.Errorf("%w: %s", ErrElementNotFound, id)
	}
	if el.tombstone {
		return types.DocumentOperation{}, fmt.Errorf("%w: %s", ErrTombstoned, id)
	}
	op := types.DocumentOperation{Kind: types.OpUpdate, ID: id, Value: value}
	if err := e.Apply(op); err != nil {
		return types.DocumentOperation{}, err
	}
	return op, nil
}

// ============================================================================
//                              操作应用
// ============================================================================

// Apply 应用一个操作（本地或远端）
//
// 幂等：重复应用同一 (id, variant) 是 no-op。可交换：在
// 尊重 parent 依赖的任意顺序下应用同一集合收敛到相同状态。
// 引用未知依赖的操作被缓冲，不返回错误；未知变体返回
// ErrUnknownOperation 并被丢弃。
func (e *Engine) Apply(op types.DocumentOperation) error {
	if !op.Kind.IsValid() {
		return fmt.Errorf("%w: kind %d", ErrUnknownOperation, uint8(op.Kind))
	}
	if err := op.Validate(); err != nil {
		return err
	}

	// 本地节点的操作 ID 可能由调用方自铸：计数器必须越过
	// 一切已出现的本地计数值，否则 GenerateID 会重铸旧 ID，
	// 幂等去重把新操作当成重复静默吞掉。
	if op.ID.Peer == e.local && op.ID.Counter > e.counter {
		e.counter = op.ID.Counter
	}

	switch op.Kind {
	case types.OpInsert:
		e.applyInsert(op)
	case types.OpDelete:
		e.applyDelete(op)
	case types.OpUpdate:
		e.applyUpdate(op)
	}
	return nil
}

// applyInsert 整合插入；父元素未知时缓冲
func (e *Engine) applyInsert(op types.DocumentOperation) {
	// 幂等：元素已存在则忽略
	if _, exists := e.elems[op.ID]; exists {
		return
	}

	// 父元素未到达：缓冲等待
	if !op.Parent.IsEmpty() {
		if _, ok := e.elems[op.Parent]; !ok {
			e.buffer.add(op.Parent, op)
			log.Debug("buffered dangling insert", "op", op.ID, "waiting_for", op.Parent)
			return
		}
	}

	e.elems[op.ID] = &element{
		id:     op.ID,
		value:  op.Value,
		parent: op.Parent,
	}

	// 兄弟排序：按 OperationID 确定性序插入，
	// 并发插入无须协商即在所有副本得到相同相对顺序。
	kids := e.children[op.Parent]
	pos := sort.Search(len(kids), func(i int) bool {
		return !kids[i].Less(op.ID)
	})
	kids = append(kids, types.OperationID{})
	copy(kids[pos+1:], kids[pos:])
	kids[pos] = op.ID
	e.children[op.Parent] = kids

	// 新元素可能解除悬挂操作的等待
	e.flushDangling(op.ID)
}

// applyDelete 标记墓碑；目标未知时缓冲
func (e *Engine) applyDelete(op types.DocumentOperation) {
	el, ok := e.elems[op.ID]
	if !ok {
		e.buffer.add(op.ID, op)
		log.Debug("buffered dangling delete", "target", op.ID)
		return
	}
	// 幂等：重复删除是 no-op
	el.tombstone = true
}

// applyUpdate 替换元素值；目标未知时缓冲
//
// 与并发删除竞争时删除胜出：墓碑元素的更新被忽略。
func (e *Engine) applyUpdate(op types.DocumentOperation) {
	el, ok := e.elems[op.ID]
	if !ok {
		e.buffer.add(op.ID, op)
		log.Debug("buffered dangling update", "target", op.ID)
		return
	}
	if el.tombstone {
		return
	}
	el.value = op.Value
}

// flushDangling 重放等待 id 的悬挂操作
func (e *Engine) flushDangling(id types.OperationID) {
	for _, op := range e.buffer.take(id) {
		// 重放经过完整的 Apply 路径，级联解除更深的等待
		if err := e.Apply(op); err != nil {
			log.Warn("dropping invalid dangling operation", "op", op.ID, "err", err)
		}
	}
}

// ============================================================================
//                              维护与观测
// ============================================================================

// ExpireDangling 丢弃超时的悬挂操作并返回它们
//
// 由周期任务调用；调用方负责以 ErrDanglingOperation
// 级别记录告警。状态不受影响。
func (e *Engine) ExpireDangling() []types.DocumentOperation {
	expired := e.buffer.expire()
	for _, op := range expired {
		log.Warn("dangling operation expired", "op", op.ID, "kind", op.Kind.String())
	}
	return expired
}

// DanglingCount 返回当前缓冲的悬挂操作数
func (e *Engine) DanglingCount() int {
	return e.buffer.len()
}

// Len 返回元素总数（含墓碑）
func (e *Engine) Len() int {
	return len(e.elems)
}

// Has 报告元素是否存在（含墓碑）
func (e *Engine) Has(id types.OperationID) bool {
	_, ok := e.elems[id]
	return ok
}
