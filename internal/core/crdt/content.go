package crdt

import "github.com/dep2p/go-collab/pkg/types"

// Content 把当前状态物化为内容树
//
// 纯函数，无副作用：仅包含非墓碑元素，子元素嵌套在因果
// 父元素之下，兄弟按确定性序排列。墓碑元素被隐藏，其
// 子元素提升到墓碑原来的位置（文档顺序保持稳定）。
func (e *Engine) Content() types.DocumentContent {
	return types.DocumentContent{
		Elements: e.materialize(types.EmptyOperationID),
	}
}

// materialize 递归物化 parent 下的可见元素
func (e *Engine) materialize(parent types.OperationID) []types.ContentElement {
	var out []types.ContentElement
	for _, id := range e.children[parent] {
		el := e.elems[id]
		if el == nil {
			continue
		}
		if el.tombstone {
			// 墓碑隐藏自身，子元素原位提升
			out = append(out, e.materialize(id)...)
			continue
		}
		out = append(out, types.ContentElement{
			ID:       id,
			Value:    el.value,
			Children: e.materialize(id),
		})
	}
	return out
}

// Element 返回元素状态快照
func (e *Engine) Element(id types.OperationID) (types.ElementState, bool) {
	el, ok := e.elems[id]
	if !ok {
		return types.ElementState{}, false
	}
	return types.ElementState{
		Value:     el.value,
		Tombstone: el.tombstone,
		Parent:    el.parent,
	}, true
}
