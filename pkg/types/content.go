package types

// ============================================================================
//                              元素状态与内容树
// ============================================================================

// ElementState CRDT 元素状态
//
// 元素一旦创建就不会被物理移除：Delete 只设置 Tombstone，
// 保证与并发引用该元素的操作收敛。
type ElementState struct {
	// Value 元素当前值
	Value string `json:"value"`

	// Tombstone 是否已被逻辑删除
	Tombstone bool `json:"tombstone"`

	// Parent 因果父元素（空表示根层元素）
	Parent OperationID `json:"parent"`
}

// ContentElement 内容树中的一个可见元素
type ContentElement struct {
	// ID 元素的因果标识
	ID OperationID `json:"id"`

	// Value 元素值
	Value string `json:"value"`

	// Children 嵌套子元素，按文档序排列
	Children []ContentElement `json:"children,omitempty"`
}

// DocumentContent 文档内容树
//
// 由 CRDT 状态物化而来：仅包含非墓碑元素，
// 子元素嵌套在因果父元素之下，兄弟按确定性顺序排列。
// 用于持久化快照与渲染。
type DocumentContent struct {
	// Elements 根层元素，按文档序排列
	Elements []ContentElement `json:"elements"`
}

// IsEmpty 检查内容是否为空
func (c DocumentContent) IsEmpty() bool {
	return len(c.Elements) == 0
}

// Len 返回内容树中元素总数（含嵌套）
func (c DocumentContent) Len() int {
	n := 0
	var count func(els []ContentElement)
	count = func(els []ContentElement) {
		n += len(els)
		for _, el := range els {
			count(el.Children)
		}
	}
	count(c.Elements)
	return n
}

// Values 按文档序返回所有元素值（深度优先，父先于子）
func (c DocumentContent) Values() []string {
	var out []string
	var walk func(els []ContentElement)
	walk = func(els []ContentElement) {
		for _, el := range els {
			out = append(out, el.Value)
			walk(el.Children)
		}
	}
	walk(c.Elements)
	return out
}
