// Package types 定义 go-collab 的基础类型
//
// 这是整个系统的最底层包，不依赖任何其他 collab 内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据：
//
//   - PeerID / OperationID: 节点与操作的因果标识
//   - DocumentOperation: 文档操作（Insert / Delete / Update）
//   - ElementState / DocumentContent: CRDT 元素状态与内容树
//   - Document / DocumentShare / DocumentVersion: 文档聚合（外部协作者拥有）
//   - RelayServer / TurnAllocation: 中继服务器与分配状态
package types
