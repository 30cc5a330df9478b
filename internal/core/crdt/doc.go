// Package crdt 实现文档的无冲突复制数据类型引擎
//
// 引擎以因果标识元素集合维护单个文档的复制状态：
//
//   - Insert 以 parent 锚定排序，兄弟按 OperationID 确定性
//     排序，所有副本无须协商即收敛
//   - Delete 只设置墓碑，从不物理移除元素
//   - Update 替换未墓碑元素的值
//
// 操作应用是幂等且可交换的：在尊重 parent 依赖的任意顺序
// 下应用同一操作集合，得到相同状态。引用未知父元素/目标
// 元素的操作被缓冲（而非拒绝）直到依赖到达；缓冲有界且带
// 超时，超时条目以 DanglingOperation 告警浮出。
//
// Engine 不做内部加锁：每个文档的引擎由编排器独占拥有，
// 应用本身是同步非阻塞的（规约 §5 的并发模型）。
package crdt
