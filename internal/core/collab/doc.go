// Package collab 实现协作编排器
//
// 编排器按活跃文档组合各子系统：加载持久化内容建立 CRDT
// 基线，向本地订阅者发布操作流，驱动同步层做网络传播，
// 管理版本快照与棘轮会话的持久化。
//
// 控制流：
//
//	本地编辑 → CRDT 引擎 → 本地发布（pub/sub）→ 同步层
//	远端操作 → 同步层 → CRDT 引擎 → 本地发布
//
// 本地应用先于网络传播，本地订阅者观察到自己的编辑
// 永远不受网络延迟影响。
//
// 共享资源策略：会话表有自己的锁，每个会话的 CRDT 状态
// 由会话锁独占保护；任何锁都不跨仓库或网络调用持有。
package collab
