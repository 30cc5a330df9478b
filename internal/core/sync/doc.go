// Package sync 实现文档操作的对等同步层
//
// 职责（控制流的网络段）：
//
//   - 维护每个文档的已连接对端集合
//   - 出站广播：在线时编码一次、直连扇出，单个对端直连失败
//     回退到中继路径，仍失败则重新入队
//   - 离线队列：连接断开期间的本地操作进有序队列，恢复连接后
//     由调用方显式触发按原始顺序冲刷
//   - 入站：解码、LRU 去重、交给注册的操作处理器
//
// 连通性是显式状态（SetConnected），不从网络事件推断，
// 保证队列冲刷时机是确定性的。
package sync
