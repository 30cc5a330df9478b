// Package relay 实现 NAT 穿透中继客户端
//
// 当对端直连失败时，同步层经由远端 rendezvous 服务器分配
// 的中继地址转发流量。每个文档维护独立的分配状态机
// （Unallocated → Allocated → Expired）：
//
//   - Allocate 按配置顺序尝试服务器，第一个成功者胜出
//   - 分配带 TTL，RefreshAllocation 续期，过期必须重新分配
//   - 对端地址需先 CreatePermission 授权才能经中继发送
//   - 过期分配由周期清扫回收，数据路径不做内联清理
//
// 中继协议的底层成帧是外部协作者，经 relay.Transport
// 能力接口注入；生命周期、权限与 TTL 管理在本包完成。
package relay
