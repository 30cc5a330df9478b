// Package storage 提供基于 BadgerDB 的文档持久化实现
//
// 键空间采用前缀隔离约定：
//
//   - doc/<document_id>                     文档
//   - shr/<document_id>/<user_id>           共享记录
//   - ver/<document_id>/<version_number>    版本快照（大端序号，
//     保证字典序即数值序）
//   - rs/<document_id>/<peer_id>            棘轮会话（不透明字节串）
//
// 值用 JSON 编码；版本快照可选 zstd 压缩，首字节标记编码方式。
// InMemory 模式供测试与演示使用，语义与持久化模式一致。
package storage
