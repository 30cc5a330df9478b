package types

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// ============================================================================
//                              PeerID - 节点标识
// ============================================================================

// PeerID 协作节点唯一标识符
//
// 外部表示格式：
//   - String(): Base58 编码（用户可读、可分享）
//   - ShortString(): Base58 前缀（日志简短标识）
type PeerID [32]byte

// EmptyPeerID 空节点ID
var EmptyPeerID PeerID

// ErrInvalidPeerID 无效的节点ID错误
var ErrInvalidPeerID = errors.New("invalid peer ID")

// String 返回 PeerID 的 Base58 字符串表示
func (id PeerID) String() string {
	if id.IsEmpty() {
		return ""
	}
	return base58.Encode(id[:])
}

// ShortString 返回 PeerID 的短字符串表示
//
// 格式：Base58 前 8 个字符，用于日志中的简短标识。
func (id PeerID) ShortString() string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// Bytes 返回 PeerID 的字节切片
func (id PeerID) Bytes() []byte {
	return id[:]
}

// Equal 比较两个 PeerID 是否相等
func (id PeerID) Equal(other PeerID) bool {
	return id == other
}

// IsEmpty 检查 PeerID 是否为空
func (id PeerID) IsEmpty() bool {
	return id == EmptyPeerID
}

// PeerIDFromBytes 从字节切片创建 PeerID
func PeerIDFromBytes(b []byte) (PeerID, error) {
	if len(b) != 32 {
		return EmptyPeerID, fmt.Errorf("%w: need 32 bytes, got %d", ErrInvalidPeerID, len(b))
	}
	var id PeerID
	copy(id[:], b)
	return id, nil
}

// PeerIDFromString 从 Base58 字符串解析 PeerID
func PeerIDFromString(s string) (PeerID, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return EmptyPeerID, fmt.Errorf("%w: %v", ErrInvalidPeerID, err)
	}
	return PeerIDFromBytes(b)
}

// GeneratePeerID 生成随机 PeerID
//
// 生产环境中 PeerID 通常由节点公钥派生，这里提供随机生成
// 用于测试和无身份场景。
func GeneratePeerID() PeerID {
	var id PeerID
	_, _ = rand.Read(id[:])
	return id
}

// ============================================================================
//                              OperationID - 操作因果标识
// ============================================================================

// OperationID 操作的全局唯一因果标识
//
// 由产生操作的节点 ID 与该节点的单调递增计数器组成。
// 同一节点内的操作按 Counter 全序，跨节点只有偏序；
// 并发操作的确定性排序通过 Compare 完成（所有副本一致）。
type OperationID struct {
	Peer    PeerID
	Counter uint64
}

// EmptyOperationID 空操作ID（表示"无父元素"等哨兵场景）
var EmptyOperationID OperationID

// IsEmpty 检查 OperationID 是否为空
func (id OperationID) IsEmpty() bool {
	return id == EmptyOperationID
}

// Equal 比较两个 OperationID 是否相等
func (id OperationID) Equal(other OperationID) bool {
	return id == other
}

// Compare 确定性比较两个 OperationID
//
// 先比较 Counter，再比较 Peer 字节序。用于并发 Insert 的
// 兄弟排序决胜：所有副本对同一对 ID 得到相同结果。
// 返回 -1 / 0 / 1。
func (id OperationID) Compare(other OperationID) int {
	if id.Counter != other.Counter {
		if id.Counter < other.Counter {
			return -1
		}
		return 1
	}
	return bytes.Compare(id.Peer[:], other.Peer[:])
}

// Less 报告 id 是否排在 other 之前
func (id OperationID) Less(other OperationID) bool {
	return id.Compare(other) < 0
}

// String 返回 OperationID 的字符串表示
//
// 格式：<peer 短标识>/<counter>，用于日志与调试。
func (id OperationID) String() string {
	return fmt.Sprintf("%s/%d", id.Peer.ShortString(), id.Counter)
}
