package crdt

import (
	"crypto/sha256"

	"github.com/google/uuid"

	"github.com/dep2p/go-collab/pkg/types"
)

// BaselinePeer 返回文档基线操作使用的确定性节点 ID
//
// 初始内容在每个节点本地都会转换为一串 Insert 建立基线
// 状态。基线操作的 ID 必须在所有节点上一致，否则同一份
// 初始内容会产生发散的元素标识。因此基线使用从文档 ID
// 派生的确定性"虚拟节点"，而不是本地节点 ID。
func BaselinePeer(documentID uuid.UUID) types.PeerID {
	return types.PeerID(sha256.Sum256(documentID[:]))
}

// OpsFromContent 把持久化内容树转换为基线 Insert 序列
//
// 深度优先、父先于子：产生的序列按顺序应用时不会触发
// 悬挂缓冲。任何节点对同一 (documentID, content) 产生
// 完全相同的操作序列。
func OpsFromContent(documentID uuid.UUID, content types.DocumentContent) []types.DocumentOperation {
	peer := BaselinePeer(documentID)
	counter := uint64(0)

	var ops []types.DocumentOperation
	var walk func(els []types.ContentElement, parent types.OperationID)
	walk = func(els []types.ContentElement, parent types.OperationID) {
		for i, el := range els {
			counter++
			id := types.OperationID{Peer: peer, Counter: counter}
			ops = append(ops, types.DocumentOperation{
				Kind:     types.OpInsert,
				ID:       id,
				Parent:   parent,
				Position: i,
				Value:    el.Value,
			})
			walk(el.Children, id)
		}
	}
	walk(content.Elements, types.EmptyOperationID)
	return ops
}
