// Package repository 定义文档持久化接口
//
// 文档的存储、权限与版本记录由外部协作者拥有；协作引擎
// 只通过这里的接口消费它们。棘轮会话以不透明字节串形式
// 持久化，引擎不解释其内容。
package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/dep2p/go-collab/pkg/types"
)

// Sentinel errors
var (
	// ErrDocumentNotFound 文档不存在
	ErrDocumentNotFound = errors.New("repository: document not found")

	// ErrShareNotFound 共享记录不存在
	ErrShareNotFound = errors.New("repository: share not found")

	// ErrSessionNotFound 棘轮会话不存在
	ErrSessionNotFound = errors.New("repository: ratchet session not found")
)

// DocumentRepository 文档持久化接口
//
// 所有方法都可能执行 I/O，调用方不得在持有内部锁时调用。
type DocumentRepository interface {
	// GetDocument 按 ID 获取文档
	//
	// 不存在时返回 ErrDocumentNotFound。
	GetDocument(ctx context.Context, id uuid.UUID) (types.Document, error)

	// PutDocument 写入（或覆盖）文档
	PutDocument(ctx context.Context, doc types.Document) error

	// GetDocumentShare 获取某用户对某文档的共享记录
	//
	// 不存在时返回 ErrShareNotFound。
	GetDocumentShare(ctx context.Context, documentID, userID uuid.UUID) (types.DocumentShare, error)

	// PutDocumentShare 写入共享记录
	PutDocumentShare(ctx context.Context, share types.DocumentShare) error

	// GetLatestVersionNumber 返回文档最新版本号
	//
	// 尚无版本时返回 0。
	GetLatestVersionNumber(ctx context.Context, documentID uuid.UUID) (uint64, error)

	// CreateDocumentVersion 持久化一个版本快照
	CreateDocumentVersion(ctx context.Context, version types.DocumentVersion) error

	// SaveRatchetSession 保存棘轮会话（不透明字节串）
	//
	// 以 (documentID, peerID) 为键。
	SaveRatchetSession(ctx context.Context, documentID uuid.UUID, peerID types.PeerID, session []byte) error

	// LoadRatchetSession 读取棘轮会话
	//
	// 不存在时返回 ErrSessionNotFound。
	LoadRatchetSession(ctx context.Context, documentID uuid.UUID, peerID types.PeerID) ([]byte, error)
}
