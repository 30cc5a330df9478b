package types

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
//                              文档聚合
// ============================================================================

// Document 文档聚合根
//
// 文档的存储与按 ID 检索由外部协作者负责；协作引擎
// 只消费这个只读视图来建立初始 CRDT 状态。
type Document struct {
	ID        uuid.UUID       `json:"id"`
	OwnerID   uuid.UUID       `json:"owner_id"`
	Title     string          `json:"title"`
	Content   DocumentContent `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// SharePermission 共享权限级别
type SharePermission uint8

const (
	// PermissionView 只读
	PermissionView SharePermission = iota + 1
	// PermissionComment 可评论
	PermissionComment
	// PermissionEdit 可编辑（允许创建版本）
	PermissionEdit
)

// String 返回权限名称
func (p SharePermission) String() string {
	switch p {
	case PermissionView:
		return "view"
	case PermissionComment:
		return "comment"
	case PermissionEdit:
		return "edit"
	default:
		return "unknown"
	}
}

// CanEdit 报告该权限是否允许修改文档
func (p SharePermission) CanEdit() bool {
	return p == PermissionEdit
}

// DocumentShare 文档共享记录
type DocumentShare struct {
	DocumentID uuid.UUID       `json:"document_id"`
	UserID     uuid.UUID       `json:"user_id"`
	Permission SharePermission `json:"permission"`
	CreatedAt  time.Time       `json:"created_at"`
}

// DocumentVersion 文档版本快照
//
// VersionNumber 按文档严格递增；Content 是创建时刻
// CRDT 状态的内容快照。
type DocumentVersion struct {
	ID            uuid.UUID       `json:"id"`
	DocumentID    uuid.UUID       `json:"document_id"`
	VersionNumber uint64          `json:"version_number"`
	Content       DocumentContent `json:"content"`
	CreatedAt     time.Time       `json:"created_at"`
	CreatedBy     uuid.UUID       `json:"created_by"`
}
