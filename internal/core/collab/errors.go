package collab

import "errors"

var (
	// ErrDocumentNotFound 文档没有活跃会话（或仓库中不存在）
	ErrDocumentNotFound = errors.New("collab: document not found")

	// ErrAccessDenied 调用者既不是所有者也没有可编辑共享
	ErrAccessDenied = errors.New("collab: access denied")

	// ErrSubscriptionClosed 订阅已取消或会话已关闭
	ErrSubscriptionClosed = errors.New("collab: subscription closed")

	// ErrServiceClosed 编排器已关闭
	ErrServiceClosed = errors.New("collab: service closed")
)
