package sync

import "errors"

var (
	// ErrQueueOverflow 离线队列到达上限，最旧条目已被丢弃
	ErrQueueOverflow = errors.New("sync: operation queue overflow, oldest entries dropped")

	// ErrDocumentNotRegistered 文档未在同步层注册
	ErrDocumentNotRegistered = errors.New("sync: document not registered")

	// ErrInvalidFrame 入站帧格式非法
	ErrInvalidFrame = errors.New("sync: invalid operation frame")

	// ErrFrameTooLarge 帧超出长度上限
	ErrFrameTooLarge = errors.New("sync: frame exceeds maximum length")

	// ErrServiceClosed 同步服务已关闭
	ErrServiceClosed = errors.New("sync: service closed")
)
