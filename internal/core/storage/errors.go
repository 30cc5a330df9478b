package storage

import "errors"

var (
	// ErrStoreClosed 存储已关闭
	ErrStoreClosed = errors.New("storage: store closed")

	// ErrCorruptValue 值无法解码（损坏或版本不兼容）
	ErrCorruptValue = errors.New("storage: corrupt value")
)
