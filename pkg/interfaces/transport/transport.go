// Package transport 定义对端直连发送原语
//
// 同步层与中继客户端都通过这个最小接口发送字节串；
// 底层协议（QUIC/WebSocket/内存管道）由实现方选择。
package transport

import (
	"context"
	"errors"
)

// ErrTransport 直连发送失败
//
// 同步层收到该错误后回退到中继路径或重新排队，
// 不会向调用方传播。
var ErrTransport = errors.New("transport: send failed")

// Sender 直连发送原语
type Sender interface {
	// Send 向对端地址发送一帧数据
	//
	// 失败时返回包装了 ErrTransport 的错误。实现必须对
	// ctx 取消敏感；发送被放弃时由调用方决定是否重排队。
	Send(ctx context.Context, peerAddr string, data []byte) error
}

// SenderFunc 函数适配器
type SenderFunc func(ctx context.Context, peerAddr string, data []byte) error

// Send 实现 Sender
func (f SenderFunc) Send(ctx context.Context, peerAddr string, data []byte) error {
	return f(ctx, peerAddr, data)
}
