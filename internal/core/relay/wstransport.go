package relay

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	relayif "github.com/dep2p/go-collab/pkg/interfaces/relay"
	"github.com/dep2p/go-collab/pkg/types"
)

// 中继控制协议消息类型
const (
	msgAuth        byte = 0x01 // 连接后首帧：鉴权
	msgAllocate    byte = 0x02 // 请求分配
	msgAllocateOK  byte = 0x03 // 分配成功：relay_addr + ttl
	msgRefresh     byte = 0x04 // 请求续期
	msgRefreshOK   byte = 0x05 // 续期成功：ttl
	msgData        byte = 0x06 // 经中继转发数据
	msgErrorReply  byte = 0x7f // 服务器错误：reason
	maxFieldLength      = 1 << 20
)

// WSTransport 基于 WebSocket 的中继传输实现
//
// 每个服务器保持一条长连接，控制请求在连接上串行执行。
// 成帧为大端长度前缀字段，与消息编解码保持同一风格。
type WSTransport struct {
	dialer *websocket.Dialer

	conns   map[string]*wsConn // server address → 连接
	connsMu sync.Mutex
}

type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex // 串行化请求/响应对
}

// NewWSTransport 创建 WebSocket 中继传输
func NewWSTransport() *WSTransport {
	return &WSTransport{
		dialer: &websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
		},
		conns: make(map[string]*wsConn),
	}
}

var _ relayif.Transport = (*WSTransport)(nil)

// RequestAllocation 实现 relay.Transport
func (t *WSTransport) RequestAllocation(ctx context.Context, server types.RelayServer) (string, time.Duration, error) {
	wc, err := t.connect(ctx, server)
	if err != nil {
		return "", 0, err
	}

	reply, err := wc.roundTrip(ctx, buildFrame(msgAllocate))
	if err != nil {
		t.drop(server.Address, wc)
		return "", 0, err
	}

	kind, fields, err := parseFrame(reply)
	if err != nil {
		return "", 0, err
	}
	switch kind {
	case msgAllocateOK:
		if len(fields) != 2 || len(fields[1]) != 4 {
			return "", 0, fmt.Errorf("relay: malformed allocate reply")
		}
		ttl := time.Duration(binary.BigEndian.Uint32(fields[1])) * time.Second
		return string(fields[0]), ttl, nil
	case msgErrorReply:
		return "", 0, fmt.Errorf("relay: server rejected allocation: %s", firstField(fields))
	default:
		return "", 0, fmt.Errorf("relay: unexpected reply type 0x%02x", kind)
	}
}

// Refresh 实现 relay.Transport
func (t *WSTransport) Refresh(ctx context.Context, server types.RelayServer, relayAddr string) (time.Duration, error) {
	wc, err := t.connect(ctx, server)
	if err != nil {
		return 0, err
	}

	reply, err := wc.roundTrip(ctx, buildFrame(msgRefresh, []byte(relayAddr)))
	if err != nil {
		t.drop(server.Address, wc)
		return 0, err
	}

	kind, fields, err := parseFrame(reply)
	if err != nil {
		return 0, err
	}
	switch kind {
	case msgRefreshOK:
		if len(fields) != 1 || len(fields[0]) != 4 {
			return 0, fmt.Errorf("relay: malformed refresh reply")
		}
		return time.Duration(binary.BigEndian.Uint32(fields[0])) * time.Second, nil
	case msgErrorReply:
		return 0, fmt.Errorf("relay: server rejected refresh: %s", firstField(fields))
	default:
		return 0, fmt.Errorf("relay: unexpected reply type 0x%02x", kind)
	}
}

// Send 实现 relay.Transport
//
// 数据帧是单向的，服务器不回执；投递保障由上层的
// 操作幂等性承担。
func (t *WSTransport) Send(ctx context.Context, server types.RelayServer, relayAddr, peerAddr string, data []byte) error {
	wc, err := t.connect(ctx, server)
	if err != nil {
		return err
	}

	frame := buildFrame(msgData, []byte(relayAddr), []byte(peerAddr), data)
	if err := wc.write(ctx, frame); err != nil {
		t.drop(server.Address, wc)
		return fmt.Errorf("relay: send via %s: %w", server.Address, err)
	}
	return nil
}

// Close 关闭全部连接
func (t *WSTransport) Close() error {
	t.connsMu.Lock()
	defer t.connsMu.Unlock()
	for addr, wc := range t.conns {
		_ = wc.conn.Close()
		delete(t.conns, addr)
	}
	return nil
}

// connect 取出或建立到服务器的连接并完成鉴权
func (t *WSTransport) connect(ctx context.Context, server types.RelayServer) (*wsConn, error) {
	t.connsMu.Lock()
	if wc, ok := t.conns[server.Address]; ok {
		t.connsMu.Unlock()
		return wc, nil
	}
	t.connsMu.Unlock()

	conn, _, err := t.dialer.DialContext(ctx, server.Address, nil)
	if err != nil {
		return nil, fmt.Errorf("relay: dial %s: %w", server.Address, err)
	}

	wc := &wsConn{conn: conn}
	auth := buildFrame(msgAuth,
		[]byte(server.Username),
		[]byte(server.Credential),
		[]byte(server.Realm))
	if err := wc.write(ctx, auth); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("relay: auth %s: %w", server.Address, err)
	}

	t.connsMu.Lock()
	defer t.connsMu.Unlock()
	// 并发建连时后到者让位
	if existing, ok := t.conns[server.Address]; ok {
		_ = conn.Close()
		return existing, nil
	}
	t.conns[server.Address] = wc
	return wc, nil
}

// drop 移除失效连接，下次请求重建
func (t *WSTransport) drop(addr string, wc *wsConn) {
	t.connsMu.Lock()
	defer t.connsMu.Unlock()
	if t.conns[addr] == wc {
		_ = wc.conn.Close()
		delete(t.conns, addr)
	}
}

// roundTrip 发送请求帧并等待下一帧响应
func (wc *wsConn) roundTrip(ctx context.Context, frame []byte) ([]byte, error) {
	wc.mu.Lock()
	defer wc.mu.Unlock()

	deadline := time.Now().Add(15 * time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := wc.conn.SetWriteDeadline(deadline); err != nil {
		return nil, err
	}
	if err := wc.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return nil, err
	}
	if err := wc.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	_, reply, err := wc.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return reply, nil
}

// write 发送不等待响应的单向帧
func (wc *wsConn) write(ctx context.Context, frame []byte) error {
	wc.mu.Lock()
	defer wc.mu.Unlock()

	deadline := time.Now().Add(15 * time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := wc.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return wc.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// ============================================================================
//                              帧编解码
// ============================================================================

// buildFrame 构造控制帧：类型字节 + 若干大端长度前缀字段
func buildFrame(kind byte, fields ...[]byte) []byte {
	size := 1
	for _, f := range fields {
		size += 4 + len(f)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, kind)
	for _, f := range fields {
		var hdr [4]byte
		binary.BigEndian.PutUint32(hdr[:], uint32(len(f)))
		buf = append(buf, hdr[:]...)
		buf = append(buf, f...)
	}
	return buf
}

// parseFrame 解析控制帧
func parseFrame(frame []byte) (byte, [][]byte, error) {
	if len(frame) < 1 {
		return 0, nil, fmt.Errorf("relay: empty frame")
	}
	kind := frame[0]
	rest := frame[1:]
	var fields [][]byte
	for len(rest) > 0 {
		if len(rest) < 4 {
			return 0, nil, fmt.Errorf("relay: truncated frame header")
		}
		n := binary.BigEndian.Uint32(rest[:4])
		if n > maxFieldLength {
			return 0, nil, fmt.Errorf("relay: frame field too large: %d", n)
		}
		rest = rest[4:]
		if uint32(len(rest)) < n {
			return 0, nil, fmt.Errorf("relay: truncated frame field")
		}
		fields = append(fields, rest[:n])
		rest = rest[n:]
	}
	return kind, fields, nil
}

func firstField(fields [][]byte) string {
	if len(fields) == 0 {
		return "unknown"
	}
	return string(fields[0])
}
