package sync

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/dep2p/go-collab/pkg/types"
)

// 线格式：大端定长布局，字段完整往返
//
//	version(1) | doc_id(16) | kind(1) |
//	id.peer(32) | id.counter(8) |
//	parent.peer(32) | parent.counter(8) |
//	position(8) | value_len(4) | value(变长)
const (
	codecVersion byte = 0x01

	frameHeaderLen = 1 + 16 + 1 + 32 + 8 + 32 + 8 + 8 + 4

	// maxValueLen 单个元素值的长度上限
	maxValueLen = 1 << 20
)

// EncodeOperation 把文档操作编码为网络帧
func EncodeOperation(documentID uuid.UUID, op types.DocumentOperation) ([]byte, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	if len(op.Value) > maxValueLen {
		return nil, fmt.Errorf("%w: value %d bytes", ErrFrameTooLarge, len(op.Value))
	}

	buf := make([]byte, frameHeaderLen, frameHeaderLen+len(op.Value))
	buf[0] = codecVersion
	copy(buf[1:17], documentID[:])
	buf[17] = byte(op.Kind)

	off := 18
	copy(buf[off:off+32], op.ID.Peer[:])
	off += 32
	binary.BigEndian.PutUint64(buf[off:off+8], op.ID.Counter)
	off += 8
	copy(buf[off:off+32], op.Parent.Peer[:])
	off += 32
	binary.BigEndian.PutUint64(buf[off:off+8], op.Parent.Counter)
	off += 8
	binary.BigEndian.PutUint64(buf[off:off+8], uint64(op.Position))
	off += 8
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(op.Value)))

	return append(buf, op.Value...), nil
}

// DecodeOperation 解码网络帧
//
// 远端输入不可信：未知版本、未知变体、长度不符都返回
// 类型化错误并由调用方丢弃，绝不 panic。
func DecodeOperation(frame []byte) (uuid.UUID, types.DocumentOperation, error) {
	var docID uuid.UUID
	var op types.DocumentOperation

	if len(frame) < frameHeaderLen {
		return docID, op, fmt.Errorf("%w: %d bytes", ErrInvalidFrame, len(frame))
	}
	if frame[0] != codecVersion {
		return docID, op, fmt.Errorf("%w: unsupported version 0x%02x", ErrInvalidFrame, frame[0])
	}

	copy(docID[:], frame[1:17])
	op.Kind = types.OperationKind(frame[17])

	off := 18
	copy(op.ID.Peer[:], frame[off:off+32])
	off += 32
	op.ID.Counter = binary.BigEndian.Uint64(frame[off : off+8])
	off += 8
	copy(op.Parent.Peer[:], frame[off:off+32])
	off += 32
	op.Parent.Counter = binary.BigEndian.Uint64(frame[off : off+8])
	off += 8
	op.Position = int(binary.BigEndian.Uint64(frame[off : off+8]))
	off += 8
	valueLen := binary.BigEndian.Uint32(frame[off : off+4])
	off += 4

	if valueLen > maxValueLen {
		return docID, op, fmt.Errorf("%w: value %d bytes", ErrFrameTooLarge, valueLen)
	}
	if uint32(len(frame)-off) != valueLen {
		return docID, op, fmt.Errorf("%w: value length mismatch", ErrInvalidFrame)
	}
	op.Value = string(frame[off:])

	if err := op.Validate(); err != nil {
		return docID, op, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	return docID, op, nil
}
