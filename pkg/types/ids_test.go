package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeerID_String(t *testing.T) {
	t.Run("空 ID 返回空字符串", func(t *testing.T) {
		assert.Equal(t, "", EmptyPeerID.String())
	})

	t.Run("Base58 往返", func(t *testing.T) {
		id := GeneratePeerID()
		parsed, err := PeerIDFromString(id.String())
		require.NoError(t, err)
		assert.True(t, id.Equal(parsed))
	})

	t.Run("短标识为前 8 字符", func(t *testing.T) {
		id := GeneratePeerID()
		assert.Len(t, id.ShortString(), 8)
	})
}

func TestPeerIDFromBytes(t *testing.T) {
	t.Run("长度错误被拒绝", func(t *testing.T) {
		_, err := PeerIDFromBytes([]byte{1, 2, 3})
		assert.ErrorIs(t, err, ErrInvalidPeerID)
	})

	t.Run("32 字节成功", func(t *testing.T) {
		b := make([]byte, 32)
		b[0] = 0xab
		id, err := PeerIDFromBytes(b)
		require.NoError(t, err)
		assert.Equal(t, byte(0xab), id[0])
	})
}

func TestOperationID_Compare(t *testing.T) {
	a := PeerID{1}
	b := PeerID{2}

	t.Run("Counter 优先", func(t *testing.T) {
		x := OperationID{Peer: b, Counter: 1}
		y := OperationID{Peer: a, Counter: 2}
		assert.True(t, x.Less(y))
	})

	t.Run("Counter 相同时按 Peer 字节序", func(t *testing.T) {
		x := OperationID{Peer: a, Counter: 5}
		y := OperationID{Peer: b, Counter: 5}
		assert.Equal(t, -1, x.Compare(y))
		assert.Equal(t, 1, y.Compare(x))
	})

	t.Run("相等返回 0", func(t *testing.T) {
		x := OperationID{Peer: a, Counter: 5}
		assert.Equal(t, 0, x.Compare(x))
		assert.False(t, x.Less(x))
	})
}

func TestOperationKind(t *testing.T) {
	assert.True(t, OpInsert.IsValid())
	assert.True(t, OpDelete.IsValid())
	assert.True(t, OpUpdate.IsValid())
	assert.False(t, OperationKind(0).IsValid())
	assert.False(t, OperationKind(9).IsValid())
}

func TestDocumentOperation_Validate(t *testing.T) {
	id := OperationID{Peer: PeerID{1}, Counter: 1}

	tests := []struct {
		name    string
		op      DocumentOperation
		wantErr bool
	}{
		{"合法插入", DocumentOperation{Kind: OpInsert, ID: id, Value: "a"}, false},
		{"合法删除", DocumentOperation{Kind: OpDelete, ID: id}, false},
		{"未知变体", DocumentOperation{Kind: OperationKind(42), ID: id}, true},
		{"空 ID", DocumentOperation{Kind: OpInsert}, true},
		{"负位置", DocumentOperation{Kind: OpInsert, ID: id, Position: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidOperation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
