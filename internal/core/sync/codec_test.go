package sync

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-collab/pkg/types"
)

func TestOperationCodec(t *testing.T) {
	docID := uuid.New()
	peerA := types.GeneratePeerID()
	peerB := types.GeneratePeerID()

	t.Run("各变体无损往返", func(t *testing.T) {
		ops := []types.DocumentOperation{
			{
				Kind:     types.OpInsert,
				ID:       types.OperationID{Peer: peerA, Counter: 1},
				Parent:   types.OperationID{Peer: peerB, Counter: 7},
				Position: 3,
				Value:    "第一段",
			},
			{
				Kind: types.OpDelete,
				ID:   types.OperationID{Peer: peerB, Counter: 42},
			},
			{
				Kind:  types.OpUpdate,
				ID:    types.OperationID{Peer: peerA, Counter: 9},
				Value: "updated value",
			},
		}
		for _, op := range ops {
			frame, err := EncodeOperation(docID, op)
			require.NoError(t, err)

			gotDoc, gotOp, err := DecodeOperation(frame)
			require.NoError(t, err)
			assert.Equal(t, docID, gotDoc)
			assert.Equal(t, op, gotOp)
		}
	})

	t.Run("非法操作拒绝编码", func(t *testing.T) {
		_, err := EncodeOperation(docID, types.DocumentOperation{Kind: types.OperationKind(99)})
		assert.Error(t, err)

		_, err = EncodeOperation(docID, types.DocumentOperation{Kind: types.OpInsert})
		assert.Error(t, err, "空 ID 不可编码")
	})

	t.Run("超长值拒绝编码", func(t *testing.T) {
		op := types.DocumentOperation{
			Kind:  types.OpInsert,
			ID:    types.OperationID{Peer: peerA, Counter: 1},
			Value: strings.Repeat("x", maxValueLen+1),
		}
		_, err := EncodeOperation(docID, op)
		assert.ErrorIs(t, err, ErrFrameTooLarge)
	})

	t.Run("畸形帧拒绝解码", func(t *testing.T) {
		good, err := EncodeOperation(docID, types.DocumentOperation{
			Kind:  types.OpInsert,
			ID:    types.OperationID{Peer: peerA, Counter: 1},
			Value: "abc",
		})
		require.NoError(t, err)

		cases := map[string][]byte{
			"空帧":     nil,
			"截断头部":   good[:frameHeaderLen-1],
			"值长度不符":  good[:len(good)-1],
			"未知版本":   append([]byte{0x7e}, good[1:]...),
			"未知操作变体": func() []byte { f := append([]byte(nil), good...); f[17] = 0xff; return f }(),
		}
		for name, frame := range cases {
			t.Run(name, func(t *testing.T) {
				_, _, err := DecodeOperation(frame)
				assert.Error(t, err)
			})
		}
	})
}
