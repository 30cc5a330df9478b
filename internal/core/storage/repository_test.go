package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-collab/config"
	"github.com/dep2p/go-collab/pkg/interfaces/repository"
	"github.com/dep2p/go-collab/pkg/types"
)

func newTestRepository(t *testing.T, compress bool) *Repository {
	t.Helper()
	cfg := config.DefaultStorageConfig()
	cfg.CompressSnapshots = compress
	store, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	repo, err := NewRepository(store, cfg)
	require.NoError(t, err)
	return repo
}

func sampleContent(values ...string) types.DocumentContent {
	peer := types.GeneratePeerID()
	elements := make([]types.ContentElement, 0, len(values))
	for i, v := range values {
		elements = append(elements, types.ContentElement{
			ID:    types.OperationID{Peer: peer, Counter: uint64(i + 1)},
			Value: v,
		})
	}
	return types.DocumentContent{Elements: elements}
}

func TestDocumentRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, true)

	t.Run("写入后读回", func(t *testing.T) {
		doc := types.Document{
			ID:        uuid.New(),
			OwnerID:   uuid.New(),
			Title:     "协作笔记",
			Content:   sampleContent("第一段", "第二段"),
			CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
			UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
		}
		require.NoError(t, repo.PutDocument(ctx, doc))

		got, err := repo.GetDocument(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, doc, got)
	})

	t.Run("不存在返回 ErrDocumentNotFound", func(t *testing.T) {
		_, err := repo.GetDocument(ctx, uuid.New())
		assert.ErrorIs(t, err, repository.ErrDocumentNotFound)
	})
}

func TestShareRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, true)
	docID, userID := uuid.New(), uuid.New()

	t.Run("不存在返回 ErrShareNotFound", func(t *testing.T) {
		_, err := repo.GetDocumentShare(ctx, docID, userID)
		assert.ErrorIs(t, err, repository.ErrShareNotFound)
	})

	t.Run("按文档和用户隔离", func(t *testing.T) {
		share := types.DocumentShare{
			DocumentID: docID,
			UserID:     userID,
			Permission: types.PermissionEdit,
			CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
		}
		require.NoError(t, repo.PutDocumentShare(ctx, share))

		got, err := repo.GetDocumentShare(ctx, docID, userID)
		require.NoError(t, err)
		assert.Equal(t, share, got)

		_, err = repo.GetDocumentShare(ctx, docID, uuid.New())
		assert.ErrorIs(t, err, repository.ErrShareNotFound)
	})
}

func TestVersionSnapshots(t *testing.T) {
	ctx := context.Background()
	docID := uuid.New()

	for _, compress := range []bool{true, false} {
		name := "压缩"
		if !compress {
			name = "不压缩"
		}
		t.Run(name, func(t *testing.T) {
			repo := newTestRepository(t, compress)

			n, err := repo.GetLatestVersionNumber(ctx, docID)
			require.NoError(t, err)
			assert.Zero(t, n, "无版本时返回 0")

			for i := uint64(1); i <= 3; i++ {
				version := types.DocumentVersion{
					ID:            uuid.New(),
					DocumentID:    docID,
					VersionNumber: i,
					Content:       sampleContent("snapshot"),
					CreatedAt:     time.Now().UTC().Truncate(time.Millisecond),
					CreatedBy:     uuid.New(),
				}
				require.NoError(t, repo.CreateDocumentVersion(ctx, version))
			}

			n, err = repo.GetLatestVersionNumber(ctx, docID)
			require.NoError(t, err)
			assert.Equal(t, uint64(3), n)

			got, err := repo.GetDocumentVersion(ctx, docID, 2)
			require.NoError(t, err)
			assert.Equal(t, uint64(2), got.VersionNumber)
			assert.Equal(t, docID, got.DocumentID)
		})
	}

	t.Run("版本号隔离到各自文档", func(t *testing.T) {
		repo := newTestRepository(t, true)
		docA, docB := uuid.New(), uuid.New()
		require.NoError(t, repo.CreateDocumentVersion(ctx, types.DocumentVersion{
			ID: uuid.New(), DocumentID: docA, VersionNumber: 7,
		}))

		n, err := repo.GetLatestVersionNumber(ctx, docB)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestRatchetSessions(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, true)
	docID := uuid.New()
	peer := types.GeneratePeerID()

	t.Run("不存在返回 ErrSessionNotFound", func(t *testing.T) {
		_, err := repo.LoadRatchetSession(ctx, docID, peer)
		assert.ErrorIs(t, err, repository.ErrSessionNotFound)
	})

	t.Run("字节串原样往返", func(t *testing.T) {
		blob := []byte{0x00, 0xff, 0x10, 0x20, 0x00}
		require.NoError(t, repo.SaveRatchetSession(ctx, docID, peer, blob))

		got, err := repo.LoadRatchetSession(ctx, docID, peer)
		require.NoError(t, err)
		assert.Equal(t, blob, got)
	})

	t.Run("覆盖写入", func(t *testing.T) {
		require.NoError(t, repo.SaveRatchetSession(ctx, docID, peer, []byte("v2")))
		got, err := repo.LoadRatchetSession(ctx, docID, peer)
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), got)
	})

	t.Run("按对端隔离", func(t *testing.T) {
		_, err := repo.LoadRatchetSession(ctx, docID, types.GeneratePeerID())
		assert.ErrorIs(t, err, repository.ErrSessionNotFound)
	})
}
