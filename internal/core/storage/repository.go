package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/dep2p/go-collab/config"
	"github.com/dep2p/go-collab/pkg/interfaces/repository"
	"github.com/dep2p/go-collab/pkg/types"
)

// 键前缀约定（见包文档）
var (
	prefixDocument = []byte("doc/")
	prefixShare    = []byte("shr/")
	prefixVersion  = []byte("ver/")
	prefixRatchet  = []byte("rs/")
)

// 快照编码标记（值首字节）
const (
	encodingRaw  byte = 0x00
	encodingZstd byte = 0x01
)

// Repository DocumentRepository 的 BadgerDB 实现
type Repository struct {
	store    *Store
	compress bool

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewRepository 创建仓库
func NewRepository(store *Store, cfg config.StorageConfig) (*Repository, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("storage: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("storage: zstd decoder: %w", err)
	}
	return &Repository{
		store:    store,
		compress: cfg.CompressSnapshots,
		enc:      enc,
		dec:      dec,
	}, nil
}

var _ repository.DocumentRepository = (*Repository)(nil)

// ============================================================================
//                              文档
// ============================================================================

// GetDocument 实现 repository.DocumentRepository
func (r *Repository) GetDocument(_ context.Context, id uuid.UUID) (types.Document, error) {
	var doc types.Document
	value, err := r.store.get(documentKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return doc, fmt.Errorf("%w: %s", repository.ErrDocumentNotFound, id)
	}
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(value, &doc); err != nil {
		return doc, fmt.Errorf("%w: document %s: %v", ErrCorruptValue, id, err)
	}
	return doc, nil
}

// PutDocument 实现 repository.DocumentRepository
func (r *Repository) PutDocument(_ context.Context, doc types.Document) error {
	value, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return r.store.set(documentKey(doc.ID), value)
}

// ============================================================================
//                              共享记录
// ============================================================================

// GetDocumentShare 实现 repository.DocumentRepository
func (r *Repository) GetDocumentShare(_ context.Context, documentID, userID uuid.UUID) (types.DocumentShare, error) {
	var share types.DocumentShare
	value, err := r.store.get(shareKey(documentID, userID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return share, fmt.Errorf("%w: doc %s user %s", repository.ErrShareNotFound, documentID, userID)
	}
	if err != nil {
		return share, err
	}
	if err := json.Unmarshal(value, &share); err != nil {
		return share, fmt.Errorf("%w: share: %v", ErrCorruptValue, err)
	}
	return share, nil
}

// PutDocumentShare 实现 repository.DocumentRepository
func (r *Repository) PutDocumentShare(_ context.Context, share types.DocumentShare) error {
	value, err := json.Marshal(share)
	if err != nil {
		return err
	}
	return r.store.set(shareKey(share.DocumentID, share.UserID), value)
}

// ============================================================================
//                              版本快照
// ============================================================================

// GetLatestVersionNumber 实现 repository.DocumentRepository
func (r *Repository) GetLatestVersionNumber(_ context.Context, documentID uuid.UUID) (uint64, error) {
	prefix := versionPrefix(documentID)
	last, found, err := r.store.lastKeyWithPrefix(prefix)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	suffix := last[len(prefix):]
	if len(suffix) != 8 {
		return 0, fmt.Errorf("%w: version key %q", ErrCorruptValue, last)
	}
	return binary.BigEndian.Uint64(suffix), nil
}

// CreateDocumentVersion 实现 repository.DocumentRepository
func (r *Repository) CreateDocumentVersion(_ context.Context, version types.DocumentVersion) error {
	plain, err := json.Marshal(version)
	if err != nil {
		return err
	}

	value := make([]byte, 1, len(plain)+1)
	if r.compress {
		value[0] = encodingZstd
		value = r.enc.EncodeAll(plain, value)
	} else {
		value[0] = encodingRaw
		value = append(value, plain...)
	}
	return r.store.set(versionKey(version.DocumentID, version.VersionNumber), value)
}

// GetDocumentVersion 读取指定版本快照
func (r *Repository) GetDocumentVersion(_ context.Context, documentID uuid.UUID, versionNumber uint64) (types.DocumentVersion, error) {
	var version types.DocumentVersion
	value, err := r.store.get(versionKey(documentID, versionNumber))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return version, fmt.Errorf("%w: doc %s version %d", repository.ErrDocumentNotFound, documentID, versionNumber)
	}
	if err != nil {
		return version, err
	}

	plain, err := r.decodeSnapshot(value)
	if err != nil {
		return version, err
	}
	if err := json.Unmarshal(plain, &version); err != nil {
		return version, fmt.Errorf("%w: version: %v", ErrCorruptValue, err)
	}
	return version, nil
}

func (r *Repository) decodeSnapshot(value []byte) ([]byte, error) {
	if len(value) < 1 {
		return nil, fmt.Errorf("%w: empty snapshot", ErrCorruptValue)
	}
	switch value[0] {
	case encodingRaw:
		return value[1:], nil
	case encodingZstd:
		plain, err := r.dec.DecodeAll(value[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("%w: snapshot: %v", ErrCorruptValue, err)
		}
		return plain, nil
	default:
		return nil, fmt.Errorf("%w: unknown snapshot encoding 0x%02x", ErrCorruptValue, value[0])
	}
}

// ============================================================================
//                              棘轮会话
// ============================================================================

// SaveRatchetSession 实现 repository.DocumentRepository
//
// 字节串不透明：不压缩、不解释，原样落盘。
func (r *Repository) SaveRatchetSession(_ context.Context, documentID uuid.UUID, peerID types.PeerID, session []byte) error {
	return r.store.set(ratchetKey(documentID, peerID), session)
}

// LoadRatchetSession 实现 repository.DocumentRepository
func (r *Repository) LoadRatchetSession(_ context.Context, documentID uuid.UUID, peerID types.PeerID) ([]byte, error) {
	value, err := r.store.get(ratchetKey(documentID, peerID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: doc %s peer %s", repository.ErrSessionNotFound, documentID, peerID.ShortString())
	}
	return value, err
}

// ============================================================================
//                              键构造
// ============================================================================

func documentKey(id uuid.UUID) []byte {
	return append(append([]byte(nil), prefixDocument...), id[:]...)
}

func shareKey(documentID, userID uuid.UUID) []byte {
	key := append(append([]byte(nil), prefixShare...), documentID[:]...)
	key = append(key, '/')
	return append(key, userID[:]...)
}

func versionPrefix(documentID uuid.UUID) []byte {
	key := append(append([]byte(nil), prefixVersion...), documentID[:]...)
	return append(key, '/')
}

func versionKey(documentID uuid.UUID, versionNumber uint64) []byte {
	key := versionPrefix(documentID)
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], versionNumber)
	return append(key, seq[:]...)
}

func ratchetKey(documentID uuid.UUID, peerID types.PeerID) []byte {
	key := append(append([]byte(nil), prefixRatchet...), documentID[:]...)
	key = append(key, '/')
	return append(key, peerID[:]...)
}
