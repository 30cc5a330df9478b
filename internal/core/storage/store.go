package storage

import (
	"errors"
	"sync/atomic"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/dep2p/go-collab/config"
	"github.com/dep2p/go-collab/internal/util/logger"
)

var log = logger.Logger("core/storage")

// Store BadgerDB 之上的薄封装
//
// 只暴露仓库实现需要的原语；引擎选项在这里统一收口。
type Store struct {
	db     *badger.DB
	closed int32
}

// Open 按配置打开存储
func Open(cfg config.StorageConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	// badger 自带 logger 很吵，统一走结构化日志
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", "in_memory", cfg.InMemory, "path", cfg.Path)
	return &Store{db: db}, nil
}

// get 读取键对应的值副本
func (s *Store) get(key []byte) ([]byte, error) {
	if atomic.LoadInt32(&s.closed) == 1 {
		return nil, ErrStoreClosed
	}
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, badger.ErrKeyNotFound
	}
	return value, err
}

// set 写入键值
func (s *Store) set(key, value []byte) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return ErrStoreClosed
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// lastKeyWithPrefix 返回前缀下字典序最大的键
//
// 版本序号大端编码，字典序即数值序，反向迭代第一个命中
// 就是最新版本。
func (s *Store) lastKeyWithPrefix(prefix []byte) ([]byte, bool, error) {
	if atomic.LoadInt32(&s.closed) == 1 {
		return nil, false, ErrStoreClosed
	}
	var last []byte
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Reverse = true
		iterOpts.PrefetchValues = false
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		// 反向迭代从前缀的上界开始
		seek := append(append([]byte(nil), prefix...),
			0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			last = it.Item().KeyCopy(nil)
			found = true
			return nil
		}
		return nil
	})
	return last, found, err
}

// Close 关闭存储
func (s *Store) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	log.Info("storage closed")
	return s.db.Close()
}
