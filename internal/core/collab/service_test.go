package collab

import (
	"context"
	"errors"
	stdsync "sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-collab/config"
	"github.com/dep2p/go-collab/internal/core/storage"
	syncsvc "github.com/dep2p/go-collab/internal/core/sync"
	"github.com/dep2p/go-collab/pkg/interfaces/repository"
	"github.com/dep2p/go-collab/pkg/types"
)

var relayErrNoServers = errors.New("no relay configured for test network")

// testNetwork 进程内直连网络：addr → 同步层入站
type testNetwork struct {
	mu    stdsync.Mutex
	nodes map[string]*syncsvc.Service
}

func newTestNetwork() *testNetwork {
	return &testNetwork{nodes: make(map[string]*syncsvc.Service)}
}

func (n *testNetwork) attach(addr string, svc *syncsvc.Service) {
	n.mu.Lock()
	n.nodes[addr] = svc
	n.mu.Unlock()
}

// senderFor 返回 from 节点的直连发送原语
func (n *testNetwork) senderFor(from string) func(ctx context.Context, peerAddr string, data []byte) error {
	return func(_ context.Context, peerAddr string, data []byte) error {
		n.mu.Lock()
		target := n.nodes[peerAddr]
		n.mu.Unlock()
		if target == nil {
			return syncsvc.ErrDocumentNotRegistered
		}
		return target.HandleIncoming(from, data)
	}
}

type senderFunc func(ctx context.Context, peerAddr string, data []byte) error

func (f senderFunc) Send(ctx context.Context, peerAddr string, data []byte) error {
	return f(ctx, peerAddr, data)
}

type testNode struct {
	addr   string
	peer   types.PeerID
	cfg    *config.Config
	repo   repository.DocumentRepository
	syncer *syncsvc.Service
	svc    *Service
}

func newTestNode(t *testing.T, net *testNetwork, addr string) *testNode {
	t.Helper()
	cfg := config.Default()
	cfg.PeerID = types.GeneratePeerID()

	store, err := storage.Open(cfg.Storage)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	repo, err := storage.NewRepository(store, cfg.Storage)
	require.NoError(t, err)

	syncer, err := syncsvc.NewService(cfg.Sync, senderFunc(net.senderFor(addr)), unallocatedRelay{})
	require.NoError(t, err)
	net.attach(addr, syncer)

	svc := NewService(cfg, repo, syncer, unallocatedRelay{}, nil)
	t.Cleanup(func() { _ = svc.Close() })

	return &testNode{
		addr:   addr,
		peer:   cfg.PeerID,
		cfg:    cfg,
		repo:   repo,
		syncer: syncer,
		svc:    svc,
	}
}

// unallocatedRelay 永远没有分配的中继桩
//
// 直连测试网络里不应触达中继路径；触达即测试失败信号
// （Allocate 返回错误让发送走重排队）。
type unallocatedRelay struct{}

func (unallocatedRelay) Prepare(uuid.UUID) {}
func (unallocatedRelay) Allocate(context.Context, uuid.UUID) (string, error) {
	return "", relayErrNoServers
}
func (unallocatedRelay) CreatePermission(uuid.UUID, string) error { return relayErrNoServers }
func (unallocatedRelay) SendData(context.Context, uuid.UUID, string, []byte) error {
	return relayErrNoServers
}
func (unallocatedRelay) RefreshAllocation(context.Context, uuid.UUID) error { return relayErrNoServers }
func (unallocatedRelay) IsAllocationValid(uuid.UUID) bool                   { return false }
func (unallocatedRelay) Allocation(uuid.UUID) (types.TurnAllocation, bool) {
	return types.TurnAllocation{}, false
}
func (unallocatedRelay) CleanupExpiredAllocations() int { return 0 }
func (unallocatedRelay) Release(uuid.UUID)              {}

// seedDocument 在节点仓库写入同一份文档
func seedDocument(t *testing.T, doc types.Document, nodes ...*testNode) {
	t.Helper()
	for _, n := range nodes {
		require.NoError(t, n.repo.PutDocument(context.Background(), doc))
	}
}

func makeDocument(values ...string) types.Document {
	content := types.DocumentContent{}
	peer := types.GeneratePeerID()
	for i, v := range values {
		content.Elements = append(content.Elements, types.ContentElement{
			ID:    types.OperationID{Peer: peer, Counter: uint64(i + 1)},
			Value: v,
		})
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	return types.Document{
		ID:        uuid.New(),
		OwnerID:   uuid.New(),
		Title:     "共享笔记",
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestInitializeDocument(t *testing.T) {
	ctx := context.Background()

	t.Run("不存在的文档", func(t *testing.T) {
		node := newTestNode(t, newTestNetwork(), "node-a")
		err := node.svc.InitializeDocument(ctx, uuid.New(), uuid.New())
		assert.ErrorIs(t, err, ErrDocumentNotFound)
	})

	t.Run("基线内容进入 CRDT 状态", func(t *testing.T) {
		node := newTestNode(t, newTestNetwork(), "node-a")
		doc := makeDocument("标题", "第一段")
		seedDocument(t, doc, node)

		require.NoError(t, node.svc.InitializeDocument(ctx, doc.ID, doc.OwnerID))

		content, err := node.svc.GetDocumentContent(doc.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"标题", "第一段"}, content.Values())
	})

	t.Run("重复初始化是幂等的", func(t *testing.T) {
		node := newTestNode(t, newTestNetwork(), "node-a")
		doc := makeDocument("x")
		seedDocument(t, doc, node)

		require.NoError(t, node.svc.InitializeDocument(ctx, doc.ID, doc.OwnerID))
		require.NoError(t, node.svc.InitializeDocument(ctx, doc.ID, doc.OwnerID))

		content, err := node.svc.GetDocumentContent(doc.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"x"}, content.Values())
	})

	t.Run("不同节点生成一致的基线", func(t *testing.T) {
		net := newTestNetwork()
		a := newTestNode(t, net, "node-a")
		b := newTestNode(t, net, "node-b")
		doc := makeDocument("一", "二", "三")
		seedDocument(t, doc, a, b)

		require.NoError(t, a.svc.InitializeDocument(ctx, doc.ID, doc.OwnerID))
		require.NoError(t, b.svc.InitializeDocument(ctx, doc.ID, doc.OwnerID))

		ca, err := a.svc.GetDocumentContent(doc.ID)
		require.NoError(t, err)
		cb, err := b.svc.GetDocumentContent(doc.ID)
		require.NoError(t, err)
		assert.Equal(t, ca, cb, "基线状态必须逐元素一致")
	})
}

func TestApplyOperationOrdering(t *testing.T) {
	ctx := context.Background()
	node := newTestNode(t, newTestNetwork(), "node-a")
	doc := makeDocument()
	seedDocument(t, doc, node)
	require.NoError(t, node.svc.InitializeDocument(ctx, doc.ID, doc.OwnerID))

	t.Run("本地订阅者先于网络看到编辑", func(t *testing.T) {
		stream, err := node.svc.SubscribeToOperations(doc.ID)
		require.NoError(t, err)
		defer stream.Cancel()

		op := types.DocumentOperation{
			Kind:  types.OpInsert,
			ID:    types.OperationID{Peer: node.peer, Counter: 1},
			Value: "hello",
		}
		require.NoError(t, node.svc.ApplyOperation(ctx, doc.ID, op))

		recvCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		got, err := stream.Next(recvCtx)
		require.NoError(t, err)
		assert.Equal(t, op, got)

		content, err := node.svc.GetDocumentContent(doc.ID)
		require.NoError(t, err)
		assert.Contains(t, content.Values(), "hello")
	})

	t.Run("订阅不回放历史", func(t *testing.T) {
		stream, err := node.svc.SubscribeToOperations(doc.ID)
		require.NoError(t, err)
		defer stream.Cancel()

		recvCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_, err = stream.Next(recvCtx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("取消后 Next 返回错误", func(t *testing.T) {
		stream, err := node.svc.SubscribeToOperations(doc.ID)
		require.NoError(t, err)
		stream.Cancel()

		_, err = stream.Next(ctx)
		assert.ErrorIs(t, err, ErrSubscriptionClosed)
	})

	t.Run("未知会话拒绝", func(t *testing.T) {
		err := node.svc.ApplyOperation(ctx, uuid.New(), types.DocumentOperation{
			Kind: types.OpInsert,
			ID:   types.OperationID{Peer: node.peer, Counter: 99},
		})
		assert.ErrorIs(t, err, ErrDocumentNotFound)
	})
}

func TestTwoNodeConvergence(t *testing.T) {
	ctx := context.Background()
	net := newTestNetwork()
	a := newTestNode(t, net, "node-a")
	b := newTestNode(t, net, "node-b")
	doc := makeDocument("草稿")
	seedDocument(t, doc, a, b)

	require.NoError(t, a.svc.InitializeDocument(ctx, doc.ID, doc.OwnerID))
	require.NoError(t, b.svc.InitializeDocument(ctx, doc.ID, doc.OwnerID))
	require.NoError(t, a.svc.AddPeer(doc.ID, "node-b"))
	require.NoError(t, b.svc.AddPeer(doc.ID, "node-a"))
	a.svc.SetNetworkConnected(true)
	b.svc.SetNetworkConnected(true)

	// A 在基线元素后追加
	baseline, err := a.svc.GetDocumentContent(doc.ID)
	require.NoError(t, err)
	require.Len(t, baseline.Elements, 1)

	opA := types.DocumentOperation{
		Kind:   types.OpInsert,
		ID:     types.OperationID{Peer: a.peer, Counter: 1},
		Parent: baseline.Elements[0].ID,
		Value:  "A 的补充",
	}
	require.NoError(t, a.svc.ApplyOperation(ctx, doc.ID, opA))

	// B 更新基线元素
	opB := types.DocumentOperation{
		Kind:  types.OpUpdate,
		ID:    baseline.Elements[0].ID,
		Value: "修订稿",
	}
	require.NoError(t, b.svc.ApplyOperation(ctx, doc.ID, opB))

	ca, err := a.svc.GetDocumentContent(doc.ID)
	require.NoError(t, err)
	cb, err := b.svc.GetDocumentContent(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, ca, cb, "双向编辑后两端收敛")
	assert.Equal(t, []string{"修订稿", "A 的补充"}, ca.Values())
}

func TestLocalEditHelpers(t *testing.T) {
	ctx := context.Background()
	net := newTestNetwork()
	a := newTestNode(t, net, "node-a")
	b := newTestNode(t, net, "node-b")
	doc := makeDocument()
	seedDocument(t, doc, a, b)

	require.NoError(t, a.svc.InitializeDocument(ctx, doc.ID, doc.OwnerID))
	require.NoError(t, b.svc.InitializeDocument(ctx, doc.ID, doc.OwnerID))
	require.NoError(t, a.svc.AddPeer(doc.ID, "node-b"))
	require.NoError(t, b.svc.AddPeer(doc.ID, "node-a"))
	a.svc.SetNetworkConnected(true)
	b.svc.SetNetworkConnected(true)

	t.Run("插入由引擎铸 ID 并传播", func(t *testing.T) {
		op, err := a.svc.InsertElement(ctx, doc.ID, types.EmptyOperationID, 0, "标题")
		require.NoError(t, err)
		assert.Equal(t, a.peer, op.ID.Peer)
		assert.NotZero(t, op.ID.Counter)

		cb, err := b.svc.GetDocumentContent(doc.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"标题"}, cb.Values())
	})

	t.Run("更新与删除引用既有元素", func(t *testing.T) {
		ca, err := a.svc.GetDocumentContent(doc.ID)
		require.NoError(t, err)
		target := ca.Elements[0].ID

		_, err = a.svc.UpdateElement(ctx, doc.ID, target, "修订")
		require.NoError(t, err)
		_, err = a.svc.InsertElement(ctx, doc.ID, target, 0, "子项")
		require.NoError(t, err)
		_, err = a.svc.DeleteElement(ctx, doc.ID, target)
		require.NoError(t, err)

		cb, err := b.svc.GetDocumentContent(doc.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"子项"}, cb.Values(), "墓碑后子元素提升到根层")
	})

	t.Run("自铸 ID 后引擎继续铸出新号", func(t *testing.T) {
		// 调用方自铸 ID 走 ApplyOperation，随后的引擎铸号
		// 必须跳过它，否则重号操作被幂等去重静默吞掉
		minted := types.DocumentOperation{
			Kind:  types.OpInsert,
			ID:    types.OperationID{Peer: a.peer, Counter: 1000},
			Value: "自铸",
		}
		require.NoError(t, a.svc.ApplyOperation(ctx, doc.ID, minted))

		op, err := a.svc.InsertElement(ctx, doc.ID, types.EmptyOperationID, 0, "引擎铸")
		require.NoError(t, err)
		assert.Greater(t, op.ID.Counter, minted.ID.Counter)

		ca, err := a.svc.GetDocumentContent(doc.ID)
		require.NoError(t, err)
		assert.Contains(t, ca.Values(), "自铸")
		assert.Contains(t, ca.Values(), "引擎铸")
	})

	t.Run("编辑未知元素报错", func(t *testing.T) {
		missing := types.OperationID{Peer: types.GeneratePeerID(), Counter: 9}
		_, err := a.svc.UpdateElement(ctx, doc.ID, missing, "x")
		assert.Error(t, err)
		_, err = a.svc.DeleteElement(ctx, doc.ID, missing)
		assert.Error(t, err)
	})

	t.Run("未知会话拒绝", func(t *testing.T) {
		_, err := a.svc.InsertElement(ctx, uuid.New(), types.EmptyOperationID, 0, "x")
		assert.ErrorIs(t, err, ErrDocumentNotFound)
	})
}

// 场景：A 离线插入 e1 与其子 e2，重连后冲刷；B 即使先收到
// e2 也要缓冲等待，最终两元素到位且 e2 嵌套在 e1 下。
func TestOfflineEditScenario(t *testing.T) {
	ctx := context.Background()
	net := newTestNetwork()
	a := newTestNode(t, net, "node-a")
	b := newTestNode(t, net, "node-b")
	doc := makeDocument()
	seedDocument(t, doc, a, b)

	require.NoError(t, a.svc.InitializeDocument(ctx, doc.ID, doc.OwnerID))
	require.NoError(t, b.svc.InitializeDocument(ctx, doc.ID, doc.OwnerID))
	require.NoError(t, a.svc.AddPeer(doc.ID, "node-b"))
	require.NoError(t, b.svc.AddPeer(doc.ID, "node-a"))
	b.svc.SetNetworkConnected(true)

	// A 离线编辑
	a.svc.SetNetworkConnected(false)
	e1 := types.DocumentOperation{
		Kind:  types.OpInsert,
		ID:    types.OperationID{Peer: a.peer, Counter: 1},
		Value: "章节",
	}
	e2 := types.DocumentOperation{
		Kind:   types.OpInsert,
		ID:     types.OperationID{Peer: a.peer, Counter: 2},
		Parent: e1.ID,
		Value:  "段落",
	}
	require.NoError(t, a.svc.ApplyOperation(ctx, doc.ID, e1))
	require.NoError(t, a.svc.ApplyOperation(ctx, doc.ID, e2))

	// 离线期间 B 看不到任何内容
	cb, err := b.svc.GetDocumentContent(doc.ID)
	require.NoError(t, err)
	assert.True(t, cb.IsEmpty())

	// 重连并显式冲刷
	a.svc.SetNetworkConnected(true)
	flushed, err := a.svc.ProcessQueuedOperations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, flushed)

	cb, err = b.svc.GetDocumentContent(doc.ID)
	require.NoError(t, err)
	require.Len(t, cb.Elements, 1)
	assert.Equal(t, "章节", cb.Elements[0].Value)
	require.Len(t, cb.Elements[0].Children, 1)
	assert.Equal(t, "段落", cb.Elements[0].Children[0].Value)

	ca, err := a.svc.GetDocumentContent(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, ca, cb)
}

// B 先收到子元素：走同步层入站路径验证缓冲整合
func TestOutOfOrderRemoteDelivery(t *testing.T) {
	ctx := context.Background()
	net := newTestNetwork()
	b := newTestNode(t, net, "node-b")
	doc := makeDocument()
	seedDocument(t, doc, b)
	require.NoError(t, b.svc.InitializeDocument(ctx, doc.ID, doc.OwnerID))

	remote := types.GeneratePeerID()
	e1 := types.DocumentOperation{
		Kind:  types.OpInsert,
		ID:    types.OperationID{Peer: remote, Counter: 1},
		Value: "父",
	}
	e2 := types.DocumentOperation{
		Kind:   types.OpInsert,
		ID:     types.OperationID{Peer: remote, Counter: 2},
		Parent: e1.ID,
		Value:  "子",
	}

	frame2, err := syncsvc.EncodeOperation(doc.ID, e2)
	require.NoError(t, err)
	frame1, err := syncsvc.EncodeOperation(doc.ID, e1)
	require.NoError(t, err)

	// 子先到：缓冲，不出现在内容里
	require.NoError(t, b.syncer.HandleIncoming("node-a", frame2))
	content, err := b.svc.GetDocumentContent(doc.ID)
	require.NoError(t, err)
	assert.True(t, content.IsEmpty())

	// 父到达：级联整合
	require.NoError(t, b.syncer.HandleIncoming("node-a", frame1))
	content, err = b.svc.GetDocumentContent(doc.ID)
	require.NoError(t, err)
	require.Len(t, content.Elements, 1)
	require.Len(t, content.Elements[0].Children, 1)
	assert.Equal(t, "子", content.Elements[0].Children[0].Value)
}

func TestCreateVersion(t *testing.T) {
	ctx := context.Background()
	node := newTestNode(t, newTestNetwork(), "node-a")
	doc := makeDocument("正文")
	seedDocument(t, doc, node)
	require.NoError(t, node.svc.InitializeDocument(ctx, doc.ID, doc.OwnerID))

	t.Run("所有者可以建版本且版本号递增", func(t *testing.T) {
		v1, err := node.svc.CreateVersion(ctx, doc.ID, doc.OwnerID)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), v1.VersionNumber)
		assert.Equal(t, []string{"正文"}, v1.Content.Values())

		v2, err := node.svc.CreateVersion(ctx, doc.ID, doc.OwnerID)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), v2.VersionNumber)
	})

	t.Run("无共享的用户被拒绝", func(t *testing.T) {
		_, err := node.svc.CreateVersion(ctx, doc.ID, uuid.New())
		assert.ErrorIs(t, err, ErrAccessDenied)
	})

	t.Run("只读共享被拒绝", func(t *testing.T) {
		viewer := uuid.New()
		require.NoError(t, node.repo.PutDocumentShare(ctx, types.DocumentShare{
			DocumentID: doc.ID,
			UserID:     viewer,
			Permission: types.PermissionView,
		}))

		_, err := node.svc.CreateVersion(ctx, doc.ID, viewer)
		assert.ErrorIs(t, err, ErrAccessDenied)
	})

	t.Run("可编辑共享放行", func(t *testing.T) {
		editor := uuid.New()
		require.NoError(t, node.repo.PutDocumentShare(ctx, types.DocumentShare{
			DocumentID: doc.ID,
			UserID:     editor,
			Permission: types.PermissionEdit,
		}))

		version, err := node.svc.CreateVersion(ctx, doc.ID, editor)
		require.NoError(t, err)
		assert.Equal(t, editor, version.CreatedBy)
	})
}

func TestCreateVersion_ConcurrentStrictlyIncreasing(t *testing.T) {
	ctx := context.Background()
	node := newTestNode(t, newTestNetwork(), "node-a")
	doc := makeDocument("正文")
	seedDocument(t, doc, node)
	require.NoError(t, node.svc.InitializeDocument(ctx, doc.ID, doc.OwnerID))

	const callers = 8
	versions := make([]types.DocumentVersion, callers)
	errs := make([]error, callers)

	var wg stdsync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			versions[i], errs[i] = node.svc.CreateVersion(ctx, doc.ID, doc.OwnerID)
		}(i)
	}
	wg.Wait()

	// 并发取号不得重号：必须恰好覆盖 1..callers
	seen := make(map[uint64]bool, callers)
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.False(t, seen[versions[i].VersionNumber],
			"duplicate version number %d", versions[i].VersionNumber)
		seen[versions[i].VersionNumber] = true
	}
	for n := uint64(1); n <= callers; n++ {
		assert.True(t, seen[n], "missing version number %d", n)
	}

	latest, err := node.repo.GetLatestVersionNumber(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(callers), latest)
}

func TestRatchetSessionProxy(t *testing.T) {
	ctx := context.Background()
	node := newTestNode(t, newTestNetwork(), "node-a")
	docID := uuid.New()
	peer := types.GeneratePeerID()

	_, err := node.svc.LoadRatchetSession(ctx, docID, peer)
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)

	blob := []byte{0x9a, 0x00, 0x42}
	require.NoError(t, node.svc.SaveRatchetSession(ctx, docID, peer, blob))

	got, err := node.svc.LoadRatchetSession(ctx, docID, peer)
	require.NoError(t, err)
	assert.Equal(t, blob, got)
}

func TestCloseDocument(t *testing.T) {
	ctx := context.Background()
	node := newTestNode(t, newTestNetwork(), "node-a")
	doc := makeDocument("x")
	seedDocument(t, doc, node)
	require.NoError(t, node.svc.InitializeDocument(ctx, doc.ID, doc.OwnerID))

	stream, err := node.svc.SubscribeToOperations(doc.ID)
	require.NoError(t, err)

	require.NoError(t, node.svc.CloseDocument(doc.ID))

	_, err = stream.Next(ctx)
	assert.ErrorIs(t, err, ErrSubscriptionClosed)

	_, err = node.svc.GetDocumentContent(doc.ID)
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	assert.ErrorIs(t, node.svc.CloseDocument(doc.ID), ErrDocumentNotFound)
}
