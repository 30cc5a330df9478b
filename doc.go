// Package collab 是一个 CRDT 实时协作文档引擎
//
// go-collab 把四个子系统组合成一个可嵌入的协作节点：
//
//   - CRDT 引擎：无协调收敛的文档状态（插入/删除/更新，
//     墓碑删除，乱序容忍的悬挂缓冲）
//   - NAT 穿透中继客户端：直连不可达时经 rendezvous 服务器
//     分配的中继地址转发流量
//   - 对等同步层：按文档广播操作、离线队列、显式连通性
//   - 协作编排器：会话生命周期、本地操作流订阅、版本快照、
//     棘轮会话持久化
//
// # 快速开始
//
//	node, err := collab.New(
//	    collab.WithInMemoryStorage(),
//	    collab.WithRelayServers(types.RelayServer{Address: "wss://relay.example.com"}),
//	)
//	if err != nil {
//	    return err
//	}
//	defer node.Close()
//
//	if err := node.InitializeDocument(ctx, docID, userID); err != nil {
//	    return err
//	}
//	stream, _ := node.SubscribeToOperations(docID)
//	for {
//	    op, err := stream.Next(ctx)
//	    if err != nil {
//	        break
//	    }
//	    render(op)
//	}
package collab
