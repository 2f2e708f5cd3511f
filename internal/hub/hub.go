package hub

import (
	"sync"

	"github.com/Matrx007/rrchat/internal/metrics"
)

// Conn 代表一条活跃的客户端连接。身份与当前房间由 Hub 的锁保护，
// 传输层只通过 Outbox 读取待发送的帧。
type Conn struct {
	send     chan []byte
	userID   uint
	username string
	room     uint
	closed   bool
}

// Outbox 返回待写出帧的通道，连接断开时由 Hub 关闭。
func (c *Conn) Outbox() <-chan []byte { return c.send }

// Hub 是房间成员索引：记录每个房间当前订阅的连接集合，以及每条连接
// 绑定的身份与当前房间。所有修改都在短临界区内完成，索引锁内不做任何
// 外部调用；消息落库的排序由独立的 per-room sequencer 锁负责。
type Hub struct {
	mu    sync.RWMutex
	rooms map[uint]map[*Conn]struct{}

	seqMu sync.Mutex
	seq   map[uint]*sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[uint]map[*Conn]struct{}),
		seq:   make(map[uint]*sync.Mutex),
	}
}

// NewConn 登记一条新连接，未绑定身份、未订阅任何房间。
func (h *Hub) NewConn() *Conn {
	metrics.WsConnections.Inc()
	return &Conn{send: make(chan []byte, 256)}
}

// Bind 把连接绑定到已认证的用户身份。换绑到另一个用户时先退出当前房间。
func (h *Hub) Bind(c *Conn, userID uint, username string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	if c.userID != 0 && c.userID != userID {
		h.unsubscribeLocked(c)
	}
	c.userID = userID
	c.username = username
}

// Identity 返回连接绑定的用户，未绑定时 userID 为 0。
func (h *Hub) Identity(c *Conn) (userID uint, username string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.userID, c.username
}

// Subscribe 把连接订阅到指定房间。一条连接同一时刻至多订阅一个房间：
// 已有订阅会先被退订。重复订阅同一房间是幂等的。
func (h *Hub) Subscribe(c *Conn, roomID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed || c.room == roomID {
		return
	}
	h.unsubscribeLocked(c)
	set := h.rooms[roomID]
	if set == nil {
		set = make(map[*Conn]struct{})
		h.rooms[roomID] = set
	}
	set[c] = struct{}{}
	c.room = roomID
}

// Unsubscribe 把连接退出当前房间，未订阅时为 no-op。
func (h *Hub) Unsubscribe(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(c)
}

func (h *Hub) unsubscribeLocked(c *Conn) {
	if c.room == 0 {
		return
	}
	if set, ok := h.rooms[c.room]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.rooms, c.room)
		}
	}
	c.room = 0
}

// RoomOf 返回连接当前订阅的房间，0 表示未订阅。
func (h *Hub) RoomOf(c *Conn) uint {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.room
}

// Disconnect 在连接断开时做清理：退出房间并关闭发送通道。幂等。
func (h *Hub) Disconnect(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	h.unsubscribeLocked(c)
	c.closed = true
	close(c.send)
	metrics.WsConnections.Dec()
}

// Subscribers 返回房间订阅者在调用时刻的快照。
func (h *Hub) Subscribers(roomID uint) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.rooms[roomID]
	out := make([]*Conn, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// Online 返回房间当前在线连接数，供 REST 接口复用。
func (h *Hub) Online(roomID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// Send 向单条连接投递一帧。连接已关闭或发送缓冲已满时丢弃并返回 false。
func (h *Hub) Send(c *Conn, payload []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Broadcast 把一帧投递给房间当前的全部订阅者，尽力而为、至多一次。
func (h *Hub) Broadcast(roomID uint, payload []byte) {
	h.mu.RLock()
	set := h.rooms[roomID]
	stalled := make([]*Conn, 0)
	for c := range set {
		if c.closed {
			continue
		}
		select {
		case c.send <- payload:
		default:
			stalled = append(stalled, c)
		}
	}
	h.mu.RUnlock()
	// 发送缓冲打满说明客户端长时间不读，按掉线处理。
	for _, c := range stalled {
		h.Disconnect(c)
	}
}

// KickUser 把某用户的所有连接踢出指定房间（例如该用户退出了聊天）。
// 连接本身保持打开，只是失去房间订阅。
func (h *Hub) KickUser(roomID, userID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[roomID] {
		if c.userID == userID {
			h.unsubscribeLocked(c)
		}
	}
}

// LockRoom 获取房间的消息排序锁，返回解锁函数。该锁与索引锁相互独立，
// 持有期间可以安全地访问数据库。
func (h *Hub) LockRoom(roomID uint) func() {
	h.seqMu.Lock()
	m := h.seq[roomID]
	if m == nil {
		m = &sync.Mutex{}
		h.seq[roomID] = m
	}
	h.seqMu.Unlock()
	m.Lock()
	return m.Unlock
}
