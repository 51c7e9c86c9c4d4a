package ws

import (
	"encoding/json"
	"log"
	"sync"

	"loyalpay/internal/models"
)

// Client is one WebSocket connection of an authenticated user.
type Client struct {
	UserID uint
	Send   chan []byte
	hub    *Hub
	once   sync.Once
}

func NewClient(userID uint) *Client {
	return &Client{UserID: userID, Send: make(chan []byte, 32)}
}

// Close unregisters the client before closing Send, so broadcasts never hit a closed channel.
func (c *Client) Close() {
	c.once.Do(func() {
		if c.hub != nil {
			c.hub.unregister(c)
		}
		close(c.Send)
	})
}

// WalletEvent is pushed after every committed balance change.
type WalletEvent struct {
	Type           string `json:"type"`
	Balance        string `json:"balance"`
	LoyaltyBalance string `json:"loyaltyBalance"`
	EntryID        uint   `json:"entryId"`
	EntryType      string `json:"entryType"`
}

// Hub fans wallet updates out to the connections of each user.
type Hub struct {
	mu     sync.RWMutex
	byUser map[uint]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{byUser: make(map[uint]map[*Client]struct{})}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.hub = h
	if h.byUser[c.UserID] == nil {
		h.byUser[c.UserID] = make(map[*Client]struct{})
	}
	h.byUser[c.UserID][c] = struct{}{}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m := h.byUser[c.UserID]; m != nil {
		delete(m, c)
		if len(m) == 0 {
			delete(h.byUser, c.UserID)
		}
	}
}

// SendToUser drops the message for clients whose buffer is full.
func (h *Hub) SendToUser(userID uint, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[WS] marshal payload for user %d: %v", userID, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.byUser[userID] {
		select {
		case c.Send <- data:
		default:
		}
	}
}

// WalletChanged implements ledger.Notifier.
func (h *Hub) WalletChanged(w *models.Wallet, e *models.LedgerEntry) {
	if w == nil || e == nil {
		return
	}
	h.SendToUser(w.UserID, WalletEvent{
		Type:           "wallet",
		Balance:        w.Balance.StringFixed(2),
		LoyaltyBalance: w.LoyaltyBalance.StringFixed(2),
		EntryID:        e.ID,
		EntryType:      e.Type,
	})
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, m := range h.byUser {
		n += len(m)
	}
	return n
}
