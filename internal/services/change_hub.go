package services

import (
	"sync"
	"time"

	"github.com/rebolloluis/family-tree/internal/models"
)

type ChangeOp string

const (
	ChangeInsert ChangeOp = "insert"
	ChangeUpdate ChangeOp = "update"
	ChangeDelete ChangeOp = "delete"
)

// MemberChange is one committed member write, fanned out to every subscriber
// of the family, the writer included.
type MemberChange struct {
	Op       ChangeOp       `json:"op"`
	FamilyID string         `json:"family_id"`
	Member   *models.Member `json:"member,omitempty"`
	IDs      []string       `json:"ids,omitempty"`
	At       time.Time      `json:"at"`
}

const subscriberBuffer = 100

// ChangeHub fans member changes out to subscribers, grouped by family.
type ChangeHub struct {
	families map[string]map[string]chan MemberChange
	mu       sync.RWMutex
}

func NewChangeHub() *ChangeHub {
	return &ChangeHub{
		families: make(map[string]map[string]chan MemberChange),
	}
}

// Subscribe registers clientID for changes of familyID.
func (h *ChangeHub) Subscribe(familyID, clientID string) <-chan MemberChange {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.families[familyID]
	if !ok {
		clients = make(map[string]chan MemberChange)
		h.families[familyID] = clients
	}
	if old, ok := clients[clientID]; ok {
		close(old)
		hubSubscribers.Dec()
	}
	ch := make(chan MemberChange, subscriberBuffer)
	clients[clientID] = ch
	hubSubscribers.Inc()
	return ch
}

// Unsubscribe closes and removes the client's channel.
func (h *ChangeHub) Unsubscribe(familyID, clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.families[familyID]
	if !ok {
		return
	}
	if ch, ok := clients[clientID]; ok {
		close(ch)
		delete(clients, clientID)
		hubSubscribers.Dec()
	}
	if len(clients) == 0 {
		delete(h.families, familyID)
	}
}

// Publish delivers change to the family's subscribers without blocking.
// A subscriber whose buffer is full misses the event.
func (h *ChangeHub) Publish(change MemberChange) {
	if change.At.IsZero() {
		change.At = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.families[change.FamilyID] {
		select {
		case ch <- change:
		default:
			hubDropped.Inc()
		}
	}
}

// ClientCount returns the number of subscribers across all families.
func (h *ChangeHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, clients := range h.families {
		n += len(clients)
	}
	return n
}

func (h *ChangeHub) FamilyClientCount(familyID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.families[familyID])
}

var (
	globalChangeHub *ChangeHub
	changeHubOnce   sync.Once
)

// GetChangeHub returns the process-wide hub.
func GetChangeHub() *ChangeHub {
	changeHubOnce.Do(func() {
		globalChangeHub = NewChangeHub()
	})
	return globalChangeHub
}
