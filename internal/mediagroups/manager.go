package mediagroups

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/mymmrac/telego"
)

const (
	// DefaultProcessDelay is how long to wait for the remaining parts of
	// an album after the first one arrives.
	DefaultProcessDelay = 2 * time.Second
	// DefaultMaxGroupSize limits the number of messages stored per album.
	DefaultMaxGroupSize = 10
)

// ProcessFunc processes a completed album: the group ID and its
// collected messages in channel order.
type ProcessFunc func(ctx context.Context, groupID string, messages []telego.Message) error

type groupState struct {
	messages []telego.Message
	timer    *time.Timer
	mu       sync.Mutex
}

// Manager collects the parts of Telegram media groups (albums) arriving
// as separate updates and hands each complete album to a handler. Used
// for listing media intake, where merchants send their photos as one
// album.
type Manager struct {
	groups sync.Map // map[string]*groupState
}

// NewManager creates a new media group manager.
func NewManager() *Manager {
	return &Manager{}
}

// HandleMessage adds a message to its album and schedules processing
// after delay when it is the first part. Messages beyond maxSize are
// dropped with a log line.
func (m *Manager) HandleMessage(parentCtx context.Context, message telego.Message, handler ProcessFunc, delay time.Duration, maxSize int) error {
	if message.MediaGroupID == "" {
		return nil
	}

	groupID := message.MediaGroupID
	actualVal, _ := m.groups.LoadOrStore(groupID, &groupState{
		messages: make([]telego.Message, 0, maxSize),
	})
	state := actualVal.(*groupState)

	state.mu.Lock()

	found := false
	for _, msg := range state.messages {
		if msg.MessageID == message.MessageID {
			found = true
			break
		}
	}

	wasEmpty := len(state.messages) == 0
	messageAdded := false

	if !found && len(state.messages) < maxSize {
		state.messages = append(state.messages, message)
		sort.Slice(state.messages, func(i, j int) bool {
			return state.messages[i].MessageID < state.messages[j].MessageID
		})
		messageAdded = true
	} else if !found {
		log.Printf("[MediaGroups Group:%s] Album limit (%d) reached, message %d dropped", groupID, maxSize, message.MessageID)
	}

	shouldSetTimer := wasEmpty && messageAdded
	state.mu.Unlock()

	if shouldSetTimer {
		state.mu.Lock()
		if state.timer == nil {
			state.timer = time.AfterFunc(delay, func() {
				finalMessages := m.getAndRemoveGroup(groupID)
				if len(finalMessages) == 0 {
					return
				}
				if err := handler(context.Background(), groupID, finalMessages); err != nil {
					log.Printf("[MediaGroups Group:%s] Error processing album: %v", groupID, err)
				}
			})
		}
		state.mu.Unlock()
	}

	return nil
}

// getAndRemoveGroup atomically retrieves messages and removes the album state.
func (m *Manager) getAndRemoveGroup(groupID string) []telego.Message {
	val, loaded := m.groups.LoadAndDelete(groupID)
	if !loaded {
		return nil
	}
	state := val.(*groupState)

	state.mu.Lock()
	defer state.mu.Unlock()

	if state.timer != nil {
		state.timer.Stop()
		state.timer = nil
	}

	msgsCopy := make([]telego.Message, len(state.messages))
	copy(msgsCopy, state.messages)
	return msgsCopy
}

// Shutdown stops all pending album timers.
func (m *Manager) Shutdown() {
	stopped := 0
	m.groups.Range(func(key, value interface{}) bool {
		state := value.(*groupState)
		state.mu.Lock()
		if state.timer != nil {
			if state.timer.Stop() {
				stopped++
			}
			state.timer = nil
		}
		state.mu.Unlock()
		return true
	})
	log.Printf("[MediaGroups] Shutdown complete, stopped %d pending timer(s)", stopped)
}
