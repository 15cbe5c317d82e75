package fanout

import (
	"sync"

	"github.com/gatherhq/gather/internal/domain"
)

// writeBuffer stages accepted messages per group until a flush sweep moves
// them to the message store. Appenders and the flusher share it; take swaps
// slices out atomically so an append racing a flush is never lost or counted
// twice.
type writeBuffer struct {
	mu      sync.Mutex
	pending map[string][]*domain.ChatMessage
	// failed holds batches whose insert failed partway; they are retried
	// ahead of newer pending entries so per-group order survives a retry.
	failed map[string][]*domain.ChatMessage
}

func newWriteBuffer() *writeBuffer {
	return &writeBuffer{
		pending: make(map[string][]*domain.ChatMessage),
		failed:  make(map[string][]*domain.ChatMessage),
	}
}

// append stages a message and returns the group's pending count.
func (b *writeBuffer) append(msg *domain.ChatMessage) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[msg.GroupID] = append(b.pending[msg.GroupID], msg)
	return len(b.pending[msg.GroupID]) + len(b.failed[msg.GroupID])
}

// take removes and returns everything staged for the group: previously
// failed entries first, then pending entries, preserving accept order.
func (b *writeBuffer) take(groupID string) []*domain.ChatMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := b.failed[groupID]
	pending := b.pending[groupID]
	delete(b.failed, groupID)
	delete(b.pending, groupID)

	if len(failed) == 0 {
		return pending
	}
	return append(failed, pending...)
}

// requeue puts back the unpersisted tail of a failed batch. Entries keep
// their original ids, so the retried insert is idempotent.
func (b *writeBuffer) requeue(groupID string, msgs []*domain.ChatMessage) {
	if len(msgs) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failed[groupID] = append(b.failed[groupID], msgs...)
}

// groups returns the ids of all groups with staged entries.
func (b *writeBuffer) groups() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[string]struct{}, len(b.pending)+len(b.failed))
	for g := range b.failed {
		seen[g] = struct{}{}
	}
	for g := range b.pending {
		seen[g] = struct{}{}
	}

	ids := make([]string, 0, len(seen))
	for g := range seen {
		ids = append(ids, g)
	}
	return ids
}

// size returns the total number of staged entries across all groups.
func (b *writeBuffer) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, msgs := range b.failed {
		n += len(msgs)
	}
	for _, msgs := range b.pending {
		n += len(msgs)
	}
	return n
}
