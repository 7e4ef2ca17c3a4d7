package history

import "sync"

// MemoryStore keeps cursors and processed-message ids in process memory.
// Suitable for single-instance deployments; state is lost on restart, which
// only costs a bootstrap on the next notification per account.
type MemoryStore struct {
	mu           sync.Mutex
	accounts     map[string]*accountState
	maxProcessed int
}

type accountState struct {
	position  uint64
	hasCursor bool
	processed map[string]struct{}
	order     []string // FIFO eviction order for processed ids
}

// NewMemoryStore creates a MemoryStore whose per-account dedup set holds at
// most maxProcessed ids; the oldest ids are evicted first. maxProcessed <= 0
// means 10000.
func NewMemoryStore(maxProcessed int) *MemoryStore {
	if maxProcessed <= 0 {
		maxProcessed = 10000
	}
	return &MemoryStore{
		accounts:     make(map[string]*accountState),
		maxProcessed: maxProcessed,
	}
}

func (s *MemoryStore) state(account string) *accountState {
	st, ok := s.accounts[account]
	if !ok {
		st = &accountState{processed: make(map[string]struct{})}
		s.accounts[account] = st
	}
	return st
}

func (s *MemoryStore) Cursor(account string) (uint64, bool) {
	mustAccount(account)
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.accounts[account]
	if !ok || !st.hasCursor {
		return 0, false
	}
	return st.position, true
}

func (s *MemoryStore) SetCursor(account string, position uint64) {
	mustAccount(account)
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(account)
	st.position = position
	st.hasCursor = true
}

func (s *MemoryStore) IsProcessed(account, messageID string) bool {
	mustAccount(account)
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.accounts[account]
	if !ok {
		return false
	}
	_, seen := st.processed[messageID]
	return seen
}

func (s *MemoryStore) MarkProcessed(account, messageID string) {
	mustAccount(account)
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(account)
	if _, seen := st.processed[messageID]; seen {
		return
	}
	st.processed[messageID] = struct{}{}
	st.order = append(st.order, messageID)
	for len(st.order) > s.maxProcessed {
		delete(st.processed, st.order[0])
		st.order = st.order[1:]
	}
}
