package lending

import "sync"

// sequencer admits operations strictly in arrival order. Each caller draws a
// ticket and waits until it is being served, so commit order always equals
// admission order. sync.Mutex alone gives no such guarantee.
type sequencer struct {
	mu      sync.Mutex
	turn    *sync.Cond
	next    uint64
	serving uint64
}

func newSequencer() *sequencer {
	s := &sequencer{}
	s.turn = sync.NewCond(&s.mu)
	return s
}

func (s *sequencer) acquire() {
	s.mu.Lock()
	ticket := s.next
	s.next++
	for ticket != s.serving {
		s.turn.Wait()
	}
	s.mu.Unlock()
}

func (s *sequencer) release() {
	s.mu.Lock()
	s.serving++
	s.mu.Unlock()
	s.turn.Broadcast()
}
