package server

import "sync"

// Scheduler is a bounded buffer of prepared exchanges shared by the
// per-connection goroutines (producers) and the workers (consumers).
type Scheduler struct {
	mu       sync.Mutex  // guards buf
	notEmpty *sync.Cond  // signals workers when an exchange arrives
	notFull  *sync.Cond  // signals producers when space opens up
	buf      []*Exchange // prepared exchanges waiting for a worker
	capacity int         // most exchanges that can wait at once
	schedAlg string      // "FCFS" or "SFF": which exchange goes next
}

func NewScheduler(capacity int, schedAlg string) *Scheduler {
	s := &Scheduler{
		buf:      make([]*Exchange, 0, capacity), // empty, room for capacity
		capacity: capacity,
		schedAlg: schedAlg,
	}
	// both condition variables share the same mutex
	s.notEmpty = sync.NewCond(&s.mu)
	s.notFull = sync.NewCond(&s.mu)
	return s
}

// Enqueue adds a prepared exchange, blocking while the buffer is full.
func (s *Scheduler) Enqueue(ex *Exchange) {
	// lock: exclusive access to the buffer until we return
	s.mu.Lock()
	defer s.mu.Unlock()

	// blocking: Wait drops the lock while asleep and retakes it on wakeup
	for len(s.buf) >= s.capacity {
		s.notFull.Wait()
	}

	// add, then wake one sleeping worker
	s.buf = append(s.buf, ex)
	s.notEmpty.Signal()
}

// Dequeue blocks while the buffer is empty. Under SFF it returns the
// exchange with the smallest response body, otherwise the oldest.
func (s *Scheduler) Dequeue() *Exchange {
	// lock: exclusive access to the buffer until we return
	s.mu.Lock()
	defer s.mu.Unlock()

	// blocking: sleep until a producer signals
	for len(s.buf) == 0 {
		s.notEmpty.Wait()
	}

	// scheduling decision: FCFS takes the head of the line
	idx := 0
	if s.schedAlg == "SFF" {
		// SFF: scan for the smallest body; ties go to the older exchange
		minSize := s.buf[0].Size()
		for i := 1; i < len(s.buf); i++ {
			if size := s.buf[i].Size(); size < minSize {
				minSize = size
				idx = i
			}
		}
	}

	// remove the chosen exchange and tell producers there is room
	ex := s.buf[idx]
	s.buf = append(s.buf[:idx], s.buf[idx+1:]...)
	s.notFull.Signal()
	return ex
}

// Len returns the number of queued exchanges.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}
