package cmn

import "sync"

// DynSemaphore is a semaphore whose size can be changed during use. The
// upload file handler uses one to bound how many files of a single torrent
// it streams to the destination backend concurrently.
type DynSemaphore struct {
	size int
	cur  int
	c    *sync.Cond
	mu   sync.Mutex
}

func NewDynSemaphore(n int) *DynSemaphore {
	sema := &DynSemaphore{size: n}
	sema.c = sync.NewCond(&sema.mu)
	return sema
}

func (s *DynSemaphore) SetSize(n int) {
	Assert(n >= 1)
	s.mu.Lock()
	s.size = n
	s.c.Broadcast()
	s.mu.Unlock()
}

func (s *DynSemaphore) Acquire() {
	s.mu.Lock()
	for s.cur >= s.size {
		s.c.Wait()
	}
	s.cur++
	s.mu.Unlock()
}

func (s *DynSemaphore) Release() {
	s.mu.Lock()
	AssertMsg(s.cur > 0, "release of unacquired semaphore")
	s.cur--
	s.c.Signal()
	s.mu.Unlock()
}
