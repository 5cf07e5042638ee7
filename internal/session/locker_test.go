package session

import (
	"sync"
	"testing"
	"time"
)

func TestLocker_SerializesSameUser(t *testing.T) {
	l := NewLocker()
	unlock := l.Lock(7)

	acquired := make(chan struct{})
	go func() {
		u := l.Lock(7)
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first held")
	case <-time.After(30 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired")
	}
}

func TestLocker_DifferentUsersDoNotBlock(t *testing.T) {
	l := NewLocker()
	unlock := l.Lock(1)
	defer unlock()

	done := make(chan struct{})
	go func() {
		l.Lock(2)()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock for other user blocked")
	}
}

func TestLocker_ReleasesEntries(t *testing.T) {
	l := NewLocker()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			l.Lock(id % 3)()
		}(int64(i))
	}
	wg.Wait()
	if n := l.size(); n != 0 {
		t.Fatalf("expected no retained entries, got %d", n)
	}
}
