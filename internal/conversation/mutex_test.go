package conversation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	m := newKeyedMutex()

	var mu sync.Mutex
	var active, maxActive int
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("session-a")
			defer unlock()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	m := newKeyedMutex()

	unlockA := m.Lock("a")
	// Must not block while "a" is held.
	unlockB := m.Lock("b")
	unlockB()
	unlockA()
}

func TestKeyedMutexCleansUpEntries(t *testing.T) {
	m := newKeyedMutex()

	unlock := m.Lock("a")
	unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Empty(t, m.locks)
}
