package utils

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyMutex(t *testing.T) {
	t.Run("same key serializes", func(t *testing.T) {
		m := NewKeyMutex(8)

		counter := 0

		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)

			go func() {
				defer wg.Done()

				m.Lock("42:7")
				counter++
				m.Unlock("42:7")
			}()
		}

		wg.Wait()
		assert.Equal(t, 100, counter)
	})

	t.Run("zero shards falls back to default", func(t *testing.T) {
		m := NewKeyMutex(0)
		m.Lock("a")
		m.Unlock("a")
	})
}
