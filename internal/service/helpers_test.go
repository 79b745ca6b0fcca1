package service

import (
	"io"
	"strings"
	"sync"
	"time"

	"pharmacie_back_end/internal/storage"
)

// tickClock avance d'une seconde à chaque appel.
func tickClock() Clock {
	var mu sync.Mutex
	t := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newMemoryFiles() *storage.Memory { return storage.NewMemory() }

func bytesReader(s string) io.Reader { return strings.NewReader(s) }
