package store

import (
	"sync"

	"github.com/christoff-linde/MonitoringESP/data"
)

// Store buffers readings between sampling and upload. Drain returns all
// buffered readings in insertion order and clears the store in one step;
// a failed upload must leave the store untouched, so callers snapshot with
// Readings, upload, and only then Drain.
type Store interface {
	Append(r data.Reading) error
	Readings() []data.Reading
	Drain() []data.Reading
	Len() int
	IsEmpty() bool
	Dropped() int
}

// MemoryStore is a fixed-capacity ring of readings. When full, the oldest
// reading is dropped to make room; recent samples are worth more than old
// ones and a blocked sampler is indistinguishable from a dead node.
type MemoryStore struct {
	data    []data.Reading
	start   int
	count   int
	dropped int
	lock    sync.Mutex
}

func NewMemoryStore(capacity int) *MemoryStore {
	return &MemoryStore{
		data: make([]data.Reading, capacity),
	}
}

func (m *MemoryStore) Append(r data.Reading) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.count == len(m.data) {
		// overwrite the oldest slot
		m.start += 1
		if m.start == len(m.data) {
			m.start = 0
		}
		m.count -= 1
		m.dropped += 1
	}
	pos := m.start + m.count
	if pos >= len(m.data) {
		pos -= len(m.data)
	}
	m.data[pos] = r
	m.count += 1
	return nil
}

func (m *MemoryStore) Readings() []data.Reading {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.snapshot()
}

func (m *MemoryStore) snapshot() []data.Reading {
	out := make([]data.Reading, 0, m.count)
	for i := 0; i < m.count; i++ {
		pos := m.start + i
		if pos >= len(m.data) {
			pos -= len(m.data)
		}
		out = append(out, m.data[pos])
	}
	return out
}

func (m *MemoryStore) Drain() []data.Reading {
	m.lock.Lock()
	defer m.lock.Unlock()
	out := m.snapshot()
	m.start = 0
	m.count = 0
	return out
}

func (m *MemoryStore) Len() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.count
}

func (m *MemoryStore) IsEmpty() bool {
	return m.Len() == 0
}

func (m *MemoryStore) Dropped() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.dropped
}
