package store

import (
	"os"
	"strings"
	"sync"

	"github.com/christoff-linde/MonitoringESP/data"
	logger "github.com/sirupsen/logrus"
)

// FileStore persists readings to a flat file, one CSV record per line, so a
// power cut between sample and upload loses nothing. Append flushes and
// closes before returning; Drain reads everything and then truncates, which
// means a crash mid-drain can duplicate already-uploaded readings on the next
// cycle (at-least-once, never silent loss).
//
// If the file stops being writable the store degrades to memory-only
// buffering rather than halting the node.
type FileStore struct {
	path     string
	capacity int
	count    int
	dropped  int
	degraded bool
	mem      *MemoryStore
	lock     sync.Mutex
}

func NewFileStore(path string, capacity int) *FileStore {
	f := &FileStore{
		path:     path,
		capacity: capacity,
		mem:      NewMemoryStore(capacity),
	}
	records, err := f.readAll()
	if err != nil {
		logger.Errorf("Store file unusable, buffering in memory only [%v]", err)
		f.degraded = true
		return f
	}
	f.count = len(records)
	if f.count > 0 {
		logger.Infof("Recovered %v buffered readings from %v", f.count, path)
	}
	f.describe()
	return f
}

// describe logs the store file listing, the flat-file analog of the
// firmware's filesystem directory dump at boot.
func (f *FileStore) describe() {
	stat, err := os.Stat(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Infof("Store file [%v] not present yet, 0 records", f.path)
		}
		return
	}
	logger.Infof("Store file [%v] %v records, %v bytes", f.path, f.count, stat.Size())
}

func (f *FileStore) Append(r data.Reading) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.degraded {
		return f.mem.Append(r)
	}
	if f.count >= f.capacity {
		if err := f.dropOldest(f.count - f.capacity + 1); err != nil {
			logger.Errorf("Failed to trim store file [%v]", err)
			f.degrade(r)
			return nil
		}
	}
	fh, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger.Errorf("Failed to open store file [%v]", err)
		f.degrade(r)
		return nil
	}
	_, werr := fh.WriteString(r.MarshalCSV() + "\n")
	if serr := fh.Sync(); werr == nil {
		werr = serr
	}
	if cerr := fh.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		logger.Errorf("Failed to write store file [%v]", werr)
		f.degrade(r)
		return nil
	}
	f.count += 1
	return nil
}

// degrade switches to memory buffering, carrying over whatever the file
// still holds plus the reading that failed to persist.
func (f *FileStore) degrade(r data.Reading) {
	recovered, err := f.readAll()
	if err == nil {
		for _, rec := range recovered {
			_ = f.mem.Append(rec)
		}
	}
	_ = f.mem.Append(r)
	f.degraded = true
}

func (f *FileStore) dropOldest(n int) error {
	records, err := f.readAll()
	if err != nil {
		return err
	}
	if n > len(records) {
		n = len(records)
	}
	records = records[n:]
	var sb strings.Builder
	for _, rec := range records {
		sb.WriteString(rec.MarshalCSV())
		sb.WriteString("\n")
	}
	if err := os.WriteFile(f.path, []byte(sb.String()), 0o644); err != nil {
		return err
	}
	f.count = len(records)
	f.dropped += n
	logger.Warnf("Store full, dropped %v oldest readings", n)
	return nil
}

func (f *FileStore) readAll() ([]data.Reading, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []data.Reading
	for _, line := range strings.Split(string(raw), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, err := data.ParseCSV(line)
		if err != nil {
			logger.Warnf("Skipping corrupt record [%v]", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (f *FileStore) Readings() []data.Reading {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.degraded {
		return f.mem.Readings()
	}
	records, err := f.readAll()
	if err != nil {
		logger.Errorf("Failed to read store file [%v]", err)
		return nil
	}
	return records
}

func (f *FileStore) Drain() []data.Reading {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.degraded {
		return f.mem.Drain()
	}
	records, err := f.readAll()
	if err != nil {
		logger.Errorf("Failed to read store file [%v]", err)
		return nil
	}
	if err := os.Truncate(f.path, 0); err != nil && !os.IsNotExist(err) {
		logger.Errorf("Failed to truncate store file [%v]", err)
	}
	f.count = 0
	return records
}

func (f *FileStore) Len() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.degraded {
		return f.mem.Len()
	}
	return f.count
}

func (f *FileStore) IsEmpty() bool {
	return f.Len() == 0
}

func (f *FileStore) Dropped() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.dropped + f.mem.Dropped()
}
