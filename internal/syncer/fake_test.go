package syncer

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"s3mirror/internal/models"
)

// fakeStore is an in-memory Store. Listings are keyed by remote path, object
// content by entry key.
type fakeStore struct {
	mu         sync.Mutex
	listings   map[string][]models.RemoteEntry
	listErrs   map[string]error
	objects    map[string][]byte
	fetchErrs  map[string][]error
	partial    map[string][]byte
	listFn     func(path string) ([]models.RemoteEntry, error)
	fetchDelay time.Duration

	listCalls  []string
	fetchCalls map[string]int

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		listings:   map[string][]models.RemoteEntry{},
		listErrs:   map[string]error{},
		objects:    map[string][]byte{},
		fetchErrs:  map[string][]error{},
		partial:    map[string][]byte{},
		fetchCalls: map[string]int{},
	}
}

func (s *fakeStore) addFile(dir, name string, content []byte, modTime time.Time) {
	key := joinRemote(dir, name)[1:]
	s.listings[dir] = append(s.listings[dir], models.RemoteEntry{
		Name:       name,
		Key:        key,
		Kind:       models.KindFile,
		Size:       int64(len(content)),
		ModifiedAt: modTime,
	})
	s.objects[key] = content
}

func (s *fakeStore) addDir(dir, name string) {
	s.listings[dir] = append(s.listings[dir], models.RemoteEntry{
		Name: name,
		Key:  joinRemote(dir, name)[1:] + "/",
		Kind: models.KindDirectory,
	})
}

func (s *fakeStore) List(ctx context.Context, path string) ([]models.RemoteEntry, error) {
	s.mu.Lock()
	s.listCalls = append(s.listCalls, path)
	fn := s.listFn
	entries, err := s.listings[path], s.listErrs[path]
	s.mu.Unlock()

	if fn != nil {
		return fn(path)
	}
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *fakeStore) Fetch(ctx context.Context, entry models.RemoteEntry, dst io.WriterAt) (int64, error) {
	cur := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		seen := s.maxInflight.Load()
		if cur <= seen || s.maxInflight.CompareAndSwap(seen, cur) {
			break
		}
	}

	s.mu.Lock()
	s.fetchCalls[entry.Key]++
	var err error
	if queued := s.fetchErrs[entry.Key]; len(queued) > 0 {
		err, s.fetchErrs[entry.Key] = queued[0], queued[1:]
	}
	content, partial := s.objects[entry.Key], s.partial[entry.Key]
	delay := s.fetchDelay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if err != nil {
		n, _ := dst.WriteAt(partial, 0)
		return int64(n), err
	}
	n, werr := dst.WriteAt(content, 0)
	return int64(n), werr
}

func (s *fakeStore) fetches(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchCalls[key]
}

func (s *fakeStore) totalFetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.fetchCalls {
		total += n
	}
	return total
}
