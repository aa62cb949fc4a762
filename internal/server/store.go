package server

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble/v2"

	"github.com/gosuda/minichat/chat"
)

// Store persists channel messages in a PebbleDB key-value store. Keys are
// "ch/<channel>/" followed by an 8-byte big-endian sequence number, so a
// channel's messages iterate in append order under one prefix.
type Store struct {
	db   *pebble.DB
	mu   sync.Mutex
	next map[string]uint64
}

// OpenStore opens (or creates) a store rooted at dir.
func OpenStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Store{db: db, next: map[string]uint64{}}, nil
}

func channelPrefix(channel string) []byte {
	return []byte("ch/" + channel + "/")
}

// prefixUpperBound is the smallest key greater than every key with the
// prefix.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// nextSeq returns the channel's next sequence number, discovering it from
// the last stored key on first use. Caller holds s.mu.
func (s *Store) nextSeq(channel string) (uint64, error) {
	if seq, ok := s.next[channel]; ok {
		return seq, nil
	}
	prefix := channelPrefix(channel)
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return 0, err
	}
	defer func() { _ = it.Close() }()
	var seq uint64
	if it.Last() {
		key := it.Key()
		if len(key) >= len(prefix)+8 {
			seq = binary.BigEndian.Uint64(key[len(prefix):len(prefix)+8]) + 1
		}
	}
	s.next[channel] = seq
	return seq, nil
}

// Append persists one message at the channel's tail.
func (s *Store) Append(channel string, m chat.Message) error {
	if s == nil || s.db == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, err := s.nextSeq(channel)
	if err != nil {
		return err
	}
	prefix := channelPrefix(channel)
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], seq)
	s.next[channel] = seq + 1
	val, _ := json.Marshal(m)
	return s.db.Set(key, val, pebble.Sync)
}

// LoadRecent loads the most recent limit messages of a channel in append
// order. limit <= 0 loads everything.
func (s *Store) LoadRecent(channel string, limit int) ([]chat.Message, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	prefix := channelPrefix(channel)
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()

	out := make([]chat.Message, 0, 64)
	if limit <= 0 {
		for it.First(); it.Valid(); it.Next() {
			var m chat.Message
			if err := json.Unmarshal(it.Value(), &m); err == nil {
				out = append(out, m)
			}
		}
		return out, nil
	}

	// Walk backwards limit entries, then reverse into append order.
	for ok := it.Last(); ok && len(out) < limit; ok = it.Prev() {
		var m chat.Message
		if err := json.Unmarshal(it.Value(), &m); err == nil {
			out = append(out, m)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Channels lists every channel with at least one stored message.
func (s *Store) Channels() ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	prefix := []byte("ch/")
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()

	var out []string
	var last string
	for it.First(); it.Valid(); it.Next() {
		key := it.Key()
		rest := key[len(prefix):]
		idx := -1
		for i, b := range rest {
			if b == '/' {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}
		ch := string(rest[:idx])
		if ch != last {
			out = append(out, ch)
			last = ch
		}
	}
	return out, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
