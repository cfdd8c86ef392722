package builder

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rony4d/go-load/inter"
)

// DefaultStoreSize bounds the number of resolved payloads kept for repeated
// getPayload calls.
const DefaultStoreSize = 64

// PayloadStore keeps resolved payloads by identifier, evicting the least
// recently used.
type PayloadStore struct {
	cache *lru.Cache[inter.PayloadID, *inter.BuiltPayload]
}

func NewPayloadStore(size int) (*PayloadStore, error) {
	cache, err := lru.New[inter.PayloadID, *inter.BuiltPayload](size)
	if err != nil {
		return nil, err
	}
	return &PayloadStore{cache: cache}, nil
}

func (s *PayloadStore) Add(p *inter.BuiltPayload) { s.cache.Add(p.ID(), p) }

func (s *PayloadStore) Get(id inter.PayloadID) (*inter.BuiltPayload, bool) {
	return s.cache.Get(id)
}

func (s *PayloadStore) Contains(id inter.PayloadID) bool { return s.cache.Contains(id) }

func (s *PayloadStore) Len() int { return s.cache.Len() }
