package txpool

import (
	"container/heap"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// candidate is the head transaction of one sender in the iterator heap.
type candidate struct {
	ptx *pooledTx
	tip *uint256.Int
}

// byTip is a max-heap ordered by (effective tip DESC, arrival ASC, hash ASC).
type byTip []*candidate

func (h byTip) Len() int { return len(h) }

func (h byTip) Less(i, j int) bool {
	if c := h[i].tip.Cmp(h[j].tip); c != 0 {
		return c > 0
	}
	if !h[i].ptx.arrival.Equal(h[j].ptx.arrival) {
		return h[i].ptx.arrival.Before(h[j].ptx.arrival)
	}
	a, b := h[i].ptx.tx.Hash(), h[j].ptx.tx.Hash()
	return string(a[:]) < string(b[:])
}

func (h byTip) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *byTip) Push(x any) { *h = append(*h, x.(*candidate)) }

func (h *byTip) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

// Iterator yields a snapshot of the pool best-first for one build. It is
// not safe for concurrent use.
type Iterator struct {
	baseFee   *uint256.Int
	heads     byTip
	rest      map[common.Address][]*pooledTx
	excluded  map[common.Address]struct{}
	offered   map[common.Hash]common.Address
	sidecars  map[common.Hash]*types.BlobTxSidecar
	skipBlobs bool
}

// Best returns an iterator over the pooled transactions that can pay the
// base fee of pending. Each sender is offered in nonce order.
func (p *Pool) Best(pending *types.Header) *Iterator {
	it := &Iterator{
		rest:     p.sorted(),
		excluded: make(map[common.Address]struct{}),
		offered:  make(map[common.Hash]common.Address),
		sidecars: make(map[common.Hash]*types.BlobTxSidecar),
	}
	if pending.BaseFee != nil {
		it.baseFee, _ = uint256.FromBig(pending.BaseFee)
	}
	for addr := range it.rest {
		it.advance(addr)
	}
	heap.Init(&it.heads)
	return it
}

// advance pushes the next transaction of addr, if it can pay the base fee.
func (it *Iterator) advance(addr common.Address) {
	list := it.rest[addr]
	if len(list) == 0 {
		delete(it.rest, addr)
		return
	}
	ptx := list[0]
	it.rest[addr] = list[1:]

	tip := new(uint256.Int).Set(ptx.tipCap)
	if it.baseFee != nil {
		if ptx.feeCap.Lt(it.baseFee) {
			delete(it.rest, addr)
			return
		}
		if room := new(uint256.Int).Sub(ptx.feeCap, it.baseFee); room.Lt(tip) {
			tip = room
		}
	}
	heap.Push(&it.heads, &candidate{ptx: ptx, tip: tip})
}

// Next implements builder.CandidateSource. Returned transactions carry no
// side-car; use Sidecar to fetch it.
func (it *Iterator) Next() *types.Transaction {
	for it.heads.Len() > 0 {
		c := heap.Pop(&it.heads).(*candidate)
		from := c.ptx.from
		if _, ok := it.excluded[from]; ok {
			continue
		}
		tx := c.ptx.tx
		if sc := tx.BlobTxSidecar(); sc != nil {
			if it.skipBlobs {
				// later nonces of the sender cannot execute without this one
				delete(it.rest, from)
				continue
			}
			it.sidecars[tx.Hash()] = sc
			tx = tx.WithoutBlobTxSidecar()
		}
		it.offered[tx.Hash()] = from
		it.advance(from)
		return tx
	}
	return nil
}

// MarkInvalid implements builder.CandidateSource.
func (it *Iterator) MarkInvalid(tx *types.Transaction, _ error) {
	if from, ok := it.offered[tx.Hash()]; ok {
		it.excluded[from] = struct{}{}
		delete(it.rest, from)
	}
}

// SkipBlobs implements builder.CandidateSource.
func (it *Iterator) SkipBlobs() { it.skipBlobs = true }

// Sidecar implements builder.CandidateSource.
func (it *Iterator) Sidecar(tx *types.Transaction) *types.BlobTxSidecar {
	return it.sidecars[tx.Hash()]
}
