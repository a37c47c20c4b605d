package netprocessing

import (
	txmap "github.com/bsv-blockchain/go-tx-map"
)

// InFlightIndex records which peer a block height has been requested from. A height is owned by at most
// one peer at a time. Only the owner releases a height, and a peer's own calls are serialized by its peer
// lock, so a release never races with a claim by someone else. The index is always touched after a peer
// lock, never before.
type InFlightIndex struct {
	owners *txmap.SyncedMap[int32, PeerID]
}

func NewInFlightIndex() *InFlightIndex {
	initPrometheusMetrics()

	return &InFlightIndex{
		owners: txmap.NewSyncedMap[int32, PeerID](),
	}
}

// Claim assigns height to id. It returns false when another peer already owns the height, true when the
// height was free or already owned by id.
func (idx *InFlightIndex) Claim(height int32, id PeerID) bool {
	owner, set := idx.owners.SetIfNotExists(height, id)
	if set {
		idx.updateGauge()
	}

	return owner == id
}

// Release frees height if, and only if, it is owned by id.
func (idx *InFlightIndex) Release(height int32, id PeerID) bool {
	if owner, ok := idx.owners.Get(height); !ok || owner != id {
		return false
	}

	idx.owners.Delete(height)
	idx.updateGauge()

	return true
}

// ReleaseAll frees every height owned by id and returns how many were released.
func (idx *InFlightIndex) ReleaseAll(id PeerID) int {
	var heights []int32

	idx.owners.Iterate(func(height int32, owner PeerID) bool {
		if owner == id {
			heights = append(heights, height)
		}

		return true
	})

	for _, height := range heights {
		idx.owners.Delete(height)
	}

	idx.updateGauge()

	return len(heights)
}

func (idx *InFlightIndex) Owner(height int32) (PeerID, bool) {
	return idx.owners.Get(height)
}

func (idx *InFlightIndex) Len() int {
	return idx.owners.Length()
}

func (idx *InFlightIndex) updateGauge() {
	prometheusNetProcessingInFlightHeights.Set(float64(idx.owners.Length()))
}
