package poker

import "holdem-core/pkg/rng"

// Shuffle returns deck permuted deterministically by seed: the same seed and
// the same starting deck always produce the same card order, which is what
// lets a hand be replayed from its recorded seed. The permutation itself is
// computed over card IDs by rng.Shuffle; this just translates to and from
// Card values at the boundary.
func Shuffle(seed []byte, deck []Card) ([]Card, error) {
	ids := make([]int, len(deck))
	for i, c := range deck {
		ids[i] = c.ID()
	}

	shuffledIDs, err := rng.Shuffle(seed, ids)
	if err != nil {
		return nil, err
	}

	out := make([]Card, len(shuffledIDs))
	for i, id := range shuffledIDs {
		out[i] = CardFromID(id)
	}
	return out, nil
}
