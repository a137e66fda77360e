package crypto

import (
	"fmt"
	"strings"

	mimc "github.com/consensys/gnark-crypto/ecc/bw6-761/fr/mimc"
)

// FreezeTreeDepth is the fixed depth of the compliance registry's sparse
// Merkle tree. The on-chain verifier expects exactly this many siblings.
const FreezeTreeDepth = 16

// FreezeListProof is a (non-)membership proof against the freeze registry:
// sibling hashes in bottom-to-top order plus the target leaf index.
// Built fresh per payment attempt; never persisted.
type FreezeListProof struct {
	Siblings  [FreezeTreeDepth]FieldElement
	LeafIndex uint32
}

// EmptyLeaf returns the canonical zero leaf of an unpopulated registry slot.
func EmptyLeaf() FieldElement {
	return FieldElement{}
}

// HashPair folds two Merkle nodes into their parent.
func HashPair(left, right FieldElement) FieldElement {
	h := mimc.NewMiMC()
	absorbElement(h, &left)
	absorbElement(h, &right)
	var out FieldElement
	out.SetBytes(h.Sum(nil))
	return out
}

// EmptyLevels precomputes the per-level empty-subtree hashes bottom-up:
// index 0 is the empty leaf, index FreezeTreeDepth is the all-empty root.
func EmptyLevels() [FreezeTreeDepth + 1]FieldElement {
	var levels [FreezeTreeDepth + 1]FieldElement
	levels[0] = EmptyLeaf()
	for k := 0; k < FreezeTreeDepth; k++ {
		levels[k+1] = HashPair(levels[k], levels[k])
	}
	return levels
}

// EmptyRoot returns the root of the all-empty registry.
func EmptyRoot() FieldElement {
	return EmptyLevels()[FreezeTreeDepth]
}

// BuildFreezeProof walks from the target leaf up to the root, collecting
// sibling hashes. Every sibling is the precomputed empty value for its level,
// except leaf 0 at level 0 when the registry's first (typically only)
// populated entry is supplied, in which case the real value is substituted.
func BuildFreezeProof(leafIndex uint32, occupiedLeafZero *FieldElement) (FreezeListProof, error) {
	if leafIndex >= 1<<FreezeTreeDepth {
		return FreezeListProof{}, fmt.Errorf("leaf index %d out of range for depth %d", leafIndex, FreezeTreeDepth)
	}
	empty := EmptyLevels()
	proof := FreezeListProof{LeafIndex: leafIndex}
	idx := leafIndex
	for level := 0; level < FreezeTreeDepth; level++ {
		sibling := empty[level]
		if level == 0 && idx^1 == 0 && occupiedLeafZero != nil {
			sibling = *occupiedLeafZero
		}
		proof.Siblings[level] = sibling
		idx >>= 1
	}
	return proof, nil
}

// FoldProof recomputes the registry root from a leaf value and a proof,
// ordering each (node, sibling) pair by the parity of the index at that level.
func FoldProof(leaf FieldElement, proof FreezeListProof) FieldElement {
	current := leaf
	idx := proof.LeafIndex
	for level := 0; level < FreezeTreeDepth; level++ {
		if idx&1 == 1 {
			current = HashPair(proof.Siblings[level], current)
		} else {
			current = HashPair(current, proof.Siblings[level])
		}
		idx >>= 1
	}
	return current
}

// FreezeLeafIndex maps an address to its registry slot: the low
// FreezeTreeDepth bits of the address hash.
func FreezeLeafIndex(address string) uint32 {
	e := hashToField("zkinvoice/freeze-leaf", []byte(address))
	b := e.Bytes()
	low := uint32(b[len(b)-2])<<8 | uint32(b[len(b)-1])
	return low & (1<<FreezeTreeDepth - 1)
}

// MarshalInput renders the proof as a single transition input.
func (p FreezeListProof) MarshalInput() string {
	parts := make([]string, 0, FreezeTreeDepth)
	for i := range p.Siblings {
		parts = append(parts, FieldInput(p.Siblings[i]))
	}
	return fmt.Sprintf("{siblings:[%s],index:%du32}", strings.Join(parts, ","), p.LeafIndex)
}
