// Package ids defines the opaque content-addressed identifiers used
// throughout the context engine and the deterministic function that
// derives a FrameID from its inputs.
package ids

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
)

// Size is the length in bytes of every identifier in the system.
const Size = 32

// ID is a 32-byte opaque content digest. NodeID, FrameID, and Hash are
// all instances of this type; the distinction is positional, not
// structural.
type ID [Size]byte

// NodeID identifies a filesystem node. Assigned by the external tree
// builder; opaque to the core.
type NodeID = ID

// FrameID identifies a frame. Computed deterministically by ComputeFrameID.
type FrameID = ID

// Hash is a generic 32-byte digest (content_hash, frame_set_root).
type Hash = ID

// Zero is the all-zero ID, used as a sentinel "absent" value.
var Zero ID

// String returns the lowercase hex encoding of the id.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether id is the all-zero sentinel.
func (id ID) IsZero() bool {
	return id == Zero
}

// FromBytes copies b into a new ID. b must be exactly Size bytes.
func FromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) != Size {
		return id, errors.New("ids: expected 32-byte id")
	}
	copy(id[:], b)
	return id, nil
}

// ParseID decodes the lowercase hex encoding produced by String back
// into an ID, for callers that round-trip ids through text (HTTP path
// params, config files, CLI flags).
func ParseID(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, errors.New("ids: invalid hex id")
	}
	return FromBytes(b)
}

// basisTag distinguishes the three Basis variants in the canonical
// serialisation consumed by ComputeFrameID.
type basisTag byte

const (
	basisTagNode  basisTag = 1
	basisTagFrame basisTag = 2
	basisTagBoth  basisTag = 3
)

// BasisKind enumerates what a frame is anchored to.
type BasisKind int

const (
	// BasisNode anchors a frame directly to a filesystem node.
	BasisNode BasisKind = iota
	// BasisFrame anchors a frame to another frame (e.g. a derived summary).
	BasisFrame
	// BasisBoth anchors a frame to both a node and a frame.
	BasisBoth
)

// Basis is the anchor of a frame: what it was computed from.
type Basis struct {
	Kind  BasisKind
	Node  NodeID  // valid when Kind is BasisNode or BasisBoth
	Frame FrameID // valid when Kind is BasisFrame or BasisBoth
}

// NodeBasis constructs a Basis anchored to a single node.
func NodeBasis(node NodeID) Basis { return Basis{Kind: BasisNode, Node: node} }

// FrameBasis constructs a Basis anchored to a single frame.
func FrameBasis(frame FrameID) Basis { return Basis{Kind: BasisFrame, Frame: frame} }

// BothBasis constructs a Basis anchored to both a node and a frame.
func BothBasis(node NodeID, frame FrameID) Basis {
	return Basis{Kind: BasisBoth, Node: node, Frame: frame}
}

// tagAndBytes returns the basis tag byte and the basis_bytes payload
// of the canonical serialisation.
func (b Basis) tagAndBytes() (basisTag, []byte) {
	switch b.Kind {
	case BasisFrame:
		return basisTagFrame, b.Frame[:]
	case BasisBoth:
		out := make([]byte, 0, 2*Size)
		out = append(out, b.Node[:]...)
		out = append(out, b.Frame[:]...)
		return basisTagBoth, out
	default:
		return basisTagNode, b.Node[:]
	}
}

// ComputeFrameID derives a FrameID from its canonical serialisation:
//
//	hash( tag_byte(basis) || basis_bytes || u64_le(len(content)) || content
//	     || u64_le(len(frame_type)) || frame_type
//	     || u64_le(len(agent_id))  || agent_id )
//
// This function MUST be stable across releases: changing it invalidates
// every stored frame. SHA-256 is the single hash function used
// throughout the engine.
func ComputeFrameID(basis Basis, content []byte, frameType, agentID string) FrameID {
	tag, basisBytes := basis.tagAndBytes()

	h := sha256.New()
	h.Write([]byte{byte(tag)})
	h.Write(basisBytes)
	writeLenPrefixed(h, content)
	writeLenPrefixed(h, []byte(frameType))
	writeLenPrefixed(h, []byte(agentID))

	var out FrameID
	copy(out[:], h.Sum(nil))
	return out
}

type byteWriter interface {
	Write(p []byte) (n int, err error)
}

func writeLenPrefixed(w byteWriter, data []byte) {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(data)))
	w.Write(lenBuf[:])
	w.Write(data)
}
