package model

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Kind is the entity kind prefix of a LocalID.
type Kind string

const (
	KindProject    Kind = "Project"
	KindDataset    Kind = "Dataset"
	KindScreen     Kind = "Screen"
	KindPlate      Kind = "Plate"
	KindWell       Kind = "Well"
	KindWellSample Kind = "WellSample"
	KindImage      Kind = "Image"
	KindPixels     Kind = "Pixels"
	KindROI        Kind = "ROI"
	KindShape      Kind = "Shape"
	KindAnnotation Kind = "Annotation"
)

// LocalID identifies an entity within one document, e.g. "Image:42".
type LocalID string

// NewLocalID joins a kind and a numeric id.
func NewLocalID(kind Kind, n int64) LocalID {
	return LocalID(string(kind) + ":" + strconv.FormatInt(n, 10))
}

// ParseLocalID splits a LocalID into its kind and number.
func ParseLocalID(id LocalID) (Kind, int64, error) {
	kind, num, ok := strings.Cut(string(id), ":")
	if !ok || kind == "" {
		return "", 0, fmt.Errorf("malformed local id %q", id)
	}
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed local id %q: %w", id, err)
	}
	return Kind(kind), n, nil
}

// Kind returns the kind prefix, or "" when malformed.
func (id LocalID) Kind() Kind {
	k, _, err := ParseLocalID(id)
	if err != nil {
		return ""
	}
	return k
}

// Num returns the numeric part, or 0 when malformed.
func (id LocalID) Num() int64 {
	_, n, err := ParseLocalID(id)
	if err != nil {
		return 0
	}
	return n
}

// Synthetic reports whether the id was allocated locally rather than taken
// from a server.
func (id LocalID) Synthetic() bool {
	return id.Num() < 0
}

// IDAllocator hands out synthetic ids for entities with no server identity.
// Ids are negative so they never collide with server ids, and they increase
// in allocation order, so sorting them ascending restores the order the
// entities were created in. An allocator is owned by a single build and is
// not safe for concurrent use.
type IDAllocator struct {
	next int64
}

// NewIDAllocator returns an allocator starting at a random number between
// -2^62 and -2^61, which leaves room for 2^61 ids before reaching zero.
func NewIDAllocator() *IDAllocator {
	u := uuid.New()
	offset := int64(binary.BigEndian.Uint64(u[:8]) >> 3)
	return NewIDAllocatorFrom(-(1 << 61) - offset)
}

// NewIDAllocatorFrom returns an allocator whose first id is start. start
// must be negative; ids are handed out up to -1.
func NewIDAllocatorFrom(start int64) *IDAllocator {
	if start >= 0 {
		start = -1
	}
	return &IDAllocator{next: start}
}

// Next returns a fresh id of the given kind, one above the previous one.
func (a *IDAllocator) Next(kind Kind) LocalID {
	if a.next >= 0 {
		panic("model: synthetic id space exhausted")
	}
	id := NewLocalID(kind, a.next)
	a.next++
	return id
}
