// Package tagmap maintains the bidirectional tag <-> slot relation and the
// free-slot stack that lets consolidation recycle space. It generalizes the
// teacher's pk.MemoryIndex (a single forward map from primary key to
// location) to a two-way map plus a free list, since slots here are reused
// rather than append-only.
package tagmap

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/symphony233/vamanastream/core"
)

// ErrDuplicateTag is returned by Bind when the tag already resolves to a slot.
var ErrDuplicateTag = errors.New("tagmap: tag already bound")

// ErrUnknownTag is returned when a tag does not resolve to any slot.
var ErrUnknownTag = errors.New("tagmap: unknown tag")

// Map is the tag -> slot and slot -> tag relation, plus the stack of slots
// freed by consolidation and available for reuse.
type Map struct {
	mu sync.RWMutex

	tagToSlot map[core.Tag]core.SlotID
	slotToTag map[core.SlotID]core.Tag
	freeSlots []core.SlotID
	nextSlot  core.SlotID
}

// New creates an empty Map.
func New() *Map {
	return &Map{
		tagToSlot: make(map[core.Tag]core.SlotID),
		slotToTag: make(map[core.SlotID]core.Tag),
	}
}

// AllocateSlot returns a slot to hold a new point: a recycled slot from the
// free list if one exists, otherwise the next never-used slot index.
func (m *Map) AllocateSlot() core.SlotID {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n := len(m.freeSlots); n > 0 {
		slot := m.freeSlots[n-1]
		m.freeSlots = m.freeSlots[:n-1]
		return slot
	}
	slot := m.nextSlot
	m.nextSlot++
	return slot
}

// Bind records that tag resolves to slot. It fails with ErrDuplicateTag if
// tag is already bound to a (possibly different) slot.
func (m *Map) Bind(tag core.Tag, slot core.SlotID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tagToSlot[tag]; exists {
		return ErrDuplicateTag
	}
	m.tagToSlot[tag] = slot
	m.slotToTag[slot] = tag
	return nil
}

// Resolve returns the slot bound to tag, if any.
func (m *Map) Resolve(tag core.Tag) (core.SlotID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	slot, ok := m.tagToSlot[tag]
	return slot, ok
}

// TagOf returns the tag bound to slot, if any.
func (m *Map) TagOf(slot core.SlotID) (core.Tag, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tag, ok := m.slotToTag[slot]
	return tag, ok
}

// Unbind removes tag's binding from both directions and returns the slot it
// pointed to. The slot itself is left occupied — it is the caller's
// responsibility to track it as lazily deleted and later call FreeSlot once
// consolidation has repaired every reference to it.
func (m *Map) Unbind(tag core.Tag) (core.SlotID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.tagToSlot[tag]
	if !ok {
		return core.InvalidSlot, ErrUnknownTag
	}
	delete(m.tagToSlot, tag)
	delete(m.slotToTag, slot)
	return slot, nil
}

// FreeSlot returns slot to the free list, making it eligible for reuse by a
// subsequent AllocateSlot. Callers must ensure every reference to slot has
// already been removed from the graph.
func (m *Map) FreeSlot(slot core.SlotID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.freeSlots = append(m.freeSlots, slot)
}

// FreeSlots returns a copy of the slots currently sitting in the free list.
func (m *Map) FreeSlots() []core.SlotID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.SlotID, len(m.freeSlots))
	copy(out, m.freeSlots)
	return out
}

// Occupied returns the number of slots currently bound to a tag.
func (m *Map) Occupied() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tagToSlot)
}

// FreeCount returns the number of slots sitting in the free list.
func (m *Map) FreeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.freeSlots)
}

// Capacity returns the number of slots ever allocated (occupied + free).
func (m *Map) Capacity() core.SlotID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nextSlot
}

// Save writes the map to w as: [tagToSlot count: u64][tag u32][slot u32]...
// [free count: u64][slot u32]... [nextSlot u32]. Mirrors
// pk.MemoryIndex.Save's layout (count-prefixed fixed-width entries). Entries
// are written in tag order rather than map iteration order, so two Save
// calls over the same logical state always produce identical bytes.
func (m *Map) Save(w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bw := bufio.NewWriter(w)

	tags := make([]core.Tag, 0, len(m.tagToSlot))
	for tag := range m.tagToSlot {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })

	if err := binary.Write(bw, binary.LittleEndian, uint64(len(tags))); err != nil {
		return err
	}
	for _, tag := range tags {
		if err := binary.Write(bw, binary.LittleEndian, uint32(tag)); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(m.tagToSlot[tag])); err != nil {
			return err
		}
	}

	if err := binary.Write(bw, binary.LittleEndian, uint64(len(m.freeSlots))); err != nil {
		return err
	}
	for _, slot := range m.freeSlots {
		if err := binary.Write(bw, binary.LittleEndian, uint32(slot)); err != nil {
			return err
		}
	}

	if err := binary.Write(bw, binary.LittleEndian, uint32(m.nextSlot)); err != nil {
		return err
	}

	return bw.Flush()
}

// Load replaces the map's contents with the data encoded by Save.
func (m *Map) Load(r io.Reader) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	br := bufio.NewReader(r)

	var boundCount uint64
	if err := binary.Read(br, binary.LittleEndian, &boundCount); err != nil {
		return err
	}
	tagToSlot := make(map[core.Tag]core.SlotID, boundCount)
	slotToTag := make(map[core.SlotID]core.Tag, boundCount)
	for i := uint64(0); i < boundCount; i++ {
		var tag, slot uint32
		if err := binary.Read(br, binary.LittleEndian, &tag); err != nil {
			return err
		}
		if err := binary.Read(br, binary.LittleEndian, &slot); err != nil {
			return err
		}
		tagToSlot[core.Tag(tag)] = core.SlotID(slot)
		slotToTag[core.SlotID(slot)] = core.Tag(tag)
	}

	var freeCount uint64
	if err := binary.Read(br, binary.LittleEndian, &freeCount); err != nil {
		return err
	}
	freeSlots := make([]core.SlotID, 0, freeCount)
	for i := uint64(0); i < freeCount; i++ {
		var slot uint32
		if err := binary.Read(br, binary.LittleEndian, &slot); err != nil {
			return err
		}
		freeSlots = append(freeSlots, core.SlotID(slot))
	}

	var nextSlot uint32
	if err := binary.Read(br, binary.LittleEndian, &nextSlot); err != nil {
		return err
	}

	m.tagToSlot = tagToSlot
	m.slotToTag = slotToTag
	m.freeSlots = freeSlots
	m.nextSlot = core.SlotID(nextSlot)

	return nil
}
