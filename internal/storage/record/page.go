package record

import (
	"encoding/binary"
	"fmt"

	"github.com/SimonWaldherr/pagedb/internal/storage/file"
)

// ───────────────────────────────────────────────────────────────────────────
// Slotted page (fixed-slot)
// ───────────────────────────────────────────────────────────────────────────
//
// Layout of one PageSize-byte page:
//
//	[0:4]    next_page   (uint32 LE, 0 = none)
//	[4:6]    slot_count  (uint16 LE)
//	[6:8]    free_slots  (uint16 LE)
//	[8:10]   record_size (uint16 LE)
//	[10:16]  reserved
//	[16:16+ceil(slot_count/8)]          bitmap, bit i set iff slot i is live
//	[bitmap end : +slot_count*record_size]  slot area, slot i at
//	                                          i*record_size within it
//
// Every mutation happens in place on the caller-supplied buffer; Page never
// copies or owns page bytes, matching the buffer manager's zero-copy
// contract.

const pageHeaderSize = 16

const (
	offNextPage   = 0
	offSlotCount  = 4
	offFreeSlots  = 6
	offRecordSize = 8
)

// Page is a short-lived view over a borrowed page-sized buffer.
type Page struct {
	buf []byte
}

// CalculateSlotCount returns the largest slot_count n such that
// ceil(n/8) + n*recordSize <= file.PageSize - pageHeaderSize, capped at
// the uint16 range.
func CalculateSlotCount(recordSize int) int {
	available := file.PageSize - pageHeaderSize
	if recordSize <= 0 || available <= 0 {
		return 0
	}
	maxSlots := (available * 8) / (1 + recordSize*8)
	if maxSlots > 0xFFFF {
		maxSlots = 0xFFFF
	}
	if maxSlots < 0 {
		maxSlots = 0
	}
	return maxSlots
}

// NewPage initializes buf (which must be exactly file.PageSize bytes) as
// an empty slotted page sized for recordSize-byte records.
func NewPage(buf []byte, recordSize int) (*Page, error) {
	if len(buf) != file.PageSize {
		return nil, fmt.Errorf("record: new page: %w", file.ErrInvalidPageSize)
	}
	slotCount := CalculateSlotCount(recordSize)
	if slotCount == 0 {
		return nil, fmt.Errorf("record: record size %d too large for any slot: %w", recordSize, ErrInvalidRecord)
	}

	for i := range buf {
		buf[i] = 0
	}
	binary.LittleEndian.PutUint32(buf[offNextPage:], 0)
	binary.LittleEndian.PutUint16(buf[offSlotCount:], uint16(slotCount))
	binary.LittleEndian.PutUint16(buf[offFreeSlots:], uint16(slotCount))
	binary.LittleEndian.PutUint16(buf[offRecordSize:], uint16(recordSize))

	return &Page{buf: buf}, nil
}

// FromBuffer parses an already-initialized page out of buf.
func FromBuffer(buf []byte) (*Page, error) {
	if len(buf) != file.PageSize {
		return nil, fmt.Errorf("record: from buffer: %w", file.ErrInvalidPageSize)
	}
	p := &Page{buf: buf}
	if p.bitmapEnd() > file.PageSize || p.slotAreaEnd() > file.PageSize {
		return nil, fmt.Errorf("record: corrupted page header: slot_count=%d record_size=%d: %w", p.SlotCount(), p.RecordSize(), ErrInvalidRecord)
	}
	return p, nil
}

// NextPage returns the id of the next page in this heap file's chain, or 0
// if there is none.
func (p *Page) NextPage() uint32 {
	return binary.LittleEndian.Uint32(p.buf[offNextPage:])
}

// SetNextPage sets the id of the next page in the chain.
func (p *Page) SetNextPage(id uint32) {
	binary.LittleEndian.PutUint32(p.buf[offNextPage:], id)
}

// SlotCount returns the fixed number of slots on this page.
func (p *Page) SlotCount() int {
	return int(binary.LittleEndian.Uint16(p.buf[offSlotCount:]))
}

// FreeSlotCount returns the number of currently unused slots.
func (p *Page) FreeSlotCount() int {
	return int(binary.LittleEndian.Uint16(p.buf[offFreeSlots:]))
}

func (p *Page) setFreeSlotCount(n int) {
	binary.LittleEndian.PutUint16(p.buf[offFreeSlots:], uint16(n))
}

// RecordSize returns the fixed per-slot record size.
func (p *Page) RecordSize() int {
	return int(binary.LittleEndian.Uint16(p.buf[offRecordSize:]))
}

func (p *Page) bitmapSize() int {
	return (p.SlotCount() + 7) / 8
}

func (p *Page) bitmapEnd() int {
	return pageHeaderSize + p.bitmapSize()
}

func (p *Page) slotAreaEnd() int {
	return p.bitmapEnd() + p.SlotCount()*p.RecordSize()
}

// BitmapSlice returns the bitmap region of the page.
func (p *Page) BitmapSlice() []byte {
	return p.buf[pageHeaderSize:p.bitmapEnd()]
}

// DataSlice returns the slot area region of the page.
func (p *Page) DataSlice() []byte {
	return p.buf[p.bitmapEnd():p.slotAreaEnd()]
}

// IsSlotUsed reports whether slot i currently holds a live record.
func (p *Page) IsSlotUsed(i int) bool {
	bm := p.BitmapSlice()
	return bm[i/8]&(1<<uint(i%8)) != 0
}

// IsSlotFree reports the negation of IsSlotUsed.
func (p *Page) IsSlotFree(i int) bool { return !p.IsSlotUsed(i) }

// MarkSlotUsed marks slot i live, adjusting free_slots. A no-op if the
// slot was already used.
func (p *Page) MarkSlotUsed(i int) {
	if p.IsSlotUsed(i) {
		return
	}
	bm := p.BitmapSlice()
	bm[i/8] |= 1 << uint(i%8)
	p.setFreeSlotCount(p.FreeSlotCount() - 1)
}

// MarkSlotFree marks slot i free, adjusting free_slots. A no-op if the
// slot was already free.
func (p *Page) MarkSlotFree(i int) {
	if p.IsSlotFree(i) {
		return
	}
	bm := p.BitmapSlice()
	bm[i/8] &^= 1 << uint(i%8)
	p.setFreeSlotCount(p.FreeSlotCount() + 1)
}

// FindFreeSlot returns the smallest free slot index, or false if the page
// is full.
func (p *Page) FindFreeSlot() (int, bool) {
	for i := 0; i < p.SlotCount(); i++ {
		if p.IsSlotFree(i) {
			return i, true
		}
	}
	return 0, false
}

// GetRecord returns the raw bytes occupying slot i. Returns
// *InvalidSlotError if the slot is out of range or free.
func (p *Page) GetRecord(i int) ([]byte, error) {
	if i < 0 || i >= p.SlotCount() || p.IsSlotFree(i) {
		return nil, &InvalidSlotError{Slot: i}
	}
	rs := p.RecordSize()
	data := p.DataSlice()
	return data[i*rs : (i+1)*rs], nil
}

// SetRecord writes data (exactly RecordSize bytes) into slot i and marks
// it used.
func (p *Page) SetRecord(i int, data []byte) error {
	if i < 0 || i >= p.SlotCount() {
		return &InvalidSlotError{Slot: i}
	}
	rs := p.RecordSize()
	if len(data) != rs {
		return fmt.Errorf("record: set slot %d: got %d bytes, want %d: %w", i, len(data), rs, ErrInvalidRecord)
	}
	slotData := p.DataSlice()
	copy(slotData[i*rs:(i+1)*rs], data)
	p.MarkSlotUsed(i)
	return nil
}

// IsFull reports whether every slot is occupied.
func (p *Page) IsFull() bool { return p.FreeSlotCount() == 0 }

// IsEmpty reports whether every slot is free.
func (p *Page) IsEmpty() bool { return p.FreeSlotCount() == p.SlotCount() }
