package record

import (
	"fmt"

	"github.com/SimonWaldherr/pagedb/internal/storage/file"
)

// firstPageID is always page 0 of a heap file.
const firstPageID uint32 = 0

// TableFile is a per-table heap file: a linked list of fixed-slot pages
// rooted at page 0, chained by each page's next_page header field.
type TableFile struct {
	bm     *file.BufferManager
	handle file.FileHandle
	schema *TableSchema

	pageCount        uint32
	lastInsertPageID uint32
}

// CreateTableFile creates a new, empty heap file at path for schema and
// writes its first page.
func CreateTableFile(bm *file.BufferManager, path string, schema *TableSchema) (*TableFile, error) {
	fm := bm.FileManager()
	if err := fm.Create(path); err != nil {
		return nil, err
	}
	h, err := fm.Open(path)
	if err != nil {
		return nil, err
	}

	tf := &TableFile{bm: bm, handle: h, schema: schema, pageCount: 0, lastInsertPageID: 0}
	if _, err := tf.allocatePage(); err != nil {
		return nil, err
	}
	return tf, nil
}

// OpenTableFile opens an existing heap file at path, deriving its current
// page count from the file's on-disk length.
func OpenTableFile(bm *file.BufferManager, path string, schema *TableSchema) (*TableFile, error) {
	fm := bm.FileManager()
	h, err := fm.Open(path)
	if err != nil {
		return nil, err
	}
	pageCount, err := fm.PageCount(h)
	if err != nil {
		return nil, err
	}
	last := uint32(0)
	if pageCount > 0 {
		last = pageCount - 1
	}
	return &TableFile{bm: bm, handle: h, schema: schema, pageCount: pageCount, lastInsertPageID: last}, nil
}

// Close flushes and releases this heap file's underlying file handle.
func (tf *TableFile) Close() error {
	if err := tf.bm.FlushAll(); err != nil {
		return err
	}
	return tf.bm.FileManager().Close(tf.handle)
}

// Schema returns the heap file's table schema.
func (tf *TableFile) Schema() *TableSchema { return tf.schema }

// allocatePage appends a fresh empty page to the file and returns its id.
func (tf *TableFile) allocatePage() (uint32, error) {
	newID := tf.pageCount
	tf.pageCount++

	buf, err := tf.bm.GetPageMut(file.BufferKey{Handle: tf.handle, PageID: newID})
	if err != nil {
		return 0, err
	}
	if _, err := NewPage(buf, tf.schema.RecordSize()); err != nil {
		return 0, err
	}
	return newID, nil
}

// linkNext sets predecessor page's next_page to next.
func (tf *TableFile) linkNext(predecessor, next uint32) error {
	buf, err := tf.bm.GetPageMut(file.BufferKey{Handle: tf.handle, PageID: predecessor})
	if err != nil {
		return err
	}
	p, err := FromBuffer(buf)
	if err != nil {
		return err
	}
	p.SetNextPage(next)
	return nil
}

// Insert validates, serializes, and appends record, returning its new
// RecordId. Equivalent to InsertWithHint(record, false).
func (tf *TableFile) Insert(rec Record) (RecordId, error) {
	return tf.InsertWithHint(rec, false)
}

// InsertWithHint is Insert, but when bulkInsertHint is true the
// rewind-to-first-page retry is skipped: a caller doing a long sequential
// bulk load knows the chain is monotonically growing and the rewind would
// only waste a scan.
func (tf *TableFile) InsertWithHint(rec Record, bulkInsertHint bool) (RecordId, error) {
	data, err := rec.Serialize(tf.schema)
	if err != nil {
		return RecordId{}, err
	}

	pageID := tf.lastInsertPageID
	checkedFromStart := false

	for {
		buf, err := tf.bm.GetPageMut(file.BufferKey{Handle: tf.handle, PageID: pageID})
		if err != nil {
			return RecordId{}, err
		}
		p, err := FromBuffer(buf)
		if err != nil {
			return RecordId{}, err
		}

		if slot, ok := p.FindFreeSlot(); ok {
			if err := p.SetRecord(slot, data); err != nil {
				return RecordId{}, err
			}
			tf.lastInsertPageID = pageID
			return RecordId{PageID: pageID, SlotID: slot}, nil
		}

		if next := p.NextPage(); next != 0 {
			pageID = next
			continue
		}

		if !bulkInsertHint && !checkedFromStart && pageID != firstPageID {
			checkedFromStart = true
			pageID = firstPageID
			continue
		}

		newID, err := tf.allocatePage()
		if err != nil {
			return RecordId{}, err
		}
		if err := tf.linkNext(pageID, newID); err != nil {
			return RecordId{}, err
		}
		pageID = newID
	}
}

// Get reads and deserializes the record at rid.
func (tf *TableFile) Get(rid RecordId) (Record, error) {
	buf, err := tf.bm.GetPage(file.BufferKey{Handle: tf.handle, PageID: rid.PageID})
	if err != nil {
		return Record{}, err
	}
	p, err := FromBuffer(buf)
	if err != nil {
		return Record{}, err
	}
	data, err := p.GetRecord(rid.SlotID)
	if err != nil {
		return Record{}, fmt.Errorf("record: get %+v: %w", rid, err)
	}
	return Deserialize(data, tf.schema)
}

// Delete frees rid's slot. The page is not reclaimed or compacted.
func (tf *TableFile) Delete(rid RecordId) error {
	buf, err := tf.bm.GetPageMut(file.BufferKey{Handle: tf.handle, PageID: rid.PageID})
	if err != nil {
		return err
	}
	p, err := FromBuffer(buf)
	if err != nil {
		return err
	}
	if p.IsSlotFree(rid.SlotID) {
		return fmt.Errorf("record: delete %+v: %w", rid, &InvalidSlotError{PageID: rid.PageID, Slot: rid.SlotID})
	}
	p.MarkSlotFree(rid.SlotID)
	return nil
}

// Update revalidates, reserializes, and overwrites rid's record in place.
func (tf *TableFile) Update(rid RecordId, rec Record) error {
	data, err := rec.Serialize(tf.schema)
	if err != nil {
		return err
	}
	buf, err := tf.bm.GetPageMut(file.BufferKey{Handle: tf.handle, PageID: rid.PageID})
	if err != nil {
		return err
	}
	p, err := FromBuffer(buf)
	if err != nil {
		return err
	}
	if p.IsSlotFree(rid.SlotID) {
		return fmt.Errorf("record: update %+v: %w", rid, &InvalidSlotError{PageID: rid.PageID, Slot: rid.SlotID})
	}
	return p.SetRecord(rid.SlotID, data)
}

// BulkInsert appends every record in records under a single buffer-manager
// acquisition, using the bulk-insert hint so each insert skips the
// rewind-to-first-page retry, so slots freed by Delete on pages before the
// current insert page are not reused. Returns the RecordIds in the same order as records.
func (tf *TableFile) BulkInsert(records []Record) ([]RecordId, error) {
	ids := make([]RecordId, len(records))
	for i, rec := range records {
		rid, err := tf.InsertWithHint(rec, true)
		if err != nil {
			return nil, fmt.Errorf("record: bulk insert at index %d: %w", i, err)
		}
		ids[i] = rid
	}
	return ids, nil
}

// Entry pairs a RecordId with the record it addresses, as produced by Scan.
type Entry struct {
	ID     RecordId
	Record Record
}

// Scan eagerly walks the page chain from page 0, collecting every live
// record in ascending (page_id, slot_id) order.
func (tf *TableFile) Scan() ([]Entry, error) {
	var out []Entry
	it := tf.ScanIter()
	for {
		rid, rec, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, Entry{ID: rid, Record: rec})
	}
}
