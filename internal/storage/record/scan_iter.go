package record

import "github.com/SimonWaldherr/pagedb/internal/storage/file"

// TableScanIter lazily walks a TableFile's page chain one slot at a time,
// so a caller can scan a heap file far larger than memory without
// materializing it. Construct one via TableFile.ScanIter.
type TableScanIter struct {
	tf      *TableFile
	pageID  uint32
	slot    int
	curPage *Page
	done    bool
}

// ScanIter returns a lazy, pull-style cursor over every live record in tf,
// in ascending (page_id, slot_id) order.
func (tf *TableFile) ScanIter() *TableScanIter {
	return &TableScanIter{tf: tf, pageID: firstPageID, slot: 0}
}

// Next advances the cursor and returns the next live record. ok is false
// once the scan is exhausted; err is non-nil only on an I/O or corruption
// failure, in which case the iterator should not be reused.
func (it *TableScanIter) Next() (RecordId, Record, bool, error) {
	if it.done {
		return RecordId{}, Record{}, false, nil
	}

	for it.pageID < it.tf.pageCount {
		if it.curPage == nil {
			buf, err := it.tf.bm.GetPage(file.BufferKey{Handle: it.tf.handle, PageID: it.pageID})
			if err != nil {
				it.done = true
				return RecordId{}, Record{}, false, err
			}
			p, err := FromBuffer(buf)
			if err != nil {
				it.done = true
				return RecordId{}, Record{}, false, err
			}
			it.curPage = p
		}

		for it.slot < it.curPage.SlotCount() {
			slot := it.slot
			it.slot++
			if it.curPage.IsSlotFree(slot) {
				continue
			}
			data, err := it.curPage.GetRecord(slot)
			if err != nil {
				it.done = true
				return RecordId{}, Record{}, false, err
			}
			rec, err := Deserialize(data, it.tf.schema)
			if err != nil {
				it.done = true
				return RecordId{}, Record{}, false, err
			}
			return RecordId{PageID: it.pageID, SlotID: slot}, rec, true, nil
		}

		it.pageID++
		it.slot = 0
		it.curPage = nil
	}

	it.done = true
	return RecordId{}, Record{}, false, nil
}
