package storage

import "fmt"

// RID (record identifier) names one tuple slot within a page. Stable for
// the lifetime of a tuple between Insert and ApplyDelete; never reused
// while tombstoned.
type RID struct {
	PageID PageID
	Slot   uint32
}

// InvalidRID marks the end of a heap or index scan.
var InvalidRID = RID{PageID: InvalidPageID, Slot: 0}

func (r RID) IsValid() bool {
	return r.PageID != InvalidPageID
}

func (r RID) String() string {
	return fmt.Sprintf("(%d,%d)", r.PageID, r.Slot)
}

// Encode packs the RID into 8 bytes (page id, slot) for log records and
// index leaf entries.
func (r RID) Encode() [8]byte {
	var buf [8]byte
	putUint32(buf[0:4], uint32(r.PageID))
	putUint32(buf[4:8], r.Slot)
	return buf
}

// DecodeRID unpacks an 8-byte RID encoding produced by Encode.
func DecodeRID(buf []byte) RID {
	return RID{
		PageID: PageID(getUint32(buf[0:4])),
		Slot:   getUint32(buf[4:8]),
	}
}
