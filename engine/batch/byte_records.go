package batch

// ByteRecords adapts a flat buffer of fixed-stride records to RecordSource.
type ByteRecords struct {
	Data       []byte
	RecordSize int
}

// Stride returns the record size in bytes.
func (b ByteRecords) Stride() int {
	return b.RecordSize
}

// EncodeRange copies records [start, start+count) into dst.
func (b ByteRecords) EncodeRange(dst []byte, start, count int) {
	copy(dst, b.Data[start*b.RecordSize:(start+count)*b.RecordSize])
}

// Len returns how many whole records Data holds.
func (b ByteRecords) Len() int {
	if b.RecordSize <= 0 {
		return 0
	}
	return len(b.Data) / b.RecordSize
}
