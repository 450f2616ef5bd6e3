package store

import "encoding/binary"

// TokenRecord is the persisted (good, bad) pair for one token (spec §3).
type TokenRecord struct {
	Good uint32
	Bad  uint32
}

// Clamped returns r with both counters clamped at zero after adding the given
// deltas (spec §4.7 registration transaction: "new = cur + delta_good +
// delta_bad, clamped at 0").
func (r TokenRecord) Clamped(deltaGood, deltaBad int64) TokenRecord {
	return TokenRecord{
		Good: clampAdd(r.Good, deltaGood),
		Bad:  clampAdd(r.Bad, deltaBad),
	}
}

func clampAdd(base uint32, delta int64) uint32 {
	v := int64(base) + delta
	if v < 0 {
		return 0
	}
	return uint32(v)
}

const recordSize = 8

// encodeRecord always writes little-endian, per this implementation's
// choice (spec §4.4 endian neutrality: "TokenRecord values are always
// written little-endian by this implementation").
func encodeRecord(r TokenRecord) []byte {
	buf := make([]byte, recordSize)
	binary.LittleEndian.PutUint32(buf[0:4], r.Good)
	binary.LittleEndian.PutUint32(buf[4:8], r.Bad)
	return buf
}

// decodeRecord reads a stored record, swapping byte order when the
// environment's swapped flag says the bytes were written by a foreign-endian
// writer (spec P6).
func decodeRecord(b []byte, swapped bool) TokenRecord {
	if len(b) < recordSize {
		return TokenRecord{}
	}
	bo := binary.ByteOrder(binary.LittleEndian)
	if swapped {
		bo = binary.BigEndian
	}
	return TokenRecord{
		Good: bo.Uint32(b[0:4]),
		Bad:  bo.Uint32(b[4:8]),
	}
}
