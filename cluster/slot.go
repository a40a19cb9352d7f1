package cluster

// NumSlots is the fixed size of the cluster hash-slot space (spec.md §4.5).
const NumSlots = 16384

// HashSlot computes the slot a key maps to: CRC16-XMODEM of the effective
// key, mod NumSlots. The effective key is the interior of the first
// `{...}` pair when that interior is non-empty, otherwise the whole key
// (spec.md §4.5, GLOSSARY "Hash tag").
func HashSlot(key []byte) uint16 {
	return crc16XModem(effectiveKey(key)) % NumSlots
}

// effectiveKey applies Redis Cluster's hash-tag rule: only the first
// `{...}` pair counts, and only if its interior is non-empty; nested braces
// belong to the outer key.
func effectiveKey(key []byte) []byte {
	start := -1
	for i, b := range key {
		if b == '{' {
			start = i
			break
		}
	}
	if start == -1 {
		return key
	}
	for j := start + 1; j < len(key); j++ {
		if key[j] == '}' {
			if j > start+1 {
				return key[start+1 : j]
			}
			break
		}
	}
	return key
}

// crc16XModem is the table-free XMODEM CRC16 (poly 0x1021, init 0) that
// Redis Cluster uses for slot hashing. No third-party CRC16 implementation
// appears anywhere in the example corpus; every cluster-aware example that
// needs one (e.g. the marchproxy Redis cluster handler) defines this same
// bit-by-bit loop locally, so the hand-rolled version here follows suit.
func crc16XModem(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc = crc << 1
			}
		}
	}
	return crc
}
