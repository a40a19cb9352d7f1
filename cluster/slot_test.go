package cluster

import (
	"testing"

	"github.com/rsms/go-testutil"
)

func TestHashSlotNoTag(t *testing.T) {
	assert := testutil.NewAssert(t)
	k := []byte("somekey")
	assert.Eq("matches raw crc", HashSlot(k), crc16XModem(k)%NumSlots)
}

func TestHashSlotEmptyBraces(t *testing.T) {
	assert := testutil.NewAssert(t)
	k := []byte("foo{}bar")
	assert.Eq("empty tag falls back to whole key", HashSlot(k), crc16XModem(k)%NumSlots)
}

func TestHashSlotWithTag(t *testing.T) {
	assert := testutil.NewAssert(t)
	full := []byte("prefix{user1000}suffix")
	tag := []byte("user1000")
	assert.Eq("tagged key matches tag's slot", HashSlot(full), HashSlot(tag))
}

func TestHashSlotFirstTagOnly(t *testing.T) {
	assert := testutil.NewAssert(t)
	// The tag runs from the first '{' to the next '}'; an inner '{' is just
	// part of the tag, not the start of a new one.
	k := []byte("a{b{c}d}e")
	assert.Eq("first pair wins", string(effectiveKey(k)), "b{c")
}

func TestHashSlotInRange(t *testing.T) {
	assert := testutil.NewAssert(t)
	for _, k := range [][]byte{[]byte("a"), []byte("hello"), []byte("{}x"), []byte("{tag}k")} {
		slot := HashSlot(k)
		assert.Ok("slot in range", slot < NumSlots)
	}
}
