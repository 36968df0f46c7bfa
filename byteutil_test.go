package kv

import (
	"bytes"
	"reflect"
	"testing"
)

func TestByteUtil_AppendHelpers(t *testing.T) {
	buf := ensureCapacity(nil, 100)
	if cap(buf) < 100 {
		t.Fatalf("cap = %d, wanted >= 100", cap(buf))
	}

	buf = appendRaw(nil, []byte{0xAA, 0xBB})
	buf = appendUint64(buf, 0x0102030405060708)
	want := []byte{0xAA, 0xBB, 1, 2, 3, 4, 5, 6, 7, 8}
	if !reflect.DeepEqual(buf, want) {
		t.Fatalf("buf = %x, wanted %x", buf, want)
	}
}

func TestAppendUint64_PreservesOrder(t *testing.T) {
	values := []uint64{0, 1, 255, 256, 257, 1 << 16, 1<<32 - 1, 1 << 32, 1<<64 - 1}
	var prev []byte
	for _, v := range values {
		enc := appendUint64(nil, v)
		if len(enc) != 8 {
			t.Fatalf("len(encode(%d)) = %d, wanted 8", v, len(enc))
		}
		if prev != nil && bytes.Compare(prev, enc) >= 0 {
			t.Fatalf("encode order broken: %x >= %x", prev, enc)
		}
		prev = enc
	}
}

func TestIncDec(t *testing.T) {
	tests := []struct {
		in   []byte
		want []byte
	}{
		{[]byte{0x01}, []byte{0x02}},
		{[]byte{0x01, 0xFF}, []byte{0x02, 0x00}},
		{[]byte{0x00, 0xFF, 0xFF}, []byte{0x01, 0x00, 0x00}},
	}
	for _, tt := range tests {
		got := append([]byte(nil), tt.in...)
		if !inc(got) {
			t.Fatalf("inc(%x) = false, wanted true", tt.in)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("inc(%x) = %x, wanted %x", tt.in, got, tt.want)
		}
		if !dec(got) {
			t.Fatalf("dec(%x) = false, wanted true", tt.want)
		}
		if !reflect.DeepEqual(got, tt.in) {
			t.Fatalf("dec(inc(%x)) = %x, wanted original", tt.in, got)
		}
	}

	all := []byte{0xFF, 0xFF}
	if inc(all) {
		t.Fatalf("inc(ffff) = true, wanted false")
	}
	zero := []byte{0x00, 0x00}
	if dec(zero) {
		t.Fatalf("dec(0000) = true, wanted false")
	}
}

func TestPrefixSuccessor(t *testing.T) {
	if got := prefixSuccessor([]byte("ab")); !bytes.Equal(got, []byte("ac")) {
		t.Fatalf("prefixSuccessor(ab) = %q, wanted ac", got)
	}
	if got := prefixSuccessor([]byte{0x01, 0xFF}); !bytes.Equal(got, []byte{0x02, 0x00}) {
		t.Fatalf("prefixSuccessor(01ff) = %x, wanted 0200", got)
	}
	if got := prefixSuccessor([]byte{0xFF, 0xFF}); got != nil {
		t.Fatalf("prefixSuccessor(ffff) = %x, wanted nil", got)
	}

	// Must not mutate the argument.
	orig := []byte{0x01}
	_ = prefixSuccessor(orig)
	if orig[0] != 0x01 {
		t.Fatalf("prefixSuccessor mutated its argument")
	}
}

func TestHexstr(t *testing.T) {
	if got := hexstr(nil); got != "<nil>" {
		t.Fatalf("hexstr(nil) = %q", got)
	}
	if got := hexstr([]byte{}); got != "<empty>" {
		t.Fatalf("hexstr(empty) = %q", got)
	}
	if got := hexstr([]byte{0xDE, 0xAD}); got != "dead" {
		t.Fatalf("hexstr = %q, wanted dead", got)
	}
}
