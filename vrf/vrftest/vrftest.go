// Package vrftest builds synthetic resource files for tests
package vrftest

import (
	"encoding/binary"
	"fmt"
	"math"
)

type (
	// Writer assembles a little-endian payload. Relative offsets are
	// written as labelled placeholders and resolved by Bytes.
	Writer struct {
		buf   []byte
		marks map[string]int
		refs  []labelRef
	}

	labelRef struct {
		at    int
		label string
	}
)

// NewWriter creates an empty writer
func NewWriter() *Writer {
	return &Writer{marks: map[string]int{}}
}

// Len returns the number of bytes written so far
func (w *Writer) Len() int { return len(w.buf) }

// U8 appends a byte
func (w *Writer) U8(v uint8) { w.buf = append(w.buf, v) }

// U16 appends a uint16
func (w *Writer) U16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }

// I16 appends an int16
func (w *Writer) I16(v int16) { w.U16(uint16(v)) } //#nosec:G115

// U32 appends a uint32
func (w *Writer) U32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }

// I32 appends an int32
func (w *Writer) I32(v int32) { w.U32(uint32(v)) } //#nosec:G115

// U64 appends a uint64
func (w *Writer) U64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }

// F32 appends a float32
func (w *Writer) F32(v float32) { w.U32(math.Float32bits(v)) }

// F64 appends a float64
func (w *Writer) F64(v float64) { w.U64(math.Float64bits(v)) }

// Raw appends bytes verbatim
func (w *Writer) Raw(b []byte) { w.buf = append(w.buf, b...) }

// Zero appends n zero bytes
func (w *Writer) Zero(n int) { w.buf = append(w.buf, make([]byte, n)...) }

// PadTo appends zero bytes until the payload has reached size
func (w *Writer) PadTo(size int) {
	if size > len(w.buf) {
		w.Zero(size - len(w.buf))
	}
}

// Mark records the current position under label
func (w *Writer) Mark(label string) { w.marks[label] = len(w.buf) }

// Ref appends a uint32 placeholder which Bytes resolves to the distance
// between the placeholder and the position marked as label
func (w *Writer) Ref(label string) {
	w.refs = append(w.refs, labelRef{at: len(w.buf), label: label})
	w.U32(0)
}

// CString marks label and appends the NUL terminated string
func (w *Writer) CString(label, s string) {
	w.Mark(label)
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

// Bytes resolves all references and returns the payload. It panics on
// references to unknown labels as this is a programming error in the
// test building the payload.
func (w *Writer) Bytes() []byte {
	out := make([]byte, len(w.buf))
	copy(out, w.buf)

	for _, r := range w.refs {
		pos, ok := w.marks[r.label]
		if !ok {
			panic(fmt.Sprintf("vrftest: reference to unknown label %q", r.label))
		}
		binary.LittleEndian.PutUint32(out[r.at:], uint32(pos-r.at)) //#nosec:G115
	}

	return out
}

// Resource assembles a complete resource file
type Resource struct {
	HeaderVersion uint16
	Version       uint16

	blocks  []block
	trailer []byte
}

type block struct {
	kind    string
	payload []byte
}

// NewResource creates a resource builder with the supported header
// version
func NewResource() *Resource {
	return &Resource{HeaderVersion: 12} //nolint:mnd
}

// Add appends a block. Blocks are laid out in the order added without
// padding, so the trailer directly follows the last block.
func (r *Resource) Add(kind string, payload []byte) *Resource {
	r.blocks = append(r.blocks, block{kind: kind, payload: payload})
	return r
}

// Trailer sets bytes appended after the last block
func (r *Resource) Trailer(b []byte) *Resource {
	r.trailer = b
	return r
}

// Bytes lays out header, block table, block payloads and trailer
func (r *Resource) Bytes() []byte {
	const (
		headerSize = 16
		entrySize  = 12
	)

	w := NewWriter()

	total := headerSize + entrySize*len(r.blocks) + len(r.trailer)
	for _, b := range r.blocks {
		total += len(b.payload)
	}

	w.U32(uint32(total)) //#nosec:G115
	w.U16(r.HeaderVersion)
	w.U16(r.Version)
	w.U32(8) //nolint:mnd // table directly follows the header
	w.U32(uint32(len(r.blocks))) //#nosec:G115

	pos := headerSize + entrySize*len(r.blocks)
	for i, b := range r.blocks {
		w.Raw([]byte(fmt.Sprintf("%-4.4s", b.kind)))
		field := headerSize + i*entrySize + 4 //nolint:mnd
		w.U32(uint32(pos - field))            //#nosec:G115
		w.U32(uint32(len(b.payload)))         //#nosec:G115
		pos += len(b.payload)
	}

	for _, b := range r.blocks {
		w.Raw(b.payload)
	}
	w.Raw(r.trailer)

	return w.Bytes()
}
