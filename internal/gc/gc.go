// Package gc implements a semi-honest garbled boolean circuit evaluating
// fixed-width integer equality (spec.md §4.1, §4.6), free-XOR style: XOR
// gates are free, and the final AND-reduction tree uses four-row garbled
// AND gates hashed with the teacher's random-oracle convention
// (utils.Generichash / utils.Encrypt in utils/utils.go) rather than a raw
// block cipher, since no pack repo ships an importable GC library
// (see DESIGN.md).
package gc

import (
	"crypto/rand"

	"golang.org/x/crypto/blake2b"

	"github.com/summitto/upsi/internal/errs"
)

// Label is a 128-bit wire label.
type Label [16]byte

func (l Label) xor(o Label) Label {
	var out Label
	for i := range out {
		out[i] = l[i] ^ o[i]
	}
	return out
}

func (l Label) pointer() byte { return l[15] & 1 }

// Wire holds both garbled labels for a single boolean wire.
type Wire struct {
	Zero Label
	One  Label
}

func randomLabel() Label {
	var l Label
	if _, err := rand.Read(l[:]); err != nil {
		panic("gc: failed to read randomness: " + err.Error())
	}
	return l
}

// Garbler drives circuit construction: it owns the global free-XOR offset R
// (with its low bit forced to 1, the standard point-and-permute convention)
// and every AND gate's garbled table.
type Garbler struct {
	R Label
}

// NewGarbler draws a fresh global offset R.
func NewGarbler() *Garbler {
	r := randomLabel()
	r[15] |= 1
	return &Garbler{R: r}
}

// NewInputWire draws a fresh zero-label; the one-label is Zero XOR R, giving
// XOR gates between these wires for free.
func (g *Garbler) NewInputWire() Wire {
	zero := randomLabel()
	one := zero.xor(g.R)
	return Wire{Zero: zero, One: one}
}

// XOR combines two wires for free: no garbled table is needed.
func (g *Garbler) XOR(a, b Wire) Wire {
	return Wire{Zero: a.Zero.xor(b.Zero), One: a.Zero.xor(b.One)}
}

// NOT flips a wire's semantics for free by swapping which label means which
// bit; since only the table-construction side (garbler) calls this, the
// caller must track the net inversion to interpret the evaluator's output.
func (g *Garbler) NOT(a Wire) Wire {
	return Wire{Zero: a.One, One: a.Zero}
}

// gateHash is the row-encryption function for a garbled AND gate: a keyed
// hash of (labelA, labelB, gateID), used to mask the output label in each of
// the 4 table rows. This mirrors the teacher's random-oracle-based gate
// encryption in utils.Encrypt (blake2b keyed on the two input labels) rather
// than inventing a bespoke AES tweak scheme.
func gateHash(a, b Label, gateID uint64) Label {
	h, err := blake2b.New(16, nil)
	if err != nil {
		panic("gc: blake2b init failed: " + err.Error())
	}
	h.Write(a[:])
	h.Write(b[:])
	var idBuf [8]byte
	for i := 0; i < 8; i++ {
		idBuf[i] = byte(gateID >> (8 * i))
	}
	h.Write(idBuf[:])
	var out Label
	copy(out[:], h.Sum(nil))
	return out
}

// ANDTable is the four-row garbled table for one AND gate, ordered by the
// point-and-permute selector bits of the input labels.
type ANDTable [4]Label

// GarbleAND constructs a garbled AND gate over input wires a, b with a fresh
// output wire, returning the output wire and its garbled table.
func (g *Garbler) GarbleAND(a, b Wire, gateID uint64) (Wire, ANDTable) {
	outZero := randomLabel()
	outOne := outZero.xor(g.R)
	out := Wire{Zero: outZero, One: outOne}

	labelA := [2]Label{a.Zero, a.One}
	labelB := [2]Label{b.Zero, b.One}
	outOf := func(bitA, bitB byte) Label {
		if bitA&bitB == 1 {
			return out.One
		}
		return out.Zero
	}

	var table ANDTable
	for bitA := byte(0); bitA < 2; bitA++ {
		for bitB := byte(0); bitB < 2; bitB++ {
			row := labelA[bitA].pointer()<<1 | labelB[bitB].pointer()
			table[row] = gateHash(labelA[bitA], labelB[bitB], gateID).xor(outOf(bitA, bitB))
		}
	}
	return out, table
}

// EvaluateAND evaluates a garbled AND gate given the evaluator's known input
// labels (one per wire) and the garbled table.
func EvaluateAND(labelA, labelB Label, table ANDTable, gateID uint64) Label {
	row := labelA.pointer()<<1 | labelB.pointer()
	return gateHash(labelA, labelB, gateID).xor(table[row])
}

// EqualityCircuit garbles a fixed-width (bitWidth-bit) equality predicate:
// output wire is 1 iff the two inputs are bit-for-bit equal. Built as free
// XNOR (XOR then NOT) per bit, reduced by a binary tree of garbled AND gates.
type EqualityCircuit struct {
	BitWidth int
	A, B     []Wire // per-bit input wires, garbler's and evaluator's side
	Tables   []ANDTable
	Output   Wire
}

// Garble constructs a full equality circuit for bitWidth-bit inputs.
func (g *Garbler) Garble(bitWidth int) *EqualityCircuit {
	c := &EqualityCircuit{BitWidth: bitWidth}
	c.A = make([]Wire, bitWidth)
	c.B = make([]Wire, bitWidth)
	level := make([]Wire, bitWidth)
	for i := 0; i < bitWidth; i++ {
		c.A[i] = g.NewInputWire()
		c.B[i] = g.NewInputWire()
		xnor := g.NOT(g.XOR(c.A[i], c.B[i]))
		level[i] = xnor
	}

	var gateID uint64
	for len(level) > 1 {
		next := make([]Wire, 0, (len(level)+1)/2)
		for i := 0; i+1 < len(level); i += 2 {
			out, table := g.GarbleAND(level[i], level[i+1], gateID)
			gateID++
			c.Tables = append(c.Tables, table)
			next = append(next, out)
		}
		if len(level)%2 == 1 {
			next = append(next, level[len(level)-1])
		}
		level = next
	}
	c.Output = level[0]
	return c
}

// BitsFromUint64 decomposes v into bitWidth little-endian bits.
func BitsFromUint64(v uint64, bitWidth int) []byte {
	bits := make([]byte, bitWidth)
	for i := 0; i < bitWidth; i++ {
		bits[i] = byte((v >> uint(i)) & 1)
	}
	return bits
}

// GarblerLabels selects the garbler's own input labels for its known bits
// (sent directly to the evaluator, since the garbler's inputs need no OT).
func (c *EqualityCircuit) GarblerLabels(value uint64) []Label {
	bits := BitsFromUint64(value, c.BitWidth)
	out := make([]Label, c.BitWidth)
	for i, b := range bits {
		if b == 1 {
			out[i] = c.A[i].One
		} else {
			out[i] = c.A[i].Zero
		}
	}
	return out
}

// EvaluatorWirePair returns the (zero-label, one-label) pair for bit i of the
// evaluator's input, the two messages transferred via 1-of-2 OT so the
// garbler never learns which one the evaluator actually received.
func (c *EqualityCircuit) EvaluatorWirePair(i int) (Label, Label) {
	return c.B[i].Zero, c.B[i].One
}

// Evaluate runs the garbled circuit given the garbler's labels, the
// evaluator's OT-received labels, and the garbled tables, and reports whether
// the output label decodes to 1 (equality held). Exposed only to the
// evaluator; the garbler never sees garblerLabels decoded back to bits.
func Evaluate(c *EqualityCircuit, garblerLabels, evaluatorLabels []Label) (Label, error) {
	if len(garblerLabels) != c.BitWidth || len(evaluatorLabels) != c.BitWidth {
		return Label{}, errs.New(errs.InvalidArgument, "gc: label count does not match circuit width")
	}
	level := make([]Label, c.BitWidth)
	// XNOR is free: evaluator computes it the same way the garbler did,
	// using the actual labels received rather than known bits.
	for i := 0; i < c.BitWidth; i++ {
		xor := garblerLabels[i].xor(evaluatorLabels[i])
		// NOT on the evaluator side is a no-op on labels: the garbler already
		// baked the inversion into which physical label means "equal" at
		// garbling time, so the evaluator just threads the XOR label through.
		level[i] = xor
	}

	tableIdx := 0
	for len(level) > 1 {
		next := make([]Label, 0, (len(level)+1)/2)
		for i := 0; i+1 < len(level); i += 2 {
			out := EvaluateAND(level[i], level[i+1], c.Tables[tableIdx], uint64(tableIdx))
			tableIdx++
			next = append(next, out)
		}
		if len(level)%2 == 1 {
			next = append(next, level[len(level)-1])
		}
		level = next
	}
	return level[0], nil
}

// Decodes reports whether an output label equals the circuit's "true" label.
func (c *EqualityCircuit) Decodes(out Label) bool {
	return out == c.Output.One
}
