// Package symtable implements the per-binary symbol table: an ordered
// catalogue of functions and statements keyed by address ranges, grounded
// on original_source/contrib/Krell/libcbtf-symtab/SymbolTable.hpp. Unlike
// the C++ original's boost::bimap indices, the range lookups are backed
// by rangeIndex (see rangeindex.go).
package symtable

import (
	"debug/elf"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"github.com/maxgio92/xsamp/pkg/addr"
	"github.com/maxgio92/xsamp/pkg/bitmap"
	"github.com/maxgio92/xsamp/pkg/wire"
)

// UniqueIdentifier identifies a function or statement within one
// SymbolTable. Identifiers are dense, starting at 0, and never reused.
type UniqueIdentifier uint32

type functionItem struct {
	name     string
	bitmaps  []*bitmap.AddressBitmap
}

type statementItem struct {
	path    string
	line    uint32
	column  uint32
	bitmaps []*bitmap.AddressBitmap
}

// SymbolTable is the catalogue of functions and statements for one
// linked object (an executable or shared library).
type SymbolTable struct {
	path     string
	checksum uint64

	functions []functionItem
	statements []statementItem

	functionsIndex  *rangeIndex
	statementsIndex *rangeIndex
}

// New builds a symbol table for the binary at path, pre-populated from
// its ELF symbol table and DWARF line table when present, computing its
// checksum by streaming the file's bytes through xxhash (see DESIGN.md
// for why xxhash and not CRC-64-ISO: spec.md §9 leaves the algorithm
// open, only requiring it be deterministic).
func New(path string) (*SymbolTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s for checksum", path)
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, errors.Wrapf(err, "failed to stream %s for checksum", path)
	}

	t := &SymbolTable{
		path:            path,
		checksum:        h.Sum64(),
		functionsIndex:  newRangeIndex(),
		statementsIndex: newRangeIndex(),
	}

	// Pre-populating from ELF/DWARF is best-effort: a non-ELF or
	// stripped-beyond-symbols file still yields a valid, empty table.
	if ef, err := elf.Open(path); err == nil {
		defer ef.Close()
		_ = populateFromELF(t, ef)
	}

	return t, nil
}

// FromMessage restores a symbol table from its wire form, rebuilding the
// range indices from the decoded bitmaps.
func FromMessage(m wire.SymbolTableMessage) *SymbolTable {
	t := &SymbolTable{
		path:            m.Path,
		checksum:        m.Checksum,
		functionsIndex:  newRangeIndex(),
		statementsIndex: newRangeIndex(),
	}

	for _, fm := range m.Functions {
		uid := t.AddFunction(fm.Name)
		bms := decodeBitmapMessages(fm.Bitmaps)
		t.functions[uid].bitmaps = bms
		t.functionsIndex.Reindex(uid, unionRuns(bms))
	}
	for _, sm := range m.Statements {
		uid := t.AddStatement(sm.Path, sm.Line, sm.Column)
		bms := decodeBitmapMessages(sm.Bitmaps)
		t.statements[uid].bitmaps = bms
		t.statementsIndex.Reindex(uid, unionRuns(bms))
	}

	return t
}

func decodeBitmapMessages(msgs []wire.AddressBitmapMessage) []*bitmap.AddressBitmap {
	out := make([]*bitmap.AddressBitmap, len(msgs))
	for i, m := range msgs {
		out[i] = bitmap.NewFromMessage(m)
	}
	return out
}

// unionRuns returns the sorted union of the contiguous true-runs across
// every bitmap in bitmaps.
func unionRuns(bitmaps []*bitmap.AddressBitmap) []addr.AddressRange {
	var out []addr.AddressRange
	for _, b := range bitmaps {
		out = append(out, b.ContiguousRuns(true)...)
	}
	addr.SortRanges(out)
	return out
}

// ToMessage serializes the symbol table to its wire form.
func (t *SymbolTable) ToMessage() wire.SymbolTableMessage {
	m := wire.SymbolTableMessage{
		Path:     t.path,
		Checksum: t.checksum,
	}
	for _, f := range t.functions {
		m.Functions = append(m.Functions, wire.FunctionMessage{
			Name:    f.name,
			Bitmaps: bitmapMessages(f.bitmaps),
		})
	}
	for _, s := range t.statements {
		m.Statements = append(m.Statements, wire.StatementMessage{
			Path:    s.path,
			Line:    s.line,
			Column:  s.column,
			Bitmaps: bitmapMessages(s.bitmaps),
		})
	}

	return m
}

func bitmapMessages(bitmaps []*bitmap.AddressBitmap) []wire.AddressBitmapMessage {
	out := make([]wire.AddressBitmapMessage, len(bitmaps))
	for i, b := range bitmaps {
		out[i] = b.ToMessage()
	}
	return out
}

// Path returns the full path name of this symbol table's linked object.
func (t *SymbolTable) Path() string { return t.path }

// Checksum returns the checksum of this symbol table's linked object.
func (t *SymbolTable) Checksum() uint64 { return t.checksum }

// AddFunction adds a new function and returns its fresh identifier.
func (t *SymbolTable) AddFunction(name string) UniqueIdentifier {
	uid := UniqueIdentifier(len(t.functions))
	t.functions = append(t.functions, functionItem{name: name})
	return uid
}

// AddStatement adds a new statement and returns its fresh identifier.
func (t *SymbolTable) AddStatement(path string, line, column uint32) UniqueIdentifier {
	uid := UniqueIdentifier(len(t.statements))
	t.statements = append(t.statements, statementItem{path: path, line: line, column: column})
	return uid
}

// AddFunctionAddressRanges merges ranges into the function's bitmaps and
// reinserts the resulting contiguous runs into the function range index.
func (t *SymbolTable) AddFunctionAddressRanges(uid UniqueIdentifier, ranges []addr.AddressRange) error {
	if int(uid) >= len(t.functions) {
		return ErrFunctionNotFound
	}
	if len(ranges) == 0 {
		return ErrNoRanges
	}

	item := &t.functions[uid]
	item.bitmaps = mergeRanges(item.bitmaps, ranges)
	t.functionsIndex.Reindex(uid, unionRuns(item.bitmaps))

	return nil
}

// AddStatementAddressRanges merges ranges into the statement's bitmaps
// and reinserts the resulting contiguous runs into the statement index.
func (t *SymbolTable) AddStatementAddressRanges(uid UniqueIdentifier, ranges []addr.AddressRange) error {
	if int(uid) >= len(t.statements) {
		return ErrStatementNotFound
	}
	if len(ranges) == 0 {
		return ErrNoRanges
	}

	item := &t.statements[uid]
	item.bitmaps = mergeRanges(item.bitmaps, ranges)
	t.statementsIndex.Reindex(uid, unionRuns(item.bitmaps))

	return nil
}

// mergeRanges groups adjacent/overlapping ranges and allocates one
// bitmap per group, appending to existing. The packing is
// implementation-defined per spec.md §4.2: the union of set bits across
// the returned bitmaps must equal the union of every range ever added,
// which this achieves by simply keeping every previously allocated
// bitmap and adding one fresh bitmap per merged input group.
func mergeRanges(existing []*bitmap.AddressBitmap, ranges []addr.AddressRange) []*bitmap.AddressBitmap {
	sorted := make([]addr.AddressRange, len(ranges))
	copy(sorted, ranges)
	addr.SortRanges(sorted)

	groups := make([]addr.AddressRange, 0, len(sorted))
	for _, r := range sorted {
		if len(groups) > 0 && groups[len(groups)-1].Adjacent(r) {
			groups[len(groups)-1] = groups[len(groups)-1].Union(r)
		} else {
			groups = append(groups, r)
		}
	}

	for _, g := range groups {
		b := bitmap.New(g)
		for a := g.Begin; a != g.End; a++ {
			b.Set(a, true)
		}
		existing = append(existing, b)
	}

	return existing
}

// CloneFunction deep-copies the name and bitmaps of src's function uid
// into t, returning a fresh identifier in t.
func (t *SymbolTable) CloneFunction(src *SymbolTable, uid UniqueIdentifier) (UniqueIdentifier, error) {
	if int(uid) >= len(src.functions) {
		return 0, ErrFunctionNotFound
	}
	item := src.functions[uid]

	newUID := t.AddFunction(item.name)
	t.functions[newUID].bitmaps = cloneBitmaps(item.bitmaps)
	t.functionsIndex.Reindex(newUID, unionRuns(t.functions[newUID].bitmaps))

	return newUID, nil
}

// CloneStatement deep-copies the location and bitmaps of src's statement
// uid into t, returning a fresh identifier in t.
func (t *SymbolTable) CloneStatement(src *SymbolTable, uid UniqueIdentifier) (UniqueIdentifier, error) {
	if int(uid) >= len(src.statements) {
		return 0, ErrStatementNotFound
	}
	item := src.statements[uid]

	newUID := t.AddStatement(item.path, item.line, item.column)
	t.statements[newUID].bitmaps = cloneBitmaps(item.bitmaps)
	t.statementsIndex.Reindex(newUID, unionRuns(t.statements[newUID].bitmaps))

	return newUID, nil
}

func cloneBitmaps(src []*bitmap.AddressBitmap) []*bitmap.AddressBitmap {
	out := make([]*bitmap.AddressBitmap, len(src))
	for i, b := range src {
		out[i] = bitmap.NewFromMessage(b.ToMessage())
	}
	return out
}

// FunctionName returns the mangled name of function uid.
func (t *SymbolTable) FunctionName(uid UniqueIdentifier) (string, error) {
	if int(uid) >= len(t.functions) {
		return "", ErrFunctionNotFound
	}
	return t.functions[uid].name, nil
}

// FunctionAddressRanges returns the sorted union of contiguous runs
// across all of function uid's bitmaps.
func (t *SymbolTable) FunctionAddressRanges(uid UniqueIdentifier) ([]addr.AddressRange, error) {
	if int(uid) >= len(t.functions) {
		return nil, ErrFunctionNotFound
	}
	return t.functionsIndex.RangesFor(uid), nil
}

// StatementLocation returns the source path, line, and column of
// statement uid.
func (t *SymbolTable) StatementLocation(uid UniqueIdentifier) (path string, line, column uint32, err error) {
	if int(uid) >= len(t.statements) {
		return "", 0, 0, ErrStatementNotFound
	}
	s := t.statements[uid]
	return s.path, s.line, s.column, nil
}

// StatementAddressRanges returns the sorted union of contiguous runs
// across all of statement uid's bitmaps.
func (t *SymbolTable) StatementAddressRanges(uid UniqueIdentifier) ([]addr.AddressRange, error) {
	if int(uid) >= len(t.statements) {
		return nil, ErrStatementNotFound
	}
	return t.statementsIndex.RangesFor(uid), nil
}

// Visitor is invoked for each matched entity; returning false stops
// iteration early, the Go analogue of the source's virtual-dispatch
// visitor objects (spec.md §9).
type Visitor func(uid UniqueIdentifier) bool

func visitAll(ids []UniqueIdentifier, visit Visitor) {
	for _, uid := range ids {
		if !visit(uid) {
			return
		}
	}
}

// VisitFunctions visits every function in this table.
func (t *SymbolTable) VisitFunctions(visit Visitor) {
	ids := make([]UniqueIdentifier, len(t.functions))
	for i := range t.functions {
		ids[i] = UniqueIdentifier(i)
	}
	visitAll(ids, visit)
}

// VisitFunctionsAt visits every function whose contiguous runs contain a.
func (t *SymbolTable) VisitFunctionsAt(a addr.Address, visit Visitor) {
	visitAll(t.functionsIndex.At(a), visit)
}

// VisitFunctionsByName visits every function with the given mangled name.
func (t *SymbolTable) VisitFunctionsByName(name string, visit Visitor) {
	var ids []UniqueIdentifier
	for i, f := range t.functions {
		if f.name == name {
			ids = append(ids, UniqueIdentifier(i))
		}
	}
	visitAll(ids, visit)
}

// VisitStatements visits every statement in this table.
func (t *SymbolTable) VisitStatements(visit Visitor) {
	ids := make([]UniqueIdentifier, len(t.statements))
	for i := range t.statements {
		ids[i] = UniqueIdentifier(i)
	}
	visitAll(ids, visit)
}

// VisitStatementsAt visits every statement whose contiguous runs contain a.
func (t *SymbolTable) VisitStatementsAt(a addr.Address, visit Visitor) {
	visitAll(t.statementsIndex.At(a), visit)
}

// VisitStatementsBySourceFile visits every statement in the given
// source file.
func (t *SymbolTable) VisitStatementsBySourceFile(path string, visit Visitor) {
	var ids []UniqueIdentifier
	for i, s := range t.statements {
		if s.path == path {
			ids = append(ids, UniqueIdentifier(i))
		}
	}
	visitAll(ids, visit)
}

// VisitFunctionStatements visits every statement that overlaps one of
// function uid's address ranges (containing-entity traversal).
func (t *SymbolTable) VisitFunctionStatements(uid UniqueIdentifier, visit Visitor) {
	ranges, err := t.FunctionAddressRanges(uid)
	if err != nil {
		return
	}
	visitAll(t.statementsOverlapping(ranges), visit)
}

// VisitStatementFunctions visits every function that overlaps statement
// uid's address ranges.
func (t *SymbolTable) VisitStatementFunctions(uid UniqueIdentifier, visit Visitor) {
	ranges, err := t.StatementAddressRanges(uid)
	if err != nil {
		return
	}
	visitAll(t.functionsOverlapping(ranges), visit)
}

func (t *SymbolTable) statementsOverlapping(ranges []addr.AddressRange) []UniqueIdentifier {
	seen := make(map[UniqueIdentifier]bool)
	var out []UniqueIdentifier
	for _, r := range ranges {
		for a := r.Begin; a != r.End; a++ {
			for _, uid := range t.statementsIndex.At(a) {
				if !seen[uid] {
					seen[uid] = true
					out = append(out, uid)
				}
			}
		}
	}
	return out
}

func (t *SymbolTable) functionsOverlapping(ranges []addr.AddressRange) []UniqueIdentifier {
	seen := make(map[UniqueIdentifier]bool)
	var out []UniqueIdentifier
	for _, r := range ranges {
		for a := r.Begin; a != r.End; a++ {
			for _, uid := range t.functionsIndex.At(a) {
				if !seen[uid] {
					seen[uid] = true
					out = append(out, uid)
				}
			}
		}
	}
	return out
}
