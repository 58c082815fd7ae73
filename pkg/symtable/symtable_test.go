package symtable_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maxgio92/xsamp/pkg/addr"
	"github.com/maxgio92/xsamp/pkg/symtable"
)

// S6: a function at [0x400000,0x400010) and a statement at
// [0x400000,0x400008) inside it must both resolve VisitFunctionsAt and
// VisitStatementsAt for an address in the overlap, and each side's
// cross-visitor must find the other.
func TestSymbolTableScenarioS6(t *testing.T) {
	tbl, err := symtable.New("/proc/self/exe")
	require.NoError(t, err)

	fn := tbl.AddFunction("main.doWork")
	require.NoError(t, tbl.AddFunctionAddressRanges(fn, []addr.AddressRange{
		addr.NewAddressRange(0x400000, 0x400010),
	}))

	st := tbl.AddStatement("main.go", 42, 3)
	require.NoError(t, tbl.AddStatementAddressRanges(st, []addr.AddressRange{
		addr.NewAddressRange(0x400000, 0x400008),
	}))

	var gotFn []symtable.UniqueIdentifier
	tbl.VisitFunctionsAt(0x400004, func(uid symtable.UniqueIdentifier) bool {
		gotFn = append(gotFn, uid)
		return true
	})
	require.Equal(t, []symtable.UniqueIdentifier{fn}, gotFn)

	var gotSt []symtable.UniqueIdentifier
	tbl.VisitStatementsAt(0x400004, func(uid symtable.UniqueIdentifier) bool {
		gotSt = append(gotSt, uid)
		return true
	})
	require.Equal(t, []symtable.UniqueIdentifier{st}, gotSt)

	var crossSt []symtable.UniqueIdentifier
	tbl.VisitFunctionStatements(fn, func(uid symtable.UniqueIdentifier) bool {
		crossSt = append(crossSt, uid)
		return true
	})
	require.Equal(t, []symtable.UniqueIdentifier{st}, crossSt)

	var crossFn []symtable.UniqueIdentifier
	tbl.VisitStatementFunctions(st, func(uid symtable.UniqueIdentifier) bool {
		crossFn = append(crossFn, uid)
		return true
	})
	require.Equal(t, []symtable.UniqueIdentifier{fn}, crossFn)
}

// Invariant 3: FromMessage(t.ToMessage()) reproduces every function and
// statement, their locations, and their address ranges.
func TestSymbolTableRoundTrip(t *testing.T) {
	tbl, err := symtable.New("/proc/self/exe")
	require.NoError(t, err)

	fn := tbl.AddFunction("main.main")
	require.NoError(t, tbl.AddFunctionAddressRanges(fn, []addr.AddressRange{
		addr.NewAddressRange(0x1000, 0x1010),
		addr.NewAddressRange(0x2000, 0x2004),
	}))

	st := tbl.AddStatement("main.go", 7, 1)
	require.NoError(t, tbl.AddStatementAddressRanges(st, []addr.AddressRange{
		addr.NewAddressRange(0x1000, 0x1004),
	}))

	restored := symtable.FromMessage(tbl.ToMessage())

	gotName, err := restored.FunctionName(fn)
	require.NoError(t, err)
	require.Equal(t, "main.main", gotName)

	gotRanges, err := restored.FunctionAddressRanges(fn)
	require.NoError(t, err)
	require.Equal(t, []addr.AddressRange{
		addr.NewAddressRange(0x1000, 0x1010),
		addr.NewAddressRange(0x2000, 0x2004),
	}, gotRanges)

	path, line, col, err := restored.StatementLocation(st)
	require.NoError(t, err)
	require.Equal(t, "main.go", path)
	require.Equal(t, uint32(7), line)
	require.Equal(t, uint32(1), col)
}

// Invariant 4: address lookup soundness. Every identifier returned by
// VisitFunctionsAt(a) must have a its FunctionAddressRanges actually
// contain a, and every address in those ranges lies in some run.
func TestSymbolTableAddressLookupSoundness(t *testing.T) {
	tbl, err := symtable.New("/proc/self/exe")
	require.NoError(t, err)

	fn1 := tbl.AddFunction("f1")
	require.NoError(t, tbl.AddFunctionAddressRanges(fn1, []addr.AddressRange{addr.NewAddressRange(0x100, 0x110)}))

	fn2 := tbl.AddFunction("f2")
	require.NoError(t, tbl.AddFunctionAddressRanges(fn2, []addr.AddressRange{addr.NewAddressRange(0x200, 0x210)}))

	for a := addr.Address(0x100); a != 0x110; a++ {
		var found []symtable.UniqueIdentifier
		tbl.VisitFunctionsAt(a, func(uid symtable.UniqueIdentifier) bool {
			found = append(found, uid)
			return true
		})
		require.Equal(t, []symtable.UniqueIdentifier{fn1}, found)
	}

	var none []symtable.UniqueIdentifier
	tbl.VisitFunctionsAt(0x180, func(uid symtable.UniqueIdentifier) bool {
		none = append(none, uid)
		return true
	})
	require.Empty(t, none)
}

func TestSymbolTableVisitorEarlyExit(t *testing.T) {
	tbl, err := symtable.New("/proc/self/exe")
	require.NoError(t, err)

	tbl.AddFunction("a")
	tbl.AddFunction("b")
	tbl.AddFunction("c")

	count := 0
	tbl.VisitFunctions(func(uid symtable.UniqueIdentifier) bool {
		count++
		return count < 2
	})
	require.Equal(t, 2, count)
}

func TestSymbolTableCloneFunction(t *testing.T) {
	src, err := symtable.New("/proc/self/exe")
	require.NoError(t, err)
	fn := src.AddFunction("shared")
	require.NoError(t, src.AddFunctionAddressRanges(fn, []addr.AddressRange{addr.NewAddressRange(0x10, 0x20)}))

	dst, err := symtable.New("/proc/self/exe")
	require.NoError(t, err)
	cloned, err := dst.CloneFunction(src, fn)
	require.NoError(t, err)

	name, err := dst.FunctionName(cloned)
	require.NoError(t, err)
	require.Equal(t, "shared", name)

	ranges, err := dst.FunctionAddressRanges(cloned)
	require.NoError(t, err)
	require.Equal(t, []addr.AddressRange{addr.NewAddressRange(0x10, 0x20)}, ranges)
}

func TestSymbolTableUnknownIdentifier(t *testing.T) {
	tbl, err := symtable.New("/proc/self/exe")
	require.NoError(t, err)

	_, err = tbl.FunctionName(99)
	require.ErrorIs(t, err, symtable.ErrFunctionNotFound)

	_, _, _, err = tbl.StatementLocation(99)
	require.ErrorIs(t, err, symtable.ErrStatementNotFound)
}

func TestSymbolTableAddAddressRangesRejectsEmpty(t *testing.T) {
	tbl, err := symtable.New("/proc/self/exe")
	require.NoError(t, err)
	fn := tbl.AddFunction("f")

	err = tbl.AddFunctionAddressRanges(fn, nil)
	require.ErrorIs(t, err, symtable.ErrNoRanges)
}

// New pre-populates functions from the binary's own ELF symbol table
// when the path is a readable ELF; /proc/self/exe is the test binary
// itself, which always has at least a runtime symtab.
func TestSymbolTableNewPopulatesFromELF(t *testing.T) {
	tbl, err := symtable.New("/proc/self/exe")
	require.NoError(t, err)

	count := 0
	var sample symtable.UniqueIdentifier
	tbl.VisitFunctions(func(uid symtable.UniqueIdentifier) bool {
		sample = uid
		count++
		return count < 2
	})
	require.GreaterOrEqual(t, count, 1)

	name, err := tbl.FunctionName(sample)
	require.NoError(t, err)
	require.NotEmpty(t, name)

	ranges, err := tbl.FunctionAddressRanges(sample)
	require.NoError(t, err)
	require.NotEmpty(t, ranges)
}

// New on a non-ELF path still succeeds, just without pre-population:
// ELF/DWARF is a best-effort enrichment, not a requirement.
func TestSymbolTableNewToleratesNonELFPath(t *testing.T) {
	tbl, err := symtable.New("/etc/hostname")
	require.NoError(t, err)

	count := 0
	tbl.VisitFunctions(func(uid symtable.UniqueIdentifier) bool {
		count++
		return true
	})
	require.Zero(t, count)
}
