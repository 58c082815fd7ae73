package symtable

import (
	"debug/dwarf"
	"debug/elf"

	"github.com/maxgio92/xsamp/pkg/addr"
)

// populateFromELF pre-populates t's functions from f's symbol table and,
// if f carries a DWARF line table, its statements too. Grounded on the
// teacher's ELF symbol enumeration in pkg/static/static.go (STT_FUNC +
// STB_LOCAL filtering) and pkg/symtable/symtable.go's linear ELFSymTab;
// the DWARF line walk follows the debug/dwarf.LineReader idiom since no
// third-party DWARF reader appeared anywhere in the retrieved pack.
func populateFromELF(t *SymbolTable, f *elf.File) error {
	if err := populateFunctions(t, f); err != nil {
		return err
	}

	// DWARF debug info is optional: stripped binaries have none, and
	// that is not an error for symtable.New.
	d, err := f.DWARF()
	if err != nil {
		return nil
	}

	return populateStatements(t, d)
}

func populateFunctions(t *SymbolTable, f *elf.File) error {
	syms, err := f.Symbols()
	if err != nil {
		// No symbol table section is not fatal: dynamically stripped
		// binaries simply yield no functions.
		return nil
	}

	for _, sym := range syms {
		if elf.ST_TYPE(sym.Info) != elf.STT_FUNC {
			continue
		}
		if sym.Size == 0 || sym.Name == "" {
			continue
		}

		uid := t.AddFunction(sym.Name)
		r := addr.AddressRange{Begin: addr.Address(sym.Value), End: addr.Address(sym.Value + sym.Size)}
		if err := t.AddFunctionAddressRanges(uid, []addr.AddressRange{r}); err != nil {
			return err
		}
	}

	return nil
}

func populateStatements(t *SymbolTable, d *dwarf.Data) error {
	reader := d.Reader()

	for {
		entry, err := reader.Next()
		if err != nil {
			return err
		}
		if entry == nil {
			return nil
		}
		if entry.Tag != dwarf.TagCompileUnit {
			continue
		}

		lr, err := d.LineReader(entry)
		if err != nil || lr == nil {
			continue
		}
		if err := populateStatementsFromUnit(t, lr); err != nil {
			return err
		}
	}
}

func populateStatementsFromUnit(t *SymbolTable, lr *dwarf.LineReader) error {
	var (
		entry   dwarf.LineEntry
		pending *dwarf.LineEntry
	)

	flush := func(begin dwarf.LineEntry, end uint64) error {
		uid := t.AddStatement(begin.File.Name, uint32(begin.Line), uint32(begin.Column))
		r := addr.AddressRange{Begin: addr.Address(begin.Address), End: addr.Address(end)}

		return t.AddStatementAddressRanges(uid, []addr.AddressRange{r})
	}

	for {
		if err := lr.Next(&entry); err != nil {
			if pending != nil {
				return flush(*pending, pending.Address+1)
			}
			return nil
		}

		if entry.EndSequence {
			if pending != nil {
				if err := flush(*pending, entry.Address); err != nil {
					return err
				}
				pending = nil
			}
			continue
		}

		if !entry.IsStmt {
			continue
		}

		if pending != nil {
			if err := flush(*pending, entry.Address); err != nil {
				return err
			}
		}

		e := entry
		pending = &e
	}
}
