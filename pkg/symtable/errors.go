package symtable

import "github.com/pkg/errors"

var (
	ErrFunctionNotFound  = errors.New("function identifier not found in this symbol table")
	ErrStatementNotFound = errors.New("statement identifier not found in this symbol table")
	ErrNoRanges          = errors.New("no address ranges given")
)
