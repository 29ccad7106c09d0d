// Package vm implements the ICI execution core.
//
// This package contains:
//   - the object header, type table and atom pool
//   - ints, floats, strings, arrays, structs, sets, pointers and functions
//   - the mark-and-sweep collector with extra-owner reference counts
//   - the dispatch loop, the binary operator table and the thread scheduler
//   - the core natives and CBOR save/restore
package vm
