package vm

import "fmt"

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

// Opcode selects the engine action for an Op.
type Opcode uint8

// Engine opcodes. Ops that read operands from the code array say so.
const (
	OpNop Opcode = iota
	OpQuote             // push the next code element literally
	OpNameLvalue        // push the current scope and the next element
	OpDot               // aggr key -> value
	OpDotKeep           // aggr key -> aggr key value
	OpDotRKeep          // aggr key -> value aggr key value
	OpAssign            // aggr key value ->
	OpAssignForValue    // aggr key value -> value
	OpAssignLocal       // aggr key value -> (assign into aggr itself)
	OpAssignLocalValue  // aggr key value -> value
	OpSwap              // a1 k1 a2 k2 ->
	OpSwapForValue      // a1 k1 a2 k2 -> new a1[k1]
	OpCall              // args nargs callee -> result
	OpColon             // obj key -> method
	OpBinop             // a b -> a op b
	OpBinopForTemp      // as OpBinop, result may be a scratch number
	OpMinus             // a -> -a
	OpNot               // a -> !a
	OpBitNot            // a -> ~a
	OpPlus              // a -> +a
	OpAt                // a -> atom of a
	OpMkptr             // aggr key -> ptr
	OpOpenPtr           // ptr -> aggr key
	OpUnptr             // ptr -> value
	OpPop               // a ->
	OpBool              // a -> 0 or 1
	OpAndAnd            // a; next element is the right hand code
	OpOrOr              // a; next element is the right hand code
	OpIf                // cond; next element is the then code
	OpIfElse            // cond; next two elements are the then and else code
	OpIfBreak           // cond; break out of the loop when false
	OpBreak             // leave the nearest loop or switch
	OpContinue          // restart the nearest loop
	OpLoop              // next elements are the body and its entry index
	OpRewind            // restart the current loop body
	OpLooper            // exec stack marker for a loop
	OpSwitch            // value; next elements are the case map and body
	OpSwitcher          // exec stack marker for a switch
	OpDefault           // case map key of the default label
	OpForall            // vaggr vkey kaggr kkey aggr; next element is the body
	OpReturn            // value; return from the current function
	OpOnerror           // next elements are the try and handler code
	OpCritsect          // next element is the guarded code
	OpWaitfor           // token; block until woken through token
)

var opNames = map[Opcode]string{
	OpNop: "nop", OpQuote: "quote", OpNameLvalue: "namelvalue", OpDot: "dot",
	OpDotKeep: "dotkeep", OpDotRKeep: "dotrkeep", OpAssign: "assign",
	OpAssignForValue: "assignforvalue", OpAssignLocal: "assignlocal",
	OpAssignLocalValue: "assignlocalforvalue", OpSwap: "swap",
	OpSwapForValue: "swapforvalue", OpCall: "call", OpColon: "colon",
	OpBinop: "binop", OpBinopForTemp: "binopfortemp", OpMinus: "minus",
	OpNot: "not", OpBitNot: "bitnot", OpPlus: "plus", OpAt: "at",
	OpMkptr: "mkptr", OpOpenPtr: "openptr", OpUnptr: "unptr", OpPop: "pop",
	OpBool: "bool", OpAndAnd: "andand", OpOrOr: "oror", OpIf: "if",
	OpIfElse: "ifelse", OpIfBreak: "ifbreak", OpBreak: "break",
	OpContinue: "continue", OpLoop: "loop", OpRewind: "rewind",
	OpLooper: "looper", OpSwitch: "switch", OpSwitcher: "switcher",
	OpDefault: "default", OpForall: "forall", OpReturn: "return",
	OpOnerror: "onerror", OpCritsect: "critsect", OpWaitfor: "waitfor",
}

func (c Opcode) String() string {
	if s, ok := opNames[c]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", uint8(c))
}

// Binary operator codes carried in Op.Code for OpBinop.
const (
	BinMul = iota
	BinDiv
	BinMod
	BinAdd
	BinSub
	BinShl
	BinShr
	BinLt
	BinGt
	BinLe
	BinGe
	BinEq
	BinNe
	BinMatch
	BinNoMatch
	BinExtract
	BinExtractAll
	BinAnd
	BinXor
	BinOr
	numBinops
)

// BinopNames gives the source spelling of each binary operator code.
var BinopNames = [numBinops]string{
	BinMul: "*", BinDiv: "/", BinMod: "%", BinAdd: "+", BinSub: "-",
	BinShl: "<<", BinShr: ">>", BinLt: "<", BinGt: ">", BinLe: "<=",
	BinGe: ">=", BinEq: "==", BinNe: "!=", BinMatch: "~", BinNoMatch: "!~",
	BinExtract: "~~", BinExtractAll: "~~~", BinAnd: "&", BinXor: "^", BinOr: "|",
}

// Op is an interned instruction.
type Op struct {
	Header
	Ecode Opcode
	Code  int
}

var opType = &Type{
	Name: "op",
	Hash: func(o Object) uint32 {
		op := o.(*Op)
		return uint32(op.Ecode)*2654435761 + uint32(op.Code)*40503
	},
	Equal: func(a, b Object) bool {
		x, y := a.(*Op), b.(*Op)
		return x.Ecode == y.Ecode && x.Code == y.Code
	},
	ObjName: func(vm *VM, o Object) string {
		op := o.(*Op)
		if op.Ecode == OpBinop || op.Ecode == OpBinopForTemp {
			return "op " + BinopNames[op.Code]
		}
		return "op " + op.Ecode.String()
	},
}

// NewOp returns the op atom for ecode and code with a new reference.
func (vm *VM) NewOp(ecode Opcode, code int) *Op {
	probe := Op{Header: Header{tag: TagOp}, Ecode: ecode, Code: code}
	if a, ok := vm.Probe(&probe); ok {
		a.Head().Incref()
		return a.(*Op)
	}
	op := &Op{Header: Header{tag: TagOp, leafz: 24}, Ecode: ecode, Code: code}
	vm.rego(op, 24)
	return vm.Atom(op, true).(*Op)
}

// Op returns the op atom for ecode and code without a new reference. The
// VM keeps every op it hands out alive.
func (vm *VM) Op(ecode Opcode, code int) *Op {
	key := int(ecode)<<8 | code
	if op, ok := vm.ops[key]; ok {
		return op
	}
	op := vm.NewOp(ecode, code)
	vm.ops[key] = op
	return op
}

// ---------------------------------------------------------------------------
// Interpreter-private markers
// ---------------------------------------------------------------------------

// PC is a cursor into a code array. PCs are pooled by exec stack depth.
type PC struct {
	Header
	Code *Array
	Next int
}

var pcType = &Type{
	Name: "pc",
	Mark: func(vm *VM, o Object) int {
		if pc := o.(*PC); pc.Code != nil {
			vm.Mark(pc.Code)
		}
		return 32
	},
}

// Src records the source position of the statement that follows it.
type Src struct {
	Header
	File *String
	Line int
}

var srcType = &Type{
	Name: "src",
	Mark: func(vm *VM, o Object) int {
		vm.Mark(o.(*Src).File)
		return 32
	},
	Hash: func(o Object) uint32 {
		s := o.(*Src)
		return s.File.hash + uint32(s.Line)*31
	},
	Equal: func(a, b Object) bool {
		x, y := a.(*Src), b.(*Src)
		return x.File == y.File && x.Line == y.Line
	},
}

// NewSrc returns the source marker atom for file and line.
func (vm *VM) NewSrc(file *String, line int) *Src {
	probe := Src{Header: Header{tag: TagSrc}, File: file, Line: line}
	if a, ok := vm.Probe(&probe); ok {
		a.Head().Incref()
		return a.(*Src)
	}
	s := &Src{Header: Header{tag: TagSrc}, File: file, Line: line}
	vm.rego(s, 32)
	return vm.Atom(s, true).(*Src)
}

// Catch flag bits.
const (
	catchEvalBase uint8 = 1 << iota // sentinel of an evaluate call
	catchCritsect                   // critical section frame
	catchFunc                       // function activation
)

// Catch is an exec stack frame recording the operand and scope depths to
// restore on unwind. A non-nil Handler makes it an error catcher.
type Catch struct {
	Header
	Handler *Array
	ODepth  int
	VDepth  int
	Flags   uint8
}

var catchType = &Type{
	Name: "catch",
	Mark: func(vm *VM, o Object) int {
		if c := o.(*Catch); c.Handler != nil {
			vm.Mark(c.Handler)
		}
		return 40
	},
}

// newCatch builds a frame born without an extra-owner reference; it is
// reachable only from the exec stack it is pushed on.
func (vm *VM) newCatch(handler *Array, odepth, vdepth int, flags uint8) *Catch {
	c := &Catch{Header: Header{tag: TagCatch}, Handler: handler, ODepth: odepth, VDepth: vdepth, Flags: flags}
	vm.rego(c, 40)
	c.nrefs = 0
	return c
}

// ParseSource supplies compiled statements to a Parse object.
type ParseSource interface {
	// Next compiles the next top-level statement. It returns a nil array
	// at end of input. The array carries a reference for the caller.
	Next(vm *VM) (*Array, error)
}

// Parse drives lazy compile-and-run of a module.
type Parse struct {
	Header
	Src  ParseSource
	File *File
}

var parseType = &Type{
	Name: "parse",
	Mark: func(vm *VM, o Object) int {
		if p := o.(*Parse); p.File != nil {
			vm.Mark(p.File)
		}
		return 48
	},
}

// NewParse wraps src.
func (vm *VM) NewParse(src ParseSource, f *File) *Parse {
	p := &Parse{Header: Header{tag: TagParse}, Src: src, File: f}
	vm.rego(p, 48)
	return p
}
