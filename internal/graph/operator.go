// Package graph implements the expression-graph builder: a hash-consed DAG
// of typed expression nodes, with forward-reference stubs and a symbol
// table. The analyzer (package analyzer) and the static evaluator (package
// eval) operate read-only over the graph this package builds.
package graph

// Op is the closed operator tag set. It is never extended at runtime: the
// analyzer and evaluator switch over it exhaustively.
type Op int

const (
	OpNil Op = iota
	OpControl
	OpConstant
	OpLookupTable
	OpApplyLookup
	OpTime

	OpInteg
	OpInitial
	OpActiveInitial
	OpDelayFixed

	OpPulse
	OpPulseTrain
	OpStep
	OpRamp
	OpRandomUniform

	OpPlus
	OpMinus
	OpMult
	OpDiv
	OpUMinus
	OpPower
	OpLog
	OpModulo
	OpMin
	OpMax
	OpSqrt
	OpExp
	OpLn
	OpAbs
	OpInteger
	OpSin
	OpCos
	OpTan
	OpArcsin
	OpArccos
	OpArctan
	OpSinh
	OpCosh
	OpTanh
	OpNot
	OpAnd
	OpOr
	OpEq
	OpNeq
	OpG
	OpGe
	OpL
	OpLe

	OpIf
)

var opNames = map[Op]string{
	OpNil: "NIL", OpControl: "CONTROL", OpConstant: "CONSTANT",
	OpLookupTable: "LOOKUP_TABLE", OpApplyLookup: "APPLY_LOOKUP", OpTime: "TIME",
	OpInteg: "INTEG", OpInitial: "INITIAL", OpActiveInitial: "ACTIVE_INITIAL",
	OpDelayFixed: "DELAY_FIXED",
	OpPulse:      "PULSE", OpPulseTrain: "PULSE_TRAIN", OpStep: "STEP", OpRamp: "RAMP",
	OpRandomUniform: "RANDOM_UNIFORM",
	OpPlus:          "PLUS", OpMinus: "MINUS", OpMult: "MULT", OpDiv: "DIV",
	OpUMinus: "UMINUS", OpPower: "POWER", OpLog: "LOG", OpModulo: "MODULO",
	OpMin: "MIN", OpMax: "MAX", OpSqrt: "SQRT", OpExp: "EXP", OpLn: "LN",
	OpAbs: "ABS", OpInteger: "INTEGER", OpSin: "SIN", OpCos: "COS", OpTan: "TAN",
	OpArcsin: "ARCSIN", OpArccos: "ARCCOS", OpArctan: "ARCTAN",
	OpSinh: "SINH", OpCosh: "COSH", OpTanh: "TANH",
	OpNot: "NOT", OpAnd: "AND", OpOr: "OR",
	OpEq: "EQ", OpNeq: "NEQ", OpG: "G", OpGe: "GE", OpL: "L", OpLe: "LE",
	OpIf: "IF",
}

func (o Op) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return "UNKNOWN_OP"
}

// symmetricOps are commutative in their two operands: (a,b) ≡ (b,a).
var symmetricOps = map[Op]bool{
	OpPlus: true, OpMult: true, OpMin: true, OpMax: true,
	OpEq: true, OpNeq: true, OpAnd: true, OpOr: true,
}

// unaryOps take exactly one child.
var unaryOps = map[Op]bool{
	OpUMinus: true, OpSqrt: true, OpExp: true, OpLn: true, OpAbs: true,
	OpInteger: true, OpSin: true, OpCos: true, OpTan: true,
	OpArcsin: true, OpArccos: true, OpArctan: true,
	OpSinh: true, OpCosh: true, OpTanh: true, OpNot: true, OpInitial: true,
}
