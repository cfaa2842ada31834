package vm

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"holybpf/pkg/bpf"
)

func runProgram(t *testing.T, ins []bpf.Instruction, cfg Config) *Result {
	t.Helper()
	res, err := New(&bpf.Program{Instructions: ins}).Run(cfg)
	require.NoError(t, err)
	return res
}

func requireFault(t *testing.T, ins []bpf.Instruction, cfg Config, kind FaultKind, pc int) {
	t.Helper()
	_, err := New(&bpf.Program{Instructions: ins}).Run(cfg)
	require.Error(t, err)

	var fault *Fault
	require.True(t, errors.As(err, &fault), "error %T is not a *Fault", err)
	require.Equal(t, kind, fault.Kind, "fault: %v", fault)
	require.Equal(t, pc, fault.PC, "fault: %v", fault)
}

func TestRunALU(t *testing.T) {
	tests := []struct {
		name     string
		ins      []bpf.Instruction
		expected int64
	}{
		{
			name: "AddImm",
			ins: []bpf.Instruction{
				{Opcode: bpf.OpMovImm, Dst: 0, Imm: 40},
				{Opcode: bpf.OpAddImm, Dst: 0, Imm: 2},
			},
			expected: 42,
		},
		{
			name: "SubReg",
			ins: []bpf.Instruction{
				{Opcode: bpf.OpMovImm, Dst: 0, Imm: 10},
				{Opcode: bpf.OpMovImm, Dst: 1, Imm: 4},
				{Opcode: bpf.OpSubReg, Dst: 0, Src: 1},
			},
			expected: 6,
		},
		{
			name: "MulDiv",
			ins: []bpf.Instruction{
				{Opcode: bpf.OpMovImm, Dst: 0, Imm: 7},
				{Opcode: bpf.OpMovImm, Dst: 1, Imm: 6},
				{Opcode: bpf.OpMulReg, Dst: 0, Src: 1},
				{Opcode: bpf.OpMovImm, Dst: 1, Imm: 2},
				{Opcode: bpf.OpDivReg, Dst: 0, Src: 1},
			},
			expected: 21,
		},
		{
			name: "Mod",
			ins: []bpf.Instruction{
				{Opcode: bpf.OpMovImm, Dst: 0, Imm: 17},
				{Opcode: bpf.OpMovImm, Dst: 1, Imm: 5},
				{Opcode: bpf.OpModReg, Dst: 0, Src: 1},
			},
			expected: 2,
		},
		{
			name: "Neg",
			ins: []bpf.Instruction{
				{Opcode: bpf.OpMovImm, Dst: 0, Imm: 42},
				{Opcode: bpf.OpNeg, Dst: 0},
			},
			expected: -42,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ins := append(tt.ins, bpf.Instruction{Opcode: bpf.OpExit})
			res := runProgram(t, ins, Config{})
			require.Equal(t, tt.expected, res.ExitCode)
		})
	}
}

func TestRunJumps(t *testing.T) {
	// jeq skips the mov that would clobber the result.
	ins := []bpf.Instruction{
		{Opcode: bpf.OpMovImm, Dst: 0, Imm: 1},
		{Opcode: bpf.OpJEQImm, Dst: 0, Imm: 1, Off: 1},
		{Opcode: bpf.OpMovImm, Dst: 0, Imm: 99},
		{Opcode: bpf.OpExit},
	}
	res := runProgram(t, ins, Config{})
	require.Equal(t, int64(1), res.ExitCode)
	require.Equal(t, uint64(3), res.Instructions)
}

func TestRunBackwardLoop(t *testing.T) {
	// r0 counts down from 5; the loop body runs exactly 5 times.
	ins := []bpf.Instruction{
		{Opcode: bpf.OpMovImm, Dst: 0, Imm: 5},
		{Opcode: bpf.OpMovImm, Dst: 1, Imm: 0},
		{Opcode: bpf.OpJEQImm, Dst: 0, Imm: 0, Off: 3}, // loop top
		{Opcode: bpf.OpAddImm, Dst: 0, Imm: -1},
		{Opcode: bpf.OpAddImm, Dst: 1, Imm: 1},
		{Opcode: bpf.OpJA, Off: -4},
		{Opcode: bpf.OpMovReg, Dst: 0, Src: 1},
		{Opcode: bpf.OpExit},
	}
	res := runProgram(t, ins, Config{})
	require.Equal(t, int64(5), res.ExitCode)
}

func TestRunStack(t *testing.T) {
	ins := []bpf.Instruction{
		{Opcode: bpf.OpMovImm, Dst: 1, Imm: 1234},
		{Opcode: bpf.OpStoreDW, Dst: bpf.RegFrame, Src: 1, Off: -8},
		{Opcode: bpf.OpLoadDW, Dst: 0, Src: bpf.RegFrame, Off: -8},
		{Opcode: bpf.OpExit},
	}
	res := runProgram(t, ins, Config{})
	require.Equal(t, int64(1234), res.ExitCode)
}

func TestRunInputMemory(t *testing.T) {
	ins := []bpf.Instruction{
		{Opcode: bpf.OpMovImm, Dst: 1, Imm: 0},
		{Opcode: bpf.OpLoadW, Dst: 0, Src: 1, Off: 4},
		{Opcode: bpf.OpExit},
	}
	input := []byte{0, 0, 0, 0, 0x39, 0x05, 0, 0} // 1337 at offset 4, LE
	res := runProgram(t, ins, Config{Input: input})
	require.Equal(t, int64(1337), res.ExitCode)
}

func TestRunNarrowLoads(t *testing.T) {
	ins := []bpf.Instruction{
		{Opcode: bpf.OpMovImm, Dst: 1, Imm: 0xff},
		{Opcode: bpf.OpStoreDW, Dst: bpf.RegFrame, Src: 1, Off: -8},
		{Opcode: bpf.OpLoadB, Dst: 0, Src: bpf.RegFrame, Off: -8},
		{Opcode: bpf.OpExit},
	}
	res := runProgram(t, ins, Config{})
	require.Equal(t, int64(0xff), res.ExitCode)
}

func TestRunFaults(t *testing.T) {
	tests := []struct {
		name string
		ins  []bpf.Instruction
		kind FaultKind
		pc   int
	}{
		{
			name: "DivideByZero",
			ins: []bpf.Instruction{
				{Opcode: bpf.OpMovImm, Dst: 0, Imm: 1},
				{Opcode: bpf.OpMovImm, Dst: 1, Imm: 0},
				{Opcode: bpf.OpDivReg, Dst: 0, Src: 1},
				{Opcode: bpf.OpExit},
			},
			kind: FaultDivideByZero,
			pc:   2,
		},
		{
			name: "ModuloByZero",
			ins: []bpf.Instruction{
				{Opcode: bpf.OpMovImm, Dst: 0, Imm: 1},
				{Opcode: bpf.OpMovImm, Dst: 1, Imm: 0},
				{Opcode: bpf.OpModReg, Dst: 0, Src: 1},
				{Opcode: bpf.OpExit},
			},
			kind: FaultDivideByZero,
			pc:   2,
		},
		{
			name: "StackOverflow",
			ins: []bpf.Instruction{
				{Opcode: bpf.OpStoreDW, Dst: bpf.RegFrame, Src: 0, Off: -(StackSize + 8)},
				{Opcode: bpf.OpExit},
			},
			kind: FaultStackOverflow,
			pc:   0,
		},
		{
			name: "StackUnderflow",
			ins: []bpf.Instruction{
				{Opcode: bpf.OpLoadDW, Dst: 0, Src: bpf.RegFrame, Off: 8},
				{Opcode: bpf.OpExit},
			},
			kind: FaultStackUnderflow,
			pc:   0,
		},
		{
			name: "OutOfBounds",
			ins: []bpf.Instruction{
				{Opcode: bpf.OpMovImm, Dst: 1, Imm: 50000},
				{Opcode: bpf.OpLoadDW, Dst: 0, Src: 1, Off: 0},
				{Opcode: bpf.OpExit},
			},
			kind: FaultOutOfBounds,
			pc:   1,
		},
		{
			// A negative register value is a wrapped unsigned address;
			// it must fault, never panic in the address classifier.
			name: "NegativeAddress",
			ins: []bpf.Instruction{
				{Opcode: bpf.OpMovImm, Dst: 1, Imm: -4},
				{Opcode: bpf.OpLoadDW, Dst: 0, Src: 1, Off: 0},
				{Opcode: bpf.OpExit},
			},
			kind: FaultOutOfBounds,
			pc:   1,
		},
		{
			// Far above the frame zone is not an underflow, just a bad
			// address.
			name: "FarAboveStack",
			ins: []bpf.Instruction{
				{Opcode: bpf.OpMovImm, Dst: 1, Imm: 0x5000000},
				{Opcode: bpf.OpLoadDW, Dst: 0, Src: 1, Off: 0},
				{Opcode: bpf.OpExit},
			},
			kind: FaultOutOfBounds,
			pc:   1,
		},
		{
			name: "WriteToFramePointer",
			ins: []bpf.Instruction{
				{Opcode: bpf.OpMovImm, Dst: bpf.RegFrame, Imm: 0},
				{Opcode: bpf.OpExit},
			},
			kind: FaultInvalidRegister,
			pc:   0,
		},
		{
			name: "UnknownOpcode",
			ins: []bpf.Instruction{
				{Opcode: 0x06},
				{Opcode: bpf.OpExit},
			},
			kind: FaultUnknownOpcode,
			pc:   0,
		},
		{
			name: "UnknownHelper",
			ins: []bpf.Instruction{
				{Opcode: bpf.OpCall, Imm: 99},
				{Opcode: bpf.OpExit},
			},
			kind: FaultUnknownHelper,
			pc:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireFault(t, tt.ins, Config{}, tt.kind, tt.pc)
		})
	}
}

func TestRunBudgetExhausted(t *testing.T) {
	ins := []bpf.Instruction{
		{Opcode: bpf.OpMovImm, Dst: 0, Imm: 1},
		{Opcode: bpf.OpJA, Off: -2},
		{Opcode: bpf.OpExit},
	}
	_, err := New(&bpf.Program{Instructions: ins}).Run(Config{MaxInstructions: 100})

	var fault *Fault
	require.True(t, errors.As(err, &fault))
	require.Equal(t, FaultBudgetExhausted, fault.Kind)
	require.Contains(t, fault.Error(), "budget 100")
}

func TestRunTracePrintk(t *testing.T) {
	prog := &bpf.Program{
		Strings: []string{"balance=%d fee=%d\n"},
		Instructions: []bpf.Instruction{
			{Opcode: bpf.OpMovImm, Dst: 1, Imm: 0},
			{Opcode: bpf.OpMovImm, Dst: 2, Imm: 900},
			{Opcode: bpf.OpMovImm, Dst: 3, Imm: 12},
			{Opcode: bpf.OpCall, Imm: int32(bpf.HelperTracePrintk)},
			{Opcode: bpf.OpExit},
		},
	}

	var out bytes.Buffer
	res, err := New(prog).Run(Config{Output: &out})
	require.NoError(t, err)

	require.Equal(t, []string{"balance=900 fee=12\n"}, res.Log)
	require.Equal(t, "balance=900 fee=12\n", out.String())
	// r0 carries the byte count produced by the helper.
	require.Equal(t, int64(len("balance=900 fee=12\n")), res.ExitCode)
}

func TestRunTracePrintkBadStringIndex(t *testing.T) {
	prog := &bpf.Program{
		Instructions: []bpf.Instruction{
			{Opcode: bpf.OpMovImm, Dst: 1, Imm: 3},
			{Opcode: bpf.OpCall, Imm: int32(bpf.HelperTracePrintk)},
			{Opcode: bpf.OpExit},
		},
	}
	_, err := New(prog).Run(Config{})

	var fault *Fault
	require.True(t, errors.As(err, &fault))
	require.Equal(t, FaultOutOfBounds, fault.Kind)
	require.Equal(t, 1, fault.PC)
}

func TestRunComputeUnitsWeighted(t *testing.T) {
	// Costs: mov 1, store 2, load 2, exit 1.
	ins := []bpf.Instruction{
		{Opcode: bpf.OpMovImm, Dst: 1, Imm: 7},
		{Opcode: bpf.OpStoreDW, Dst: bpf.RegFrame, Src: 1, Off: -8},
		{Opcode: bpf.OpLoadDW, Dst: 0, Src: bpf.RegFrame, Off: -8},
		{Opcode: bpf.OpExit},
	}
	res := runProgram(t, ins, Config{})
	require.Equal(t, uint64(4), res.Instructions)
	require.Equal(t, uint64(6), res.ComputeUnits)
}

func TestRunStateIsolation(t *testing.T) {
	// Two runs of the same VM must not see each other's stack.
	ins := []bpf.Instruction{
		{Opcode: bpf.OpLoadDW, Dst: 0, Src: bpf.RegFrame, Off: -8},
		{Opcode: bpf.OpAddImm, Dst: 0, Imm: 1},
		{Opcode: bpf.OpStoreDW, Dst: bpf.RegFrame, Src: 0, Off: -8},
		{Opcode: bpf.OpExit},
	}
	m := New(&bpf.Program{Instructions: ins})

	first, err := m.Run(Config{})
	require.NoError(t, err)
	second, err := m.Run(Config{})
	require.NoError(t, err)

	require.Equal(t, int64(1), first.ExitCode)
	require.Equal(t, int64(1), second.ExitCode)
}

func TestFormatTrace(t *testing.T) {
	tests := []struct {
		format   string
		args     []int64
		expected string
	}{
		{"plain", nil, "plain"},
		{"x=%d", []int64{5}, "x=5"},
		{"%d+%d=%d", []int64{1, 2, 3}, "1+2=3"},
		{"100%% of %d", []int64{7}, "100% of 7"},
		{"missing %d %d", []int64{1}, "missing 1 %d"},
		{"trailing %", nil, "trailing %"},
		{"%x is literal", []int64{1}, "%x is literal"},
	}

	for _, tt := range tests {
		require.Equal(t, tt.expected, formatTrace(tt.format, tt.args), "format %q", tt.format)
	}
}
