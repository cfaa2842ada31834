// Package vm executes compiled BPF programs for testing. It is an
// interpreter with a fixed stack window, byte-addressable input memory and
// an instruction budget; it is not a loader or a sandbox.
package vm

import (
	"fmt"
	"io"

	"holybpf/pkg/bpf"
)

// Memory layout constants. The stack is addressed through r10, which is
// initialized to StackTop and never written by programs. General input
// memory starts at address 0 and never overlaps the frame zone.
const (
	StackTop  = 0x100000 // r10 at entry
	StackSize = 512      // bytes below StackTop usable as frame

	// frameZone and frameCeiling bracket the address band attributed to
	// the frame pointer. A 16-bit offset from r10 always lands inside it,
	// so an access here that misses the stack window is an overflow or
	// underflow. Anything above the ceiling is plain out-of-bounds.
	frameZone    = StackTop - 0x10000
	frameCeiling = StackTop + 0x10000

	stackBase = StackTop - StackSize
)

// Defaults applied by Config.withDefaults.
const (
	DefaultMaxInstructions = 10000
	DefaultMemSize         = 4096
)

// FaultKind discriminates execution faults.
type FaultKind int

const (
	FaultInvalidRegister FaultKind = iota
	FaultStackOverflow
	FaultStackUnderflow
	FaultOutOfBounds
	FaultDivideByZero
	FaultUnknownOpcode
	FaultUnknownHelper
	FaultBudgetExhausted
)

var faultNames = map[FaultKind]string{
	FaultInvalidRegister: "invalid register",
	FaultStackOverflow:   "stack overflow",
	FaultStackUnderflow:  "stack underflow",
	FaultOutOfBounds:     "out-of-bounds memory access",
	FaultDivideByZero:    "division by zero",
	FaultUnknownOpcode:   "unknown opcode",
	FaultUnknownHelper:   "unknown helper",
	FaultBudgetExhausted: "instruction budget exhausted",
}

func (k FaultKind) String() string { return faultNames[k] }

// Fault is an execution error. PC is the index of the faulting
// instruction in the program, not a byte offset.
type Fault struct {
	Kind   FaultKind
	PC     int
	Detail string
}

func (f *Fault) Error() string {
	if f.Detail != "" {
		return fmt.Sprintf("vm: %s at instruction %d: %s", f.Kind, f.PC, f.Detail)
	}
	return fmt.Sprintf("vm: %s at instruction %d", f.Kind, f.PC)
}

// Config parameterizes one run. The zero value gets the defaults filled
// in: a 10000-instruction budget, 4 KiB of input memory, discarded output.
type Config struct {
	MaxInstructions uint64
	MemSize         int
	Input           []byte    // copied into memory at address 0
	Output          io.Writer // helper output sink; nil discards
}

func (c Config) withDefaults() Config {
	if c.MaxInstructions == 0 {
		c.MaxInstructions = DefaultMaxInstructions
	}
	if c.MemSize == 0 {
		c.MemSize = DefaultMemSize
	}
	if c.Output == nil {
		c.Output = io.Discard
	}
	return c
}

// Result reports a completed run.
type Result struct {
	ExitCode     int64 // r0 at exit
	Instructions uint64
	ComputeUnits uint64 // weighted cost, see costOf
	Log          []string
}

// VM holds the loaded program. All mutable run state lives in runState,
// so one VM can execute any number of independent runs.
type VM struct {
	prog    *bpf.Program
	helpers map[bpf.HelperID]helperFunc
}

func New(prog *bpf.Program) *VM {
	m := &VM{prog: prog}
	m.helpers = map[bpf.HelperID]helperFunc{
		bpf.HelperTracePrintk: tracePrintk,
	}
	return m
}

// runState is the per-run machine state. Nothing survives across runs.
type runState struct {
	regs  [bpf.NumRegs]int64
	stack [StackSize]byte
	mem   []byte
	pc    int
	count uint64
	units uint64
	log   []string
	out   io.Writer
	prog  *bpf.Program
}

// costOf weights instructions for the compute-unit counter. Memory
// traffic and helper calls dominate real execution cost.
func costOf(ins bpf.Instruction) uint64 {
	switch ins.Class() {
	case bpf.ClassLDX, bpf.ClassSTX, bpf.ClassLD, bpf.ClassST:
		return 2
	case bpf.ClassJMP:
		if ins.Opcode&0xf0 == bpf.JmpCall {
			return 10
		}
		return 1
	default:
		return 1
	}
}

// Run executes the program from instruction 0 until exit, a fault or
// budget exhaustion.
func (m *VM) Run(cfg Config) (*Result, error) {
	cfg = cfg.withDefaults()

	st := &runState{
		mem:  make([]byte, cfg.MemSize),
		out:  cfg.Output,
		prog: m.prog,
	}
	copy(st.mem, cfg.Input)
	st.regs[bpf.RegFrame] = StackTop

	ins := m.prog.Instructions
	for {
		if st.pc < 0 || st.pc >= len(ins) {
			return nil, &Fault{Kind: FaultOutOfBounds, PC: st.pc, Detail: "program counter outside program"}
		}
		if st.count >= cfg.MaxInstructions {
			return nil, &Fault{Kind: FaultBudgetExhausted, PC: st.pc,
				Detail: fmt.Sprintf("budget %d", cfg.MaxInstructions)}
		}

		in := ins[st.pc]
		st.count++
		st.units += costOf(in)

		done, err := m.step(st, in)
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
	}

	return &Result{
		ExitCode:     st.regs[bpf.RegRet],
		Instructions: st.count,
		ComputeUnits: st.units,
		Log:          st.log,
	}, nil
}

// step executes one instruction, dispatching on the opcode class. It
// returns done=true on exit.
func (m *VM) step(st *runState, in bpf.Instruction) (bool, error) {
	switch in.Class() {
	case bpf.ClassALU64:
		return false, m.execALU(st, in, false)
	case bpf.ClassALU:
		return false, m.execALU(st, in, true)
	case bpf.ClassJMP:
		return m.execJMP(st, in)
	case bpf.ClassLDX:
		return false, m.execLoad(st, in)
	case bpf.ClassSTX:
		return false, m.execStore(st, in)
	default:
		return false, &Fault{Kind: FaultUnknownOpcode, PC: st.pc,
			Detail: fmt.Sprintf("opcode 0x%02x", in.Opcode)}
	}
}

// checkReg validates a register index and rejects writes to the frame
// pointer.
func (m *VM) checkReg(st *runState, r uint8, write bool) error {
	if int(r) >= bpf.NumRegs {
		return &Fault{Kind: FaultInvalidRegister, PC: st.pc, Detail: fmt.Sprintf("r%d", r)}
	}
	if write && r == bpf.RegFrame {
		return &Fault{Kind: FaultInvalidRegister, PC: st.pc, Detail: "r10 is read-only"}
	}
	return nil
}

func (m *VM) execALU(st *runState, in bpf.Instruction, wide32 bool) error {
	if err := m.checkReg(st, in.Dst, true); err != nil {
		return err
	}

	var src int64
	if in.Opcode&bpf.SrcX != 0 {
		if err := m.checkReg(st, in.Src, false); err != nil {
			return err
		}
		src = st.regs[in.Src]
	} else {
		src = int64(in.Imm)
	}

	dst := st.regs[in.Dst]
	var out int64

	switch in.Opcode & 0xf0 {
	case bpf.ALUAdd:
		out = dst + src
	case bpf.ALUSub:
		out = dst - src
	case bpf.ALUMul:
		out = dst * src
	case bpf.ALUDiv:
		if src == 0 {
			return &Fault{Kind: FaultDivideByZero, PC: st.pc}
		}
		out = int64(uint64(dst) / uint64(src))
	case bpf.ALUMod:
		if src == 0 {
			return &Fault{Kind: FaultDivideByZero, PC: st.pc, Detail: "modulo"}
		}
		out = int64(uint64(dst) % uint64(src))
	case bpf.ALUOr:
		out = dst | src
	case bpf.ALUAnd:
		out = dst & src
	case bpf.ALUXor:
		out = dst ^ src
	case bpf.ALULsh:
		out = int64(uint64(dst) << (uint64(src) & 63))
	case bpf.ALURsh:
		out = int64(uint64(dst) >> (uint64(src) & 63))
	case bpf.ALUNeg:
		out = -dst
	case bpf.ALUMov:
		out = src
	default:
		return &Fault{Kind: FaultUnknownOpcode, PC: st.pc,
			Detail: fmt.Sprintf("alu op 0x%02x", in.Opcode)}
	}

	if wide32 {
		out = int64(uint32(out))
	}
	st.regs[in.Dst] = out
	st.pc++
	return nil
}

func (m *VM) execJMP(st *runState, in bpf.Instruction) (bool, error) {
	op := in.Opcode & 0xf0

	switch op {
	case bpf.JmpExit:
		return true, nil

	case bpf.JmpCall:
		id := bpf.HelperID(in.Imm)
		fn, ok := m.helpers[id]
		if !ok {
			return false, &Fault{Kind: FaultUnknownHelper, PC: st.pc,
				Detail: fmt.Sprintf("helper %d", in.Imm)}
		}
		if err := fn(st); err != nil {
			return false, err
		}
		st.pc++
		return false, nil

	case bpf.JmpJA:
		st.pc += 1 + int(in.Off)
		return false, nil
	}

	if err := m.checkReg(st, in.Dst, false); err != nil {
		return false, err
	}
	dst := uint64(st.regs[in.Dst])

	var src uint64
	if in.Opcode&bpf.SrcX != 0 {
		if err := m.checkReg(st, in.Src, false); err != nil {
			return false, err
		}
		src = uint64(st.regs[in.Src])
	} else {
		src = uint64(int64(in.Imm))
	}

	var taken bool
	switch op {
	case bpf.JmpJEQ:
		taken = dst == src
	case bpf.JmpJNE:
		taken = dst != src
	case bpf.JmpJGT:
		taken = dst > src
	case bpf.JmpJGE:
		taken = dst >= src
	case bpf.JmpJLT:
		taken = dst < src
	case bpf.JmpJLE:
		taken = dst <= src
	default:
		return false, &Fault{Kind: FaultUnknownOpcode, PC: st.pc,
			Detail: fmt.Sprintf("jump op 0x%02x", in.Opcode)}
	}

	if taken {
		st.pc += 1 + int(in.Off)
	} else {
		st.pc++
	}
	return false, nil
}

// resolve maps an absolute address to the backing byte slice. Frame-zone
// addresses that miss the stack window fault as overflow or underflow so
// the failure mode names the actual mistake; everything else that misses
// input memory is plain out-of-bounds. The wrap check comes first: a
// negative register value arrives here as a huge unsigned address whose
// end wraps past zero, and must never reach the slicing arms.
func (st *runState) resolve(addr uint64, size int) ([]byte, *Fault) {
	end := addr + uint64(size)
	if end < addr || addr >= frameCeiling {
		return nil, &Fault{Kind: FaultOutOfBounds, PC: st.pc,
			Detail: fmt.Sprintf("address 0x%x size %d", addr, size)}
	}

	switch {
	case addr >= stackBase && end <= StackTop:
		return st.stack[addr-stackBase : end-stackBase], nil
	case addr >= StackTop || (addr >= stackBase && end > StackTop):
		return nil, &Fault{Kind: FaultStackUnderflow, PC: st.pc,
			Detail: fmt.Sprintf("address 0x%x above frame pointer", addr)}
	case addr >= frameZone:
		return nil, &Fault{Kind: FaultStackOverflow, PC: st.pc,
			Detail: fmt.Sprintf("address 0x%x below %d-byte stack window", addr, StackSize)}
	case end <= uint64(len(st.mem)):
		return st.mem[addr:end], nil
	default:
		return nil, &Fault{Kind: FaultOutOfBounds, PC: st.pc,
			Detail: fmt.Sprintf("address 0x%x size %d", addr, size)}
	}
}

func sizeOf(st *runState, in bpf.Instruction) (int, *Fault) {
	switch in.Opcode & 0x18 {
	case bpf.SizeB:
		return 1, nil
	case bpf.SizeH:
		return 2, nil
	case bpf.SizeW:
		return 4, nil
	case bpf.SizeDW:
		return 8, nil
	}
	return 0, &Fault{Kind: FaultUnknownOpcode, PC: st.pc,
		Detail: fmt.Sprintf("opcode 0x%02x", in.Opcode)}
}

func (m *VM) execLoad(st *runState, in bpf.Instruction) error {
	if err := m.checkReg(st, in.Dst, true); err != nil {
		return err
	}
	if err := m.checkReg(st, in.Src, false); err != nil {
		return err
	}
	size, fault := sizeOf(st, in)
	if fault != nil {
		return fault
	}

	addr := uint64(st.regs[in.Src] + int64(in.Off))
	buf, fault := st.resolve(addr, size)
	if fault != nil {
		return fault
	}

	var val uint64
	for i := size - 1; i >= 0; i-- {
		val = val<<8 | uint64(buf[i])
	}
	st.regs[in.Dst] = int64(val)
	st.pc++
	return nil
}

func (m *VM) execStore(st *runState, in bpf.Instruction) error {
	// Dst is the address base here, so storing through r10 is legal;
	// only the register value itself is never modified.
	if int(in.Dst) >= bpf.NumRegs {
		return &Fault{Kind: FaultInvalidRegister, PC: st.pc, Detail: fmt.Sprintf("r%d", in.Dst)}
	}
	if err := m.checkReg(st, in.Src, false); err != nil {
		return err
	}
	size, fault := sizeOf(st, in)
	if fault != nil {
		return fault
	}

	addr := uint64(st.regs[in.Dst] + int64(in.Off))
	buf, fault := st.resolve(addr, size)
	if fault != nil {
		return fault
	}

	val := uint64(st.regs[in.Src])
	for i := 0; i < size; i++ {
		buf[i] = byte(val)
		val >>= 8
	}
	st.pc++
	return nil
}
