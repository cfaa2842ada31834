package bpf

// Instruction classes occupy the low 3 bits of every opcode.
const (
	ClassLD    uint8 = 0x00
	ClassLDX   uint8 = 0x01
	ClassST    uint8 = 0x02
	ClassSTX   uint8 = 0x03
	ClassALU   uint8 = 0x04
	ClassJMP   uint8 = 0x05
	ClassALU64 uint8 = 0x07
)

// Source operand selector for ALU and JMP classes (bit 3).
const (
	SrcK uint8 = 0x00 // immediate
	SrcX uint8 = 0x08 // register
)

// ALU operations (high 4 bits, ALU and ALU64 classes).
const (
	ALUAdd uint8 = 0x00
	ALUSub uint8 = 0x10
	ALUMul uint8 = 0x20
	ALUDiv uint8 = 0x30
	ALUOr  uint8 = 0x40
	ALUAnd uint8 = 0x50
	ALULsh uint8 = 0x60
	ALURsh uint8 = 0x70
	ALUNeg uint8 = 0x80
	ALUMod uint8 = 0x90
	ALUXor uint8 = 0xa0
	ALUMov uint8 = 0xb0
)

// Jump operations (high 4 bits, JMP class).
const (
	JmpJA   uint8 = 0x00
	JmpJEQ  uint8 = 0x10
	JmpJGT  uint8 = 0x20
	JmpJGE  uint8 = 0x30
	JmpJNE  uint8 = 0x50
	JmpCall uint8 = 0x80
	JmpExit uint8 = 0x90
	JmpJLT  uint8 = 0xa0
	JmpJLE  uint8 = 0xb0
)

// Memory access width (bits 3-4, LD/LDX/ST/STX classes).
const (
	SizeW  uint8 = 0x00 // 4 bytes
	SizeH  uint8 = 0x08 // 2 bytes
	SizeB  uint8 = 0x10 // 1 byte
	SizeDW uint8 = 0x18 // 8 bytes
)

// Mode (high 3 bits, memory classes). Only MEM is generated.
const ModeMEM uint8 = 0x60

// Composed opcodes used by the code generator and tests.
const (
	OpMovImm  = ClassALU64 | ALUMov | SrcK // 0xb7  dst = imm
	OpMovReg  = ClassALU64 | ALUMov | SrcX // 0xbf  dst = src
	OpAddImm  = ClassALU64 | ALUAdd | SrcK // 0x07  dst += imm
	OpAddReg  = ClassALU64 | ALUAdd | SrcX // 0x0f  dst += src
	OpSubReg  = ClassALU64 | ALUSub | SrcX // 0x1f  dst -= src
	OpMulReg  = ClassALU64 | ALUMul | SrcX // 0x2f  dst *= src
	OpDivReg  = ClassALU64 | ALUDiv | SrcX // 0x3f  dst /= src
	OpModReg  = ClassALU64 | ALUMod | SrcX // 0x9f  dst %= src
	OpAndReg  = ClassALU64 | ALUAnd | SrcX // 0x5f  dst &= src
	OpOrReg   = ClassALU64 | ALUOr | SrcX  // 0x4f  dst |= src
	OpXorReg  = ClassALU64 | ALUXor | SrcX // 0xaf  dst ^= src
	OpNeg     = ClassALU64 | ALUNeg        // 0x87  dst = -dst
	OpJA      = ClassJMP | JmpJA           // 0x05  pc += off
	OpJEQImm  = ClassJMP | JmpJEQ | SrcK   // 0x15  if dst == imm: pc += off
	OpJNEImm  = ClassJMP | JmpJNE | SrcK   // 0x55  if dst != imm: pc += off
	OpJEQReg  = ClassJMP | JmpJEQ | SrcX   // 0x1d  if dst == src: pc += off
	OpJNEReg  = ClassJMP | JmpJNE | SrcX   // 0x5d  if dst != src: pc += off
	OpJLTReg  = ClassJMP | JmpJLT | SrcX   // 0xad  if dst < src: pc += off
	OpJLEReg  = ClassJMP | JmpJLE | SrcX   // 0xbd  if dst <= src: pc += off
	OpCall    = ClassJMP | JmpCall         // 0x85  helper call, imm = helper id
	OpExit    = ClassJMP | JmpExit         // 0x95
	OpLoadDW  = ClassLDX | ModeMEM | SizeDW // 0x79  dst = *(u64*)(src + off)
	OpLoadW   = ClassLDX | ModeMEM | SizeW  // 0x61
	OpLoadH   = ClassLDX | ModeMEM | SizeH  // 0x69
	OpLoadB   = ClassLDX | ModeMEM | SizeB  // 0x71
	OpStoreDW = ClassSTX | ModeMEM | SizeDW // 0x7b  *(u64*)(dst + off) = src
	OpStoreW  = ClassSTX | ModeMEM | SizeW  // 0x63
	OpStoreH  = ClassSTX | ModeMEM | SizeH  // 0x6b
	OpStoreB  = ClassSTX | ModeMEM | SizeB  // 0x73
)

// Register conventions shared by the code generator and the VM.
const (
	RegRet   uint8 = 0  // r0: expression results and exit code
	RegArg1  uint8 = 1  // r1-r5: helper call arguments, also scratch
	RegArg5  uint8 = 5
	RegFrame uint8 = 10 // r10: read-only frame pointer
	NumRegs        = 11
)

// HelperID identifies a host-provided helper function. Keeping this a
// dedicated type makes a compiler/VM numbering mismatch a compile error
// instead of a runtime "unknown helper" fault.
type HelperID int32

const (
	// HelperTracePrintk formats r2..r5 against the string-table entry
	// indexed by r1 and writes the result to the host log.
	HelperTracePrintk HelperID = 6
)

func (h HelperID) String() string {
	switch h {
	case HelperTracePrintk:
		return "trace_printk"
	default:
		return "unknown"
	}
}
