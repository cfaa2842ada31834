package bpf

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// InstructionSize is the fixed width of one encoded instruction in bytes.
const InstructionSize = 8

// Instruction is one fixed-width BPF instruction.
//
// Encoded layout (little-endian):
//
//	byte 0    opcode
//	byte 1    dst register (low nibble) | src register (high nibble)
//	bytes 2-3 signed 16-bit offset
//	bytes 4-7 signed 32-bit immediate
type Instruction struct {
	Opcode uint8
	Dst    uint8
	Src    uint8
	Off    int16
	Imm    int32
}

// Encode serializes the instruction into its 8-byte wire form.
func (ins Instruction) Encode() [InstructionSize]byte {
	var b [InstructionSize]byte
	b[0] = ins.Opcode
	b[1] = (ins.Dst & 0x0f) | ((ins.Src & 0x0f) << 4)
	binary.LittleEndian.PutUint16(b[2:4], uint16(ins.Off))
	binary.LittleEndian.PutUint32(b[4:8], uint32(ins.Imm))
	return b
}

// DecodeInstruction reads one instruction from the first 8 bytes of b.
func DecodeInstruction(b []byte) (Instruction, error) {
	if len(b) < InstructionSize {
		return Instruction{}, fmt.Errorf("truncated instruction: %d bytes", len(b))
	}
	return Instruction{
		Opcode: b[0],
		Dst:    b[1] & 0x0f,
		Src:    (b[1] >> 4) & 0x0f,
		Off:    int16(binary.LittleEndian.Uint16(b[2:4])),
		Imm:    int32(binary.LittleEndian.Uint32(b[4:8])),
	}, nil
}

// Decode parses a whole instruction stream. The input length must be a
// multiple of InstructionSize.
func Decode(b []byte) ([]Instruction, error) {
	if len(b)%InstructionSize != 0 {
		return nil, fmt.Errorf("bytecode length %d is not a multiple of %d", len(b), InstructionSize)
	}
	ins := make([]Instruction, 0, len(b)/InstructionSize)
	for off := 0; off < len(b); off += InstructionSize {
		i, err := DecodeInstruction(b[off : off+InstructionSize])
		if err != nil {
			return nil, err
		}
		ins = append(ins, i)
	}
	return ins, nil
}

// Class returns the instruction class bits of the opcode.
func (ins Instruction) Class() uint8 { return ins.Opcode & 0x07 }

// String renders the instruction in a readable assembly-like form.
func (ins Instruction) String() string {
	switch ins.Opcode {
	case OpMovImm:
		return fmt.Sprintf("mov   r%d, %d", ins.Dst, ins.Imm)
	case OpMovReg:
		return fmt.Sprintf("mov   r%d, r%d", ins.Dst, ins.Src)
	case OpAddImm:
		return fmt.Sprintf("add   r%d, %d", ins.Dst, ins.Imm)
	case OpAddReg:
		return fmt.Sprintf("add   r%d, r%d", ins.Dst, ins.Src)
	case OpSubReg:
		return fmt.Sprintf("sub   r%d, r%d", ins.Dst, ins.Src)
	case OpMulReg:
		return fmt.Sprintf("mul   r%d, r%d", ins.Dst, ins.Src)
	case OpDivReg:
		return fmt.Sprintf("div   r%d, r%d", ins.Dst, ins.Src)
	case OpModReg:
		return fmt.Sprintf("mod   r%d, r%d", ins.Dst, ins.Src)
	case OpAndReg:
		return fmt.Sprintf("and   r%d, r%d", ins.Dst, ins.Src)
	case OpOrReg:
		return fmt.Sprintf("or    r%d, r%d", ins.Dst, ins.Src)
	case OpXorReg:
		return fmt.Sprintf("xor   r%d, r%d", ins.Dst, ins.Src)
	case OpNeg:
		return fmt.Sprintf("neg   r%d", ins.Dst)
	case OpJA:
		return fmt.Sprintf("ja    %+d", ins.Off)
	case OpJEQImm:
		return fmt.Sprintf("jeq   r%d, %d, %+d", ins.Dst, ins.Imm, ins.Off)
	case OpJNEImm:
		return fmt.Sprintf("jne   r%d, %d, %+d", ins.Dst, ins.Imm, ins.Off)
	case OpJEQReg:
		return fmt.Sprintf("jeq   r%d, r%d, %+d", ins.Dst, ins.Src, ins.Off)
	case OpJNEReg:
		return fmt.Sprintf("jne   r%d, r%d, %+d", ins.Dst, ins.Src, ins.Off)
	case OpJLTReg:
		return fmt.Sprintf("jlt   r%d, r%d, %+d", ins.Dst, ins.Src, ins.Off)
	case OpJLEReg:
		return fmt.Sprintf("jle   r%d, r%d, %+d", ins.Dst, ins.Src, ins.Off)
	case OpCall:
		return fmt.Sprintf("call  %s (%d)", HelperID(ins.Imm), ins.Imm)
	case OpExit:
		return "exit"
	case OpLoadDW:
		return fmt.Sprintf("ldxdw r%d, [r%d%+d]", ins.Dst, ins.Src, ins.Off)
	case OpLoadW:
		return fmt.Sprintf("ldxw  r%d, [r%d%+d]", ins.Dst, ins.Src, ins.Off)
	case OpLoadH:
		return fmt.Sprintf("ldxh  r%d, [r%d%+d]", ins.Dst, ins.Src, ins.Off)
	case OpLoadB:
		return fmt.Sprintf("ldxb  r%d, [r%d%+d]", ins.Dst, ins.Src, ins.Off)
	case OpStoreDW:
		return fmt.Sprintf("stxdw [r%d%+d], r%d", ins.Dst, ins.Off, ins.Src)
	case OpStoreW:
		return fmt.Sprintf("stxw  [r%d%+d], r%d", ins.Dst, ins.Off, ins.Src)
	case OpStoreH:
		return fmt.Sprintf("stxh  [r%d%+d], r%d", ins.Dst, ins.Off, ins.Src)
	case OpStoreB:
		return fmt.Sprintf("stxb  [r%d%+d], r%d", ins.Dst, ins.Off, ins.Src)
	default:
		return fmt.Sprintf("op 0x%02x dst=r%d src=r%d off=%d imm=%d",
			ins.Opcode, ins.Dst, ins.Src, ins.Off, ins.Imm)
	}
}

// Program is the compiled artifact: the flat instruction stream plus the
// side tables the VM and the IDL emitter need. Only Instructions go into
// the bytecode file; Strings and Exports are host-side metadata.
type Program struct {
	Name         string
	Instructions []Instruction
	Strings      []string // PrintF format strings, indexed by immediate
	Exports      []string // names of functions declared with `export`
}

// Bytes serializes the instruction stream. The result is always a multiple
// of InstructionSize bytes.
func (p *Program) Bytes() []byte {
	out := make([]byte, 0, len(p.Instructions)*InstructionSize)
	for _, ins := range p.Instructions {
		b := ins.Encode()
		out = append(out, b[:]...)
	}
	return out
}

// Dump renders the whole program as readable assembly, one instruction per
// line with its index.
func (p *Program) Dump() string {
	var sb strings.Builder
	for i, ins := range p.Instructions {
		fmt.Fprintf(&sb, "%4d: %s\n", i, ins)
	}
	return sb.String()
}
