package bpf

import "fmt"

// Verify performs the structural checks a BPF loader would reject a program
// for: register indices in range, jump targets inside the program, and a
// terminal exit instruction. It does not type-check or simulate execution.
func Verify(ins []Instruction) error {
	if len(ins) == 0 {
		return fmt.Errorf("empty program")
	}

	for i, in := range ins {
		switch in.Class() {
		case ClassLD, ClassLDX, ClassST, ClassSTX, ClassALU, ClassJMP, ClassALU64:
		default:
			return fmt.Errorf("instruction %d: invalid class 0x%02x", i, in.Class())
		}

		if in.Dst >= NumRegs || in.Src >= NumRegs {
			return fmt.Errorf("instruction %d: register out of range (dst=r%d src=r%d)", i, in.Dst, in.Src)
		}

		if in.Class() == ClassJMP {
			op := in.Opcode & 0xf0
			if op == JmpCall || op == JmpExit {
				continue
			}
			target := i + 1 + int(in.Off)
			if target < 0 || target >= len(ins) {
				return fmt.Errorf("instruction %d: jump target %d out of range", i, target)
			}
		}
	}

	if last := ins[len(ins)-1]; last.Opcode != OpExit {
		return fmt.Errorf("program does not end in exit (last opcode 0x%02x)", last.Opcode)
	}
	return nil
}
