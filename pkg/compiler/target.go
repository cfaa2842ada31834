package compiler

import (
	"github.com/pkg/errors"

	"holybpf/pkg/bpf"
)

// Target selects the shape of the emitted artifact.
type Target int

const (
	// TargetBare emits the raw instruction stream with no wrapper.
	TargetBare Target = iota
	// TargetContractRuntime prepends the contract entrypoint wrapper and
	// can emit an interface-description JSON next to the bytecode.
	TargetContractRuntime
	// TargetVM compiles and immediately executes in the bundled VM.
	TargetVM
)

var targetNames = map[string]Target{
	"bare":             TargetBare,
	"contract-runtime": TargetContractRuntime,
	"vm":               TargetVM,
}

// ParseTarget maps a CLI target name to its Target.
func ParseTarget(name string) (Target, error) {
	t, ok := targetNames[name]
	if !ok {
		return 0, errors.Errorf("unknown target %q (want bare, contract-runtime or vm)", name)
	}
	return t, nil
}

func (t Target) String() string {
	for name, v := range targetNames {
		if v == t {
			return name
		}
	}
	return "unknown"
}

// Specialize applies the target-specific wrapping to a compiled program.
// Prepending shifts every instruction by the same amount, and branch
// offsets are relative, so the body needs no re-patching.
func Specialize(p *bpf.Program, t Target) *bpf.Program {
	if t != TargetContractRuntime {
		return p
	}

	// Entrypoint wrapper: the runtime hands opaque input pointers in r1
	// and r2. Save them into the callee-saved pair r6/r7 before program
	// logic clobbers the argument registers, and start with a zero status.
	wrapper := []bpf.Instruction{
		{Opcode: bpf.OpLoadDW, Dst: 6, Src: bpf.RegArg1, Off: 0},
		{Opcode: bpf.OpLoadDW, Dst: 7, Src: 2, Off: 0},
		{Opcode: bpf.OpMovImm, Dst: bpf.RegRet, Imm: 0},
	}

	out := *p
	out.Instructions = append(wrapper, p.Instructions...)
	return &out
}
