package vm

import (
	"fmt"
	"strings"

	"holybpf/pkg/bpf"
)

// helperFunc implements one host helper. Arguments arrive in r1..r5 per
// the calling convention; the return value goes in r0.
type helperFunc func(st *runState) error

// tracePrintk formats the string-table entry indexed by r1 against the
// values in r2..r5 and appends the result to the run log and the output
// sink. Each %d consumes the next value register; other text passes
// through untouched. r0 receives the number of bytes produced.
func tracePrintk(st *runState) error {
	idx := st.regs[bpf.RegArg1]
	if idx < 0 || idx >= int64(len(st.prog.Strings)) {
		return &Fault{Kind: FaultOutOfBounds, PC: st.pc,
			Detail: fmt.Sprintf("string table index %d", idx)}
	}

	msg := formatTrace(st.prog.Strings[idx], st.regs[2:bpf.RegArg5+1])
	st.log = append(st.log, msg)
	fmt.Fprint(st.out, msg)

	st.regs[bpf.RegRet] = int64(len(msg))
	return nil
}

// formatTrace substitutes %d verbs left to right. A verb beyond the last
// argument register prints as literal text, and %% escapes a percent.
func formatTrace(format string, args []int64) string {
	var sb strings.Builder
	next := 0
	for i := 0; i < len(format); i++ {
		if format[i] != '%' || i+1 >= len(format) {
			sb.WriteByte(format[i])
			continue
		}
		switch format[i+1] {
		case 'd':
			if next < len(args) {
				fmt.Fprintf(&sb, "%d", args[next])
				next++
			} else {
				sb.WriteString("%d")
			}
			i++
		case '%':
			sb.WriteByte('%')
			i++
		default:
			sb.WriteByte('%')
		}
	}
	return sb.String()
}
