// Command holybpf compiles HolyC-flavoured source to BPF bytecode.
//
// Usage:
//
//	holybpf <target> [flags] <file.hc>
//
// Targets:
//
//	bare              raw bytecode, no wrapper
//	contract-runtime  entrypoint wrapper, optional IDL (-idl)
//	vm                compile and execute in the bundled VM
//
// Exit codes identify the failing phase: 1 usage, 2 lex/parse,
// 3 codegen, 4 I/O, 5 VM.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"holybpf/pkg/compiler"
	"holybpf/pkg/vm"
)

const (
	exitUsage   = 1
	exitParse   = 2
	exitCodeGen = 3
	exitIO      = 4
	exitVM      = 5
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		usage()
		return exitUsage
	}

	target, err := compiler.ParseTarget(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		usage()
		return exitUsage
	}

	fs := flag.NewFlagSet("holybpf", flag.ContinueOnError)
	genIDL := fs.Bool("idl", false, "emit the IDL JSON (contract-runtime only)")
	outDir := fs.String("o", "", "output directory (default: source directory)")
	budget := fs.Uint64("budget", vm.DefaultMaxInstructions, "VM instruction budget (vm target)")
	dump := fs.Bool("dump", false, "print the compiled program as assembly")
	if err := fs.Parse(args[1:]); err != nil {
		return exitUsage
	}

	if fs.NArg() != 1 {
		usage()
		return exitUsage
	}
	path := fs.Arg(0)

	opts := compiler.Options{
		Target:      target,
		GenerateIDL: *genIDL,
		OutputDir:   *outDir,
	}

	if target == compiler.TargetVM {
		return runVM(path, opts, *budget, *dump)
	}

	prog, err := compiler.CompileFile(path, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return classify(err)
	}
	if *dump {
		fmt.Print(prog.Dump())
	}
	fmt.Fprintf(os.Stderr, "compiled %s: %d instructions\n", path, len(prog.Instructions))
	return 0
}

// runVM compiles in memory and executes; nothing is written to disk.
func runVM(path string, opts compiler.Options, budget uint64, dump bool) int {
	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitIO
	}

	prog, err := compiler.Compile(string(src), opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return classify(err)
	}
	if dump {
		fmt.Print(prog.Dump())
	}

	res, err := vm.New(prog).Run(vm.Config{
		MaxInstructions: budget,
		Output:          os.Stdout,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitVM
	}

	fmt.Fprintf(os.Stderr, "exit code %d, %d instructions, %d compute units\n",
		res.ExitCode, res.Instructions, res.ComputeUnits)
	return 0
}

// classify maps a compilation error to the exit code of the phase that
// produced it.
func classify(err error) int {
	var parseErr *compiler.ParseError
	if errors.As(err, &parseErr) {
		return exitParse
	}
	var cgErr *compiler.CodeGenError
	if errors.As(err, &cgErr) || errors.Is(err, compiler.ErrMissingMain) {
		return exitCodeGen
	}
	return exitIO
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: holybpf <bare|contract-runtime|vm> [-idl] [-o dir] [-budget n] [-dump] <file.hc>")
}
