package compiler

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"holybpf/pkg/bpf"
)

// Options steers a compilation. The zero value compiles for the bare
// target with no side artifacts.
type Options struct {
	Target      Target
	GenerateIDL bool   // contract-runtime only: write the IDL JSON
	OutputDir   string // artifact directory for CompileFile; "" = source dir
	Name        string // program name; CompileFile defaults it to the file stem
}

// Compile runs lex, parse, codegen and target specialization over src.
// The first failing phase aborts; its typed error identifies the phase.
func Compile(src string, opts Options) (*bpf.Program, error) {
	tokens := Lex(src)
	ast, err := Parse(tokens, src)
	if err != nil {
		return nil, err
	}

	prog, err := Generate(ast)
	if err != nil {
		return nil, err
	}
	if opts.Name != "" {
		prog.Name = opts.Name
	}

	prog = Specialize(prog, opts.Target)
	if err := bpf.Verify(prog.Instructions); err != nil {
		return nil, &CodeGenError{Fn: prog.Name, Err: err}
	}
	return prog, nil
}

// CompileFile compiles path and writes the artifacts: <stem>.bpf always,
// <stem>.json when the IDL is requested. Nothing is written if any phase
// fails; all content is built in memory first.
func CompileFile(path string, opts Options) (*bpf.Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read source")
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if opts.Name == "" {
		opts.Name = stem
	}

	prog, err := Compile(string(src), opts)
	if err != nil {
		return nil, err
	}

	outDir := opts.OutputDir
	if outDir == "" {
		outDir = filepath.Dir(path)
	}

	var idlBytes []byte
	if opts.GenerateIDL && opts.Target == TargetContractRuntime {
		idlBytes, err = BuildIDL(prog, opts.Name).Marshal()
		if err != nil {
			return nil, errors.Wrap(err, "marshal idl")
		}
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create output dir")
	}
	if err := os.WriteFile(filepath.Join(outDir, stem+".bpf"), prog.Bytes(), 0o644); err != nil {
		return nil, errors.Wrap(err, "write bytecode")
	}
	if idlBytes != nil {
		if err := os.WriteFile(filepath.Join(outDir, stem+".json"), idlBytes, 0o644); err != nil {
			return nil, errors.Wrap(err, "write idl")
		}
	}
	return prog, nil
}
