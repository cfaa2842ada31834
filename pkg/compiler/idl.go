package compiler

import (
	"encoding/json"

	"holybpf/pkg/bpf"
)

// IDL is the interface description emitted next to contract-runtime
// bytecode. Only exported functions are listed; the empty collections are
// kept so consumers see a stable document shape.
type IDL struct {
	Version      string           `json:"version"`
	Name         string           `json:"name"`
	Instructions []IDLInstruction `json:"instructions"`
	Accounts     []IDLAccount     `json:"accounts"`
	Types        []IDLType        `json:"types"`
	Metadata     IDLMetadata      `json:"metadata"`
}

// IDLInstruction describes one callable entry. Argument extraction is not
// implemented, so Args is always present but empty.
type IDLInstruction struct {
	Name string   `json:"name"`
	Args []IDLArg `json:"args"`
}

type IDLArg struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type IDLAccount struct {
	Name string `json:"name"`
}

type IDLType struct {
	Name string `json:"name"`
}

type IDLMetadata struct {
	Address string `json:"address"`
}

// idlVersion follows the document shape, not the compiler release.
const idlVersion = "0.1.0"

// BuildIDL derives the interface description from a compiled program.
// name is the contract name, normally the source file stem.
func BuildIDL(p *bpf.Program, name string) *IDL {
	idl := &IDL{
		Version:      idlVersion,
		Name:         name,
		Instructions: make([]IDLInstruction, 0, len(p.Exports)),
		Accounts:     []IDLAccount{},
		Types:        []IDLType{},
	}
	for _, exp := range p.Exports {
		idl.Instructions = append(idl.Instructions, IDLInstruction{Name: exp, Args: []IDLArg{}})
	}
	return idl
}

// Marshal renders the document indented; the file is meant to be read by
// people as much as by tooling.
func (i *IDL) Marshal() ([]byte, error) {
	return json.MarshalIndent(i, "", "  ")
}
