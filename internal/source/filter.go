package source

import (
	"errors"

	"golang.org/x/net/bpf"
)

// filter runs a compiled classic BPF program against raw frames.
type filter struct {
	vm *bpf.VM
}

func newFilter(raw []bpf.RawInstruction) (*filter, error) {
	insns, ok := bpf.Disassemble(raw)
	if !ok {
		return nil, errors.New("program contains undecodable instructions")
	}
	vm, err := bpf.NewVM(insns)
	if err != nil {
		return nil, err
	}
	return &filter{vm: vm}, nil
}

// Match reports whether the program accepts the frame. A frame the VM
// cannot evaluate is rejected.
func (f *filter) Match(data []byte) bool {
	n, err := f.vm.Run(data)
	return err == nil && n > 0
}
