package source

import (
	"fmt"

	"golang.org/x/net/bpf"
)

// ProbeRequestFilter returns a classic BPF program over radiotap framed
// 802.11 that keeps probe requests, truncated to snapLen, and drops the rest.
//
// The radiotap length is little endian at offset 2, so it is assembled into X
// before loading the frame control byte at X.
func ProbeRequestFilter(snapLen int) []bpf.Instruction {
	return []bpf.Instruction{
		bpf.LoadAbsolute{Off: 3, Size: 1},
		bpf.ALUOpConstant{Op: bpf.ALUOpShiftLeft, Val: 8},
		bpf.TAX{},
		bpf.LoadAbsolute{Off: 2, Size: 1},
		bpf.ALUOpX{Op: bpf.ALUOpOr},
		bpf.TAX{},
		bpf.LoadIndirect{Off: 0, Size: 1},
		bpf.ALUOpConstant{Op: bpf.ALUOpAnd, Val: 0xFC},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 0x40, SkipFalse: 1},
		bpf.RetConstant{Val: uint32(snapLen)},
		bpf.RetConstant{Val: 0},
	}
}

// assembleProbeFilter returns the raw form loaded into the kernel.
func assembleProbeFilter(snapLen int) ([]bpf.RawInstruction, error) {
	raw, err := bpf.Assemble(ProbeRequestFilter(snapLen))
	if err != nil {
		return nil, fmt.Errorf("assemble probe request filter: %w", err)
	}
	return raw, nil
}
