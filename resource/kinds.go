package resource

import "strconv"

// Kind identifies a native capability.
type Kind uint32

const (
	KindFile Kind = iota
	KindTimer
	KindModule
	kindCount
)

var kindInfo = [kindCount]struct {
	name    string
	builtin string
}{
	KindFile:   {"file", "open"},
	KindTimer:  {"timer", "sleep"},
	KindModule: {"module", "load_wasm"},
}

func (k Kind) String() string {
	if k < kindCount {
		return kindInfo[k].name
	}
	return "kind(" + strconv.FormatUint(uint64(k), 10) + ")"
}

// Builtin returns the name of the builtin through which interpreted code
// acquires a resource of this kind.
func (k Kind) Builtin() string {
	if k < kindCount {
		return kindInfo[k].builtin
	}
	return ""
}

// Known reports whether k is one of the defined kinds.
func (k Kind) Known() bool {
	return k < kindCount
}

// Kinds returns all defined kinds.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

// Describe renders a handle of kind k for diagnostics, e.g. "file#3".
func Describe(k Kind, h Handle) string {
	return k.String() + h.String()
}
