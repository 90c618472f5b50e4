package models

import (
	"fmt"
	"strings"
)

// Architecture is the closed set of CPU targets a package can be published for
type Architecture int

const (
	ArchAll Architecture = iota
	ArchX86
	ArchX86_64
	ArchArm32
	ArchArm64
)

// DefaultArchitecture is used when a request carries no usable platform hint
const DefaultArchitecture = ArchArm64

var architectureNames = map[Architecture]string{
	ArchAll:    "all",
	ArchX86:    "x86",
	ArchX86_64: "x86_64",
	ArchArm32:  "arm32",
	ArchArm64:  "arm64",
}

// String returns the string representation of Architecture
func (a Architecture) String() string {
	if name, ok := architectureNames[a]; ok {
		return name
	}
	return "unknown"
}

// Expand returns the concrete architectures matched by a. ArchAll expands to
// arm64, x86_64 and arm32; x86 is never implied.
func (a Architecture) Expand() []Architecture {
	if a == ArchAll {
		return []Architecture{ArchArm64, ArchX86_64, ArchArm32}
	}
	return []Architecture{a}
}

// MarshalText implements encoding.TextMarshaler
func (a Architecture) MarshalText() ([]byte, error) {
	name, ok := architectureNames[a]
	if !ok {
		return nil, fmt.Errorf("unknown architecture %d", int(a))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (a *Architecture) UnmarshalText(text []byte) error {
	arch, err := ParseArchitecture(string(text))
	if err != nil {
		return err
	}
	*a = arch
	return nil
}

// ParseArchitecture parses the canonical name of an architecture
func ParseArchitecture(s string) (Architecture, error) {
	for arch, name := range architectureNames {
		if strings.EqualFold(s, name) {
			return arch, nil
		}
	}
	return ArchAll, fmt.Errorf("unknown architecture %q", s)
}

// InferArchitecture detects an architecture from a free-form hint such as a
// file name or a platform string. Patterns are checked case-insensitively in
// order: x86_64, x86, arm_64/arm64, arm. The 64-bit flag promotes the bare
// x86 and arm patterns. ok is false when no pattern matches.
func InferArchitecture(value string, is64Bit bool) (arch Architecture, ok bool) {
	v := strings.ToLower(value)
	switch {
	case strings.Contains(v, "x86_64"):
		return ArchX86_64, true
	case strings.Contains(v, "x86"):
		if is64Bit {
			return ArchX86_64, true
		}
		return ArchX86, true
	case strings.Contains(v, "arm_64"), strings.Contains(v, "arm64"):
		return ArchArm64, true
	case strings.Contains(v, "arm"):
		if is64Bit {
			return ArchArm64, true
		}
		return ArchArm32, true
	}
	return ArchAll, false
}

// ArchitectureFromFileName infers the architecture of a package file from
// its base name; files without a recognizable pattern are published for all.
func ArchitectureFromFileName(name string) Architecture {
	arch, _ := InferArchitecture(name, false)
	return arch
}
