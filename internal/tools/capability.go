// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

// Capability is the closed set of tools this package can run.
type Capability int

const (
	CapabilityShell Capability = iota
	CapabilityReadFile
	CapabilitySearchDocs
)

// Capabilities lists every capability in registration order.
var Capabilities = []Capability{CapabilityShell, CapabilityReadFile, CapabilitySearchDocs}

// String returns the wire name of the capability.
func (c Capability) String() string {
	switch c {
	case CapabilityShell:
		return "bash"
	case CapabilityReadFile:
		return "read_file"
	case CapabilitySearchDocs:
		return "search_docs"
	default:
		return "unknown"
	}
}

// ParseCapability resolves a wire name. Names are exact and case-sensitive.
func ParseCapability(name string) (Capability, error) {
	for _, c := range Capabilities {
		if c.String() == name {
			return c, nil
		}
	}
	return 0, &UnknownCapabilityError{Name: name}
}
