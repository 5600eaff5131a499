// Package selection implements the tri-state file selection tree.
//
// Nodes live in an arena owned by the Tree. A node refers to its parent by
// arena index and to its children by an ordered slice of arena indices, so
// there is exactly one owner for every node. Callers address nodes by the
// path of child indices from the synthetic root.
package selection

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind distinguishes file nodes from folder nodes.
type Kind uint8

const (
	File Kind = iota
	Folder
)

func (k Kind) String() string {
	if k == Folder {
		return "folder"
	}
	return "file"
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "file":
		*k = File
	case "folder":
		*k = Folder
	default:
		return fmt.Errorf("selection: unknown kind %q", string(b))
	}
	return nil
}

// CheckState is the tri-state checkbox value of a node.
type CheckState uint8

const (
	Unchecked CheckState = iota
	PartiallyChecked
	Checked
)

func (s CheckState) String() string {
	switch s {
	case Checked:
		return "checked"
	case PartiallyChecked:
		return "partial"
	default:
		return "unchecked"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s CheckState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *CheckState) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "checked":
		*s = Checked
	case "partial", "partially_checked":
		*s = PartiallyChecked
	case "unchecked", "":
		*s = Unchecked
	default:
		return fmt.Errorf("selection: unknown check state %q", string(b))
	}
	return nil
}

// Aspect names the part of a node a change notification is about.
type Aspect string

// AspectCheckState is the checkbox aspect.
const AspectCheckState Aspect = "checkbox"

// Address is a path of child indices from the root. The empty address is
// the root itself.
type Address []int

// String renders the address as slash-separated indices, e.g. "0/3/1".
func (a Address) String() string {
	parts := make([]string, len(a))
	for i, v := range a {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, "/")
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(b []byte) error {
	parsed, err := ParseAddress(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses the form produced by Address.String.
func ParseAddress(s string) (Address, error) {
	s = strings.Trim(strings.TrimSpace(s), "/")
	if s == "" {
		return Address{}, nil
	}
	parts := strings.Split(s, "/")
	addr := make(Address, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("selection: bad address segment %q", p)
		}
		addr = append(addr, n)
	}
	return addr, nil
}

const noParent = -1

type node struct {
	name     string
	path     string // absolute; empty for the root
	kind     Kind
	state    CheckState
	parent   int
	row      int // index within parent's children
	children []int
}

// View is a read-only copy of a node and its subtree.
type View struct {
	Name     string     `json:"name"`
	Path     string     `json:"path,omitempty"`
	Address  Address    `json:"address"`
	Kind     Kind       `json:"kind"`
	State    CheckState `json:"state"`
	Children []View     `json:"children,omitempty"`
}
