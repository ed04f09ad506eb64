// Package motors describes servo control tables. A Register is an opaque
// (address, width) descriptor; a Catalog is a flat table of named registers
// for one motor model. The bus engine never interprets register semantics;
// adding a motor model is adding a table.
package motors

import (
	"fmt"
	"sort"
)

// Register identifies one control-table slot: a 16-bit bus address and a
// payload width of 1 or 2 bytes.
type Register struct {
	address uint16
	width   uint16
}

// Reg constructs a register descriptor.
func Reg(address, width uint16) Register {
	return Register{address: address, width: width}
}

// Address returns the control-table address.
func (r Register) Address() uint16 { return r.address }

// Width returns the payload width in bytes.
func (r Register) Width() uint16 { return r.width }

func (r Register) String() string {
	return fmt.Sprintf("0x%04X/%d", r.address, r.width)
}

// Catalog maps register names to descriptors for one motor model.
type Catalog map[string]Register

// Lookup returns the named register.
func (c Catalog) Lookup(name string) (Register, bool) {
	r, ok := c[name]
	return r, ok
}

// Names returns the catalog's register names, sorted.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
