package model

import (
	"fmt"
	"net"
	"strconv"

	"github.com/chaseai/chaseai/internal/errs"
)

// InterfaceType classifies a network interface by reachability.
type InterfaceType string

const (
	InterfaceLoopback InterfaceType = "Loopback"
	InterfaceLAN      InterfaceType = "Lan"
	InterfacePublic   InterfaceType = "Public"
)

// PortRole selects which routes a port advertises to agents.
type PortRole string

const (
	RoleInstruction  PortRole = "Instruction"
	RoleVerification PortRole = "Verification"
	RoleWorkflow     PortRole = "Workflow"
)

// Valid reports whether r is a known role.
func (r PortRole) Valid() bool {
	switch r {
	case RoleInstruction, RoleVerification, RoleWorkflow:
		return true
	}
	return false
}

// VerificationMode tells agents whether to verify over HTTP or via the CLI.
type VerificationMode string

const (
	VerificationPort VerificationMode = "port"
	VerificationCLI  VerificationMode = "cli"
)

// NetworkInterface is the local address a binding listens on.
type NetworkInterface struct {
	Name      string        `json:"name" yaml:"name"`
	IPAddress string        `json:"ip_address" yaml:"ip_address"`
	Type      InterfaceType `json:"interface_type" yaml:"interface_type"`
}

// LoopbackInterface returns the IPv4 loopback interface with the given name.
func LoopbackInterface(name string) NetworkInterface {
	return NetworkInterface{Name: name, IPAddress: "127.0.0.1", Type: InterfaceLoopback}
}

// Binding is one desired (port, interface, role, enabled) endpoint.
type Binding struct {
	Port      uint16           `json:"port" yaml:"port"`
	Interface NetworkInterface `json:"interface" yaml:"interface"`
	Role      PortRole         `json:"role" yaml:"role"`
	Enabled   bool             `json:"enabled" yaml:"enabled"`
}

// Addr returns the host:port the binding listens on.
func (b Binding) Addr() string {
	return net.JoinHostPort(b.Interface.IPAddress, strconv.Itoa(int(b.Port)))
}

// NetworkConfig is the desired binding set supplied by the configuration layer.
type NetworkConfig struct {
	DefaultInterface InterfaceType    `json:"default_interface" yaml:"default_interface"`
	VerificationMode VerificationMode `json:"verification_mode" yaml:"verification_mode"`
	PortBindings     []Binding        `json:"port_bindings" yaml:"port_bindings"`
}

// DefaultNetworkConfig returns the built-in configuration: a single
// verification port on loopback, disabled until the user enables it.
func DefaultNetworkConfig() *NetworkConfig {
	return &NetworkConfig{
		DefaultInterface: InterfaceLoopback,
		VerificationMode: VerificationPort,
		PortBindings: []Binding{
			{
				Port:      9999,
				Interface: LoopbackInterface("lo0"),
				Role:      RoleVerification,
				Enabled:   false,
			},
		},
	}
}

// Binding returns the binding for port, if any.
func (c *NetworkConfig) Binding(port uint16) (Binding, bool) {
	if c == nil {
		return Binding{}, false
	}
	for _, b := range c.PortBindings {
		if b.Port == port {
			return b, true
		}
	}
	return Binding{}, false
}

// EnabledBindings returns the enabled bindings in configuration order.
func (c *NetworkConfig) EnabledBindings() []Binding {
	if c == nil {
		return nil
	}
	var out []Binding
	for _, b := range c.PortBindings {
		if b.Enabled {
			out = append(out, b)
		}
	}
	return out
}

// FirstEnabled returns the first enabled binding with the given role.
func (c *NetworkConfig) FirstEnabled(role PortRole) (Binding, bool) {
	for _, b := range c.EnabledBindings() {
		if b.Role == role {
			return b, true
		}
	}
	return Binding{}, false
}

// Clone returns a deep copy.
func (c *NetworkConfig) Clone() *NetworkConfig {
	if c == nil {
		return nil
	}
	out := *c
	out.PortBindings = append([]Binding(nil), c.PortBindings...)
	return &out
}

// Validate checks that ports are unique and that every binding has a
// parseable address and a known role.
func (c *NetworkConfig) Validate() error {
	seen := make(map[uint16]bool, len(c.PortBindings))
	for _, b := range c.PortBindings {
		if b.Port == 0 {
			return errs.New(errs.CodeConfiguration, "port 0 is not a valid binding")
		}
		if seen[b.Port] {
			return errs.Newf(errs.CodeConfiguration, "port %d is bound more than once", b.Port)
		}
		seen[b.Port] = true
		if net.ParseIP(b.Interface.IPAddress) == nil {
			return errs.Newf(errs.CodeConfiguration, "port %d: invalid ip address %q", b.Port, b.Interface.IPAddress)
		}
		if !b.Role.Valid() {
			return errs.Newf(errs.CodeConfiguration, "port %d: unknown role %q", b.Port, b.Role)
		}
	}
	switch c.VerificationMode {
	case "", VerificationPort, VerificationCLI:
	default:
		return errs.Newf(errs.CodeConfiguration, "unknown verification mode %q", c.VerificationMode)
	}
	return nil
}

// CheckBound returns a configuration error unless port has an enabled binding.
func (c *NetworkConfig) CheckBound(port uint16) error {
	b, ok := c.Binding(port)
	if !ok {
		return errs.Newf(errs.CodeConfiguration, "port %d is not configured in network settings", port)
	}
	if !b.Enabled {
		return errs.Newf(errs.CodeConfiguration, "port %d is disabled", port)
	}
	return nil
}

func (b Binding) String() string {
	state := "disabled"
	if b.Enabled {
		state = "enabled"
	}
	return fmt.Sprintf("%s %s (%s)", b.Addr(), b.Role, state)
}

// AddBinding appends b. It fails if the port is already bound.
func (c *NetworkConfig) AddBinding(b Binding) error {
	if _, ok := c.Binding(b.Port); ok {
		return errs.Newf(errs.CodeConfiguration, "port %d is already bound", b.Port)
	}
	next := c.Clone()
	next.PortBindings = append(next.PortBindings, b)
	if err := next.Validate(); err != nil {
		return err
	}
	c.PortBindings = next.PortBindings
	return nil
}

// RemoveBinding drops the binding for port.
func (c *NetworkConfig) RemoveBinding(port uint16) error {
	for i, b := range c.PortBindings {
		if b.Port == port {
			c.PortBindings = append(c.PortBindings[:i], c.PortBindings[i+1:]...)
			return nil
		}
	}
	return errs.Newf(errs.CodeNotFound, "no binding found for port %d", port)
}

// SetEnabled toggles the binding for port.
func (c *NetworkConfig) SetEnabled(port uint16, enabled bool) error {
	for i := range c.PortBindings {
		if c.PortBindings[i].Port == port {
			c.PortBindings[i].Enabled = enabled
			return nil
		}
	}
	return errs.Newf(errs.CodeNotFound, "no binding found for port %d", port)
}
