// Package netif discovers local interfaces a binding can listen on.
package netif

import (
	"fmt"
	"net"
	"net/netip"
	"runtime"

	"github.com/chaseai/chaseai/internal/errs"
	"github.com/chaseai/chaseai/internal/model"
)

// MinPort is the lowest port a binding may use; lower ports are reserved
// for system services.
const MinPort = 1024

// ValidatePort rejects privileged ports.
func ValidatePort(port uint16) error {
	if port < MinPort {
		return errs.Newf(errs.CodeValidation, "port %d: ports below %d are reserved for system services", port, MinPort)
	}
	return nil
}

// LoopbackName is the platform-standard loopback interface name.
func LoopbackName() string {
	if runtime.GOOS == "darwin" {
		return "lo0"
	}
	return "lo"
}

// Addr is one address assigned to a named interface.
type Addr struct {
	Name string
	IP   netip.Addr
}

// Source lists interface addresses.
type Source func() ([]Addr, error)

// SystemAddrs reads addresses from the host.
func SystemAddrs() ([]Addr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	var out []Addr
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip, ok := netip.AddrFromSlice(ipnet.IP)
			if !ok {
				continue
			}
			out = append(out, Addr{Name: iface.Name, IP: ip.Unmap()})
		}
	}
	return out, nil
}

// Classify returns the reachability class of ip.
func Classify(ip netip.Addr) model.InterfaceType {
	switch {
	case ip.IsLoopback():
		return model.InterfaceLoopback
	case ip.IsPrivate(), ip.IsLinkLocalUnicast():
		return model.InterfaceLAN
	default:
		return model.InterfacePublic
	}
}

// Detector classifies interfaces from a Source.
type Detector struct {
	source Source
}

// NewDetector returns a Detector over src; nil means SystemAddrs.
func NewDetector(src Source) *Detector {
	if src == nil {
		src = SystemAddrs
	}
	return &Detector{source: src}
}

// DetectAll returns every address with its class.
func (d *Detector) DetectAll() ([]model.NetworkInterface, error) {
	addrs, err := d.source()
	if err != nil {
		return nil, err
	}
	out := make([]model.NetworkInterface, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, model.NetworkInterface{
			Name:      a.Name,
			IPAddress: a.IP.String(),
			Type:      Classify(a.IP),
		})
	}
	return out, nil
}

// DetectLoopback returns only loopback addresses.
func (d *Detector) DetectLoopback() ([]model.NetworkInterface, error) {
	return d.filter(model.InterfaceLoopback)
}

// DetectLAN returns only private-network addresses.
func (d *Detector) DetectLAN() ([]model.NetworkInterface, error) {
	return d.filter(model.InterfaceLAN)
}

func (d *Detector) filter(t model.InterfaceType) ([]model.NetworkInterface, error) {
	all, err := d.DetectAll()
	if err != nil {
		return nil, err
	}
	var out []model.NetworkInterface
	for _, i := range all {
		if i.Type == t {
			out = append(out, i)
		}
	}
	return out, nil
}

// Lookup resolves name to an interface. An IP literal matches by address,
// otherwise the first IPv4 address on the named interface wins.
func (d *Detector) Lookup(name string) (model.NetworkInterface, error) {
	all, err := d.DetectAll()
	if err != nil {
		return model.NetworkInterface{}, err
	}

	var fallback *model.NetworkInterface
	for i := range all {
		iface := all[i]
		if iface.IPAddress == name {
			return iface, nil
		}
		if iface.Name != name {
			continue
		}
		if ip, err := netip.ParseAddr(iface.IPAddress); err == nil && ip.Is4() {
			return iface, nil
		}
		if fallback == nil {
			fallback = &iface
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return model.NetworkInterface{}, errs.Newf(errs.CodeNotFound, "interface %q not found", name)
}
