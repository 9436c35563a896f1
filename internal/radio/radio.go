// Package radio looks up wireless interfaces over nl80211.
package radio

import (
	"errors"
	"fmt"
	"net"

	"github.com/mdlayher/wifi"
)

// ErrInterfaceNotFound is returned when no wireless interface has the name.
var ErrInterfaceNotFound = errors.New("radio: wireless interface not found")

// Interface is what the scanner and beacon need to know about a radio.
type Interface struct {
	Name      string
	Index     int
	MAC       net.HardwareAddr
	PHY       int
	Frequency int // MHz, 0 when not tuned
	Monitor   bool
}

// Lister enumerates wireless interfaces. *wifi.Client satisfies it.
type Lister interface {
	Interfaces() ([]*wifi.Interface, error)
}

// Lookup finds the wireless interface called name.
func Lookup(name string) (*Interface, error) {
	c, err := wifi.New()
	if err != nil {
		return nil, fmt.Errorf("open nl80211: %w", err)
	}
	defer c.Close()
	return LookupIn(c, name)
}

// LookupIn finds name among the interfaces l reports.
func LookupIn(l Lister, name string) (*Interface, error) {
	ifis, err := l.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list wireless interfaces: %w", err)
	}
	for _, ifi := range ifis {
		if ifi.Name != name {
			continue
		}
		return &Interface{
			Name:      ifi.Name,
			Index:     ifi.Index,
			MAC:       ifi.HardwareAddr,
			PHY:       ifi.PHY,
			Frequency: ifi.Frequency,
			Monitor:   ifi.Type == wifi.InterfaceTypeMonitor,
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrInterfaceNotFound, name)
}

// ResolveMAC returns the configured address when set, otherwise the address
// of iface. Interfaces nl80211 does not know fall back to the kernel's view.
func ResolveMAC(configured, iface string) (net.HardwareAddr, error) {
	if configured != "" {
		return net.ParseMAC(configured)
	}
	if iface == "" {
		return nil, errors.New("no device mac configured and no interface to read it from")
	}
	if ifi, err := Lookup(iface); err == nil && len(ifi.MAC) == 6 {
		return ifi.MAC, nil
	}
	netIfi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("resolve mac of %s: %w", iface, err)
	}
	return netIfi.HardwareAddr, nil
}
