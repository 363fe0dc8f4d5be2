// Package addr defines the endpoint value type shared across the
// dissector chain, capture layer, and call store.
package addr

import (
	"fmt"
	"net/netip"
)

// Proto identifies the transport carrying a Message's bytes at the point
// an Address was captured.
type Proto uint8

const (
	ProtoUnknown Proto = iota
	ProtoUDP
	ProtoTCP
	ProtoTLS
	ProtoWS
	ProtoWSS
)

func (p Proto) String() string {
	switch p {
	case ProtoUDP:
		return "UDP"
	case ProtoTCP:
		return "TCP"
	case ProtoTLS:
		return "TLS"
	case ProtoWS:
		return "WS"
	case ProtoWSS:
		return "WSS"
	default:
		return "UNKNOWN"
	}
}

// Address is (IP, port, transport). Equality is bitwise on all three and
// the type is immutable after construction — safe to use as a map key or
// to copy by value.
type Address struct {
	IP    netip.Addr
	Port  uint16
	Proto Proto
}

// New builds an Address, normalizing the IP to its unmapped form so that
// an IPv4-mapped IPv6 address compares equal to its plain IPv4 form.
func New(ip netip.Addr, port uint16, proto Proto) Address {
	return Address{IP: ip.Unmap(), Port: port, Proto: proto}
}

// IsValid reports whether the address carries a usable IP.
func (a Address) IsValid() bool {
	return a.IP.IsValid()
}

func (a Address) String() string {
	return fmt.Sprintf("%s:%d/%s", a.IP, a.Port, a.Proto)
}

// Equal reports bitwise equality of IP, port, and transport.
func (a Address) Equal(o Address) bool {
	return a.IP == o.IP && a.Port == o.Port && a.Proto == o.Proto
}
