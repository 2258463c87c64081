package link

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/pkg/errors"

	gcserrors "HumaGCS/internal/errors"
)

const (
	DefaultEndpoint = "udp:127.0.0.1:14550"
	DefaultBaud     = 57600
)

type EndpointKind int

const (
	UDPServer EndpointKind = iota
	UDPClient
	TCPClient
	TCPServer
	Serial
)

func (k EndpointKind) String() string {
	switch k {
	case UDPServer:
		return "udp-server"
	case UDPClient:
		return "udp-client"
	case TCPClient:
		return "tcp-client"
	case TCPServer:
		return "tcp-server"
	case Serial:
		return "serial"
	default:
		return fmt.Sprintf("EndpointKind(%d)", int(k))
	}
}

// Endpoint is a parsed connection string.
type Endpoint struct {
	Kind    EndpointKind
	Address string // host:port, or the serial device
	Baud    int
}

func (e Endpoint) String() string {
	switch e.Kind {
	case UDPServer:
		return "udp:" + e.Address
	case UDPClient:
		return "udpout:" + e.Address
	case TCPClient:
		return "tcp:" + e.Address
	case TCPServer:
		return "tcpin:" + e.Address
	default:
		return fmt.Sprintf("%s,%d", e.Address, e.Baud)
	}
}

// ParseEndpoint accepts udp:<host>:<port> (listen), udpin:, udpout:, tcp:<host>:<port>,
// tcpin: and <serial-device>[,<baud>].
func ParseEndpoint(s string) (Endpoint, error) {
	s = strings.TrimSpace(s)
	invalid := func(cause error) (Endpoint, error) {
		return Endpoint{}, &gcserrors.ConnectionError{Endpoint: s, Err: gcserrors.ErrInvalidEndpoint, Cause: cause}
	}

	if s == "" {
		return invalid(nil)
	}

	if scheme, addr, ok := strings.Cut(s, ":"); ok {
		var kind EndpointKind
		switch strings.ToLower(scheme) {
		case "udp", "udpin":
			kind = UDPServer
		case "udpout":
			kind = UDPClient
		case "tcp":
			kind = TCPClient
		case "tcpin":
			kind = TCPServer
		default:
			// COM ports and /dev paths never carry a scheme, so anything else is malformed.
			if !looksLikeSerial(s) {
				return invalid(errors.Errorf("unknown scheme %q", scheme))
			}
			return parseSerial(s, invalid)
		}

		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return invalid(err)
		}
		if p, err := strconv.Atoi(port); err != nil || p <= 0 || p > 65535 {
			return invalid(errors.Errorf("bad port %q", port))
		}
		return Endpoint{Kind: kind, Address: net.JoinHostPort(host, port)}, nil
	}

	return parseSerial(s, invalid)
}

func looksLikeSerial(s string) bool {
	return strings.HasPrefix(s, "/dev/") || strings.HasPrefix(strings.ToUpper(s), "COM")
}

func parseSerial(s string, invalid func(error) (Endpoint, error)) (Endpoint, error) {
	device, baudStr, hasBaud := strings.Cut(s, ",")
	device = strings.TrimSpace(device)
	if device == "" {
		return invalid(nil)
	}

	baud := DefaultBaud
	if hasBaud {
		b, err := strconv.Atoi(strings.TrimSpace(baudStr))
		if err != nil || b <= 0 {
			return invalid(errors.Errorf("bad baud rate %q", baudStr))
		}
		baud = b
	}

	return Endpoint{Kind: Serial, Address: device, Baud: baud}, nil
}

func (e Endpoint) conf() gomavlib.EndpointConf {
	switch e.Kind {
	case UDPClient:
		return gomavlib.EndpointUDPClient{Address: e.Address}
	case TCPClient:
		return gomavlib.EndpointTCPClient{Address: e.Address}
	case TCPServer:
		return gomavlib.EndpointTCPServer{Address: e.Address}
	case Serial:
		return gomavlib.EndpointSerial{Device: e.Address, Baud: e.Baud}
	default:
		return gomavlib.EndpointUDPServer{Address: e.Address}
	}
}
