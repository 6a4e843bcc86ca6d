package elm327

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"time"
)

// defaultTCPAddress is the address most Wi-Fi ELM327 clones listen on.
const defaultTCPAddress = "192.168.0.10:35000"

// Port is a byte stream to an adapter with read deadlines.
// *os.File (serial) and net.Conn (TCP) both satisfy it.
type Port interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
}

// Opener opens the transport to an adapter.
type Opener func(ctx context.Context) (Port, error)

// DeviceOpener returns an Opener for a device URL.
//
// Supported formats:
//   - "serial:///dev/rfcomm0" (serial or RFCOMM tty)
//   - "/dev/ttyUSB0" (bare path, serial)
//   - "tcp://192.168.0.10:35000" (Wi-Fi adapters)
func DeviceOpener(device string, baud int) (Opener, error) {
	network, address, err := parseDevice(device)
	if err != nil {
		return nil, err
	}

	switch network {
	case "serial":
		return func(context.Context) (Port, error) {
			return openSerial(address, baud)
		}, nil
	default:
		return func(ctx context.Context) (Port, error) {
			var d net.Dialer
			conn, err := d.DialContext(ctx, "tcp", address)
			if err != nil {
				return nil, err
			}
			return conn, nil
		}, nil
	}
}

// parseDevice splits a device URL into transport and address.
func parseDevice(device string) (network, address string, err error) {
	device = strings.TrimSpace(device)
	if device == "" {
		return "", "", fmt.Errorf("%w: empty device", ErrUnsupportedDevice)
	}
	if strings.HasPrefix(device, "/") {
		return "serial", device, nil
	}

	u, err := url.Parse(device)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrUnsupportedDevice, err)
	}

	switch u.Scheme {
	case "serial":
		if u.Path == "" {
			return "", "", fmt.Errorf("%w: %q has no path", ErrUnsupportedDevice, device)
		}
		return "serial", u.Path, nil
	case "tcp":
		host := u.Host
		if host == "" {
			host = defaultTCPAddress
		}
		return "tcp", host, nil
	default:
		return "", "", fmt.Errorf("%w: scheme %q (use serial or tcp)", ErrUnsupportedDevice, u.Scheme)
	}
}
