//go:build !linux

package elm327

import "fmt"

func openSerial(path string, _ int) (Port, error) {
	return nil, fmt.Errorf("%w: serial devices are only supported on linux (%s)", ErrUnsupportedDevice, path)
}
