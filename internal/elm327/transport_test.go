package elm327

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceOpenerTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
		close(accepted)
	}()

	open, err := DeviceOpener("tcp://"+ln.Addr().String(), 0)
	require.NoError(t, err)

	port, err := open(context.Background())
	require.NoError(t, err)
	assert.NoError(t, port.Close())
	<-accepted
}

func TestDeviceOpenerRejectsUnknownScheme(t *testing.T) {
	_, err := DeviceOpener("usb://adapter", 38400)
	assert.ErrorIs(t, err, ErrUnsupportedDevice)
}
