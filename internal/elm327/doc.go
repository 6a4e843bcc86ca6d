// Package elm327 implements obd.Connection for ELM327-compatible adapters.
//
// The adapter is reached over a serial tty (USB or Bluetooth RFCOMM) or
// TCP (Wi-Fi clones):
//
//	serial:///dev/rfcomm0
//	/dev/ttyUSB0
//	tcp://192.168.0.10:35000
//
// # Protocol
//
// Every request is a line terminated by CR; every reply ends with the '>'
// prompt. Connect resets the adapter (ATZ), turns echo and linefeeds off,
// spaces on, headers off and selects automatic protocol detection, then
// sends 0100 to let the adapter find the vehicle bus.
//
// Mode 01 support comes from the 0100/0120/... bitmaps. Commands with a
// custom CAN header or a manufacturer service are tried once. Headers are
// switched with ATSH only when the next request needs a different one.
//
// Replies are hex lines. A CAN multi-frame reply is a byte count followed
// by numbered segments:
//
//	00A
//	0: 61 98 00 64 80 80
//	1: 64 64 C8 00 00 00 00
//
// and is reassembled into one payload. Payloads keep the 2-byte response
// prefix (service + 0x40, PID).
//
// # Delivery
//
// Start launches one polling goroutine that queries every watched command
// in turn, and a bounded worker pool that runs callbacks. A slow or
// panicking callback never stalls polling.
package elm327
