package elm327

import (
	"bytes"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
)

// silentReply makes the emulator swallow a request without answering.
const silentReply = "<silent>"

// emulator answers ELM327 requests over one side of a net.Pipe.
type emulator struct {
	mu        sync.Mutex
	replies   map[string]string
	header    string
	received  []string
	openCount int
}

// defaultReplies describe a vehicle supporting 0104, 0105, 010C, 010D,
// 0121, 0133, 015B on 7E2, 2129 on 7C0 and 2198 on 7E2.
func defaultReplies() map[string]string {
	return map[string]string{
		"ATZ":   "\r\rELM327 v1.5",
		"ATE0":  "OK",
		"ATL0":  "OK",
		"ATS1":  "OK",
		"ATH0":  "OK",
		"ATSP0": "OK",
		"ATDPN": "A6",
		"ATRV":  "12.6V",
		"ATI":   "ELM327 v1.5",

		"0100": "SEARCHING...\r41 00 18 18 00 01",
		"0120": "41 20 80 00 20 01",
		"0140": "41 40 00 00 00 20",
		"0104": "41 04 80",
		"010C": "41 0C 1A F8",
		"010D": "41 0D 32",

		"7E2:015B": "41 5B 80",
		"7C0:2129": "61 29 64",
		"7E2:2198": "00A\r0: 61 98 00 64 80 80\r1: 64 64 C8 00 00 00 00",
		"7B0:2147": "NO DATA",
	}
}

func newEmulator() *emulator {
	return &emulator{replies: defaultReplies(), header: defaultHeader}
}

func (e *emulator) set(cmd, reply string) {
	e.mu.Lock()
	e.replies[cmd] = reply
	e.mu.Unlock()
}

func (e *emulator) requests() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.received...)
}

func (e *emulator) countRequests(cmd string) int {
	n := 0
	for _, r := range e.requests() {
		if r == cmd {
			n++
		}
	}
	return n
}

// opener returns an Opener serving each opened port with the emulator.
func (e *emulator) opener() Opener {
	return func(context.Context) (Port, error) {
		client, server := net.Pipe()
		e.mu.Lock()
		e.openCount++
		e.mu.Unlock()
		go e.serve(server)
		return client, nil
	}
}

func (e *emulator) serve(conn net.Conn) {
	defer conn.Close()

	var pending []byte
	buf := make([]byte, 64)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		pending = append(pending, buf[:n]...)

		for {
			i := bytes.IndexByte(pending, '\r')
			if i < 0 {
				break
			}
			cmd := strings.TrimSpace(string(pending[:i]))
			pending = pending[i+1:]

			reply := e.answer(cmd)
			if reply == silentReply {
				continue
			}
			if _, err := conn.Write([]byte(reply + "\r\r>")); err != nil {
				return
			}
		}
	}
}

func (e *emulator) answer(cmd string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.received = append(e.received, cmd)

	if strings.HasPrefix(cmd, "ATSH") {
		e.header = strings.TrimPrefix(cmd, "ATSH")
		return "OK"
	}

	key := cmd
	// Strip a fast-mode response count suffix.
	if len(key) == 5 && !strings.HasPrefix(key, "AT") {
		key = key[:4]
	}
	if reply, ok := e.replies[e.header+":"+key]; ok {
		return reply
	}
	if e.header == defaultHeader {
		if reply, ok := e.replies[key]; ok {
			return reply
		}
		return "NO DATA"
	}
	return "?"
}

func newTestAdapter(t *testing.T, e *emulator, mutate func(*Options)) *Adapter {
	t.Helper()
	opts := Options{
		Open:         e.opener(),
		Catalog:      catalog,
		CommandDelay: time1ms,
		Fast:         true,
	}
	if mutate != nil {
		mutate(&opts)
	}
	a := New(opts)
	t.Cleanup(func() { _ = a.Stop() })
	return a
}
