package elm327

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nerrad567/obd2mqtt/internal/obd"
)

var (
	// byteCountLine is the total-length line that precedes a CAN multi-frame reply.
	byteCountLine = regexp.MustCompile(`^[0-9A-Fa-f]{3}$`)

	// segmentLine is a numbered frame of a multi-frame reply, e.g. "0: 61 98 00".
	segmentLine = regexp.MustCompile(`^([0-9A-Fa-f]):\s*(.*)$`)
)

// noDataReplies are adapter messages meaning the request got no usable answer.
var noDataReplies = []string{
	"NO DATA",
	"?",
	"UNABLE TO CONNECT",
	"CAN ERROR",
	"BUS ERROR",
	"BUS BUSY",
	"DATA ERROR",
	"FB ERROR",
	"LV RESET",
	"STOPPED",
	"ERROR",
}

// cleanLines strips progress messages and reports adapter error replies.
func cleanLines(cmd string, lines []string) ([]string, error) {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(strings.TrimPrefix(line, "SEARCHING..."))
		if line == "" || line == "OK" {
			continue
		}
		upper := strings.ToUpper(line)
		if strings.HasPrefix(upper, "BUS INIT") {
			if strings.Contains(upper, "ERROR") {
				return nil, fmt.Errorf("%w: %s: %s", obd.ErrNoData, cmd, line)
			}
			continue
		}
		for _, msg := range noDataReplies {
			if strings.HasPrefix(upper, msg) {
				return nil, fmt.Errorf("%w: %s: %s", obd.ErrNoData, cmd, line)
			}
		}
		out = append(out, line)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s: empty reply", obd.ErrNoData, cmd)
	}
	return out, nil
}

// parseFrames converts hex reply lines into messages.
//
// Plain lines are separate single-frame messages (one per answering ECU).
// A byte-count line followed by numbered segments is reassembled into one
// message and truncated to the announced length.
func parseFrames(lines []string) ([][]byte, error) {
	var (
		messages [][]byte
		multi    []byte
		total    = -1
	)

	for _, line := range lines {
		if byteCountLine.MatchString(line) {
			n, err := strconv.ParseUint(line, 16, 16)
			if err != nil {
				return nil, fmt.Errorf("%w: byte count %q", ErrUnexpectedResponse, line)
			}
			total = int(n)
			multi = multi[:0]
			continue
		}

		if m := segmentLine.FindStringSubmatch(line); m != nil {
			data, err := decodeHex(m[2])
			if err != nil {
				return nil, err
			}
			multi = append(multi, data...)
			continue
		}

		data, err := decodeHex(line)
		if err != nil {
			return nil, err
		}
		messages = append(messages, data)
	}

	if total >= 0 {
		if len(multi) < total {
			return nil, fmt.Errorf("%w: multi-frame reply has %d of %d bytes", ErrUnexpectedResponse, len(multi), total)
		}
		messages = append([][]byte{append([]byte(nil), multi[:total]...)}, messages...)
	}

	if len(messages) == 0 {
		return nil, fmt.Errorf("%w: no frames", ErrUnexpectedResponse)
	}
	return messages, nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.ReplaceAll(s, " ", "")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not hex", ErrUnexpectedResponse, s)
	}
	return b, nil
}

// busPayload picks the message answering cmd: positive response to the
// command's service with the same PID. It returns the full payload
// including the 2-byte prefix, and the number of CAN frames received.
func busPayload(cmd obd.Command, lines []string) ([]byte, int, error) {
	lines, err := cleanLines(cmd.Bytes, lines)
	if err != nil {
		return nil, 0, err
	}
	messages, err := parseFrames(lines)
	if err != nil {
		return nil, 0, err
	}
	frames := countFrames(lines)

	mode, okMode := cmd.Mode()
	pid, okPID := cmd.PID()
	if !okMode || !okPID {
		return messages[0], frames, nil
	}

	for _, msg := range messages {
		if len(msg) >= 2 && msg[0] == mode+0x40 && msg[1] == pid {
			return msg, frames, nil
		}
	}
	return nil, 0, fmt.Errorf("%w: %s: no positive response in %d message(s)", ErrUnexpectedResponse, cmd.Bytes, len(messages))
}

// countFrames counts data lines, ignoring multi-frame byte counts.
func countFrames(lines []string) int {
	n := 0
	for _, line := range lines {
		if !byteCountLine.MatchString(line) {
			n++
		}
	}
	return n
}

// textPayload joins an adapter command's reply lines.
func textPayload(cmd obd.Command, lines []string) ([]byte, error) {
	lines, err := cleanLines(cmd.Bytes, lines)
	if err != nil {
		return nil, err
	}
	return []byte(strings.Join(lines, " ")), nil
}

// supportBitmap decodes a 0100/0120/... support reply into PIDs.
// base is the PID the bitmap was requested with.
func supportBitmap(base byte, payload []byte) ([]byte, error) {
	if len(payload) < 6 {
		return nil, fmt.Errorf("%w: support bitmap has %d bytes", ErrUnexpectedResponse, len(payload))
	}

	var pids []byte
	for i, b := range payload[2:6] {
		for bit := range 8 {
			if b&(0x80>>bit) != 0 {
				pids = append(pids, base+byte(i*8+bit+1))
			}
		}
	}
	return pids, nil
}
