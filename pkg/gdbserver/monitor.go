package gdbserver

import (
	"encoding/hex"
	"fmt"
)

// runMonitor serves qRcmd: a tiny set of monitor
// commands decoded from hex-encoded ASCII, with output relayed as
// O-packets by the caller.
func (s *session) runMonitor(hexCmd string) (output []string, err error) {
	raw, err := hex.DecodeString(hexCmd)
	if err != nil {
		return nil, err
	}
	switch string(raw) {
	case "reset":
		if err := s.engine.Reset(); err != nil {
			return nil, err
		}
		return []string{"CPU reset.\n"}, nil
	case "about":
		return []string{"wbtool VexRiscv debug monitor\n"}, nil
	case "explain":
		exc := s.engine.LastException()
		if exc == nil {
			return []string{"no exception recorded\n"}, nil
		}
		return []string{fmt.Sprintf("%s\n", exc.Message)}, nil
	default:
		return []string{fmt.Sprintf("unknown monitor command %q\n", string(raw))}, nil
	}
}
