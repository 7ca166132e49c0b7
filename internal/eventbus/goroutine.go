package eventbus

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID extracts the current goroutine id from the stack header.
// Only used to tag the consumer goroutine for the single-consumer check;
// never used for control flow outside diagnostics.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// header shape: "goroutine 123 [running]:"
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
