package index

import (
	"runtime"
	"strconv"
)

func itoa(n int) string {
	return strconv.Itoa(n)
}

func toHex(n uint32) string {
	return strconv.FormatUint(uint64(n), 16)
}

// runtimeYield hands control back to the scheduler so a long batch does
// not monopolize the goroutine, mirroring the cooperative yields §5
// requires around every few sources.
func runtimeYield() {
	runtime.Gosched()
}
