// Package date provides a cached, thread-safe RFC1123 date string.
package date

import (
	"sync/atomic"
	"time"
	"unsafe"
)

// currentDate stores the cached RFC1123 date string to avoid time.Now().Format() every request.
// We use an unsafe.Pointer with atomic loads/stores for lock-free read access.
var currentDate unsafe.Pointer

// StartTicker starts a ticker that updates the date string every 500ms.
// It returns a stop function.
func StartTicker() func() {
	// Initialize immediately
	update()

	ticker := time.NewTicker(500 * time.Millisecond)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				update()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() {
		close(done)
	}
}

// rfc1123GMT is time.RFC1123 with the zone forced to the literal "GMT"
// instead of the location name, matching the HTTP-date format servers
// are expected to emit.
const rfc1123GMT = "Mon, 02 Jan 2006 15:04:05 GMT"

// update updates the cached date string.
func update() {
	s := time.Now().UTC().Format(rfc1123GMT)
	// Cache the bytes to avoid conversion during write
	b := []byte(s)
	//nolint:gosec // G103: Atomic store of unsafe.Pointer to []byte is safe here as we don't modify the slice
	atomic.StorePointer(&currentDate, unsafe.Pointer(&b))
}

// Current returns the current cached date header bytes.
func Current() []byte {
	p := atomic.LoadPointer(&currentDate)
	if p == nil {
		// Fallback if not started yet (shouldn't happen if StartTicker is called)
		return []byte(time.Now().UTC().Format(rfc1123GMT))
	}
	return *(*[]byte)(p)
}
