package app

import (
	"os"
	"sync"
)

const testModeEnv = "BACKOFFICE_TEST_MODE"

var inTestMode = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})

// InTestMode reports whether the process should skip runtime side effects.
// The mains consult it so package tests can import them without opening
// sockets or pools.
func InTestMode() bool {
	return inTestMode()
}
