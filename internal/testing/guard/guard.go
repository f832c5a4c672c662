// Package guard forces test mode on for any test binary that imports it,
// keeping runtime side effects out of test runs.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("SMETA_TEST_MODE") == "" {
			_ = os.Setenv("SMETA_TEST_MODE", "1")
		}
	})
}
