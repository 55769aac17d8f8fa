package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("BACKOFFICE_TEST_MODE", "1")
		if os.Getenv("ISSUER_URL") == "" {
			_ = os.Setenv("ISSUER_URL", "http://127.0.0.1:0")
		}
		if os.Getenv("ISSUER_JWKS_URL") == "" {
			_ = os.Setenv("ISSUER_JWKS_URL", "http://127.0.0.1:0/jwks.json")
		}
		if os.Getenv("ISSUER_ADMIN_URL") == "" {
			_ = os.Setenv("ISSUER_ADMIN_URL", "http://127.0.0.1:0")
		}
		if os.Getenv("ISSUER_ADMIN_TOKEN") == "" {
			_ = os.Setenv("ISSUER_ADMIN_TOKEN", "test-admin-token")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
