package app

import (
	"bytes"
	"os"
	"sync"
	"testing"

	"github.com/vk/connectome/internal/hcl"
	"github.com/vk/connectome/internal/registry"
	"github.com/vk/connectome/modules/manifests"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// SetupAppTest creates an app over the embedded tool manifests with debug
// logging captured in the returned buffer. Set CONNECTOME_TEST_LOGS=true to
// print the log of every test.
func SetupAppTest(t *testing.T, cfg *Config, modules ...registry.Module) (*App, *SafeBuffer) {
	t.Helper()

	logBuffer := &SafeBuffer{}
	cfg.LogLevel = "debug"
	testApp := NewApp(logBuffer, cfg, hcl.NewLoader(manifests.FS), modules...)

	t.Cleanup(func() {
		if os.Getenv("CONNECTOME_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}
