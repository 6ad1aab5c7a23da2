package integration

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var (
	ctx    context.Context
	cancel context.CancelFunc
)

func TestBridgeIntegration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Registry Bridge Integration Suite")
}

var _ = BeforeSuite(func() {
	// Per-tick logs go to the Ginkgo writer so they only show up for failing specs
	ctx, cancel = context.WithCancel(logr.NewContext(context.TODO(), GinkgoLogr))
})

var _ = AfterSuite(func() {
	cancel()
})

// createTempDir creates a temporary directory for test files
func createTempDir(prefix string) string {
	dir, err := os.MkdirTemp("", prefix)
	Expect(err).NotTo(HaveOccurred())
	return dir
}

// cleanupTempDir removes a temporary directory
func cleanupTempDir(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		By(fmt.Sprintf("Warning: failed to cleanup temp dir %s: %v", dir, err))
	}
}
