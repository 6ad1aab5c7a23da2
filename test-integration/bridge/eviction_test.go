package integration

import (
	"fmt"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	v1 "github.com/stacklok/toolhive-registry-bridge/internal/api/v1"
	"github.com/stacklok/toolhive-registry-bridge/test-integration/bridge/helpers"
)

var _ = Describe("Redis Sink With Eviction", Label("redis", "eviction"), func() {
	var (
		tempDir string
		eureka  *helpers.FakeEureka
		redis   *miniredis.Miniredis
		bridge  *helpers.BridgeTestHelper
	)

	startBridge := func(roundInterval string) {
		configFile := helpers.WriteConfigYAML(tempDir, helpers.EurekaChannelConfig(eureka.Endpoint(), "300ms",
			fmt.Sprintf(`eviction:
  enabled: true
  strategy: unconditional
  roundInterval: %s
sink:
  type: redis
  redis:
    address: %s
    prefix: it
`, roundInterval, redis.Addr())))

		var err error
		bridge, err = helpers.NewBridgeTestHelper(ctx, configFile)
		Expect(err).NotTo(HaveOccurred())
		Expect(bridge.StartBridge()).To(Succeed())
		bridge.WaitForReady(10 * time.Second)
		Eventually(bridge.InstanceIDs, 5*time.Second, 100*time.Millisecond).Should(HaveLen(3))
	}

	BeforeEach(func() {
		bridge = nil
		tempDir = createTempDir("eviction-test-")
		eureka = helpers.NewFakeEureka(helpers.CreateTestInstances("search", 3)...)
		redis = miniredis.RunT(GinkgoT())
	})

	AfterEach(func() {
		if bridge != nil {
			Expect(bridge.StopBridge()).To(Succeed())
		}
		eureka.Close()
		cleanupTempDir(tempDir)
	})

	It("should store instances as redis hashes", func() {
		startBridge("1h")

		Expect(redis.Exists("it:instance:search-1")).To(BeTrue())
		members, err := redis.SMembers("it:ids")
		Expect(err).NotTo(HaveOccurred())
		Expect(members).To(ConsistOf("search-1", "search-2", "search-3"))
	})

	It("should queue a disappearing instance and cancel it when it returns", func() {
		startBridge("1h")

		removed := helpers.CreateTestInstances("search", 3)[2]
		eureka.Remove(removed.InstanceID)

		Eventually(func() []v1.Candidate {
			return bridge.Eviction().Candidates
		}, 5*time.Second, 100*time.Millisecond).Should(ContainElement(
			HaveField("ID", removed.InstanceID)))
		Expect(bridge.Eviction().Strategy).To(Equal("unconditional"))

		// Still registered until a round authorizes the eviction
		Expect(bridge.InstanceIDs()).To(ContainElement(removed.InstanceID))

		eureka.Put(removed)
		Eventually(func() []v1.Candidate {
			return bridge.Eviction().Candidates
		}, 5*time.Second, 100*time.Millisecond).Should(BeEmpty())
		Expect(bridge.InstanceIDs()).To(HaveLen(3))
	})

	It("should evict queued instances on the next round", func() {
		startBridge("500ms")

		eureka.Remove("search-1")

		Eventually(bridge.InstanceIDs, 5*time.Second, 100*time.Millisecond).
			Should(ConsistOf("search-2", "search-3"))
		Expect(redis.Exists("it:instance:search-1")).To(BeFalse())
		Eventually(func() int {
			return bridge.Channel("legacy").TotalOperations.Unregistered
		}, 5*time.Second, 100*time.Millisecond).Should(Equal(1))
	})
})
