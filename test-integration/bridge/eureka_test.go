package integration

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stacklok/toolhive-registry-bridge/internal/registry"
	"github.com/stacklok/toolhive-registry-bridge/internal/status"
	"github.com/stacklok/toolhive-registry-bridge/test-integration/bridge/helpers"
)

var _ = Describe("Eureka Channel Integration", Label("eureka"), func() {
	var (
		tempDir string
		eureka  *helpers.FakeEureka
		bridge  *helpers.BridgeTestHelper
	)

	BeforeEach(func() {
		tempDir = createTempDir("eureka-test-")
		eureka = helpers.NewFakeEureka(helpers.CreateTestInstances("billing", 2)...)

		configFile := helpers.WriteConfigYAML(tempDir,
			helpers.EurekaChannelConfig(eureka.Endpoint(), "300ms", ""))

		var err error
		bridge, err = helpers.NewBridgeTestHelper(ctx, configFile)
		Expect(err).NotTo(HaveOccurred())
		Expect(bridge.StartBridge()).To(Succeed())
		bridge.WaitForReady(10 * time.Second)
	})

	AfterEach(func() {
		Expect(bridge.StopBridge()).To(Succeed())
		eureka.Close()
		cleanupTempDir(tempDir)
	})

	Context("Mirroring a healthy source", func() {
		It("should register every instance", func() {
			Eventually(bridge.InstanceIDs, 5*time.Second, 100*time.Millisecond).
				Should(ConsistOf("billing-1", "billing-2"))

			ch := bridge.Channel("legacy")
			Expect(ch.Phase).To(Equal(status.ChannelPhaseActive))
			Expect(ch.InstanceCount).To(Equal(2))
			Expect(ch.TotalOperations.Registered).To(Equal(2))
		})

		It("should propagate status changes as updates", func() {
			changed := helpers.CreateTestInstances("billing", 2)[1]
			changed.Status = "OUT_OF_SERVICE"
			eureka.Put(changed)

			Eventually(func() registry.Status {
				for _, inst := range bridge.Instances().Instances {
					if inst.ID == "billing-2" {
						return inst.Status
					}
				}
				return ""
			}, 5*time.Second, 100*time.Millisecond).Should(Equal(registry.StatusOutOfService))

			Eventually(func() int {
				return bridge.Channel("legacy").TotalOperations.Updated
			}, 5*time.Second, 100*time.Millisecond).Should(BeNumerically(">=", 1))
		})

		It("should unregister removed instances immediately when eviction is disabled", func() {
			eureka.Remove("billing-1")

			Eventually(bridge.InstanceIDs, 5*time.Second, 100*time.Millisecond).
				Should(ConsistOf("billing-2"))

			evictionView := bridge.Eviction()
			Expect(evictionView.Enabled).To(BeFalse())
		})
	})

	Context("When the source fails", func() {
		It("should degrade and keep the mirrored instances", func() {
			Eventually(bridge.InstanceIDs, 5*time.Second, 100*time.Millisecond).Should(HaveLen(2))

			eureka.SetFailing(true)
			Eventually(func() status.ChannelPhase {
				return bridge.Channel("legacy").Phase
			}, 5*time.Second, 100*time.Millisecond).Should(Equal(status.ChannelPhaseDegraded))

			Consistently(bridge.InstanceIDs, time.Second, 100*time.Millisecond).Should(HaveLen(2))
			Expect(bridge.Channel("legacy").ConsecutiveFailures).To(BeNumerically(">=", 1))

			eureka.SetFailing(false)
			Eventually(func() status.ChannelPhase {
				return bridge.Channel("legacy").Phase
			}, 5*time.Second, 100*time.Millisecond).Should(Equal(status.ChannelPhaseActive))
		})
	})
})
