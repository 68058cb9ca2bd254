package config_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/arm-ooo/oocpu/config"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Config", func() {
	It("Default passes Validate", func() {
		Expect(config.Default().Validate()).NotTo(HaveOccurred())
	})

	It("rejects a phys_reg_count too small to back every architectural register", func() {
		cfg := config.Default()
		cfg.PhysRegCount = 4
		Expect(cfg.Validate()).To(HaveOccurred())
	})

	It("rejects a zero width", func() {
		cfg := config.Default()
		cfg.IssueNWide = 0
		Expect(cfg.Validate()).To(HaveOccurred())
	})

	It("round-trips through Save/Load", func() {
		cfg := config.Default()
		cfg.ROBCapacity = 7
		cfg.Trace.Retire = true

		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "cfg.json")
		Expect(cfg.Save(path)).NotTo(HaveOccurred())

		loaded, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.ROBCapacity).To(Equal(7))
		Expect(loaded.Trace.Retire).To(BeTrue())
	})

	It("Load on a partial file keeps defaults for omitted fields", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "partial.json")
		Expect(os.WriteFile(path, []byte(`{"rob_capacity": 9}`), 0o644)).NotTo(HaveOccurred())

		loaded, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.ROBCapacity).To(Equal(9))
		Expect(loaded.EUCount).To(Equal(config.Default().EUCount))
	})

	It("Clone returns an independent copy", func() {
		cfg := config.Default()
		clone := cfg.Clone()
		clone.ROBCapacity = 999
		Expect(cfg.ROBCapacity).NotTo(Equal(999))
	})
})
