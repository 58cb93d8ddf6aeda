package config_test

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mipssim/config"
)

var _ = Describe("Config", func() {
	It("should validate the defaults", func() {
		Expect(config.DefaultConfig().Validate()).To(Succeed())
	})

	It("should reject zero widths", func() {
		cfg := config.DefaultConfig()
		cfg.Pipeline.IssueWidth = 0
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("issue_width")))
	})

	It("should reject non-power-of-two cache sizes", func() {
		cfg := config.DefaultConfig()
		cfg.DCache.Size = 3000
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("cache_d.size")))
	})

	It("should reject a cache smaller than one set", func() {
		cfg := config.DefaultConfig()
		cfg.ICache.Size = 64
		cfg.ICache.BlockSize = 64
		cfg.ICache.Associativity = 4
		Expect(cfg.Validate()).To(HaveOccurred())
	})

	It("should reject unknown predictor types", func() {
		cfg := config.DefaultConfig()
		cfg.BranchPredictor.Type = "perceptron"
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("predictor")))
	})

	It("should reject a missing execute unit class", func() {
		cfg := config.DefaultConfig()
		delete(cfg.ExecuteUnits, "FPU")
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("FPU")))
	})

	It("should round-trip through a JSON file", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "config.json")

		cfg := config.DefaultConfig()
		cfg.Pipeline.IssueWidth = 2
		cfg.BranchPredictor.Type = config.PredictorBimodal
		Expect(cfg.Save(path)).To(Succeed())

		loaded, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Pipeline.IssueWidth).To(Equal(2))
		Expect(loaded.BranchPredictor.Type).To(Equal(config.PredictorBimodal))
		Expect(loaded.Validate()).To(Succeed())
	})

	It("should fail on a missing file", func() {
		_, err := config.Load("/nonexistent/config.json")
		Expect(err).To(HaveOccurred())
	})
})
