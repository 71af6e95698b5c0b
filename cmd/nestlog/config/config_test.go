package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/nestlog/cmd/nestlog/config"
	"github.com/papercomputeco/nestlog/pkg/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))

		names := []string{}
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir string
		out    *bytes.Buffer
	)

	execute := func(args ...string) error {
		cmd := configcmder.NewConfigCmd()
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		Expect(os.MkdirAll(filepath.Join(tmpDir, ".nestlog"), 0o755)).To(Succeed())

		origDir, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tmpDir)).To(Succeed())
		DeferCleanup(os.Chdir, origDir)

		out = &bytes.Buffer{}
	})

	Describe("set", func() {
		It("writes config.toml", func() {
			Expect(execute("set", "model.provider", "anthropic")).To(Succeed())

			cfger, err := config.NewConfiger("")
			Expect(err).NotTo(HaveOccurred())
			cfg, err := cfger.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Model.Provider).To(Equal("anthropic"))
			Expect(out.String()).To(ContainSubstring("model.provider"))
		})

		It("splits broker lists", func() {
			Expect(execute("set", "eventstream.brokers", "k1:9092, k2:9092")).To(Succeed())

			cfger, err := config.NewConfiger("")
			Expect(err).NotTo(HaveOccurred())
			cfg, err := cfger.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.EventStream.Brokers).To(Equal([]string{"k1:9092", "k2:9092"}))
		})

		It("rejects unknown keys", func() {
			Expect(execute("set", "proxy.upstream", "x")).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("rejects invalid numbers", func() {
			Expect(execute("set", "projector.workers", "lots")).To(HaveOccurred())
		})

		It("requires exactly two arguments", func() {
			Expect(execute("set", "model.provider")).To(HaveOccurred())
			Expect(execute("set")).To(HaveOccurred())
		})
	})

	Describe("get", func() {
		It("prints a previously set value", func() {
			Expect(execute("set", "projector.sweep_schedule", "@every 1m")).To(Succeed())
			out.Reset()

			Expect(execute("get", "projector.sweep_schedule")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("@every 1m"))
		})

		It("falls back to the defaults for unset keys", func() {
			Expect(execute("get", "storage.driver")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("sqlite"))
		})

		It("rejects unknown keys", func() {
			Expect(execute("get", "nope")).To(HaveOccurred())
		})
	})

	Describe("list", func() {
		It("prints every key", func() {
			Expect(execute("list")).To(Succeed())
			for _, key := range config.ValidConfigKeys() {
				Expect(out.String()).To(ContainSubstring(key))
			}
		})
	})
})
