package servecmder_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	servecmder "github.com/papercomputeco/nestlog/cmd/nestlog/serve"
	"github.com/papercomputeco/nestlog/pkg/config"
	"github.com/papercomputeco/nestlog/pkg/logger"
)

var _ = Describe("NewStack", func() {
	var (
		ctx context.Context
		cfg *config.Config
	)

	BeforeEach(func() {
		ctx = context.Background()
		cfg = config.NewDefaultConfig()
		cfg.Storage.Driver = "memory"
		cfg.Projector.SweepSchedule = ""
	})

	It("builds the in-memory stack", func() {
		st, err := servecmder.NewStack(ctx, cfg, "", logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Service).NotTo(BeNil())
		Expect(st.Sweeper).NotTo(BeNil())
		Expect(st.Metrics).NotTo(BeNil())

		res, err := st.Sweeper.Sweep(ctx, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Scanned).To(BeZero())

		Expect(st.Close()).To(Succeed())
	})

	It("creates the default SQLite database in the config dir", func() {
		dir := GinkgoT().TempDir()
		cfg.Storage.Driver = "sqlite"

		st, err := servecmder.NewStack(ctx, cfg, dir, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(st.Close)

		_, err = os.Stat(filepath.Join(dir, "nestlog.db"))
		Expect(err).NotTo(HaveOccurred())
	})

	It("loads static profiles from the configured file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "profiles.toml")
		Expect(os.WriteFile(path, []byte("[[profiles]]\nid = \"mia\"\nname = \"Mia\"\n"), 0o600)).To(Succeed())
		cfg.Profiles.Target = path

		st, err := servecmder.NewStack(ctx, cfg, "", logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(st.Close)

		watchCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			st.WatchProfiles(watchCtx)
			close(done)
		}()
		cancel()
		Eventually(done).Should(BeClosed())
	})

	DescribeTable("rejects bad settings",
		func(mutate func(*config.Config), msg string) {
			mutate(cfg)
			_, err := servecmder.NewStack(ctx, cfg, "", logger.Nop())
			Expect(err).To(MatchError(ContainSubstring(msg)))
		},
		Entry("storage driver", func(c *config.Config) { c.Storage.Driver = "mongo" }, "unsupported storage driver"),
		Entry("postgres without dsn", func(c *config.Config) { c.Storage.Driver = "postgres" }, "postgres_dsn"),
		Entry("event stream", func(c *config.Config) { c.EventStream.Provider = "nats" }, "unsupported event stream provider"),
		Entry("memory provider", func(c *config.Config) { c.Memory.Provider = "redis" }, "unsupported memory provider"),
		Entry("model provider", func(c *config.Config) { c.Model.Provider = "gemini" }, "unsupported provider"),
		Entry("profiles provider", func(c *config.Config) { c.Profiles.Provider = "ldap" }, "unsupported profiles provider"),
		Entry("http profiles without target", func(c *config.Config) { c.Profiles.Provider = "http" }, "profiles.target"),
	)
})
