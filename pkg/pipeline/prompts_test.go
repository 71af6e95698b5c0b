package pipeline_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/nestlog/pkg/pipeline"
)

var _ = Describe("Prompts", func() {
	It("lists every category in the extractor prompt", func() {
		p := pipeline.DefaultPrompts()
		Expect(p.Extractor).To(ContainSubstring("- feeding: bottle, breast, formula"))
		Expect(p.Extractor).To(ContainSubstring("- note: general, curriculum, other"))
	})

	It("returns the defaults for an empty path", func() {
		p, err := pipeline.LoadPrompts("")
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(Equal(pipeline.DefaultPrompts()))
	})

	It("overlays only the fields set in the file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "prompts.yaml")
		Expect(os.WriteFile(path, []byte("classifier: custom classifier\nreplies:\n  no_events: Nothing to log.\n"), 0o600)).To(Succeed())

		p, err := pipeline.LoadPrompts(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Classifier).To(Equal("custom classifier"))
		Expect(p.Replies.NoEvents).To(Equal("Nothing to log."))
		Expect(p.Extractor).To(Equal(pipeline.DefaultPrompts().Extractor))
		Expect(p.Replies.Logged).To(Equal(pipeline.DefaultPrompts().Replies.Logged))
	})

	It("fails on a missing file", func() {
		_, err := pipeline.LoadPrompts(filepath.Join(GinkgoT().TempDir(), "nope.yaml"))
		Expect(err).To(MatchError(ContainSubstring("reading prompts file")))
	})
})

var _ = Describe("Emitter", func() {
	It("drops updates after close without panicking", func() {
		em := pipeline.NewEmitter(4)
		em.Emit(pipeline.Progress{Stage: pipeline.StageContext, Status: pipeline.StatusStarted})
		em.Close()
		em.Close()
		em.Emit(pipeline.Progress{Stage: pipeline.StageContext, Status: pipeline.StatusCompleted})

		Expect(em.Dropped()).To(Equal(1))
		Eventually(em.Updates()).Should(Receive())
		Eventually(em.Updates()).Should(BeClosed())
	})

	It("discards everything when nil", func() {
		var em *pipeline.Emitter
		Expect(func() {
			em.Emit(pipeline.Progress{})
			em.Close()
		}).NotTo(Panic())
		Expect(em.Dropped()).To(BeZero())
	})
})
