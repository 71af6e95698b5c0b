package logger_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/nestlog/pkg/logger"
)

func decodeLines(b []byte) []map[string]any {
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		var m map[string]any
		ExpectWithOffset(1, json.Unmarshal(sc.Bytes(), &m)).To(Succeed())
		out = append(out, m)
	}
	return out
}

var _ = Describe("Logger", func() {
	DescribeTable("ParseFormat",
		func(in string, want logger.Format) {
			f, err := logger.ParseFormat(in)
			Expect(err).NotTo(HaveOccurred())
			Expect(f).To(Equal(want))
		},
		Entry("empty is auto", "", logger.FormatAuto),
		Entry("auto", "auto", logger.FormatAuto),
		Entry("case and spaces", " JSON ", logger.FormatJSON),
		Entry("pretty", "pretty", logger.FormatPretty),
		Entry("text", "text", logger.FormatText),
	)

	It("rejects an unknown format", func() {
		_, err := logger.ParseFormat("xml")
		Expect(err).To(MatchError(ContainSubstring(`unknown log format "xml"`)))
	})

	DescribeTable("ParseLevel",
		func(in string, want slog.Level) {
			l, err := logger.ParseLevel(in)
			Expect(err).NotTo(HaveOccurred())
			Expect(l).To(Equal(want))
		},
		Entry("empty is info", "", slog.LevelInfo),
		Entry("debug", "debug", slog.LevelDebug),
		Entry("upper case warn", "WARN", slog.LevelWarn),
		Entry("error", "error", slog.LevelError),
	)

	It("rejects an unknown level", func() {
		_, err := logger.ParseLevel("chatty")
		Expect(err).To(HaveOccurred())
	})

	Describe("New", func() {
		It("writes text at info by default", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf))
			l.Debug("nap started")
			l.Info("feed recorded", "profile", "p1")

			Expect(buf.String()).NotTo(ContainSubstring("nap started"))
			Expect(buf.String()).To(ContainSubstring("msg=\"feed recorded\" profile=p1"))
		})

		It("lets debug win over a configured level", func() {
			var buf bytes.Buffer
			l := logger.New(
				logger.WithWriter(&buf),
				logger.WithLevel(slog.LevelWarn),
				logger.WithDebug(true),
			)
			l.Debug("stage timing")
			Expect(buf.String()).To(ContainSubstring("stage timing"))
		})

		It("keeps the configured level when debug is off", func() {
			var buf bytes.Buffer
			l := logger.New(
				logger.WithWriter(&buf),
				logger.WithLevel(slog.LevelWarn),
				logger.WithDebug(false),
			)
			l.Info("sweep finished")
			l.Warn("origin left unprocessed", "origin", "o-1")

			lines := buf.String()
			Expect(lines).NotTo(ContainSubstring("sweep finished"))
			Expect(lines).To(ContainSubstring("origin left unprocessed"))
		})

		It("writes JSON records with group prefixes", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithFormat(logger.FormatJSON))
			l.WithGroup("pipeline").Info("stage done", "stage", "extract", "ms", 12)

			recs := decodeLines(buf.Bytes())
			Expect(recs).To(HaveLen(1))
			Expect(recs[0]).To(HaveKeyWithValue("msg", "stage done"))
			Expect(recs[0]).To(HaveKeyWithValue("pipeline", SatisfyAll(
				HaveKeyWithValue("stage", "extract"),
				HaveKeyWithValue("ms", BeNumerically("==", 12)),
			)))
		})

		It("falls back to JSON for auto when the writer is not a terminal", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithFormat(logger.FormatAuto))
			l.Info("captured by a supervisor")

			Expect(decodeLines(buf.Bytes())).To(ConsistOf(HaveKeyWithValue("msg", "captured by a supervisor")))
		})

		It("renders pretty output without JSON", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithFormat(logger.FormatPretty))
			l.Info("timeline projected", "entries", 2)

			Expect(buf.String()).To(ContainSubstring("timeline projected"))
			Expect(json.Valid(bytes.TrimSpace(buf.Bytes()))).To(BeFalse())
		})

		It("copies to every writer", func() {
			var a, b bytes.Buffer
			l := logger.New(logger.WithWriters(&a, &b))
			l.Info("reply sent")

			Expect(a.String()).To(ContainSubstring("reply sent"))
			Expect(b.String()).To(Equal(a.String()))
		})

		It("adds the source location when asked", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithFormat(logger.FormatJSON), logger.WithSource(true))
			l.Info("with caller")

			Expect(decodeLines(buf.Bytes())[0]).To(HaveKey(slog.SourceKey))
		})
	})

	Describe("Multi", func() {
		It("applies each handler's own level", func() {
			var console, audit bytes.Buffer
			l := logger.Multi(
				logger.New(logger.WithWriter(&console), logger.WithLevel(slog.LevelWarn)),
				logger.New(logger.WithWriter(&audit), logger.WithFormat(logger.FormatJSON), logger.WithLevel(slog.LevelDebug)),
			)
			l.Debug("classifier picked data_logging")
			l.Warn("profile lookup timed out")

			Expect(console.String()).NotTo(ContainSubstring("classifier"))
			Expect(console.String()).To(ContainSubstring("profile lookup timed out"))
			Expect(decodeLines(audit.Bytes())).To(HaveLen(2))
		})

		It("carries attributes into every handler", func() {
			var a, b bytes.Buffer
			l := logger.Multi(
				logger.New(logger.WithWriter(&a), logger.WithFormat(logger.FormatJSON)),
				logger.New(logger.WithWriter(&b), logger.WithFormat(logger.FormatJSON)),
			).With("component", "ingest")
			l.Info("message accepted")

			for _, buf := range []*bytes.Buffer{&a, &b} {
				Expect(decodeLines(buf.Bytes())[0]).To(HaveKeyWithValue("component", "ingest"))
			}
		})

		It("keeps writing when one handler fails", func() {
			var good bytes.Buffer
			l := logger.Multi(
				logger.New(logger.WithWriter(failingWriter{}), logger.WithFormat(logger.FormatJSON)),
				logger.New(logger.WithWriter(&good), logger.WithFormat(logger.FormatJSON)),
			)
			l.Error("publish failed")

			Expect(decodeLines(good.Bytes())).To(ConsistOf(HaveKeyWithValue("msg", "publish failed")))
		})
	})

	Describe("Tee", func() {
		It("appends JSON records to the log file", func() {
			path := filepath.Join(GinkgoT().TempDir(), "nestlog.json")
			Expect(os.WriteFile(path, []byte(`{"msg":"earlier run"}`+"\n"), 0o644)).To(Succeed())

			var console bytes.Buffer
			base := logger.New(logger.WithWriter(&console))
			l, closeLog, err := logger.Tee(base, path, slog.LevelInfo)
			Expect(err).NotTo(HaveOccurred())

			l.Debug("not kept")
			l.Info("origin appended", "origin", "o-1")
			Expect(closeLog()).To(Succeed())

			Expect(console.String()).To(ContainSubstring("origin appended"))
			data, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())
			recs := decodeLines(data)
			Expect(recs).To(HaveLen(2))
			Expect(recs[0]).To(HaveKeyWithValue("msg", "earlier run"))
			Expect(recs[1]).To(HaveKeyWithValue("origin", "o-1"))
		})

		It("fails when the file cannot be opened", func() {
			missing := filepath.Join(GinkgoT().TempDir(), "no", "such", "dir", "nestlog.json")
			_, _, err := logger.Tee(logger.Nop(), missing, slog.LevelInfo)
			Expect(err).To(MatchError(ContainSubstring("opening log file")))
		})
	})

	It("Nop discards everything", func() {
		l := logger.Nop()
		Expect(l.Enabled(context.Background(), slog.LevelError)).To(BeFalse())
		l.Error("dropped")
	})
})

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }
