package core

import (
	"context"
	"os"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Tracer Internals", func() {
	Describe("New", func() {
		It("fills in every default", func() {
			t := New().(*tracer)
			Ω(t.options.Writer == os.Stdout).Should(BeTrue())
			Ω(t.options.MultiEvent).Should(BeTrue())
			Ω(t.options.Reporter).ShouldNot(BeNil())
			Ω(t.options.Sampler(0)).Should(BeTrue())
			Ω(t.options.Clock).ShouldNot(BeNil())
			Ω(t.options.Propagator.Fields()).Should(ContainElements("ct-trace-id", "traceparent"))
		})
	})

	Describe("parents", func() {
		var (
			buf Buffer
			trc *tracer
		)

		BeforeEach(func() {
			buf.Reset()
			trc = NewWithOptions(TracerOptions{Writer: &buf}).(*tracer)
		})

		It("marks spans continuing an extracted context", func() {
			remote := NewRemoteSpanContext(MustTraceID("0000000000000000000000000000007b"), MustSpanID("00000000000001c8"), true, nil)
			_, sp := trc.Start(ContextWithRemoteSpanContext(context.Background(), remote), "server")
			sp.End(time.Time{})

			Ω(sp.(*span).parentRemote).Should(BeTrue())
			Ω(buf.String()).Should(ContainSubstring(`"parentId":"00000000000001c8","parentRemote":true,"operation":"server"`))
		})

		It("leaves local parents unmarked", func() {
			ctx, parent := trc.Start(context.Background(), "parent")
			_, child := trc.Start(ctx, "child")
			child.End(time.Time{})
			parent.End(time.Time{})

			Ω(child.(*span).parentRemote).Should(BeFalse())
			Ω(buf.String()).ShouldNot(ContainSubstring("parentRemote"))
		})
	})
})
