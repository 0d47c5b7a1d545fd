package ctrace_test

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Nordstrom/ctrace-pipeline/core"
	"github.com/Nordstrom/ctrace-pipeline/instrumenter"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

const op = "test"

var _ = Describe("Concurrency", func() {
	It("usage", func() {
		var completed atomic.Int64
		tracer := core.NewWithOptions(core.TracerOptions{
			Writer:                     &core.Buffer{},
			DebugAssertSingleGoroutine: true,
			OnSpanComplete:             func(core.Span) { completed.Add(1) },
		})
		inst := instrumenter.NewBuilder[string, struct{}](tracer, "concurrency", func(s string) string { return s }).
			BuildInstrumenter(instrumenter.AlwaysClient[string]())

		var wg sync.WaitGroup
		const num = 100
		wg.Add(num)
		for i := 0; i < num; i++ {
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				for j := 0; j < num; j++ {
					ctx, sp := tracer.Start(context.Background(), op)
					sp.LogEvent("test event")
					sp.SetTag("foo", "bar")
					sp.SetBaggageItem("boo", "far")
					sp.SetOperationName("x")

					instrumenter.Run(ctx, inst, "outer", func(ctx context.Context) (struct{}, error) {
						return instrumenter.Run(ctx, inst, "inner", func(context.Context) (struct{}, error) {
							return struct{}{}, nil
						})
					})
					sp.Finish()
				}
			}()
		}
		wg.Wait()

		// one span per iteration plus the outer client span; inner is suppressed
		Ω(completed.Load()).Should(Equal(int64(2 * num * num)))
	})
})
