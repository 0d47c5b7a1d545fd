package scope_test

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Nordstrom/ctrace-pipeline/core"
	"github.com/Nordstrom/ctrace-pipeline/scope"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type key string

var _ = Describe("Scope", func() {
	It("defaults to the background context", func() {
		Ω(scope.Current()).Should(Equal(context.Background()))
	})

	It("restores the previous context on close", func() {
		outer := context.WithValue(context.Background(), key("k"), "outer")
		inner := context.WithValue(context.Background(), key("k"), "inner")

		s1 := scope.MakeCurrent(outer)
		s2 := scope.MakeCurrent(inner)
		Ω(scope.Current().Value(key("k"))).Should(Equal("inner"))

		s2.Close()
		Ω(scope.Current().Value(key("k"))).Should(Equal("outer"))
		s2.Close()
		Ω(scope.Current().Value(key("k"))).Should(Equal("outer"))

		s1.Close()
		Ω(scope.Current()).Should(Equal(context.Background()))
	})

	It("restores its own predecessor when closed out of order", func() {
		a := context.WithValue(context.Background(), key("k"), "a")
		b := context.WithValue(context.Background(), key("k"), "b")

		base := scope.MakeCurrent(context.WithValue(context.Background(), key("k"), "base"))
		sa := scope.MakeCurrent(a)
		sb := scope.MakeCurrent(b)
		sa.Close()
		Ω(scope.Current().Value(key("k"))).Should(Equal("base"))
		sb.Close()
		Ω(scope.Current().Value(key("k"))).Should(Equal("a"))
		base.Close()
		Ω(scope.Current()).Should(Equal(context.Background()))
	})

	It("keeps contexts per goroutine", func() {
		s := scope.MakeCurrent(context.WithValue(context.Background(), key("k"), "main"))
		defer s.Close()

		var seen interface{}
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen = scope.Current().Value(key("k"))
		}()
		wg.Wait()
		Ω(seen).Should(BeNil())
	})

	Describe("slot storage", func() {
		It("shares one current context", func() {
			st := scope.NewSlotStorage()
			ctx := context.WithValue(context.Background(), key("k"), "slot")
			c := scope.Capture(ctx)
			s := c.ActivateIn(st)

			var seen interface{}
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				seen = st.Get().Value(key("k"))
			}()
			wg.Wait()
			Ω(seen).Should(Equal("slot"))

			s.Close()
			Ω(st.Get()).Should(BeNil())
		})
	})
})

var _ = Describe("Continuation", func() {
	var (
		trc       core.Tracer
		completed int32
	)

	BeforeEach(func() {
		atomic.StoreInt32(&completed, 0)
		trc = core.NewWithOptions(core.TracerOptions{
			Writer: &core.Buffer{},
			OnSpanComplete: func(core.Span) {
				atomic.AddInt32(&completed, 1)
			},
		})
	})

	It("round trips the span to another goroutine", func() {
		ctx, sp := trc.Start(context.Background(), "parent")
		c := scope.Capture(ctx)
		sp.Finish()
		Ω(atomic.LoadInt32(&completed)).Should(BeZero())

		var seen core.Span
		done := make(chan struct{})
		go func() {
			defer close(done)
			s := c.Activate()
			defer s.Close()
			seen = core.SpanFromContext(scope.Current())
		}()
		<-done

		Ω(seen).Should(Equal(sp))
		Ω(atomic.LoadInt32(&completed)).Should(Equal(int32(1)))
	})

	It("releases exactly once when closed twice", func() {
		ctx, sp := trc.Start(context.Background(), "parent")
		c1 := scope.Capture(ctx)
		c2 := scope.Capture(ctx)
		sp.Finish()

		c1.Close()
		c1.Close()
		Ω(atomic.LoadInt32(&completed)).Should(BeZero())

		c2.Close()
		Ω(atomic.LoadInt32(&completed)).Should(Equal(int32(1)))
	})

	It("closing the scope and the continuation releases once", func() {
		ctx, sp := trc.Start(context.Background(), "parent")
		c1 := scope.Capture(ctx)
		c2 := scope.Capture(ctx)
		sp.Finish()

		s := c1.Activate()
		s.Close()
		c1.Close()
		s.Close()
		Ω(atomic.LoadInt32(&completed)).Should(BeZero())
		c2.Close()
		Ω(atomic.LoadInt32(&completed)).Should(Equal(int32(1)))
	})

	It("captures the current context", func() {
		ctx, sp := trc.Start(context.Background(), "parent")
		s := scope.MakeCurrent(ctx)
		c := scope.CaptureCurrent()
		s.Close()

		Ω(core.SpanFromContext(c.Context())).Should(Equal(sp))
		c.Close()
	})

	It("carries a completed span without retaining it", func() {
		ctx, sp := trc.Start(context.Background(), "parent")
		sp.Finish()
		Ω(atomic.LoadInt32(&completed)).Should(Equal(int32(1)))

		c := scope.Capture(ctx)
		Ω(c.Context()).Should(Equal(ctx))
		c.Activate().Close()
		c.Close()
		Ω(atomic.LoadInt32(&completed)).Should(Equal(int32(1)))
	})

	It("does not release again on a second activation", func() {
		ctx, sp := trc.Start(context.Background(), "parent")
		c1 := scope.Capture(ctx)
		c2 := scope.Capture(ctx)
		sp.Finish()

		c1.Activate().Close()
		s := c1.Activate()
		Ω(core.SpanFromContext(scope.Current())).Should(Equal(sp))
		s.Close()
		Ω(atomic.LoadInt32(&completed)).Should(BeZero())
		c2.Close()
		Ω(atomic.LoadInt32(&completed)).Should(Equal(int32(1)))
	})
})
