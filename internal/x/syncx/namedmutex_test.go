package syncx_test

import (
	"context"
	"time"

	. "github.com/dogmatiq/retrospect/internal/x/syncx"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("type MutexNamespace", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		ns     *MutexNamespace
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 1*time.Second)
		ns = &MutexNamespace{}
	})

	AfterEach(func() {
		cancel()
	})

	Describe("func Lock()", func() {
		It("locks mutexes with distinct names independently", func() {
			unlockA, err := ns.Lock(ctx, "<a>")
			Expect(err).ShouldNot(HaveOccurred())
			defer unlockA()

			unlockB, err := ns.Lock(ctx, "<b>")
			Expect(err).ShouldNot(HaveOccurred())
			unlockB()
		})

		It("blocks until the mutex with the same name is unlocked", func() {
			unlock, err := ns.Lock(ctx, "<name>")
			Expect(err).ShouldNot(HaveOccurred())

			acquired := make(chan struct{})

			go func() {
				defer GinkgoRecover()

				u, err := ns.Lock(ctx, "<name>")
				Expect(err).ShouldNot(HaveOccurred())
				defer u()

				close(acquired)
			}()

			Consistently(acquired, "50ms").ShouldNot(BeClosed())

			unlock()
			Eventually(acquired).Should(BeClosed())
		})

		It("returns an error when the context is canceled while blocked", func() {
			unlock, err := ns.Lock(ctx, "<name>")
			Expect(err).ShouldNot(HaveOccurred())
			defer unlock()

			blockedCtx, cancelBlocked := context.WithCancel(ctx)
			cancelBlocked()

			_, err = ns.Lock(blockedCtx, "<name>")
			Expect(err).To(Equal(context.Canceled))
		})

		It("tolerates unlocking more than once", func() {
			unlock, err := ns.Lock(ctx, "<name>")
			Expect(err).ShouldNot(HaveOccurred())

			unlock()
			Expect(unlock).NotTo(Panic())
		})
	})
})
