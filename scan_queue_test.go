package fountain

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Scan queue", func() {
	var q *ScanQueue

	BeforeEach(func() {
		q = NewScanQueue(3)
	})

	It("queues texts in order", func() {
		Expect(q.Add("a")).To(Succeed())
		Expect(q.Add("b")).To(Succeed())
		Expect(q.Len()).To(Equal(2))
		s, ok := q.Peek()
		Expect(ok).To(BeTrue())
		Expect(s).To(Equal("a"))
		q.Pop()
		s, ok = q.Peek()
		Expect(ok).To(BeTrue())
		Expect(s).To(Equal("b"))
		q.Pop()
		_, ok = q.Peek()
		Expect(ok).To(BeFalse())
	})

	It("rejects texts when full", func() {
		for i := 0; i < 3; i++ {
			Expect(q.Add("frame")).To(Succeed())
		}
		Expect(q.Add("frame")).To(MatchError(ErrQueueFull))
		q.Pop()
		Expect(q.Add("frame")).To(Succeed())
	})

	It("rejects texts after Close", func() {
		q.Close()
		Expect(q.Add("frame")).To(MatchError(ErrQueueClosed))
	})

	It("uses a default length", func() {
		q := NewScanQueue(0)
		for i := 0; i < DefaultScanQueueLen; i++ {
			Expect(q.Add("frame")).To(Succeed())
		}
		Expect(q.Add("frame")).To(MatchError(ErrQueueFull))
	})

	Context("consuming", func() {
		It("feeds a collector until the queue is closed", func() {
			payload := getPayload(800)
			tx, err := NewTransmitter(payload, &Config{BlockSize: 80})
			Expect(err).ToNot(HaveOccurred())
			handler := NewMockPayloadHandler(mockCtrl)
			done := make(chan struct{})
			handler.EXPECT().HandlePayload(tx.SessionID(), payload).Do(func(string, []byte) { close(done) })
			c, err := NewCollector(&Config{Handler: handler})
			Expect(err).ToNot(HaveOccurred())

			q := NewScanQueue(16)
			errChan := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				errChan <- c.Consume(context.Background(), q)
			}()

		scan:
			for {
				select {
				case <-done:
					break scan
				default:
				}
				f, err := tx.NextFrame()
				Expect(err).ToNot(HaveOccurred())
				if err := q.Add(f); err != nil {
					Expect(err).To(MatchError(ErrQueueFull))
					time.Sleep(time.Millisecond)
				}
			}
			q.Close()
			Eventually(errChan).Should(Receive(BeNil()))
		})

		It("returns the close error after draining", func() {
			c, err := NewCollector(nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(q.Add("junk")).To(Succeed())
			Expect(q.Add("more junk")).To(Succeed())
			testErr := errors.New("camera closed")
			q.CloseWithError(testErr)
			Expect(c.Consume(context.Background(), q)).To(MatchError(testErr))
			Expect(q.Len()).To(BeZero())
		})

		It("stops when the context is cancelled", func() {
			c, err := NewCollector(nil)
			Expect(err).ToNot(HaveOccurred())
			ctx, cancel := context.WithCancel(context.Background())
			errChan := make(chan error, 1)
			go func() { errChan <- c.Consume(ctx, q) }()
			Consistently(errChan).ShouldNot(Receive())
			cancel()
			Eventually(errChan).Should(Receive(MatchError(context.Canceled)))
		})
	})
})
