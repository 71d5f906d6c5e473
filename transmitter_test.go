package fountain

import (
	"context"
	"errors"
	"math/rand"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pitscout/fountain/internal/fec"
	"github.com/pitscout/fountain/internal/protocol"
	"golang.org/x/time/rate"
)

func getPayload(n int) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(int64(n))).Read(b)
	return b
}

var _ = Describe("Transmitter", func() {
	var payload []byte

	BeforeEach(func() {
		payload = getPayload(1000)
	})

	It("describes the session in its header", func() {
		tx, err := NewTransmitter(payload, &Config{BlockSize: 100, Profile: ProfileReliable})
		Expect(err).ToNot(HaveOccurred())
		Expect(tx.SessionID()).To(HaveLen(2 * sessionIDLen))
		Expect(tx.Header()).To(Equal(SessionHeader{
			K:          10,
			TotalBytes: 1000,
			Checksum:   fec.Checksum(payload),
			Profile:    ProfileReliable,
		}))
	})

	It("uses a new session ID for every transfer", func() {
		tx1, err := NewTransmitter(payload, nil)
		Expect(err).ToNot(HaveOccurred())
		tx2, err := NewTransmitter(payload, nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(tx1.SessionID()).ToNot(Equal(tx2.SessionID()))
	})

	It("repeats the header in compact streams", func() {
		tx, err := NewTransmitter(payload, &Config{HeaderInterval: 4})
		Expect(err).ToNot(HaveOccurred())
		for i := 0; i < 12; i++ {
			p := tx.NextPacket()
			Expect(p.PacketNumber).To(Equal(protocol.PacketNumber(i)))
			if i%4 == 0 {
				Expect(p.Header).ToNot(BeNil())
				Expect(*p.Header).To(Equal(tx.Header()))
			} else {
				Expect(p.Header).To(BeNil())
			}
		}
	})

	It("attaches the header to every legacy packet", func() {
		tx, err := NewTransmitter(payload, &Config{Format: FormatLegacy})
		Expect(err).ToNot(HaveOccurred())
		for i := 0; i < 10; i++ {
			Expect(tx.NextPacket().Header).ToNot(BeNil())
		}
	})

	It("produces frames that decode to the same packets", func() {
		for _, f := range []Format{FormatCompact, FormatLegacy} {
			tx, err := NewTransmitter(payload, &Config{Format: f, Seed: 3})
			Expect(err).ToNot(HaveOccurred())
			for i := 0; i < 20; i++ {
				frame, err := tx.NextFrame()
				Expect(err).ToNot(HaveOccurred())
				p, err := DecodePacket(frame)
				Expect(err).ToNot(HaveOccurred())
				Expect(p.Equal(tx.Packet(protocol.PacketNumber(i)))).To(BeTrue())
			}
		}
	})

	It("restarts the stream on Reset", func() {
		tx, err := NewTransmitter(payload, nil)
		Expect(err).ToNot(HaveOccurred())
		var frames []string
		for i := 0; i < 10; i++ {
			f, err := tx.NextFrame()
			Expect(err).ToNot(HaveOccurred())
			frames = append(frames, f)
		}
		tx.Reset()
		for i := 0; i < 10; i++ {
			f, err := tx.NextFrame()
			Expect(err).ToNot(HaveOccurred())
			Expect(f).To(Equal(frames[i]))
		}
	})

	It("produces the same packets for the same seed", func() {
		tx1, err := NewTransmitter(payload, &Config{Seed: 42})
		Expect(err).ToNot(HaveOccurred())
		tx2, err := NewTransmitter(payload, &Config{Seed: 42})
		Expect(err).ToNot(HaveOccurred())
		for i := 0; i < 10; i++ {
			p1, p2 := tx1.NextPacket(), tx2.NextPacket()
			Expect(p1.Indices).To(Equal(p2.Indices))
			Expect(p1.Data).To(Equal(p2.Data))
		}
	})

	It("rejects invalid input", func() {
		_, err := NewTransmitter(nil, nil)
		Expect(err).To(MatchError(fec.ErrEmptyPayload))
		_, err = NewTransmitter(payload, &Config{BlockSize: protocol.MaxBlockSize + 1})
		Expect(err).To(HaveOccurred())
		_, err = NewTransmitter(payload, &Config{HeaderInterval: -1})
		Expect(err).To(HaveOccurred())
		_, err = NewTransmitter(payload, &Config{Format: Format(7)})
		Expect(err).To(HaveOccurred())
	})

	Context("running the display loop", func() {
		It("stops when the display fails", func() {
			tx, err := NewTransmitter(payload, &Config{FrameRate: rate.Inf})
			Expect(err).ToNot(HaveOccurred())
			testErr := errors.New("screen off")
			var shown []string
			err = tx.Run(context.Background(), func(frame string) error {
				if len(shown) == 5 {
					return testErr
				}
				shown = append(shown, frame)
				return nil
			})
			Expect(err).To(MatchError(testErr))
			Expect(shown).To(HaveLen(5))
			p, err := DecodePacket(shown[0])
			Expect(err).ToNot(HaveOccurred())
			Expect(p.Header).ToNot(BeNil())
		})

		It("stops when the context is cancelled", func() {
			tx, err := NewTransmitter(payload, &Config{FrameRate: 100})
			Expect(err).ToNot(HaveOccurred())
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			var shown int
			err = tx.Run(ctx, func(string) error {
				shown++
				return nil
			})
			Expect(err).To(MatchError(context.DeadlineExceeded))
			Expect(shown).To(BeNumerically("<", 20))
		})
	})
})
