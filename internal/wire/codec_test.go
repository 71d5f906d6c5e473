package wire

import (
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pitscout/fountain/internal/protocol"
)

func keysOf(s string) map[string]interface{} {
	m := make(map[string]interface{})
	ExpectWithOffset(1, json.Unmarshal([]byte(s), &m)).To(Succeed())
	return m
}

var _ = Describe("Packet codec", func() {
	legacyPacket := func() *Packet {
		return &Packet{
			SessionID:    "session_123",
			PacketNumber: 3,
			Indices:      []int{2, 8, 11},
			Data:         "payload",
			Header: &SessionHeader{
				K:          44,
				TotalBytes: 520,
				Checksum:   "9999",
			},
		}
	}

	Context("legacy format", func() {
		It("emits the full field set and no tag", func() {
			s, err := Encode(legacyPacket(), FormatLegacy)
			Expect(err).ToNot(HaveOccurred())
			m := keysOf(s)
			Expect(m).To(HaveKeyWithValue("type", protocol.PacketType))
			Expect(m).To(HaveKeyWithValue("sessionId", "session_123"))
			Expect(m).To(HaveKeyWithValue("packetId", BeNumerically("==", 3)))
			Expect(m).To(HaveKeyWithValue("k", BeNumerically("==", 44)))
			Expect(m).To(HaveKeyWithValue("bytes", BeNumerically("==", 520)))
			Expect(m).To(HaveKeyWithValue("checksum", "9999"))
			Expect(m).To(HaveKeyWithValue("indices", []interface{}{2.0, 8.0, 11.0}))
			Expect(m).To(HaveKeyWithValue("data", "payload"))
			Expect(m).ToNot(HaveKey(protocol.RetiredTagField))
			Expect(m).ToNot(HaveKey("profile"))
		})

		It("includes the profile when it is set", func() {
			p := legacyPacket()
			p.Header.Profile = protocol.ProfileReliable
			s, err := Encode(p, FormatLegacy)
			Expect(err).ToNot(HaveOccurred())
			Expect(keysOf(s)).To(HaveKeyWithValue("profile", "reliable"))
		})

		It("round-trips", func() {
			for _, profile := range []protocol.Profile{protocol.ProfileUnset, protocol.ProfileFast, protocol.ProfileReliable} {
				p := legacyPacket()
				p.Header.Profile = profile
				s, err := Encode(p, FormatLegacy)
				Expect(err).ToNot(HaveOccurred())
				got, err := Parse(s)
				Expect(err).ToNot(HaveOccurred())
				Expect(got.Equal(p)).To(BeTrue())
			}
		})

		It("refuses to encode a packet without a header", func() {
			p := legacyPacket()
			p.Header = nil
			_, err := Encode(p, FormatLegacy)
			Expect(err).To(MatchError(ErrMissingHeader))
		})
	})

	Context("compact format", func() {
		It("omits session fields on continuation packets", func() {
			p := &Packet{SessionID: "s", PacketNumber: 9, Indices: []int{0, 4}, Data: "AAEC"}
			s, err := Encode(p, FormatCompact)
			Expect(err).ToNot(HaveOccurred())
			m := keysOf(s)
			Expect(m).To(HaveLen(4))
			Expect(m).To(HaveKey("sessionId"))
			Expect(m).To(HaveKey("packetId"))
			Expect(m).To(HaveKey("indices"))
			Expect(m).To(HaveKey("data"))

			got, err := Parse(s)
			Expect(err).ToNot(HaveOccurred())
			Expect(got.Equal(p)).To(BeTrue())
			Expect(got.Header).To(BeNil())
		})

		It("carries the header on header packets", func() {
			p := legacyPacket()
			p.Header.Profile = protocol.ProfileFast
			s, err := Encode(p, FormatCompact)
			Expect(err).ToNot(HaveOccurred())
			m := keysOf(s)
			Expect(m).To(HaveKeyWithValue("type", protocol.PacketType))
			Expect(m).To(HaveKeyWithValue("profile", "fast"))
			Expect(m).ToNot(HaveKey(protocol.RetiredTagField))

			got, err := Parse(s)
			Expect(err).ToNot(HaveOccurred())
			Expect(got.Equal(p)).To(BeTrue())
		})

		It("round-trips a partial header", func() {
			p := &Packet{
				SessionID:    "session_123",
				PacketNumber: 7,
				Indices:      []int{0},
				Data:         "abcd",
				Header:       &SessionHeader{Profile: protocol.ProfileFast},
			}
			s, err := Encode(p, FormatCompact)
			Expect(err).ToNot(HaveOccurred())
			got, err := Parse(s)
			Expect(err).ToNot(HaveOccurred())
			Expect(got.Equal(p)).To(BeTrue())
		})

		It("decodes a single-block header packet without indices", func() {
			got, err := Parse(`{"type":"fountain","sessionId":"session_123","packetId":7,"profile":"fast","data":"abcd"}`)
			Expect(err).ToNot(HaveOccurred())
			Expect(got.SessionID).To(Equal("session_123"))
			Expect(got.PacketNumber).To(Equal(protocol.PacketNumber(7)))
			Expect(got.Data).To(Equal("abcd"))
			Expect(got.Indices).To(Equal([]int{0}))
			Expect(got.Header).ToNot(BeNil())
			Expect(got.Header.Profile).To(Equal(protocol.ProfileFast))
			payload, err := got.Payload()
			Expect(err).ToNot(HaveOccurred())
			Expect(EncodeData(payload)).To(Equal("abcd"))
		})
	})

	Context("rejecting input", func() {
		DescribeTable("returns a malformed error",
			func(in string) {
				p, err := Parse(in)
				Expect(p).To(BeNil())
				Expect(errors.Is(err, ErrMalformed)).To(BeTrue())
			},
			Entry("empty", ""),
			Entry("plain text", "hello scouts"),
			Entry("a URL", "https://example.com/team/254"),
			Entry("an array", `[1,2,3]`),
			Entry("truncated JSON", `{"type":"fountain","sessionId":"s"`),
			Entry("wrong type", `{"type":"scout","sessionId":"s","packetId":1,"k":1,"bytes":4,"checksum":"c","indices":[0],"data":"abcd"}`),
			Entry("legacy without type", `{"sessionId":"s","packetId":1,"k":1,"bytes":4,"checksum":"c","indices":[0],"data":"abcd"}`),
			Entry("missing session id", `{"type":"fountain","packetId":1,"indices":[0],"data":"abcd"}`),
			Entry("missing packet id", `{"type":"fountain","sessionId":"s","indices":[0],"data":"abcd"}`),
			Entry("missing data", `{"type":"fountain","sessionId":"s","packetId":1,"indices":[0]}`),
			Entry("session id of the wrong type", `{"type":"fountain","sessionId":12,"packetId":1,"indices":[0],"data":"abcd"}`),
			Entry("packet id of the wrong type", `{"type":"fountain","sessionId":"s","packetId":"1","indices":[0],"data":"abcd"}`),
			Entry("indices of the wrong type", `{"type":"fountain","sessionId":"s","packetId":1,"indices":"0","data":"abcd"}`),
			Entry("negative packet id", `{"type":"fountain","sessionId":"s","packetId":-1,"indices":[0],"data":"abcd"}`),
			Entry("negative index", `{"sessionId":"s","packetId":1,"indices":[-2],"data":"abcd"}`),
			Entry("unknown profile", `{"type":"fountain","sessionId":"s","packetId":1,"profile":"turbo","indices":[0],"data":"abcd"}`),
			Entry("legacy with missing indices", `{"type":"fountain","sessionId":"s","packetId":1,"k":1,"bytes":4,"checksum":"c","data":"abcd"}`),
			Entry("legacy with zero k", `{"type":"fountain","sessionId":"s","packetId":1,"k":0,"bytes":4,"checksum":"c","indices":[0],"data":"abcd"}`),
			Entry("continuation without indices", `{"sessionId":"s","packetId":1,"data":"abcd"}`),
			Entry("continuation with empty indices", `{"sessionId":"s","packetId":1,"indices":[],"data":"abcd"}`),
			Entry("session fields without type", `{"sessionId":"s","packetId":1,"k":3,"indices":[0],"data":"abcd"}`),
			Entry("fractional packet id", `{"sessionId":"s","packetId":7.9,"indices":[0],"data":"abcd"}`),
			Entry("fractional index", `{"sessionId":"s","packetId":1,"indices":[0.5],"data":"abcd"}`),
			Entry("exponent k", `{"type":"fountain","sessionId":"s","packetId":1,"k":1e1,"bytes":4,"checksum":"c","indices":[0],"data":"abcd"}`),
			Entry("null packet id", `{"sessionId":"s","packetId":null,"indices":[0],"data":"abcd"}`),
			Entry("null data", `{"sessionId":"s","packetId":1,"indices":[0],"data":null}`),
			Entry("empty data", `{"sessionId":"s","packetId":1,"indices":[0],"data":""}`),
			Entry("trailing garbage", `{"sessionId":"s","packetId":1,"indices":[0],"data":"abcd"} trailing`),
			Entry("two objects", `{"sessionId":"s","packetId":1,"indices":[0],"data":"abcd"}{}`),
			Entry("repeated indices", `{"sessionId":"s","packetId":1,"indices":[0],"indices":[1],"data":"abcd"}`),
			Entry("repeated session id", `{"sessionId":"s","sessionId":"t","packetId":1,"indices":[0],"data":"abcd"}`),
		)

		It("ignores the retired tag field on input", func() {
			p, err := Parse(`{"type":"fountain","tag":"D","sessionId":"s","packetId":1,"k":1,"bytes":4,"checksum":"c","indices":[0],"data":"abcd"}`)
			Expect(err).ToNot(HaveOccurred())
			Expect(p.Header.K).To(Equal(1))
		})
	})
})

var _ = Describe("Packet object pool", func() {
	It("doesn't share indices between parsed packets", func() {
		p1, err := Parse(`{"sessionId":"s","packetId":1,"indices":[1,2,3],"data":"abcd"}`)
		Expect(err).ToNot(HaveOccurred())
		p2, err := Parse(`{"sessionId":"s","packetId":2,"indices":[7,8],"data":"abcd"}`)
		Expect(err).ToNot(HaveOccurred())
		Expect(p1.Indices).To(Equal([]int{1, 2, 3}))
		Expect(p2.Indices).To(Equal([]int{7, 8}))
	})

	It("returns cleared objects", func() {
		o := getPacketObject()
		o.sessionID = "s"
		o.hasType = true
		putPacketObject(o)
		o = getPacketObject()
		defer putPacketObject(o)
		Expect(o.sessionID).To(BeEmpty())
		Expect(o.hasType).To(BeFalse())
	})
})
