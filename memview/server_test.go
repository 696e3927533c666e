package memview

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tombergan/minidump/minidump"
	"github.com/tombergan/minidump/minidump/minidumptest"
)

func testDump() *minidump.File {
	b := &minidumptest.Builder{Flags: minidump.MiniDumpWithFullMemory}
	b.AddStream(minidump.SystemInfoStream, []byte("sysinfo"))
	b.AddMemory64List(
		minidumptest.Region{Addr: 0x10000, Data: []byte("first needle here")},
		minidumptest.Region{Addr: 0x20000, Data: []byte("no match")},
		minidumptest.Region{Addr: 0x30000, Data: []byte("needle\x00\x01needle")},
	)
	f, err := minidump.NewFile(bytes.NewReader(b.Bytes()))
	Expect(err).ToNot(HaveOccurred())
	return f
}

var _ = Describe("Server", func() {
	var (
		s  *Server
		ts *httptest.Server
	)

	BeforeEach(func() {
		s = NewServer(testDump(), "test.dmp")
		s.profileDuration = 10 * time.Millisecond
		ts = httptest.NewServer(s.Router())
	})

	AfterEach(func() {
		ts.Close()
	})

	get := func(path string) (int, []byte) {
		rsp, err := http.Get(ts.URL + path)
		Expect(err).ToNot(HaveOccurred())
		defer rsp.Body.Close()
		body, err := io.ReadAll(rsp.Body)
		Expect(err).ToNot(HaveOccurred())
		return rsp.StatusCode, body
	}

	getJSON := func(path string, v any) {
		code, body := get(path)
		Expect(code).To(Equal(http.StatusOK), string(body))
		Expect(json.Unmarshal(body, v)).To(Succeed())
	}

	It("should describe the dump", func() {
		var rsp dumpRsp
		getJSON("/api/dump", &rsp)

		Expect(rsp.Name).To(Equal("test.dmp"))
		Expect(rsp.Flags).To(Equal("WithFullMemory"))
		Expect(rsp.NumberOfStreams).To(Equal(uint32(2)))
		Expect(rsp.NumSegments).To(Equal(3))
		Expect(rsp.TotalSize).To(Equal("0x27"))
	})

	It("should serialize the header", func() {
		code, body := get("/api/header")

		Expect(code).To(Equal(http.StatusOK))
		Expect(body).ToNot(BeEmpty())
	})

	It("should list streams", func() {
		var rsp []streamRsp
		getJSON("/api/streams", &rsp)

		Expect(rsp).To(HaveLen(2))
		Expect(rsp[0].Name).To(Equal("SystemInfoStream"))
		Expect(rsp[0].Size).To(Equal(uint32(7)))
		Expect(rsp[1].Type).To(Equal(uint32(minidump.Memory64ListStream)))
	})

	It("should list segments", func() {
		var rsp []segmentRsp
		getJSON("/api/segments", &rsp)

		Expect(rsp).To(HaveLen(3))
		Expect(rsp[2].VAStart).To(Equal("0x30000"))
		Expect(rsp[2].VAEnd).To(Equal("0x3000e"))
		Expect(rsp[2].Size).To(Equal("0xe"))
	})

	Context("when reading", func() {
		It("should return raw bytes", func() {
			code, body := get("/api/read/0x10006/6")

			Expect(code).To(Equal(http.StatusOK))
			Expect(string(body)).To(Equal("needle"))
		})

		It("should return a hexdump", func() {
			code, body := get("/api/read/65536/5?format=hexdump")

			Expect(code).To(Equal(http.StatusOK))
			Expect(string(body)).To(Equal(minidump.Hexdump([]byte("first"), 0x10000)))
		})

		It("should return json", func() {
			var rsp struct {
				Address string `json:"address"`
				Data    string `json:"data"`
			}
			getJSON("/api/read/0x30006/2?format=json", &rsp)

			Expect(rsp.Address).To(Equal("0x30006"))
			Expect(rsp.Data).To(Equal("0001"))
		})

		DescribeTable("should map errors to status codes",
			func(path string, code int) {
				got, _ := get(path)
				Expect(got).To(Equal(code))
			},
			Entry("unmapped", "/api/read/0x40000/1", http.StatusNotFound),
			Entry("crosses segment end", "/api/read/0x20004/8", http.StatusRequestedRangeNotSatisfiable),
			Entry("bad address", "/api/read/zzz/1", http.StatusBadRequest),
			Entry("too large", "/api/read/0x10000/0x10000000", http.StatusBadRequest),
			Entry("bad format", "/api/read/0x10000/1?format=xml", http.StatusBadRequest),
		)
	})

	Context("when searching", func() {
		It("should return every match", func() {
			var rsp searchRsp
			getJSON("/api/search?pattern=needle", &rsp)

			Expect(rsp.Pattern).To(Equal("6e6565646c65"))
			Expect(rsp.Matches).To(Equal([]string{"0x10006", "0x30000", "0x30008"}))
		})

		It("should return the first match", func() {
			var rsp searchRsp
			getJSON("/api/search?pattern=6e6565646c65&hex=true&first=true&chunk=3", &rsp)

			Expect(rsp.Matches).To(Equal([]string{"0x10006"}))
		})

		It("should return an empty list when nothing matches", func() {
			var rsp searchRsp
			getJSON("/api/search?pattern=haystack", &rsp)

			Expect(rsp.Matches).To(BeEmpty())
			Expect(rsp.Matches).ToNot(BeNil())
		})

		DescribeTable("should reject bad requests",
			func(query string) {
				code, _ := get("/api/search?" + query)
				Expect(code).To(Equal(http.StatusBadRequest))
			},
			Entry("missing pattern", ""),
			Entry("bad hex", "pattern=xyz&hex=1"),
			Entry("bad chunk", "pattern=a&chunk=-4"),
		)

		It("should stream progress over a websocket", func() {
			url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/search/stream?pattern=needle"
			c, _, err := websocket.DefaultDialer.Dial(url, nil)
			Expect(err).ToNot(HaveOccurred())
			defer c.Close()

			var msgs []SearchProgress
			for {
				var msg SearchProgress
				Expect(c.ReadJSON(&msg)).To(Succeed())
				msgs = append(msgs, msg)
				if msg.Done {
					break
				}
			}

			Expect(msgs).To(HaveLen(4))
			Expect(msgs[0].Matches).To(Equal([]string{"0x10006"}))
			Expect(msgs[1].Matches).To(BeEmpty())
			Expect(msgs[2].Matches).To(Equal([]string{"0x30000", "0x30008"}))
			Expect(msgs[3].Segment).To(Equal(3))
		})
	})

	It("should report resource usage", func() {
		var rsp resourceRsp
		getJSON("/api/resource", &rsp)

		Expect(rsp.MemorySize).To(BeNumerically(">", 0))
	})

	It("should collect a CPU profile", func() {
		var rsp map[string]any
		getJSON("/api/profile", &rsp)

		Expect(rsp).To(HaveKey("SampleType"))
	})

	DescribeTable("should choose the listen address",
		func(port int, want string) {
			Expect(s.WithPortNumber(port).listenAddress()).To(Equal(want))
		},
		Entry("unset", 0, ":0"),
		Entry("reserved", 80, ":0"),
		Entry("lowest allowed", 1000, ":1000"),
		Entry("high", 8080, ":8080"),
	)

	It("should wait for running streams on shutdown", func() {
		Expect(s.startStream()).To(BeTrue())

		done := make(chan error)
		go func() { done <- s.Shutdown(context.Background()) }()

		Eventually(s.stopCtx.Done()).Should(BeClosed())
		Consistently(done, 50*time.Millisecond).ShouldNot(Receive())
		s.streams.Done()
		Eventually(done).Should(Receive(BeNil()))

		Expect(s.startStream()).To(BeFalse())
		url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/search/stream?pattern=needle"
		_, rsp, err := websocket.DefaultDialer.Dial(url, nil)
		Expect(err).To(HaveOccurred())
		Expect(rsp.StatusCode).To(Equal(http.StatusServiceUnavailable))
	})

	It("should give up waiting when the shutdown context ends", func() {
		Expect(s.startStream()).To(BeTrue())
		defer s.streams.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		Expect(s.Shutdown(ctx)).To(MatchError(context.DeadlineExceeded))
	})

	It("should log progress that cannot be sent", func() {
		conns := make(chan *websocket.Conn, 1)
		ws := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			c, err := upgrader.Upgrade(w, r, nil)
			Expect(err).ToNot(HaveOccurred())
			conns <- c
		}))
		defer ws.Close()

		client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ws.URL, "http"), nil)
		Expect(err).ToNot(HaveOccurred())
		defer client.Close()

		var logs bytes.Buffer
		log.SetOutput(&logs)
		defer log.SetOutput(os.Stderr)

		c := <-conns
		Expect(sendProgress(c, SearchProgress{Segment: 0, Segments: 1})).To(BeTrue())
		c.Close()
		Expect(sendProgress(c, SearchProgress{Segment: 1, Segments: 1, Done: true})).To(BeFalse())
		Expect(logs.String()).To(ContainSubstring("memview: websocket write"))
	})

	It("should serve on a random port", func() {
		s.WithPortNumber(80)
		url, err := s.StartServer()
		Expect(err).ToNot(HaveOccurred())
		defer s.Shutdown(context.Background())

		rsp, err := http.Get(url + "/api/segments")
		Expect(err).ToNot(HaveOccurred())
		rsp.Body.Close()
		Expect(rsp.StatusCode).To(Equal(http.StatusOK))
	})
})
