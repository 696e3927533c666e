// Package memview serves the memory of a minidump over HTTP.
package memview

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/tombergan/minidump/minidump"
)

// MaxReadSize is the largest read served by /api/read.
const MaxReadSize = 16 << 20

// Server serves one dump. Each request gets its own AddressSpace, so
// requests may run concurrently.
type Server struct {
	file            *minidump.File
	name            string
	portNumber      int
	chunkSize       int
	profileDuration time.Duration

	httpServer *http.Server
	listener   net.Listener

	// Websocket searches outlive http.Server.Shutdown, so they are tracked
	// here and stopped before the dump can be closed.
	streamsMu   sync.Mutex
	streams     sync.WaitGroup
	stopCtx     context.Context
	stopStreams context.CancelFunc
}

// NewServer creates a server for f. name is shown to clients.
func NewServer(f *minidump.File, name string) *Server {
	s := &Server{
		file:            f,
		name:            name,
		chunkSize:       minidump.DefaultChunkSize,
		profileDuration: time.Second,
	}
	s.stopCtx, s.stopStreams = context.WithCancel(context.Background())
	return s
}

// WithPortNumber sets the port number of the server. Zero and ports below
// 1000 select a random port.
func (s *Server) WithPortNumber(portNumber int) *Server {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the memory viewer, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	s.portNumber = portNumber

	return s
}

// WithChunkSize sets the chunk size used by first-match searches.
func (s *Server) WithChunkSize(chunkSize int) *Server {
	s.chunkSize = chunkSize
	return s
}

// Router returns the HTTP routes of the server.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/dump", s.describeDump).Methods(http.MethodGet)
	r.HandleFunc("/api/header", s.serializeHeader).Methods(http.MethodGet)
	r.HandleFunc("/api/streams", s.listStreams).Methods(http.MethodGet)
	r.HandleFunc("/api/segments", s.listSegments).Methods(http.MethodGet)
	r.HandleFunc("/api/read/{va}/{len}", s.read).Methods(http.MethodGet)
	r.HandleFunc("/api/search", s.search).Methods(http.MethodGet)
	r.HandleFunc("/api/search/stream", s.searchStream)
	r.HandleFunc("/api/resource", s.listResources).Methods(http.MethodGet)
	r.HandleFunc("/api/profile", s.collectProfile).Methods(http.MethodGet)

	return r
}

func (s *Server) listenAddress() string {
	if s.portNumber >= 1000 {
		return ":" + strconv.Itoa(s.portNumber)
	}
	return ":0"
}

// StartServer listens on the configured port and serves in the background.
// It returns the URL of the server.
func (s *Server) StartServer() (string, error) {
	listener, err := net.Listen("tcp", s.listenAddress())
	if err != nil {
		return "", err
	}

	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	url := fmt.Sprintf("http://localhost:%d", listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Serving %s at %s\n", s.name, url)

	go func() {
		err := s.httpServer.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("memview: %v", err)
		}
	}()

	return url, nil
}

// Shutdown stops a server started with StartServer. It cancels running
// websocket searches and waits for them, so the dump may be closed once it
// returns nil.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.streamsMu.Lock()
	s.stopStreams()
	s.streamsMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.streams.Wait()
		close(done)
	}()
	select {
	case <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("memview: writing response: %v", err)
	}
}

// httpError writes err with a status code derived from its kind.
func httpError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest):
		code = http.StatusBadRequest
	case errors.Is(err, minidump.ErrAddressNotMapped), errors.Is(err, minidump.ErrNoMemoryStream):
		code = http.StatusNotFound
	case errors.Is(err, minidump.ErrOutOfRange):
		code = http.StatusRequestedRangeNotSatisfiable
	case errors.Is(err, minidump.ErrEmptyPattern):
		code = http.StatusBadRequest
	}
	http.Error(w, err.Error(), code)
}

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func hexAddr(x uint64) string {
	return fmt.Sprintf("0x%x", x)
}

type dumpRsp struct {
	Name            string `json:"name"`
	Time            string `json:"time"`
	Flags           string `json:"flags"`
	NumberOfStreams uint32 `json:"number_of_streams"`
	NumSegments     int    `json:"num_segments"`
	TotalSize       string `json:"total_size"`
}

func (s *Server) describeDump(w http.ResponseWriter, _ *http.Request) {
	h := s.file.Header
	rsp := dumpRsp{
		Name:            s.name,
		Time:            h.Time().Format(time.RFC3339),
		Flags:           h.Flags.String(),
		NumberOfStreams: h.NumberOfStreams,
	}
	if segs, err := s.file.Segments(); err == nil {
		rsp.NumSegments = len(segs)
		rsp.TotalSize = hexAddr(segs.TotalSize())
	}
	writeJSON(w, rsp)
}

func (s *Server) serializeHeader(w http.ResponseWriter, _ *http.Request) {
	h := s.file.Header

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&h)
	serializer.SetMaxDepth(1)

	w.Header().Set("Content-Type", "application/json")
	if err := serializer.Serialize(w); err != nil {
		log.Printf("memview: serializing header: %v", err)
	}
}

type streamRsp struct {
	Index int    `json:"index"`
	Type  uint32 `json:"type"`
	Name  string `json:"name"`
	Rva   uint32 `json:"rva"`
	Size  uint32 `json:"size"`
}

func (s *Server) listStreams(w http.ResponseWriter, _ *http.Request) {
	rsp := make([]streamRsp, 0, len(s.file.Streams))
	for k, d := range s.file.Streams {
		rsp = append(rsp, streamRsp{
			Index: k,
			Type:  uint32(d.StreamType),
			Name:  d.StreamType.String(),
			Rva:   d.Location.Rva,
			Size:  d.Location.DataSize,
		})
	}
	writeJSON(w, rsp)
}

type segmentRsp struct {
	Index   int    `json:"index"`
	VAStart string `json:"va_start"`
	VAEnd   string `json:"va_end"`
	RVA     string `json:"rva"`
	Size    string `json:"size"`
}

func (s *Server) listSegments(w http.ResponseWriter, _ *http.Request) {
	segs, err := s.file.Segments()
	if err != nil {
		httpError(w, err)
		return
	}

	rsp := make([]segmentRsp, 0, len(segs))
	for k, seg := range segs {
		rsp = append(rsp, segmentRsp{
			Index:   k,
			VAStart: hexAddr(seg.StartVirtualAddress()),
			VAEnd:   hexAddr(seg.EndVirtualAddress()),
			RVA:     hexAddr(seg.StartFileAddress()),
			Size:    hexAddr(seg.Size()),
		})
	}
	writeJSON(w, rsp)
}

// read serves /api/read/{va}/{len}. Both values accept a 0x prefix. The
// format query parameter selects raw bytes (default), hexdump, or json.
func (s *Server) read(w http.ResponseWriter, r *http.Request) {
	va, err := strconv.ParseUint(mux.Vars(r)["va"], 0, 64)
	if err != nil {
		httpError(w, badRequest("bad address %q", mux.Vars(r)["va"]))
		return
	}
	n, err := strconv.ParseUint(mux.Vars(r)["len"], 0, 64)
	if err != nil || n > MaxReadSize {
		httpError(w, badRequest("bad length %q (max %d)", mux.Vars(r)["len"], MaxReadSize))
		return
	}

	as, err := s.file.AddressSpace()
	if err != nil {
		httpError(w, err)
		return
	}
	data, err := as.ReadContext(r.Context(), va, n)
	if err != nil {
		httpError(w, err)
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "raw":
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(data)
	case "hexdump":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, minidump.Hexdump(data, va))
	case "json":
		writeJSON(w, struct {
			Address string `json:"address"`
			Data    string `json:"data"`
		}{hexAddr(va), hex.EncodeToString(data)})
	default:
		httpError(w, badRequest("unknown format %q", format))
	}
}

type searchReq struct {
	pattern   []byte
	findFirst bool
	chunkSize int
}

// parseSearch reads the pattern, hex, first, and chunk query parameters.
func (s *Server) parseSearch(r *http.Request) (searchReq, error) {
	q := r.URL.Query()
	req := searchReq{
		pattern:   []byte(q.Get("pattern")),
		findFirst: q.Get("first") == "true" || q.Get("first") == "1",
		chunkSize: s.chunkSize,
	}
	if q.Get("hex") == "true" || q.Get("hex") == "1" {
		p, err := hex.DecodeString(q.Get("pattern"))
		if err != nil {
			return req, badRequest("bad hex pattern: %v", err)
		}
		req.pattern = p
	}
	if len(req.pattern) == 0 {
		return req, badRequest("missing pattern")
	}
	if c := q.Get("chunk"); c != "" {
		n, err := strconv.Atoi(c)
		if err != nil || n <= 0 {
			return req, badRequest("bad chunk size %q", c)
		}
		req.chunkSize = n
	}
	return req, nil
}

type searchRsp struct {
	Pattern string   `json:"pattern"`
	Matches []string `json:"matches"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseSearch(r)
	if err != nil {
		httpError(w, err)
		return
	}

	as, err := s.file.AddressSpace()
	if err != nil {
		httpError(w, err)
		return
	}
	matches, err := as.SearchContext(r.Context(), req.pattern, req.findFirst, req.chunkSize)
	if err != nil {
		httpError(w, err)
		return
	}

	rsp := searchRsp{Pattern: hex.EncodeToString(req.pattern), Matches: []string{}}
	for _, va := range matches {
		rsp.Matches = append(rsp.Matches, hexAddr(va))
	}
	writeJSON(w, rsp)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SearchProgress is one websocket message of /api/search/stream. A message
// is sent after each segment is searched; the last one has Done set.
type SearchProgress struct {
	Segment  int      `json:"segment"`
	Segments int      `json:"segments"`
	Matches  []string `json:"matches,omitempty"`
	Done     bool     `json:"done,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// searchStream searches segment by segment and reports progress over a
// websocket. The search stops early when the client goes away.
func (s *Server) searchStream(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseSearch(r)
	if err != nil {
		httpError(w, err)
		return
	}
	segs, err := s.file.Segments()
	if err != nil {
		httpError(w, err)
		return
	}

	if !s.startStream() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.streams.Done()

	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("memview: websocket upgrade: %v", err)
		return
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	defer context.AfterFunc(s.stopCtx, cancel)()

	src := s.file.NewSource()
	found := false
	for k, seg := range segs {
		if req.findFirst && found {
			break
		}
		matches, err := seg.SearchContext(ctx, req.pattern, src, req.findFirst, req.chunkSize)
		msg := SearchProgress{Segment: k, Segments: len(segs)}
		if err != nil {
			msg.Error = err.Error()
			msg.Done = true
			sendProgress(c, msg)
			return
		}
		for _, va := range matches {
			msg.Matches = append(msg.Matches, hexAddr(va))
		}
		found = found || len(matches) > 0
		if !sendProgress(c, msg) {
			return
		}
	}

	sendProgress(c, SearchProgress{Segment: len(segs), Segments: len(segs), Done: true})
}

// sendProgress writes msg to c and logs a failed write.
func sendProgress(c *websocket.Conn, msg SearchProgress) bool {
	if err := c.WriteJSON(msg); err != nil {
		log.Printf("memview: websocket write: %v", err)
		return false
	}
	return true
}

// startStream registers a websocket search unless Shutdown has begun.
func (s *Server) startStream() bool {
	s.streamsMu.Lock()
	defer s.streamsMu.Unlock()
	if s.stopCtx.Err() != nil {
		return false
	}
	s.streams.Add(1)
	return true
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (s *Server) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		httpError(w, err)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		httpError(w, err)
		return
	}

	memorySize, err := proc.MemoryInfo()
	if err != nil {
		httpError(w, err)
		return
	}

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (s *Server) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		httpError(w, err)
		return
	}

	time.Sleep(s.profileDuration)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		httpError(w, err)
		return
	}

	writeJSON(w, prof)
}
