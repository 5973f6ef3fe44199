// Package wsock pushes output streams to websocket clients, such as the VR
// feedback scene. Every sample is one binary message of little-endian float32
// values.
package wsock

import (
	"context"
	"encoding/binary"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
)

var logger = logging.Logger("wsock")

const writeWait = 100 * time.Millisecond

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server serves one endpoint per stream, "/" followed by the stream name.
type Server struct {
	addr string
	mux  *http.ServeMux

	mu      sync.Mutex
	streams map[string]*Stream
}

// New returns a server that will listen on addr.
func New(addr string) *Server {
	return &Server{
		addr:    addr,
		mux:     http.NewServeMux(),
		streams: make(map[string]*Stream),
	}
}

// Stream returns the named stream, registering its endpoint on first use.
func (s *Server) Stream(name string) *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.streams[name]; ok {
		return st
	}

	st := &Stream{
		name:  name,
		conns: make(map[*websocket.Conn]struct{}),
	}

	s.streams[name] = st
	s.mux.HandleFunc("/"+name, st.serve)

	return st
}

// Handler returns the http handler of all streams.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run listens until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.mux,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	logger.Infow("websocket server started", "addr", s.addr)

	select {
	case err := <-errc:
		return errors.Wrap(err, "websocket server failed")

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	}
}

// Stream broadcasts the vectors written to it.
type Stream struct {
	name string

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
	buf   []byte
}

// Clients returns the number of connected clients.
func (st *Stream) Clients() int {
	st.mu.Lock()
	defer st.mu.Unlock()

	return len(st.conns)
}

// Write sends v to every client. Clients that fail to keep up are dropped.
func (st *Stream) Write(v []float32) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if len(st.conns) == 0 {
		return nil
	}

	if cap(st.buf) < 4*len(v) {
		st.buf = make([]byte, 4*len(v))
	}
	st.buf = st.buf[:4*len(v)]

	for i, x := range v {
		binary.LittleEndian.PutUint32(st.buf[i*4:], math.Float32bits(x))
	}

	deadline := time.Now().Add(writeWait)

	for conn := range st.conns {
		conn.SetWriteDeadline(deadline)

		if err := conn.WriteMessage(websocket.BinaryMessage, st.buf); err != nil {
			logger.Warnw("dropping client", "stream", st.name, "remote", conn.RemoteAddr().String(), "err", err)
			delete(st.conns, conn)
			conn.Close()
		}
	}

	return nil
}

func (st *Stream) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnw("upgrade failed", "stream", st.name, "err", err)
		return
	}

	st.mu.Lock()
	st.conns[conn] = struct{}{}
	st.mu.Unlock()

	logger.Infow("client connected", "stream", st.name, "remote", conn.RemoteAddr().String())

	defer func() {
		st.mu.Lock()
		delete(st.conns, conn)
		st.mu.Unlock()
		conn.Close()
	}()

	// clients only listen, reading keeps control frames flowing
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
