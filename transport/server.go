// Package transport is the network front door spec.md §7 (C7) describes: a
// plain-text, line-based request/reply protocol — deliberately not RESP
// (spec.md's non-goals exclude full Redis protocol compatibility, so
// github.com/tidwall/redcon, which the teacher's controller/respserver uses
// for exactly this role, is not wired in here; see SPEC_FULL.md §11) and
// deliberately not a ZeroMQ REQ/REP socket like `original_source/server.py`,
// since no ZMQ binding appears anywhere in the retrieval pack.
// Framing: a client writes one command per line; a server reply is zero or
// more lines of output followed by one blank line marking the reply's end.
package transport

import (
	"bufio"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/radishkv/radishkv/internal/logging"
	"github.com/radishkv/radishkv/session"
)

// Server accepts TCP connections and routes every line from every
// connection through one shared session.Session, serialized by sessMu.
// spec.md §1/§2 is explicit that "each server process owns at most one
// active dataset at a time" and that fan-out across clients beyond serial
// request/reply is a non-goal — the Python original enforces the same thing
// structurally, since `original_source/server.py` answers one ZeroMQ REQ/REP
// socket that can only have one request in flight at all. A plain TCP
// listener can still be asked to accept more than one connection, so the
// mutex is what makes this server behave the same way: whichever
// connection's line reaches sess.Execute first runs to completion before
// the next one, from any connection, is processed.
type Server struct {
	addr string

	sessMu sync.Mutex
	sess   *session.Session

	mu           sync.Mutex
	listener     net.Listener
	stopChan     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// New constructs a Server listening on addr, with one process-wide
// session.Session built from cfg.
func New(addr string, cfg session.Config) *Server {
	return &Server{
		addr:     addr,
		sess:     session.New(cfg),
		stopChan: make(chan struct{}),
	}
}

// ListenAndServe accepts connections until Shutdown is called, returning nil
// on an orderly shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("transport.ListenAndServe: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	logging.Noticef("listening on %s", s.addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.stopChan:
				s.wg.Wait()
				return nil
			default:
				return fmt.Errorf("transport.ListenAndServe: accept: %w", err)
			}
		}

		s.wg.Add(1)
		go s.handle(conn)
	}
}

// Addr returns the address the server is actually listening on, once
// ListenAndServe has bound it — useful when addr was given as "host:0" and
// the OS picked the port, e.g. in tests.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting new connections, closes whatever dataset the
// shared session has selected (an orderly EXIT, allowing an in-flight
// snapshot to finish per spec.md §5), and closes the listener. Connections
// that are already open are not closed: each keeps being served, with no
// dataset selected, until its client disconnects, and ListenAndServe returns
// only after all of them have. Safe to call more than once — EXIT on any connection and a shutdown signal
// can both race to call it, so only the first call does anything.
func (s *Server) Shutdown() error {
	var err error
	s.shutdownOnce.Do(func() {
		close(s.stopChan)

		s.sessMu.Lock()
		s.sess.Close()
		s.sessMu.Unlock()

		s.mu.Lock()
		ln := s.listener
		s.mu.Unlock()
		if ln != nil {
			err = ln.Close()
		}
	})
	return err
}

// executeLocked runs one line through the shared session under sessMu,
// recovering from any panic that escapes dispatch (an assert.True failure in
// core or durability, say) and turning it into the "Internal error" reply
// spec.md §7 reserves for that category, instead of taking the whole server
// down over one bad command.
func (s *Server) executeLocked(connID, line string) (output string, shouldExit bool) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			logging.Errorf("conn %s: recovered from panic: %v", connID, r)
			output, shouldExit = "Internal error", false
		}
	}()

	return s.sess.Execute(line)
}

func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	id := uuid.New().String()
	logging.Infof("conn %s: accepted from %s", id, conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	writer := bufio.NewWriter(conn)

	for scanner.Scan() {
		line := scanner.Text()
		logging.Debugf("conn %s: %s", id, line)

		output, shouldExit := s.executeLocked(id, line)

		if output != "" {
			fmt.Fprintln(writer, output)
		}
		fmt.Fprintln(writer) // blank line marks the reply's end
		if err := writer.Flush(); err != nil {
			logging.Warningf("conn %s: write error: %s", id, err)
			return
		}

		if shouldExit {
			// spec.md §6: EXIT "terminates client/server session" — since
			// the process has exactly one session (spec.md §1/§2), any
			// client's EXIT ends the whole server, the same way
			// `original_source/engine.py`'s Session.__cmd_exit calls
			// sys.exit(0) regardless of which transport is driving it.
			logging.Notice("EXIT received, shutting down")
			go s.Shutdown()
			break
		}
	}

	if err := scanner.Err(); err != nil {
		logging.Warningf("conn %s: read error: %s", id, err)
	}
	logging.Infof("conn %s: closed", id)
}
