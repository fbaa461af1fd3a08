// Package server accepts connections and drives each one through the
// HTTP/1.0 request/response exchange.
package server

import (
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog"
)

// Server owns the listening socket, the scheduler and the worker pool.
type Server struct {
	cfg   Config
	h     *Handler
	sched *Scheduler
	log   zerolog.Logger
}

func New(cfg Config, h *Handler, log zerolog.Logger) *Server {
	return &Server{
		cfg:   cfg,
		h:     h,
		sched: NewScheduler(cfg.Buffers, cfg.SchedAlg),
		log:   log,
	}
}

// ListenAndServe binds the configured address and serves until accepting
// fails for good.
func (s *Server) ListenAndServe() error {
	addr := s.cfg.ListenAddr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen error: %w", err)
	}
	defer ln.Close()
	return s.Serve(ln)
}

// Serve accepts connections on ln. Each connection is read and resolved on
// its own goroutine, then queued for a worker to answer. Serve only returns
// once ln is closed or broken.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info().
		Str("addr", ln.Addr().String()).
		Int("threads", s.cfg.Threads).
		Int("buffers", s.cfg.Buffers).
		Str("sched", s.cfg.SchedAlg).
		Str("dir", s.cfg.DocRoot).
		Str("cgi", s.cfg.CGIDir).
		Msg("listening")

	for i := 0; i < s.cfg.Threads; i++ {
		go s.worker(i)
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.log.Warn().Err(err).Msg("accept error")
			continue
		}
		go s.prepare(conn)
	}
}

func (s *Server) prepare(conn net.Conn) {
	defer s.recover(conn)
	s.sched.Enqueue(s.h.Prepare(conn))
}

func (s *Server) worker(id int) {
	log := s.log.With().Int("worker", id).Logger()
	for {
		ex := s.sched.Dequeue()
		log.Debug().Str("request", ex.record.RequestLine).Msg("handling")
		s.finish(ex)
	}
}

func (s *Server) finish(ex *Exchange) {
	defer s.recover(ex.conn)
	s.h.Finish(ex)
}

// recover keeps a failing exchange from taking the process down.
func (s *Server) recover(conn net.Conn) {
	if r := recover(); r != nil {
		s.log.Error().Interface("panic", r).Str("remote", remoteIP(conn)).Msg("exchange aborted")
		conn.Close()
	}
}
