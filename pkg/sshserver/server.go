package sshserver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"

	"golang.org/x/crypto/ssh"
)

// SessionHandler handles an accepted SSH "session" channel. ctx is
// cancelled when the server shuts down.
type SessionHandler func(ctx context.Context, conn *ssh.ServerConn, channel ssh.Channel, requests <-chan *ssh.Request)

// Server wraps the SSH listener lifecycle.
type Server struct {
	Addr   string
	Config *ssh.ServerConfig

	logger *log.Logger
	conns  sync.WaitGroup
}

// New creates a Server with the provided host signer. Clients are not
// authenticated.
func New(addr string, signer ssh.Signer, logger *log.Logger) *Server {
	cfg := &ssh.ServerConfig{
		NoClientAuth: true,
	}
	cfg.AddHostKey(signer)

	if logger == nil {
		logger = log.Default()
	}

	return &Server{
		Addr:   addr,
		Config: cfg,
		logger: logger,
	}
}

// ListenAndServe listens on s.Addr and serves until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, handler SessionHandler) error {
	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("sshserver: listen %q: %w", s.Addr, err)
	}
	return s.Serve(ctx, listener, handler)
}

// Serve accepts connections on listener until the context is cancelled or
// an error occurs, then waits for open connections to finish. The listener
// is closed on return.
func (s *Server) Serve(ctx context.Context, listener net.Listener, handler SessionHandler) error {
	if handler == nil {
		listener.Close()
		return errors.New("sshserver: session handler required")
	}
	defer s.conns.Wait()
	defer listener.Close()

	stop := context.AfterFunc(ctx, func() {
		if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Printf("sshserver: listener close error: %v", err)
		}
	})
	defer stop()

	s.logger.Printf("sshserver: listening on %s", listener.Addr())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.logger.Printf("sshserver: accept error: %v", err)
			continue
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handleConn(ctx, conn, handler)
		}()
	}
}

func (s *Server) handleConn(ctx context.Context, tcpConn net.Conn, handler SessionHandler) {
	defer tcpConn.Close()

	sshConn, chans, reqs, err := ssh.NewServerConn(tcpConn, s.Config)
	if err != nil {
		s.logger.Printf("sshserver: handshake failed: %v", err)
		return
	}
	defer sshConn.Close()

	s.logger.Printf("sshserver: new connection from %s (%s)", sshConn.RemoteAddr(), sshConn.ClientVersion())

	go ssh.DiscardRequests(reqs)

	var sessions sync.WaitGroup
	defer sessions.Wait()

	for {
		select {
		case <-ctx.Done():
			sshConn.Close()
			return
		case newChannel, ok := <-chans:
			if !ok {
				return
			}
			if newChannel.ChannelType() != "session" {
				newChannel.Reject(ssh.UnknownChannelType, "only session channels are supported")
				continue
			}

			channel, requests, err := newChannel.Accept()
			if err != nil {
				s.logger.Printf("sshserver: channel accept failed: %v", err)
				continue
			}

			sessions.Add(1)
			go func() {
				defer sessions.Done()
				handler(ctx, sshConn, channel, requests)
			}()
		}
	}
}
