package relay

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/ssh"
)

const (
	ctrlC = 0x03
	ctrlD = 0x04
)

var errSessionTerminated = errors.New("session terminated")

// errShellNotRequested indicates the SSH client closed the request stream without asking for a shell.
var errShellNotRequested = errors.New("shell request not received before channel closed")

// HandleSession relays newline-delimited JSON messages between an SSH
// session channel and the hub. Each line read is one inbound message;
// each outbound message is written as one line.
func (h *Hub) HandleSession(ctx context.Context, conn *ssh.ServerConn, channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()

	stop := context.AfterFunc(ctx, func() { channel.Close() })
	defer stop()

	s := &session{
		hub:      h,
		remote:   conn.RemoteAddr().String(),
		channel:  channel,
		requests: requests,
		buffer:   newLineBuffer(maxMessageSize),
		writer:   &sessionWriter{ch: channel},
	}
	s.run()
}

type session struct {
	hub    *Hub
	remote string

	channel  ssh.Channel
	requests <-chan *ssh.Request

	conn   *Conn
	buffer *lineBuffer
	writer *sessionWriter

	workers sync.WaitGroup
	cleanup sync.Once
}

func (s *session) run() {
	defer s.cleanupSession()

	if err := s.awaitShell(); err != nil {
		if !errors.Is(err, errShellNotRequested) {
			s.hub.logger.Printf("relay: ssh session from %s: %v", s.remote, err)
		}
		return
	}

	s.conn = s.hub.Connect()
	s.hub.logger.Printf("relay: ssh %s connected from %s", s.conn.ID, s.remote)
	s.startOutboundRelay()

	if err := s.readLoop(); err != nil && !errors.Is(err, errSessionTerminated) && !errors.Is(err, io.EOF) {
		s.hub.logger.Printf("relay: ssh %s read: %v", s.conn.ID, err)
	}
}

// awaitShell drains SSH channel requests and blocks until the client requests a shell.
func (s *session) awaitShell() error {
	for req := range s.requests {
		if !s.handleRequest(req) {
			continue
		}

		s.startRequestPump()
		return nil
	}
	return errShellNotRequested
}

func (s *session) handleRequest(req *ssh.Request) bool {
	switch req.Type {
	case "shell":
		req.Reply(true, nil)
		return true
	case "pty-req", "env", "window-change":
		req.Reply(true, nil)
	default:
		req.Reply(false, nil)
	}
	return false
}

func (s *session) startRequestPump() {
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		for req := range s.requests {
			s.handleRequest(req)
		}
	}()
}

func (s *session) startOutboundRelay() {
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		for msg := range s.conn.Send() {
			if err := s.writer.writeLine(msg); err != nil {
				return
			}
		}
	}()
}

func (s *session) readLoop() error {
	reader := bufio.NewReader(s.channel)

	for {
		c, err := reader.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.submitLine()
			}
			return err
		}

		// Bytes of multi-byte UTF-8 sequences never collide with these.
		switch c {
		case '\r', '\n':
			s.skipLineFeed(reader, c)
			s.submitLine()
		case ctrlC, ctrlD:
			return errSessionTerminated
		default:
			s.buffer.Append(c)
		}
	}
}

// skipLineFeed consumes the '\n' of a "\r\n" pair.
func (s *session) skipLineFeed(reader *bufio.Reader, c byte) {
	if c != '\r' || reader.Buffered() == 0 {
		return
	}
	if next, err := reader.ReadByte(); err == nil && next != '\n' {
		_ = reader.UnreadByte()
	}
}

func (s *session) submitLine() {
	line, ok := s.buffer.Drain()
	if !ok {
		s.hub.logger.Printf("relay: ssh %s: %v: line exceeds %d bytes", s.conn.ID, ErrMalformedMessage, s.buffer.limit)
		return
	}
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}
	s.hub.dispatch(s.conn, line)
}

func (s *session) cleanupSession() {
	s.cleanup.Do(func() {
		if s.conn != nil {
			s.hub.Disconnect(s.conn)
			s.hub.logger.Printf("relay: ssh %s disconnected", s.conn.ID)
		}
		if s.channel != nil {
			_ = s.channel.Close()
		}
		s.workers.Wait()
	})
}

type sessionWriter struct {
	mu sync.Mutex
	ch ssh.Channel
}

func (w *sessionWriter) writeLine(msg []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// msg is shared between recipients, so never append to it in place.
	line := make([]byte, 0, len(msg)+1)
	line = append(append(line, msg...), '\n')
	if _, err := w.ch.Write(line); err != nil {
		return fmt.Errorf("write line: %w", err)
	}
	return nil
}
