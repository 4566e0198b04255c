package testserver

import (
	"bufio"
	"errors"
	"io"
	"net"
	"time"

	"github.com/loganszeto/jsonstore-go/protocol"
)

func (s *Server) handleConn(c net.Conn) {
	defer c.Close()
	reader := bufio.NewReader(c)
	writer := bufio.NewWriter(c)

	authed := s.opts.Password == ""
	greeting := s.opts.Banner
	if !authed {
		greeting = protocol.AuthRequired
	}
	if err := s.reply(writer, greeting); err != nil {
		return
	}

	for {
		req, err := protocol.ReadRequest(reader)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) {
				return
			}
			if err := s.reply(writer, protocol.ReplyError+" "+err.Error()); err != nil {
				return
			}
			continue
		}

		var resp string
		switch {
		case req.Verb == protocol.VerbAuth:
			resp = s.auth(req, &authed)
		case !authed:
			resp = protocol.ReplyError + " Authentication required"
		default:
			resp = s.dispatch(req)
		}
		if err := s.reply(writer, resp); err != nil {
			return
		}
	}
}

func (s *Server) auth(req protocol.Request, authed *bool) string {
	if s.opts.Password != "" && req.Password != s.opts.Password {
		s.log.Debug("rejected password")
		return protocol.ReplyError + " Invalid password"
	}
	*authed = true
	return protocol.ReplyOK
}

func (s *Server) reply(w *bufio.Writer, line string) error {
	data := line + "\n"
	if s.opts.ChunkSize <= 0 {
		if _, err := w.WriteString(data); err != nil {
			return err
		}
		return w.Flush()
	}
	for len(data) > 0 {
		n := min(s.opts.ChunkSize, len(data))
		if _, err := w.WriteString(data[:n]); err != nil {
			return err
		}
		if err := w.Flush(); err != nil {
			return err
		}
		data = data[n:]
		if len(data) > 0 {
			time.Sleep(2 * time.Millisecond)
		}
	}
	return nil
}
