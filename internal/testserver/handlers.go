package testserver

import (
	"strconv"

	"github.com/loganszeto/jsonstore-go/internal/store"
	"github.com/loganszeto/jsonstore-go/protocol"
)

func (s *Server) dispatch(req protocol.Request) string {
	if forced, ok := s.opts.Replies[req.Verb]; ok {
		return forced
	}
	return Dispatch(s.st, req)
}

// Dispatch applies one authenticated request to st and returns the reply
// line without its terminator.
func Dispatch(st *store.MemTable, req protocol.Request) string {
	switch req.Verb {
	case protocol.VerbPing:
		return protocol.ReplyPong
	case protocol.VerbGet:
		val, ok := st.Get(req.Key)
		if !ok {
			return protocol.ReplyNil
		}
		return string(val)
	case protocol.VerbSet:
		st.Set(req.Key, []byte(req.Value), 0)
		return protocol.ReplyOK
	case protocol.VerbDel:
		if st.Del(req.Key) {
			return protocol.ReplyDeleted
		}
		return protocol.ReplyMissing
	case protocol.VerbTTL:
		ttl := st.TTL(req.Key)
		if ttl == protocol.TTLKeyMissing {
			return protocol.ReplyNil
		}
		return strconv.FormatInt(ttl, 10)
	case protocol.VerbExpire:
		if req.Seconds <= 0 {
			return protocol.ReplyError + " invalid expire time"
		}
		if st.Expire(req.Key, st.Now()+req.Seconds*1000) {
			return protocol.ReplyOK
		}
		return protocol.ReplyMissing
	default:
		return protocol.ReplyError + " unknown command"
	}
}
