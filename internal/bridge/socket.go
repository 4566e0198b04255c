package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loganszeto/jsonstore-go/client"
	"github.com/loganszeto/jsonstore-go/internal/persistence"
	"github.com/loganszeto/jsonstore-go/protocol"
)

// Reply is the JSON document written back for every message.
type Reply struct {
	OK    bool   `json:"ok"`
	Kind  string `json:"kind,omitempty"`
	Value any    `json:"value"`
	Error string `json:"error,omitempty"`
}

func failure(err error) Reply {
	return Reply{Error: err.Error()}
}

func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("upgrade failed", "error", err)
		return
	}
	if !h.track(ws, true) {
		_ = ws.Close()
		return
	}
	defer h.track(ws, false)
	defer ws.Close()

	ctx := r.Context()
	conn := client.New(h.opts.Client)
	defer conn.Close()
	if err := conn.Connect(ctx); err != nil {
		h.log.Warn("backend connect failed", "addr", conn.Addr(), "error", err)
		_ = h.write(ws, failure(err))
		return
	}

	for {
		msgType, payload, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		reply := h.handle(ctx, conn, string(payload))
		if err := h.write(ws, reply); err != nil {
			return
		}
	}
}

func (h *Handler) write(ws *websocket.Conn, reply Reply) error {
	data, err := json.Marshal(reply)
	if err != nil {
		data, _ = json.Marshal(failure(err))
	}
	return ws.WriteMessage(websocket.TextMessage, data)
}

// handle runs one command line against conn, reconnecting first if an
// earlier transport failure closed it.
func (h *Handler) handle(ctx context.Context, conn *client.Conn, line string) Reply {
	req, err := protocol.ParseRequest(line)
	if err != nil {
		return failure(err)
	}
	if req.Verb == protocol.VerbAuth {
		return failure(errors.New("AUTH is handled by the bridge"))
	}
	if !conn.Connected() {
		if err := conn.Connect(ctx); err != nil {
			return failure(err)
		}
	}

	switch req.Verb {
	case protocol.VerbPing:
		pong, err := conn.Ping(ctx)
		if err != nil {
			return failure(err)
		}
		return Reply{OK: true, Kind: protocol.KindString.String(), Value: pong}
	case protocol.VerbGet:
		v, err := conn.Get(ctx, req.Key)
		if err != nil {
			return failure(err)
		}
		return Reply{OK: true, Kind: v.Kind.String(), Value: v}
	case protocol.VerbTTL:
		ttl, err := conn.TTL(ctx, req.Key)
		if err != nil {
			return failure(err)
		}
		return Reply{OK: true, Kind: protocol.KindInt.String(), Value: ttl}
	case protocol.VerbSet:
		resp, err := conn.Do(ctx, protocol.VerbSet, req.Key, req.Value)
		if err != nil {
			return failure(err)
		}
		if resp == protocol.ReplyOK {
			return h.persist(ctx, persistence.Record{Op: persistence.OpSet, Key: req.Key, Value: req.Value})
		}
		return boolReply(false)
	case protocol.VerbDel:
		deleted, err := conn.Delete(ctx, req.Key)
		if err != nil {
			return failure(err)
		}
		if deleted {
			return h.persist(ctx, persistence.Record{Op: persistence.OpDel, Key: req.Key})
		}
		return boolReply(false)
	case protocol.VerbExpire:
		ttl := time.Duration(req.Seconds) * time.Second
		ok, err := conn.Expire(ctx, req.Key, ttl)
		if err != nil {
			return failure(err)
		}
		if ok {
			deadline := h.opts.Clock.NowMs() + ttl.Milliseconds()
			return h.persist(ctx, persistence.Record{Op: persistence.OpExpire, Key: req.Key, ExpiresAtMs: deadline})
		}
		return boolReply(false)
	default:
		return failure(fmt.Errorf("%w: %s", protocol.ErrUnknownVerb, req.Verb))
	}
}

func boolReply(v bool) Reply {
	return Reply{OK: true, Kind: protocol.KindBool.String(), Value: v}
}

// persist journals a successful mutation and mirrors the journal. A
// persistence failure is reported in Error next to the successful result.
func (h *Handler) persist(ctx context.Context, rec persistence.Record) Reply {
	reply := boolReply(true)
	if h.opts.Journal == nil {
		return reply
	}

	h.persistMu.Lock()
	defer h.persistMu.Unlock()

	if err := h.opts.Journal.Append(rec); err != nil {
		h.log.Error("journal append failed", "op", rec.Op, "key", rec.Key, "error", err)
		reply.Error = "journal append failed: " + err.Error()
		return reply
	}
	if h.opts.Mirror != nil {
		if err := h.opts.Mirror.Upload(ctx, h.opts.Journal.Path()); err != nil {
			h.log.Error("journal upload failed", "error", err)
			reply.Error = "persistence upload failed: " + err.Error()
		}
	}
	return reply
}
