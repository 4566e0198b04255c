// Package protocol holds the wire vocabulary of the jsondb line protocol:
// verbs, sentinel literals, command formatting, SET value encoding and the
// decoding of untyped response lines into typed values.
//
// Every message is one line terminated by '\n'. There is no length framing
// and no type tag; see DecodeValue for how a reply line becomes a Value.
package protocol

import "errors"

type Verb string

const (
	VerbPing   Verb = "PING"
	VerbSet    Verb = "SET"
	VerbGet    Verb = "GET"
	VerbDel    Verb = "DEL"
	VerbTTL    Verb = "TTL"
	VerbExpire Verb = "EXPIRE"
	VerbAuth   Verb = "AUTH"
)

// Sentinel literals with a fixed meaning on the wire.
const (
	AuthRequired = "AUTH_REQUIRED"
	ReplyOK      = "OK"
	ReplyNil     = "nil"
	ReplyPong    = "PONG"
	ReplyDeleted = "1"
	ReplyMissing = "0"
	ReplyError   = "ERROR"
)

// TTL sentinels.
const (
	TTLNoExpiry   int64 = -1
	TTLKeyMissing int64 = -2
)

var (
	ErrInvalidKey     = errors.New("invalid key")
	ErrInvalidValue   = errors.New("invalid value")
	ErrUnknownVerb    = errors.New("unknown verb")
	ErrInvalidRequest = errors.New("invalid request")
)

// Known reports whether v belongs to the fixed verb set.
func (v Verb) Known() bool {
	switch v {
	case VerbPing, VerbSet, VerbGet, VerbDel, VerbTTL, VerbExpire, VerbAuth:
		return true
	default:
		return false
	}
}

// Mutating reports whether a successful v changes server state.
func (v Verb) Mutating() bool {
	switch v {
	case VerbSet, VerbDel, VerbExpire:
		return true
	default:
		return false
	}
}

// Request is a parsed command line as seen by a server.
type Request struct {
	Verb     Verb
	Key      string
	Value    string
	Seconds  int64
	Password string
}
