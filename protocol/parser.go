package protocol

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// ReadLine reads bytes until '\n' and returns the line without its
// terminator. Partial reads are accumulated by the bufio.Reader, so a line
// split across TCP segments comes back whole.
func ReadLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}

func ReadRequest(r *bufio.Reader) (Request, error) {
	line, err := ReadLine(r)
	if err != nil {
		return Request{}, err
	}
	return ParseRequest(line)
}

// ParseRequest parses a command line. The SET value is everything after the
// key, so JSON documents keep their inner spacing.
func ParseRequest(line string) (Request, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Request{}, ErrInvalidRequest
	}
	head, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimLeft(rest, " ")
	verb := Verb(strings.ToUpper(head))

	switch verb {
	case VerbPing:
		return Request{Verb: VerbPing}, nil
	case VerbAuth:
		if rest == "" {
			return Request{}, fmt.Errorf("%w: AUTH requires a password", ErrInvalidRequest)
		}
		return Request{Verb: VerbAuth, Password: rest}, nil
	case VerbGet, VerbDel, VerbTTL:
		fields := strings.Fields(rest)
		if len(fields) != 1 {
			return Request{}, fmt.Errorf("%w: %s requires a key", ErrInvalidRequest, verb)
		}
		return Request{Verb: verb, Key: fields[0]}, nil
	case VerbSet:
		key, value, _ := strings.Cut(rest, " ")
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			return Request{}, fmt.Errorf("%w: SET requires key and value", ErrInvalidRequest)
		}
		return Request{Verb: VerbSet, Key: key, Value: value}, nil
	case VerbExpire:
		fields := strings.Fields(rest)
		if len(fields) != 2 {
			return Request{}, fmt.Errorf("%w: EXPIRE requires key and seconds", ErrInvalidRequest)
		}
		secs, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return Request{}, fmt.Errorf("%w: EXPIRE seconds %q", ErrInvalidRequest, fields[1])
		}
		return Request{Verb: VerbExpire, Key: fields[0], Seconds: secs}, nil
	default:
		return Request{}, fmt.Errorf("%w: %q", ErrUnknownVerb, head)
	}
}
