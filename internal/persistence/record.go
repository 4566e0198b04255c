package persistence

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

var (
	magic      = [4]byte{'J', 'S', 'J', '1'}
	ErrCorrupt = errors.New("journal record corrupt")
)

type Op byte

const (
	OpSet    Op = 1
	OpDel    Op = 2
	OpExpire Op = 3
)

func (o Op) String() string {
	switch o {
	case OpSet:
		return "SET"
	case OpDel:
		return "DEL"
	case OpExpire:
		return "EXPIRE"
	default:
		return fmt.Sprintf("op(%d)", byte(o))
	}
}

// Record is one successful mutation. Value is the SET argument exactly as
// it went over the wire. ExpiresAtMs is a unix millisecond deadline, zero
// when the key has no expiration.
type Record struct {
	Op          Op
	Key         string
	Value       string
	ExpiresAtMs int64
}

// header: magic, op, key length, value length, expiry.
const headerSize = 4 + 1 + 4 + 4 + 8

// Length limits for a single record. A header beyond them is corrupt.
const (
	MaxKeySize   = 64 << 10
	MaxValueSize = 64 << 20
)

func Encode(rec Record) ([]byte, error) {
	switch rec.Op {
	case OpSet, OpDel, OpExpire:
	default:
		return nil, fmt.Errorf("encode: unknown %s", rec.Op)
	}
	if rec.Key == "" {
		return nil, errors.New("encode: empty key")
	}
	if len(rec.Key) > MaxKeySize || len(rec.Value) > MaxValueSize {
		return nil, fmt.Errorf("encode: record for %q too large", rec.Key)
	}

	buf := bytes.NewBuffer(make([]byte, 0, headerSize+len(rec.Key)+len(rec.Value)+4))
	buf.Write(magic[:])
	buf.WriteByte(byte(rec.Op))
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(rec.Key)))
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(rec.Value)))
	_ = binary.Write(buf, binary.LittleEndian, rec.ExpiresAtMs)
	buf.WriteString(rec.Key)
	buf.WriteString(rec.Value)
	crc := crc32.ChecksumIEEE(buf.Bytes())
	_ = binary.Write(buf, binary.LittleEndian, crc)
	return buf.Bytes(), nil
}

// DecodeFrom reads one record. A clean end of input is io.EOF; a torn
// record is io.ErrUnexpectedEOF; a bad magic, an oversized length or a
// checksum mismatch is ErrCorrupt.
func DecodeFrom(r io.Reader) (Record, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Record{}, err
	}
	if !bytes.Equal(header[:4], magic[:]) {
		return Record{}, ErrCorrupt
	}
	op := Op(header[4])
	keyLen := binary.LittleEndian.Uint32(header[5:9])
	valLen := binary.LittleEndian.Uint32(header[9:13])
	expiresAt := int64(binary.LittleEndian.Uint64(header[13:21]))
	if keyLen > MaxKeySize || valLen > MaxValueSize {
		return Record{}, ErrCorrupt
	}

	body := make([]byte, int(keyLen)+int(valLen)+4)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.ErrUnexpectedEOF
		}
		return Record{}, err
	}
	payload := body[:len(body)-4]
	crc := binary.LittleEndian.Uint32(body[len(body)-4:])

	h := crc32.NewIEEE()
	h.Write(header[:])
	h.Write(payload)
	if h.Sum32() != crc {
		return Record{}, ErrCorrupt
	}

	return Record{
		Op:          op,
		Key:         string(payload[:keyLen]),
		Value:       string(payload[keyLen:]),
		ExpiresAtMs: expiresAt,
	}, nil
}
