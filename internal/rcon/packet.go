package rcon

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Source RCON packet types. An auth response reuses the exec-command type id.
const (
	typeResponse     int32 = 0
	typeExecCommand  int32 = 2
	typeAuthResponse int32 = 2
	typeAuth         int32 = 3
)

// maxBodySize bounds the body of a single packet in either direction. The
// game server splits longer command output across multiple response packets.
const maxBodySize = 4096

// packetOverhead is id + type + body NUL + empty-string NUL, the part of the
// wire size field that is not body bytes.
const packetOverhead = 10

type packet struct {
	ID   int32
	Type int32
	Body string
}

// encode serializes a packet:
// int32 size | int32 id | int32 type | body | 0x00 | 0x00
// where size counts everything after itself.
func encode(p packet) ([]byte, error) {
	if len(p.Body) > maxBodySize {
		return nil, fmt.Errorf("packet body exceeds %d bytes", maxBodySize)
	}

	size := int32(packetOverhead + len(p.Body))
	buf := bytes.NewBuffer(make([]byte, 0, 4+size))

	binary.Write(buf, binary.LittleEndian, size)
	binary.Write(buf, binary.LittleEndian, p.ID)
	binary.Write(buf, binary.LittleEndian, p.Type)
	buf.WriteString(p.Body)
	buf.Write([]byte{0x00, 0x00})

	return buf.Bytes(), nil
}

// decode reads one packet off the wire. A size field outside the protocol
// bounds is a malformed packet, not an allocation request.
func decode(r io.Reader) (packet, error) {
	var size int32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return packet{}, err
	}

	if size < packetOverhead || size > packetOverhead+maxBodySize {
		return packet{}, fmt.Errorf("malformed packet: size field %d out of range", size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return packet{}, err
	}

	p := packet{
		ID:   int32(binary.LittleEndian.Uint32(payload[0:4])),
		Type: int32(binary.LittleEndian.Uint32(payload[4:8])),
	}

	body := payload[8:]
	// Strip the body terminator and the trailing empty string.
	body = bytes.TrimRight(body, "\x00")
	p.Body = string(body)

	return p, nil
}
