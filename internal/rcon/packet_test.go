package rcon

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, p packet) packet {
	t.Helper()
	data, err := encode(p)
	require.NoError(t, err)

	decoded, err := decode(bytes.NewReader(data))
	require.NoError(t, err)
	return decoded
}

func TestPacketRoundTrip(t *testing.T) {
	cases := []packet{
		{ID: 1, Type: typeAuth, Body: "hunter2"},
		{ID: 7, Type: typeExecCommand, Body: "SaveWorld"},
		{ID: 9, Type: typeResponse, Body: "World Saved"},
		{ID: 3, Type: typeResponse, Body: ""},
		{ID: 12, Type: typeResponse, Body: strings.Repeat("x", maxBodySize)},
	}

	for _, want := range cases {
		got := roundTrip(t, want)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Type, got.Type)
		assert.Equal(t, want.Body, got.Body)
	}
}

func TestEncodeSizeField(t *testing.T) {
	data, err := encode(packet{ID: 5, Type: typeExecCommand, Body: "ListPlayers"})
	require.NoError(t, err)

	size := int32(binary.LittleEndian.Uint32(data[0:4]))
	// size covers id + type + body + two NULs, not itself.
	assert.Equal(t, int32(4+4+len("ListPlayers")+2), size)
	assert.Equal(t, int(4+size), len(data))
	// trailing terminator bytes
	assert.Equal(t, []byte{0x00, 0x00}, data[len(data)-2:])
}

func TestEncodeRejectsOversizedBody(t *testing.T) {
	_, err := encode(packet{ID: 1, Type: typeExecCommand, Body: strings.Repeat("a", maxBodySize+1)})
	assert.Error(t, err)
}

func TestDecodeRejectsBogusSizeField(t *testing.T) {
	for _, size := range []int32{0, 9, 1 << 24} {
		var buf bytes.Buffer
		binary.Write(&buf, binary.LittleEndian, size)
		buf.Write(make([]byte, 16))

		_, err := decode(&buf)
		assert.Error(t, err, "size %d should be rejected", size)
	}
}

func TestDecodeNegativeIDSurvives(t *testing.T) {
	got := roundTrip(t, packet{ID: -1, Type: typeAuthResponse, Body: ""})
	assert.Equal(t, int32(-1), got.ID)
}
