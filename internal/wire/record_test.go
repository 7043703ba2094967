package wire

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordLayout(t *testing.T) {
	r := Record{Kind: KindLogin, UserID: 7, Timestamp: 0x0102030405060708, Signature: 99}
	buf, err := r.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, buf, RecordSize)

	assert.Equal(t, byte(KindLogin), buf[0])
	assert.Equal(t, []byte{0, 0, 0, 7}, buf[1:5])
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, buf[9:17])
}

func TestStreamFraming(t *testing.T) {
	session := uuid.New()
	var stream bytes.Buffer
	require.NoError(t, WriteRecord(&stream, Record{Kind: KindAckLogin, UserID: 7, Session: session, Text: "login accepted"}))
	require.NoError(t, WriteRecord(&stream, Record{Kind: KindFeedEnd, UserID: 7}))

	first, err := ReadRecord(&stream)
	require.NoError(t, err)
	assert.Equal(t, KindAckLogin, first.Kind)
	assert.Equal(t, session, first.Session)
	assert.Equal(t, "login accepted", first.Text)

	second, err := ReadRecord(&stream)
	require.NoError(t, err)
	assert.Equal(t, KindFeedEnd, second.Kind)

	_, err = ReadRecord(&stream)
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeShortRecord(t *testing.T) {
	_, err := Decode(make([]byte, RecordSize-1))
	assert.ErrorIs(t, err, ErrShortRecord)
}

func TestTextWidth(t *testing.T) {
	_, err := Record{Kind: KindPost, Text: strings.Repeat("x", TextSize+1)}.MarshalBinary()
	assert.ErrorIs(t, err, ErrTextTooLong)
	assert.Len(t, Truncate(strings.Repeat("x", 100)), TextSize)
	assert.Equal(t, "short", Truncate("short"))
}

func TestFoundFlag(t *testing.T) {
	assert.False(t, Record{Kind: KindResponsePublicKey}.Found())
	assert.True(t, Record{Kind: KindResponsePublicKey, Flags: FlagFound}.Found())
	assert.Equal(t, "pushTFA", KindPushTFA.String())
	assert.Equal(t, "kind(250)", Kind(250).String())
}
