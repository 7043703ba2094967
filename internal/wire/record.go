package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// Kind discriminates every record exchanged between the parties.
type Kind uint8

const (
	KindUnknown Kind = iota

	// Identity registry.
	KindRegisterKey
	KindRequestKey
	KindAckRegisterKey
	KindResponsePublicKey

	// Second-factor approval service.
	KindRegisterTFA
	KindAckRegTFA
	KindAckPushTFA
	KindDenyPushTFA
	KindRequestAuth
	KindConfirmTFA
	KindPushTFA
	KindResponseAuth
	KindResponseAuthFail

	// Session gateway.
	KindLogin
	KindAckLogin

	// Feed collaborator, only after a session is granted.
	KindPost
	KindAckPost
	KindFollow
	KindAckFollow
	KindUnfollow
	KindAckUnfollow
	KindRequestFeed
	KindFeedItem
	KindFeedEnd
	KindLogout
	KindAckLogout
	KindError
)

var kindNames = map[Kind]string{
	KindRegisterKey:       "registerKey",
	KindRequestKey:        "requestKey",
	KindAckRegisterKey:    "ackRegisterKey",
	KindResponsePublicKey: "responsePublicKey",
	KindRegisterTFA:       "registerTFA",
	KindAckRegTFA:         "ackRegTFA",
	KindAckPushTFA:        "ackPushTFA",
	KindDenyPushTFA:       "denyPushTFA",
	KindRequestAuth:       "requestAuth",
	KindConfirmTFA:        "confirmTFA",
	KindPushTFA:           "pushTFA",
	KindResponseAuth:      "responseAuth",
	KindResponseAuthFail:  "responseAuthFail",
	KindLogin:             "login",
	KindAckLogin:          "ackLogin",
	KindPost:              "post",
	KindAckPost:           "ackPost",
	KindFollow:            "follow",
	KindAckFollow:         "ackFollow",
	KindUnfollow:          "unfollow",
	KindAckUnfollow:       "ackUnfollow",
	KindRequestFeed:       "requestFeed",
	KindFeedItem:          "feedItem",
	KindFeedEnd:           "feedEnd",
	KindLogout:            "logout",
	KindAckLogout:         "ackLogout",
	KindError:             "error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// FlagFound marks a responsePublicKey whose user exists in the registry.
const FlagFound uint8 = 1 << 0

const (
	// TextSize is the width of the fixed text field.
	TextSize = 64
	// RecordSize is the encoded length of every Record.
	RecordSize = 1 + 4 + 4 + 8 + 8 + 8 + 1 + 16 + TextSize
)

var (
	ErrShortRecord = errors.New("wire: short record")
	ErrTextTooLong = errors.New("wire: text exceeds field width")
)

// Record is the single fixed-layout message used on every leg. Fields that a
// kind does not use are zero.
type Record struct {
	Kind      Kind
	UserID    uint32
	PeerID    uint32
	Timestamp uint64
	Signature uint64
	PublicKey uint64
	Flags     uint8
	Session   uuid.UUID
	Text      string
}

// Found reports whether FlagFound is set.
func (r Record) Found() bool {
	return r.Flags&FlagFound != 0
}

// MarshalBinary encodes r big-endian into RecordSize bytes.
func (r Record) MarshalBinary() ([]byte, error) {
	if len(r.Text) > TextSize {
		return nil, ErrTextTooLong
	}
	buf := make([]byte, RecordSize)
	buf[0] = byte(r.Kind)
	binary.BigEndian.PutUint32(buf[1:5], r.UserID)
	binary.BigEndian.PutUint32(buf[5:9], r.PeerID)
	binary.BigEndian.PutUint64(buf[9:17], r.Timestamp)
	binary.BigEndian.PutUint64(buf[17:25], r.Signature)
	binary.BigEndian.PutUint64(buf[25:33], r.PublicKey)
	buf[33] = r.Flags
	copy(buf[34:50], r.Session[:])
	copy(buf[50:], r.Text)
	return buf, nil
}

// UnmarshalBinary decodes the first RecordSize bytes of data.
func (r *Record) UnmarshalBinary(data []byte) error {
	if len(data) < RecordSize {
		return fmt.Errorf("%w: %d bytes", ErrShortRecord, len(data))
	}
	r.Kind = Kind(data[0])
	r.UserID = binary.BigEndian.Uint32(data[1:5])
	r.PeerID = binary.BigEndian.Uint32(data[5:9])
	r.Timestamp = binary.BigEndian.Uint64(data[9:17])
	r.Signature = binary.BigEndian.Uint64(data[17:25])
	r.PublicKey = binary.BigEndian.Uint64(data[25:33])
	r.Flags = data[33]
	copy(r.Session[:], data[34:50])
	text := data[50:RecordSize]
	if i := bytes.IndexByte(text, 0); i >= 0 {
		text = text[:i]
	}
	r.Text = string(text)
	return nil
}

// Decode parses a datagram or frame into a Record.
func Decode(data []byte) (Record, error) {
	var r Record
	err := r.UnmarshalBinary(data)
	return r, err
}

// WriteRecord writes one framed record to a stream.
func WriteRecord(w io.Writer, r Record) error {
	buf, err := r.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// ReadRecord reads exactly one framed record from a stream.
func ReadRecord(rd io.Reader) (Record, error) {
	buf := make([]byte, RecordSize)
	if _, err := io.ReadFull(rd, buf); err != nil {
		return Record{}, err
	}
	return Decode(buf)
}

// Truncate clips s to the text field width.
func Truncate(s string) string {
	if len(s) <= TextSize {
		return s
	}
	return s[:TextSize]
}
