package wire

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrUnexpectedReply is returned when a reply does not answer the request.
var ErrUnexpectedReply = errors.New("wire: unexpected reply")

// Exchange sends req to addr over a fresh UDP socket and waits for one reply
// until ctx expires. If ctx has no deadline, fallback bounds the wait.
func Exchange(ctx context.Context, addr string, req Record, fallback time.Duration) (Record, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return Record{}, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(fallback)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return Record{}, err
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	buf, err := req.MarshalBinary()
	if err != nil {
		return Record{}, err
	}
	if _, err := conn.Write(buf); err != nil {
		return Record{}, fmt.Errorf("send %s: %w", req.Kind, err)
	}

	reply := make([]byte, RecordSize)
	n, err := conn.Read(reply)
	if err != nil {
		if ctx.Err() != nil {
			return Record{}, ctx.Err()
		}
		return Record{}, fmt.Errorf("await reply to %s: %w", req.Kind, err)
	}
	return Decode(reply[:n])
}

// SendTo writes one record to addr through an existing packet socket.
func SendTo(conn net.PacketConn, addr net.Addr, r Record) error {
	buf, err := r.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = conn.WriteTo(buf, addr)
	return err
}
