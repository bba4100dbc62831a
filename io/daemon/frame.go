package daemon

import (
	"encoding/binary"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	// MaxBodySize is the largest command or reply body the daemon accepts.
	MaxBodySize = 1024

	headerSize = 6
)

var (
	// ErrProtocol is returned when a frame violates the length rules.
	ErrProtocol = errors.New("daemon protocol violation")
	// ErrCommandTooLong is returned for commands over MaxBodySize bytes.
	ErrCommandTooLong = errors.New("command too long")
	// ErrInvalidCommand is returned for empty commands or commands with line breaks.
	ErrInvalidCommand = errors.New("invalid command")
)

// Frame layout: [4-byte LE id][2-byte LE length][body].
type frame struct {
	id   uint32
	body []byte
}

func writeFrame(w io.Writer, id uint32, body []byte) error {
	if len(body) == 0 || len(body) > MaxBodySize {
		return errors.Wrapf(ErrProtocol, "body length %d", len(body))
	}

	buf := make([]byte, headerSize+len(body))
	binary.LittleEndian.PutUint32(buf[0:4], id)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(len(body)))
	copy(buf[headerSize:], body)

	_, err := w.Write(buf)
	return err
}

func readFrame(r io.Reader) (frame, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return frame{}, err
	}

	id := binary.LittleEndian.Uint32(header[0:4])
	length := int(binary.LittleEndian.Uint16(header[4:6]))
	if length == 0 || length > MaxBodySize {
		return frame{}, errors.Wrapf(ErrProtocol, "frame %d has length %d", id, length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return frame{}, err
	}

	return frame{id: id, body: body}, nil
}

func validateCommand(cmd string) error {
	if strings.TrimSpace(cmd) == "" {
		return ErrInvalidCommand
	}
	if len(cmd) > MaxBodySize {
		return errors.Wrapf(ErrCommandTooLong, "%d bytes", len(cmd))
	}
	if strings.ContainsAny(cmd, "\r\n\x00") {
		return errors.Wrap(ErrInvalidCommand, "command contains line break")
	}
	for i := 0; i < len(cmd); i++ {
		if cmd[i] > 0x7e {
			return errors.Wrap(ErrInvalidCommand, "command is not ascii")
		}
	}
	return nil
}

// Reply is a parsed daemon reply: a leading status and optional fields.
type Reply struct {
	Status int
	Fields []string
}

// StatusFailed is the sentinel status for calls that produced no usable reply.
const StatusFailed = -1

var failedReply = Reply{Status: StatusFailed}

func parseReply(body []byte) (Reply, error) {
	fields := strings.Fields(string(body))
	if len(fields) == 0 {
		return failedReply, errors.Wrap(ErrProtocol, "empty reply")
	}

	status, err := strconv.Atoi(fields[0])
	if err != nil {
		return failedReply, errors.Wrapf(ErrProtocol, "bad reply status %q", fields[0])
	}

	return Reply{Status: status, Fields: fields[1:]}, nil
}

func formatReply(status int, fields ...string) []byte {
	var b strings.Builder
	b.WriteString(strconv.Itoa(status))
	for _, f := range fields {
		b.WriteByte(' ')
		b.WriteString(f)
	}
	return []byte(b.String())
}
