package tcp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// MaxFrameSize bounds one encoded frame body. Chunks and attribute values
// are far smaller; anything larger is a broken or hostile peer.
const MaxFrameSize = 1 << 20

// lastFragment is bit 31 of the record mark. Frames are never split, so
// every record mark carries it.
const lastFragment = 0x80000000

// ErrFrameTooLarge is returned for record marks announcing more than
// MaxFrameSize bytes.
var ErrFrameTooLarge = errors.New("frame too large")

// FrameKind identifies a frame on the wire.
type FrameKind uint32

const (
	// FrameHello opens a session. Value carries the bond key, if any.
	FrameHello FrameKind = iota + 1
	// FrameWelcome answers Hello. Value carries the session ID.
	FrameWelcome
	// FrameRead reads the attribute in Handle.
	FrameRead
	// FrameReadResponse carries Status and Value for a Read.
	FrameReadResponse
	// FrameWrite writes Value to the attribute in Handle.
	FrameWrite
	// FrameWriteResponse carries Status for a Write.
	FrameWriteResponse
	// FrameIndication carries a server indication on Handle.
	FrameIndication
	// FrameChannelOpen asks for a transfer channel with chunks of up to
	// Count bytes.
	FrameChannelOpen
	// FrameChannelOpened answers ChannelOpen. Status is zero on success and
	// Count is the chunk size in effect.
	FrameChannelOpened
	// FrameChannelData carries one transfer chunk in Value.
	FrameChannelData
	// FrameCredits lets the receiver of channel data grant Count more
	// chunks to the sender.
	FrameCredits
	// FrameChannelClose tears the transfer channel down.
	FrameChannelClose
	// FrameDisconnect precedes the server dropping the connection. Value
	// carries the reason.
	FrameDisconnect
)

func (k FrameKind) String() string {
	switch k {
	case FrameHello:
		return "hello"
	case FrameWelcome:
		return "welcome"
	case FrameRead:
		return "read"
	case FrameReadResponse:
		return "read_response"
	case FrameWrite:
		return "write"
	case FrameWriteResponse:
		return "write_response"
	case FrameIndication:
		return "indication"
	case FrameChannelOpen:
		return "channel_open"
	case FrameChannelOpened:
		return "channel_opened"
	case FrameChannelData:
		return "channel_data"
	case FrameCredits:
		return "credits"
	case FrameChannelClose:
		return "channel_close"
	case FrameDisconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("frame(%d)", uint32(k))
	}
}

// Frame is the unit exchanged between client and server. Fields a kind
// does not use are zero.
type Frame struct {
	Kind   FrameKind
	Handle uint32
	Status uint32
	Count  uint32
	Value  []byte
}

// EncodeFrame serializes f with its record mark.
func EncodeFrame(f *Frame) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0})

	if _, err := xdr.Marshal(&buf, f); err != nil {
		return nil, fmt.Errorf("marshal %s frame: %w", f.Kind, err)
	}

	out := buf.Bytes()
	body := len(out) - 4
	if body > MaxFrameSize {
		return nil, fmt.Errorf("%s frame of %d bytes: %w", f.Kind, body, ErrFrameTooLarge)
	}
	binary.BigEndian.PutUint32(out[:4], lastFragment|uint32(body))
	return out, nil
}

// WriteFrame encodes f and writes it to w in one call.
func WriteFrame(w io.Writer, f *Frame) error {
	b, err := EncodeFrame(f)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// ReadFrame reads one frame from r. io.EOF is returned unwrapped when the
// peer closed the connection between frames.
func ReadFrame(r io.Reader) (*Frame, error) {
	var mark [4]byte
	if _, err := io.ReadFull(r, mark[:]); err != nil {
		return nil, err
	}

	header := binary.BigEndian.Uint32(mark[:])
	if header&lastFragment == 0 {
		return nil, fmt.Errorf("fragmented frames are not supported")
	}
	length := header &^ lastFragment
	if length > MaxFrameSize {
		return nil, fmt.Errorf("record mark of %d bytes: %w", length, ErrFrameTooLarge)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}

	f := &Frame{}
	if _, err := xdr.Unmarshal(bytes.NewReader(body), f); err != nil {
		return nil, fmt.Errorf("unmarshal frame: %w", err)
	}
	return f, nil
}
