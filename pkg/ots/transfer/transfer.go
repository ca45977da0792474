// Package transfer implements the transfer channel engine: the per-side
// state machine that streams an object's bytes across a credit-based
// channel in bounded chunks, or receives them into a sink.
//
// The engine never blocks. Pump sends as much as the channel accepts and
// returns Suspended when the channel runs out of credits; the owner calls
// Pump again when the channel reports that its buffer drained.
//
// Invariant: CurrentOffset() <= EndingOffset() at all times.
package transfer

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrWouldBlock is returned by Channel.Send when no credits are left.
	// The chunk was not queued.
	ErrWouldBlock = errors.New("channel would block")

	// ErrOverrun is returned by Receive when data would go past the ending
	// offset.
	ErrOverrun = errors.New("receive overrun")

	// ErrBusy is returned when arming while a transfer is in progress.
	ErrBusy = errors.New("transfer already in progress")

	// ErrNotArmed is returned when pumping or receiving on an idle state.
	ErrNotArmed = errors.New("transfer not armed")

	// ErrNoChannel is returned when arming without a connected channel.
	ErrNoChannel = errors.New("transfer channel not connected")
)

// Channel is the outbound side of a connection-oriented, credit-based
// channel.
type Channel interface {
	// ID identifies the channel for logging.
	ID() uint16

	// Send queues one chunk. It returns ErrWouldBlock when the peer has
	// granted no credits; any other error is fatal to the channel.
	Send(chunk []byte) error

	// Close requests the channel to be torn down.
	Close() error
}

// Flags is the transfer state bitmask.
type Flags uint8

const (
	FlagConnected Flags = 1 << iota
	FlagResponsePending
	FlagCleanupPending
	FlagDisconnectPending
	FlagReadInProgress
	FlagWriteInProgress
	FlagReceiveArmed
)

// Has reports whether every bit in f2 is set.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 == f2
}

// Progress is the outcome of one Pump or Receive step.
type Progress int

const (
	// InProgress means more data is expected.
	InProgress Progress = iota

	// Suspended means the channel is out of credits.
	Suspended

	// Complete means the ending offset was reached.
	Complete
)

func (p Progress) String() string {
	switch p {
	case InProgress:
		return "in-progress"
	case Suspended:
		return "suspended"
	case Complete:
		return "complete"
	default:
		return fmt.Sprintf("Progress(%d)", int(p))
	}
}

// DefaultMaxChunk is used until the channel negotiates its own value.
const DefaultMaxChunk = 244

// State is one side's transfer channel state.
type State struct {
	flags Flags

	currentOffset uint32
	endingOffset  uint32

	// buf holds the bytes for [start, endingOffset) while sending
	buf   []byte
	start uint32

	// sink receives bytes while a receive is armed
	sink io.WriterAt

	maxChunk  int
	channelID uint16
}

// NewState returns an idle, disconnected state.
func NewState() *State {
	return &State{maxChunk: DefaultMaxChunk}
}

// Flags returns the current flag set.
func (s *State) Flags() Flags { return s.flags }

// Set sets flag bits.
func (s *State) Set(f Flags) { s.flags |= f }

// Clear clears flag bits.
func (s *State) Clear(f Flags) { s.flags &^= f }

// CurrentOffset is the next byte to send or receive.
func (s *State) CurrentOffset() uint32 { return s.currentOffset }

// EndingOffset is the offset one past the last byte of the transfer.
func (s *State) EndingOffset() uint32 { return s.endingOffset }

// Remaining is the number of bytes left in the window.
func (s *State) Remaining() uint32 { return s.endingOffset - s.currentOffset }

// MaxChunk returns the negotiated per-chunk payload size.
func (s *State) MaxChunk() int { return s.maxChunk }

// ChannelID returns the identifier of the connected channel.
func (s *State) ChannelID() uint16 { return s.channelID }

// Busy reports whether a read or a write is in progress.
func (s *State) Busy() bool {
	return s.flags&(FlagReadInProgress|FlagWriteInProgress) != 0
}

// Connect records a newly opened channel. maxChunk <= 0 keeps the default.
func (s *State) Connect(channelID uint16, maxChunk int) {
	s.channelID = channelID
	if maxChunk > 0 {
		s.maxChunk = maxChunk
	}
	s.flags |= FlagConnected
}

// Disconnect marks the channel closed and releases any transfer.
func (s *State) Disconnect() {
	s.Cleanup()
	s.flags &^= FlagConnected | FlagDisconnectPending
}

// Idle reports whether a new transfer may be armed.
func (s *State) Idle() bool {
	return s.flags.Has(FlagConnected) && !s.Busy() && !s.flags.Has(FlagReceiveArmed)
}

// ArmSend prepares to send data, which holds the bytes of the object window
// starting at offset.
func (s *State) ArmSend(offset uint32, data []byte) error {
	if !s.flags.Has(FlagConnected) {
		return ErrNoChannel
	}
	if !s.Idle() {
		return ErrBusy
	}

	s.buf = data
	s.start = offset
	s.currentOffset = offset
	s.endingOffset = offset + uint32(len(data))
	s.flags |= FlagReadInProgress
	return nil
}

// Pump sends chunks until the window is exhausted or the channel runs out
// of credits. A channel error other than ErrWouldBlock is returned as is
// and leaves the state untouched for the caller to clean up.
func (s *State) Pump(ch Channel) (Progress, error) {
	if !s.flags.Has(FlagReadInProgress) {
		return InProgress, ErrNotArmed
	}

	for s.currentOffset < s.endingOffset {
		n := min(s.Remaining(), uint32(s.maxChunk))
		lo := s.currentOffset - s.start
		chunk := s.buf[lo : lo+n]

		if err := ch.Send(chunk); err != nil {
			if errors.Is(err, ErrWouldBlock) {
				return Suspended, nil
			}
			return InProgress, fmt.Errorf("send at offset %d: %w", s.currentOffset, err)
		}
		s.currentOffset += n
	}

	return Complete, nil
}

// ArmReceive prepares to receive length bytes starting at offset into
// sink.
func (s *State) ArmReceive(offset, length uint32, sink io.WriterAt) error {
	if !s.flags.Has(FlagConnected) {
		return ErrNoChannel
	}
	if !s.Idle() {
		return ErrBusy
	}

	s.sink = sink
	s.currentOffset = offset
	s.endingOffset = offset + length
	s.flags |= FlagWriteInProgress | FlagReceiveArmed
	return nil
}

// Receive writes one inbound chunk to the sink at the current offset.
func (s *State) Receive(data []byte) (Progress, error) {
	if !s.flags.Has(FlagReceiveArmed) {
		return InProgress, ErrNotArmed
	}
	if uint64(len(data)) > uint64(s.Remaining()) {
		return InProgress, fmt.Errorf("%w: %d bytes at offset %d, window ends at %d",
			ErrOverrun, len(data), s.currentOffset, s.endingOffset)
	}

	if len(data) > 0 {
		if _, err := s.sink.WriteAt(data, int64(s.currentOffset)); err != nil {
			return InProgress, fmt.Errorf("write at offset %d: %w", s.currentOffset, err)
		}
		s.currentOffset += uint32(len(data))
	}

	if s.currentOffset == s.endingOffset {
		return Complete, nil
	}
	return InProgress, nil
}

// Cleanup releases the buffer and sink, clears the in-progress flags and
// zeroes the offsets. The channel identity, the connected flag and the
// negotiated chunk size survive.
func (s *State) Cleanup() {
	s.buf = nil
	s.sink = nil
	s.start = 0
	s.currentOffset = 0
	s.endingOffset = 0
	s.flags &^= FlagReadInProgress | FlagWriteInProgress | FlagReceiveArmed |
		FlagResponsePending | FlagCleanupPending
}
