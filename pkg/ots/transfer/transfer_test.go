package transfer

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// creditChannel accepts one chunk per credit.
type creditChannel struct {
	credits int
	sent    [][]byte
	err     error
	closed  bool
}

func (c *creditChannel) ID() uint16 { return 0x40 }

func (c *creditChannel) Send(chunk []byte) error {
	if c.err != nil {
		return c.err
	}
	if c.credits == 0 {
		return ErrWouldBlock
	}
	c.credits--
	c.sent = append(c.sent, append([]byte(nil), chunk...))
	return nil
}

func (c *creditChannel) Close() error {
	c.closed = true
	return nil
}

func (c *creditChannel) joined() []byte {
	return bytes.Join(c.sent, nil)
}

// memSink is a growable io.WriterAt.
type memSink struct {
	data []byte
}

func (m *memSink) WriteAt(p []byte, off int64) (int, error) {
	if end := int(off) + len(p); end > len(m.data) {
		m.data = append(m.data, make([]byte, end-len(m.data))...)
	}
	copy(m.data[off:], p)
	return len(p), nil
}

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func TestSendChunking(t *testing.T) {
	st := NewState()
	st.Connect(0x40, 10)

	data := payload(25)
	require.NoError(t, st.ArmSend(0, data))
	assert.True(t, st.Flags().Has(FlagReadInProgress))

	ch := &creditChannel{credits: 100}
	progress, err := st.Pump(ch)
	require.NoError(t, err)
	assert.Equal(t, Complete, progress)

	require.Len(t, ch.sent, 3)
	assert.Len(t, ch.sent[0], 10)
	assert.Len(t, ch.sent[2], 5)
	assert.Equal(t, data, ch.joined())
	assert.Equal(t, uint32(25), st.CurrentOffset())
	assert.Equal(t, st.EndingOffset(), st.CurrentOffset())
}

func TestSendSuspendsWithoutCredits(t *testing.T) {
	st := NewState()
	st.Connect(1, 4)

	data := payload(10)
	require.NoError(t, st.ArmSend(100, data))
	assert.Equal(t, uint32(100), st.CurrentOffset())
	assert.Equal(t, uint32(110), st.EndingOffset())

	ch := &creditChannel{credits: 1}
	progress, err := st.Pump(ch)
	require.NoError(t, err)
	assert.Equal(t, Suspended, progress)
	assert.Equal(t, uint32(104), st.CurrentOffset())

	// Buffer drained: two more credits finish the window.
	ch.credits = 2
	progress, err = st.Pump(ch)
	require.NoError(t, err)
	assert.Equal(t, Complete, progress)
	assert.Equal(t, data, ch.joined())
}

func TestSendChannelError(t *testing.T) {
	st := NewState()
	st.Connect(1, 4)
	require.NoError(t, st.ArmSend(0, payload(8)))

	boom := errors.New("link lost")
	_, err := st.Pump(&creditChannel{credits: 5, err: boom})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, uint32(0), st.CurrentOffset())
}

func TestEmptySendCompletesImmediately(t *testing.T) {
	st := NewState()
	st.Connect(1, 0)
	assert.Equal(t, DefaultMaxChunk, st.MaxChunk())

	require.NoError(t, st.ArmSend(0, nil))
	progress, err := st.Pump(&creditChannel{})
	require.NoError(t, err)
	assert.Equal(t, Complete, progress)
}

func TestArmPreconditions(t *testing.T) {
	st := NewState()
	assert.ErrorIs(t, st.ArmSend(0, payload(1)), ErrNoChannel)
	assert.ErrorIs(t, st.ArmReceive(0, 1, &memSink{}), ErrNoChannel)

	st.Connect(1, 0)
	require.NoError(t, st.ArmSend(0, payload(1)))
	assert.ErrorIs(t, st.ArmSend(0, payload(1)), ErrBusy)
	assert.ErrorIs(t, st.ArmReceive(0, 1, &memSink{}), ErrBusy)

	_, err := st.Receive([]byte{1})
	assert.ErrorIs(t, err, ErrNotArmed)

	st.Cleanup()
	_, err = st.Pump(&creditChannel{})
	assert.ErrorIs(t, err, ErrNotArmed)
}

func TestReceive(t *testing.T) {
	st := NewState()
	st.Connect(1, 0)

	sink := &memSink{data: []byte("hello world")}
	require.NoError(t, st.ArmReceive(6, 5, sink))
	assert.True(t, st.Flags().Has(FlagWriteInProgress|FlagReceiveArmed))

	progress, err := st.Receive([]byte("WOR"))
	require.NoError(t, err)
	assert.Equal(t, InProgress, progress)
	assert.Equal(t, uint32(9), st.CurrentOffset())

	progress, err = st.Receive([]byte("LD"))
	require.NoError(t, err)
	assert.Equal(t, Complete, progress)
	assert.Equal(t, "hello WORLD", string(sink.data))
}

func TestReceiveOverrun(t *testing.T) {
	st := NewState()
	st.Connect(1, 0)
	require.NoError(t, st.ArmReceive(0, 3, &memSink{}))

	_, err := st.Receive([]byte("abcd"))
	require.ErrorIs(t, err, ErrOverrun)
	assert.Equal(t, uint32(0), st.CurrentOffset())
	assert.LessOrEqual(t, st.CurrentOffset(), st.EndingOffset())
}

func TestCleanupKeepsChannel(t *testing.T) {
	st := NewState()
	st.Connect(0x41, 50)
	require.NoError(t, st.ArmReceive(10, 10, &memSink{}))
	st.Set(FlagResponsePending)

	st.Cleanup()

	assert.False(t, st.Busy())
	assert.True(t, st.Idle())
	assert.Equal(t, uint32(0), st.CurrentOffset())
	assert.Equal(t, uint32(0), st.EndingOffset())
	assert.Equal(t, 50, st.MaxChunk())
	assert.Equal(t, uint16(0x41), st.ChannelID())
	assert.True(t, st.Flags().Has(FlagConnected))
	assert.False(t, st.Flags().Has(FlagResponsePending))

	st.Disconnect()
	assert.False(t, st.Flags().Has(FlagConnected))
	assert.False(t, st.Idle())
}
