package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/dittoots/internal/logger"
	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/transfer"
	"github.com/marmos91/dittoots/pkg/store/content"
)

// ErrChannelBusy is returned when a second transfer channel is opened for
// a session that already has one.
var ErrChannelBusy = errors.New("transfer channel already open")

// ChannelOpened attaches a transfer channel to the session. maxChunk is
// the largest payload the channel carries; the engine never sends more
// than the configured maximum either.
func (e *Engine) ChannelOpened(sid string, ch transfer.Channel, maxChunk int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.session(sid)
	if err != nil {
		return err
	}
	if s.channel != nil {
		return fmt.Errorf("session %s: %w", sid, ErrChannelBusy)
	}

	if maxChunk <= 0 || maxChunk > e.cfg.MaxChunkSize {
		maxChunk = e.cfg.MaxChunkSize
	}
	s.channel = ch
	s.xfer.Connect(ch.ID(), maxChunk)

	logger.Debug("Session %s: transfer channel %d open (chunk %d)", sid, ch.ID(), maxChunk)
	return nil
}

// ChannelData delivers one inbound chunk. Data arriving while no write is
// armed is dropped. Data overrunning the armed window aborts the transfer
// and disconnects the client.
func (e *Engine) ChannelData(ctx context.Context, sid string, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.session(sid)
	if err != nil {
		return err
	}

	if !s.xfer.Flags().Has(transfer.FlagReceiveArmed) {
		logger.Warn("Session %s: dropping %d unexpected bytes on transfer channel", sid, len(data))
		return nil
	}

	s.sink.ctx = ctx
	before, _ := e.store.Find(s.active)
	var sizes [2]uint32
	if before != nil {
		sizes = [2]uint32{before.CurrentSize, before.AllocatedSize}
	}

	progress, err := s.xfer.Receive(data)
	if err != nil {
		reason := "write_error"
		if errors.Is(err, transfer.ErrOverrun) {
			reason = "overrun"
		}
		logger.Warn("Session %s: receive failed: %v", sid, err)
		e.abortTransfer(s, reason)
		s.peer.RequestDisconnect(err)
		return nil
	}

	s.received += uint32(len(data))
	e.metrics.RecordTransfer("write", int64(len(data)))
	if progress == transfer.Complete {
		e.finishWrite(ctx, s)
		return nil
	}

	// Size filters of other sessions must see the growth now
	if after, ok := e.store.Find(s.active); ok && [2]uint32{after.CurrentSize, after.AllocatedSize} != sizes {
		e.rebuildViews()
	}
	return nil
}

// BufferDrained resumes a suspended read once the channel has credits
// again.
func (e *Engine) BufferDrained(ctx context.Context, sid string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.session(sid)
	if err != nil {
		return err
	}
	if s.xfer.Flags().Has(transfer.FlagReadInProgress) {
		e.pump(ctx, s)
	}
	return nil
}

// ChannelClosed detaches the transfer channel. A transfer in progress is
// aborted; bytes already written stay in place.
func (e *Engine) ChannelClosed(sid string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.session(sid)
	if err != nil {
		return err
	}
	if s.xfer.Busy() {
		e.abortTransfer(s, "channel_closed")
	}
	s.xfer.Disconnect()
	s.channel = nil
	return nil
}

// pump sends as much of the armed read as the channel accepts.
func (e *Engine) pump(ctx context.Context, s *Session) {
	if s.channel == nil {
		e.abortTransfer(s, "channel_closed")
		return
	}

	before := s.xfer.CurrentOffset()
	progress, err := s.xfer.Pump(s.channel)
	e.metrics.RecordTransfer("read", int64(s.xfer.CurrentOffset()-before))

	if err != nil {
		logger.Warn("Session %s: send failed: %v", s.id, err)
		e.abortTransfer(s, "send_error")
		_ = s.channel.Close()
		s.peer.RequestDisconnect(err)
		return
	}

	switch progress {
	case transfer.Complete:
		logger.Debug("Session %s: read of %s complete", s.id, s.active)
		e.store.Unlock(s.active, s.id)
		e.releaseTransfer(s)
	case transfer.Suspended:
		logger.Debug("Session %s: read suspended at offset %d", s.id, s.xfer.CurrentOffset())
	}
}

// abortTransfer ends the transfer in progress early. A partially received
// write keeps the bytes that arrived, so the other sessions are told the
// contents changed.
func (e *Engine) abortTransfer(s *Session, reason string) {
	flags := s.xfer.Flags()
	direction := "read"
	if flags.Has(transfer.FlagWriteInProgress) {
		direction = "write"
	}
	e.metrics.RecordTransferAborted(direction, reason)

	id := s.active
	partial := direction == "write" && s.received > 0
	if partial {
		e.flush(context.Background(), s, id)
	}

	e.store.Unlock(id, s.id)
	e.releaseTransfer(s)

	if partial {
		e.persist(context.Background(), id)
		e.rebuildViews()
		e.notifyChanged(s, ots.ChangeContents, id)
	}
	logger.Info("Session %s: %s of %s aborted (%s)", s.id, direction, id, reason)
}

// flush pushes buffered content of id to the backing store, when the
// content store buffers writes at all.
func (e *Engine) flush(ctx context.Context, s *Session, id ots.ObjectID) {
	f, ok := e.content.(content.Flusher)
	if !ok {
		return
	}
	if err := f.Flush(ctx, content.IDForObject(id)); err != nil {
		logger.Error("Session %s: flush of %s failed: %v", s.id, id, err)
	}
}

// releaseTransfer returns the session's transfer state to idle.
func (e *Engine) releaseTransfer(s *Session) {
	s.xfer.Cleanup()
	s.active = 0
	s.truncate = false
	s.received = 0
	s.sink = nil
}
