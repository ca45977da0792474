package engine

import (
	"context"

	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/store"
	"github.com/marmos91/dittoots/pkg/ots/transfer"
	"github.com/marmos91/dittoots/pkg/ots/view"
	"github.com/marmos91/dittoots/pkg/store/content"
)

// Session is the per-client state of the server.
type Session struct {
	id      string
	peer    Peer
	bondKey string
	view    *view.View

	oacpCCCD    uint16
	olcpCCCD    uint16
	changedCCCD uint16

	xfer    *transfer.State
	channel transfer.Channel

	// active is the object locked by the transfer in progress
	active   ots.ObjectID
	truncate bool
	received uint32
	sink     *objectSink
}

func newSession(id string, peer Peer, bondKey string) *Session {
	return &Session{
		id:      id,
		peer:    peer,
		bondKey: bondKey,
		xfer:    transfer.NewState(),
	}
}

// cccd returns the descriptor value addressed by h.
func (s *Session) cccd(h ots.HandleType) *uint16 {
	switch h {
	case ots.HandleOACPCCCD:
		return &s.oacpCCCD
	case ots.HandleOLCPCCCD:
		return &s.olcpCCCD
	case ots.HandleObjectChangedCCCD:
		return &s.changedCCCD
	}
	return nil
}

// current returns the session's current object.
func (s *Session) current() (*store.Object, bool) {
	return s.view.Current()
}

// objectSink writes received chunks to the content store and grows the
// object's sizes to cover them.
type objectSink struct {
	e   *Engine
	id  ots.ObjectID
	ctx context.Context
}

func (k *objectSink) WriteAt(p []byte, off int64) (int, error) {
	if err := k.e.content.WriteAt(k.ctx, content.IDForObject(k.id), p, off); err != nil {
		return 0, err
	}
	if err := k.e.store.Grow(k.id, uint32(off)+uint32(len(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}
