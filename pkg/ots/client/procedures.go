package client

import (
	"errors"
	"fmt"
	"io"

	"github.com/marmos91/dittoots/internal/logger"
	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/codec"
	"github.com/marmos91/dittoots/pkg/ots/store"
	"github.com/marmos91/dittoots/pkg/ots/transfer"
)

// ============================================================================
// Control points
// ============================================================================

// startProcedure writes a control point request. done runs with the
// response indication, or with the error that ended the procedure early.
func (c *Client) startProcedure(h ots.HandleType, value []byte, done func([]byte, error)) error {
	if c.proc != nil {
		return ErrProcedureInProgress
	}
	c.proc = &procedure{h: h, done: done}

	c.enqueue(&attOp{write: true, h: h, value: value, done: func(_ []byte, err error) {
		if err != nil && c.proc != nil && c.proc.h == h {
			c.finishProcedure(nil, err)
		}
	}})
	return nil
}

func (c *Client) finishProcedure(value []byte, err error) {
	p := c.proc
	c.proc = nil
	p.done(value, err)
}

func (c *Client) oacp(req codec.OACPRequest, done func(codec.OACPResponse, error)) error {
	return c.startProcedure(ots.HandleOACP, codec.EncodeOACPRequest(req), func(value []byte, err error) {
		if err != nil {
			done(codec.OACPResponse{}, err)
			return
		}
		resp, err := codec.DecodeOACPResponse(value)
		if err == nil && resp.RequestOpcode != req.Opcode {
			err = fmt.Errorf("%w: got %s for %s", ErrUnexpectedResponse, resp.RequestOpcode, req.Opcode)
		}
		done(resp, err)
	})
}

func (c *Client) olcp(req codec.OLCPRequest, done func(codec.OLCPResponse, error)) error {
	return c.startProcedure(ots.HandleOLCP, codec.EncodeOLCPRequest(req), func(value []byte, err error) {
		if err != nil {
			done(codec.OLCPResponse{}, err)
			return
		}
		resp, err := codec.DecodeOLCPResponse(value)
		if err == nil && resp.RequestOpcode != req.Opcode {
			err = fmt.Errorf("%w: got %s for %s", ErrUnexpectedResponse, resp.RequestOpcode, req.Opcode)
		}
		done(resp, err)
	})
}

// OACP runs an Object Action Control Point procedure and hands back the
// raw response. A result other than Success is not an error here.
//
// Read and Write requests should go through ReadObject and WriteObject,
// which also drive the transfer channel.
func (c *Client) OACP(req codec.OACPRequest, done func(codec.OACPResponse, error)) error {
	c.mu.Lock()
	defer c.unlock()

	return c.oacp(req, func(resp codec.OACPResponse, err error) {
		c.later(func() { done(resp, err) })
	})
}

// OLCP runs an Object List Control Point procedure. A result other than
// Success is not an error here.
func (c *Client) OLCP(req codec.OLCPRequest, done func(codec.OLCPResponse, error)) error {
	c.mu.Lock()
	defer c.unlock()

	return c.olcp(req, func(resp codec.OLCPResponse, err error) {
		if err == nil && resp.Result == ots.OLCPSuccess && movesCurrent(req.Opcode) {
			c.hasCurrent = false
		}
		c.later(func() { done(resp, err) })
	})
}

// movesCurrent reports whether a successful OLCP procedure may select a
// different current object.
func movesCurrent(op ots.OLCPOpcode) bool {
	switch op {
	case ots.OLCPFirst, ots.OLCPLast, ots.OLCPPrevious, ots.OLCPNext, ots.OLCPGoTo:
		return true
	default:
		return false
	}
}

func oacpErr(req ots.OACPOpcode, resp codec.OACPResponse, err error) error {
	if err != nil {
		return err
	}
	if resp.Result != ots.OACPSuccess {
		return &OACPError{Opcode: req, Result: resp.Result}
	}
	return nil
}

func olcpErr(req ots.OLCPOpcode, resp codec.OLCPResponse, err error) error {
	if err != nil {
		return err
	}
	if resp.Result != ots.OLCPSuccess {
		return &OLCPError{Opcode: req, Result: resp.Result}
	}
	return nil
}

// ============================================================================
// Metadata
// ============================================================================

// EnableIndications configures the OACP, OLCP and Object Changed
// descriptors for indications.
func (c *Client) EnableIndications(done func(error)) {
	c.mu.Lock()
	defer c.unlock()

	handles := []ots.HandleType{ots.HandleOACPCCCD, ots.HandleOLCPCCCD, ots.HandleObjectChangedCCCD}
	var first error
	for i, h := range handles {
		last := i == len(handles)-1
		c.enqueue(&attOp{write: true, h: h, value: codec.EncodeCCCD(ots.CCCDIndicate), done: func(_ []byte, err error) {
			if first == nil {
				first = err
			}
			if last {
				err := first
				c.later(func() { done(err) })
			}
		}})
	}
}

// ReadFeatures reads the server's OACP and OLCP feature bits.
func (c *Client) ReadFeatures(done func(ots.Features, error)) {
	c.mu.Lock()
	defer c.unlock()

	c.enqueue(&attOp{h: ots.HandleFeature, done: func(value []byte, err error) {
		var f ots.Features
		if err == nil {
			f, err = codec.DecodeFeatures(value)
		}
		c.later(func() { done(f, err) })
	}})
}

// RefreshMetadata reads every metadata characteristic of the current
// object. The reads are queued back to back; done runs after the last
// one. ots.ATTObjectNotSelected means the server has no current object.
func (c *Client) RefreshMetadata(done func(store.Object, error)) {
	c.mu.Lock()
	defer c.unlock()

	c.refresh(func(obj store.Object, err error) {
		c.later(func() { done(obj, err) })
	})
}

func (c *Client) refresh(done func(store.Object, error)) {
	var (
		obj   store.Object
		first error
	)
	for i, h := range codec.MetadataHandles {
		last := i == len(codec.MetadataHandles)-1
		c.enqueue(&attOp{h: h, done: func(value []byte, err error) {
			if first == nil {
				if err != nil {
					first = err
				} else if err := codec.DecodeMetadata(h, value, &obj); err != nil {
					first = err
				}
			}
			if !last {
				return
			}
			if first != nil {
				c.hasCurrent = false
				done(store.Object{}, first)
				return
			}
			c.current, c.hasCurrent = obj, true
			done(obj, nil)
		}})
	}
}

// ============================================================================
// Transfers
// ============================================================================

type transferOp struct {
	read     bool
	accepted bool

	done func(error)
}

// endTransfer completes the transfer in progress and resets the channel
// state.
func (c *Client) endTransfer(err error) {
	x := c.xfer
	c.xfer = nil
	c.xs.Cleanup()
	x.done(err)
}

// ReadObject reads length bytes of the current object starting at offset
// into sink. Bytes land at their object offset in sink. done runs once
// the whole range has arrived or the read failed.
func (c *Client) ReadObject(offset, length uint32, sink io.WriterAt, done func(error)) error {
	c.mu.Lock()
	defer c.unlock()

	return c.readObject(offset, length, sink, func(err error) {
		c.later(func() { done(err) })
	})
}

func (c *Client) readObject(offset, length uint32, sink io.WriterAt, done func(error)) error {
	if c.xfer != nil {
		return ErrTransferInProgress
	}
	// Chunks may overtake the response, so the receive is armed up front.
	if err := c.xs.ArmReceive(offset, length, sink); err != nil {
		return err
	}
	c.xs.Set(transfer.FlagResponsePending)

	x := &transferOp{read: true, done: done}
	c.xfer = x

	req := codec.OACPRequest{Opcode: ots.OACPRead, Offset: offset, Length: length}
	err := c.oacp(req, func(resp codec.OACPResponse, err error) {
		if c.xfer != x {
			return
		}
		c.xs.Clear(transfer.FlagResponsePending)
		if err := oacpErr(req.Opcode, resp, err); err != nil {
			c.endTransfer(err)
			return
		}
		x.accepted = true
		c.checkReadDone(x)
	})
	if err != nil {
		c.xfer = nil
		c.xs.Cleanup()
	}
	return err
}

func (c *Client) receive(x *transferOp, data []byte) {
	_, err := c.xs.Receive(data)
	switch {
	case errors.Is(err, transfer.ErrOverrun):
		err = fmt.Errorf("%w: %w", ErrOverrun, err)
		logger.Warn("OTS client: %v, dropping the connection", err)
		c.endTransfer(err)
		c.t.Disconnect(err)
	case err != nil:
		c.endTransfer(fmt.Errorf("write sink: %w", err))
	default:
		c.checkReadDone(x)
	}
}

func (c *Client) checkReadDone(x *transferOp) {
	if x.accepted && c.xs.Remaining() == 0 {
		c.endTransfer(nil)
	}
}

// Abort cancels the object read in progress. The read completes with
// ErrAborted once the server confirms.
func (c *Client) Abort(done func(error)) error {
	c.mu.Lock()
	defer c.unlock()

	x := c.xfer
	if x == nil || !x.read {
		return ErrNoTransfer
	}

	req := codec.OACPRequest{Opcode: ots.OACPAbort}
	return c.oacp(req, func(resp codec.OACPResponse, err error) {
		err = oacpErr(req.Opcode, resp, err)
		if err == nil && c.xfer == x {
			c.endTransfer(ErrAborted)
		}
		c.later(func() { done(err) })
	})
}

// WriteObject writes data into the current object at offset. With
// ots.WriteModeTruncate the object ends after the written range. Once the
// last chunk is sent the client re-reads the object's metadata, so
// Current reflects the new size when done runs.
func (c *Client) WriteObject(offset uint32, data []byte, mode ots.WriteMode, done func(error)) error {
	c.mu.Lock()
	defer c.unlock()

	if c.xfer != nil {
		return ErrTransferInProgress
	}
	if err := c.xs.ArmSend(offset, data); err != nil {
		return err
	}
	c.xs.Set(transfer.FlagResponsePending)

	x := &transferOp{}
	x.done = func(err error) {
		if err != nil {
			c.later(func() { done(err) })
			return
		}
		c.refresh(func(_ store.Object, err error) {
			c.later(func() { done(err) })
		})
	}
	c.xfer = x

	req := codec.OACPRequest{Opcode: ots.OACPWrite, Offset: offset, Length: uint32(len(data)), Mode: mode}
	err := c.oacp(req, func(resp codec.OACPResponse, err error) {
		if c.xfer != x {
			return
		}
		c.xs.Clear(transfer.FlagResponsePending)
		if err := oacpErr(req.Opcode, resp, err); err != nil {
			c.endTransfer(err)
			return
		}
		x.accepted = true
		c.pumpWrite()
	})
	if err != nil {
		c.xfer = nil
		c.xs.Cleanup()
	}
	return err
}

// pumpWrite sends chunks until the data is gone or the channel runs out
// of credits.
func (c *Client) pumpWrite() {
	progress, err := c.xs.Pump(c.ch)
	switch {
	case err != nil:
		c.endTransfer(err)
	case progress == transfer.Suspended:
		logger.Debug("OTS client: write suspended at offset %d, %d bytes left",
			c.xs.CurrentOffset(), c.xs.Remaining())
	default:
		c.endTransfer(nil)
	}
}
