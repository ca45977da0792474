package engine

import (
	"context"
	"errors"
	"time"

	"github.com/marmos91/dittoots/internal/logger"
	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/codec"
	"github.com/marmos91/dittoots/pkg/ots/store"
)

// ReadAttribute serves an attribute read.
//
// Reading the directory object's size regenerates the listing first, so
// the size a client sees always matches the bytes a Read will stream.
//
// Returns:
//   - []byte: The characteristic value
//   - ots.ATTError: ATTSuccess, or the ATT error to report
func (e *Engine) ReadAttribute(ctx context.Context, sid string, h ots.HandleType) ([]byte, ots.ATTError) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.session(sid)
	if err != nil {
		logger.Warn("Read of %s: %v", h, err)
		return nil, ots.ATTUnlikelyError
	}

	switch {
	case h == ots.HandleFeature:
		return codec.EncodeFeatures(e.cfg.Features), ots.ATTSuccess

	case h.IsMetadata():
		obj, ok := s.current()
		if !ok {
			return nil, ots.ATTObjectNotSelected
		}
		if obj.IsDirectory() && h == ots.HandleObjectSize {
			e.refreshListing()
		}
		value, _ := codec.EncodeMetadata(h, obj)
		return value, ots.ATTSuccess

	case h.IsCCCD():
		return codec.EncodeCCCD(*s.cccd(h)), ots.ATTSuccess
	}

	if slot, ok := h.FilterSlot(); ok {
		f, _ := s.view.Filter(slot)
		return codec.EncodeFilter(f), ots.ATTSuccess
	}

	return nil, ots.ATTReadNotPermitted
}

// WriteAttribute serves an attribute write.
//
// Control point writes answer with ATTSuccess once the procedure has run;
// its result travels in the response indication sent to the peer before
// WriteAttribute returns. The transport must deliver the write response
// ahead of that indication.
func (e *Engine) WriteAttribute(ctx context.Context, sid string, h ots.HandleType, payload []byte) ots.ATTError {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.session(sid)
	if err != nil {
		logger.Warn("Write of %s: %v", h, err)
		return ots.ATTUnlikelyError
	}

	req, err := codec.Decode(h, payload)
	if err != nil {
		if errors.Is(err, codec.ErrNotWritable) {
			return ots.ATTWriteNotPermitted
		}
		logger.Debug("Session %s: malformed write to %s: %v", s.id, h, err)
		switch h {
		case ots.HandleOACP, ots.HandleOLCP, ots.HandleOACPCCCD, ots.HandleOLCPCCCD, ots.HandleObjectChangedCCCD:
			return ots.ATTInvalidAttributeValueLength
		}
		return ots.ATTWriteRequestRejected
	}

	switch r := req.(type) {
	case codec.OACPRequest:
		if s.oacpCCCD&ots.CCCDIndicate == 0 {
			return ots.ATTCCCDImproperlyConfigured
		}
		start := time.Now()
		resp, after := e.handleOACP(ctx, s, r)
		e.metrics.RecordProcedure("oacp", r.Opcode.String(), resp.Result.String(), time.Since(start))
		logger.Debug("Session %s: OACP %s -> %s", s.id, r.Opcode, resp.Result)

		e.indicate(s, ots.HandleOACP, codec.EncodeOACPResponse(resp))
		if after != nil {
			after()
		}
		return ots.ATTSuccess

	case codec.OLCPRequest:
		if s.olcpCCCD&ots.CCCDIndicate == 0 {
			return ots.ATTCCCDImproperlyConfigured
		}
		start := time.Now()
		resp := e.handleOLCP(ctx, s, r)
		e.metrics.RecordProcedure("olcp", r.Opcode.String(), resp.Result.String(), time.Since(start))
		logger.Debug("Session %s: OLCP %s -> %s", s.id, r.Opcode, resp.Result)

		e.indicate(s, ots.HandleOLCP, codec.EncodeOLCPResponse(resp))
		return ots.ATTSuccess

	case codec.MetadataWrite:
		return e.writeMetadata(ctx, s, r)

	case codec.FilterWrite:
		if err := s.view.ApplyFilter(r.Slot, r.Filter); err != nil {
			logger.Debug("Session %s: rejected filter %s: %v", s.id, r.Filter, err)
			return ots.ATTWriteRequestRejected
		}
		return ots.ATTSuccess

	case codec.CCCDWrite:
		*s.cccd(r.Target) = r.Value
		return ots.ATTSuccess
	}

	return ots.ATTWriteNotPermitted
}

// writeMetadata applies a write to a metadata characteristic of the
// current object and tells the other sessions about it.
func (e *Engine) writeMetadata(ctx context.Context, s *Session, w codec.MetadataWrite) ots.ATTError {
	obj, ok := s.current()
	if !ok {
		return ots.ATTObjectNotSelected
	}
	if obj.IsDirectory() {
		return ots.ATTWriteRequestRejected
	}
	id := obj.ID

	var err error
	switch w.Target {
	case ots.HandleObjectName:
		err = e.store.Rename(id, w.Name)
	case ots.HandleFirstCreated:
		err = e.store.SetFirstCreated(id, w.DateTime)
	case ots.HandleLastModified:
		err = e.store.SetLastModified(id, w.DateTime)
	case ots.HandleObjectProperties:
		err = e.store.SetProperties(id, w.Properties)
	default:
		return ots.ATTWriteNotPermitted
	}

	if err != nil {
		logger.Debug("Session %s: metadata write to %s of %s failed: %v", s.id, w.Target, id, err)
		if store.IsNameExists(err) {
			return ots.ATTObjectNameAlreadyExists
		}
		return ots.ATTWriteRequestRejected
	}

	e.persist(ctx, id)
	e.rebuildViews()
	e.notifyChanged(s, ots.ChangeMetadata, id)
	return ots.ATTSuccess
}
