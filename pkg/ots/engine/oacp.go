package engine

import (
	"context"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/marmos91/dittoots/internal/logger"
	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/codec"
	"github.com/marmos91/dittoots/pkg/ots/store"
	"github.com/marmos91/dittoots/pkg/ots/transfer"
	"github.com/marmos91/dittoots/pkg/store/content"
)

// oacpFeature maps each opcode to the feature bit that enables it.
var oacpFeature = map[ots.OACPOpcode]ots.OACPFeatures{
	ots.OACPCreate:       ots.OACPFeatureCreate,
	ots.OACPDelete:       ots.OACPFeatureDelete,
	ots.OACPCalcChecksum: ots.OACPFeatureChecksum,
	ots.OACPExecute:      ots.OACPFeatureExecute,
	ots.OACPRead:         ots.OACPFeatureRead,
	ots.OACPWrite:        ots.OACPFeatureWrite,
	ots.OACPAbort:        ots.OACPFeatureAbort,
}

// oacpProperty maps object-bound opcodes to the property the current object
// must carry.
var oacpProperty = map[ots.OACPOpcode]ots.Properties{
	ots.OACPDelete:  ots.PropertyDelete,
	ots.OACPExecute: ots.PropertyExecute,
	ots.OACPRead:    ots.PropertyRead,
	ots.OACPWrite:   ots.PropertyWrite,
}

// handleOACP runs one Object Action Control Point procedure.
//
// Checks run in a fixed order: the opcode must be supported, an
// object-bound procedure needs a current object, the object's properties
// must permit the action, and a locked object refuses everything but a
// checksum. Procedure-specific parameter checks follow.
//
// Returns:
//   - codec.OACPResponse: The response to indicate
//   - func(): Work to run after the response was indicated, or nil
func (e *Engine) handleOACP(ctx context.Context, s *Session, req codec.OACPRequest) (codec.OACPResponse, func()) {
	resp := codec.OACPResponse{RequestOpcode: req.Opcode, Result: ots.OACPSuccess}
	fail := func(r ots.OACPResult) (codec.OACPResponse, func()) {
		resp.Result = r
		return resp, nil
	}

	feature, known := oacpFeature[req.Opcode]
	if !known || !e.cfg.Features.OACP.Has(feature) {
		return fail(ots.OACPOpcodeNotSupported)
	}

	switch req.Opcode {
	case ots.OACPCreate:
		return fail(e.oacpCreate(ctx, s, req))
	case ots.OACPAbort:
		return fail(e.oacpAbort(s))
	}

	obj, ok := s.current()
	if !ok {
		return fail(ots.OACPInvalidObject)
	}
	if prop, needed := oacpProperty[req.Opcode]; needed && !obj.Properties.Has(prop) {
		return fail(ots.OACPProcedureNotPermitted)
	}
	if obj.Locked() && req.Opcode != ots.OACPCalcChecksum {
		return fail(ots.OACPObjectLocked)
	}

	switch req.Opcode {
	case ots.OACPDelete:
		return fail(e.oacpDelete(ctx, s, obj))
	case ots.OACPCalcChecksum:
		sum, result := e.oacpChecksum(ctx, obj, req.Offset, req.Length)
		resp.Checksum, resp.HasChecksum = sum, result == ots.OACPSuccess
		return fail(result)
	case ots.OACPExecute:
		return fail(e.oacpExecute(ctx, obj, req.Params))
	case ots.OACPRead:
		result := e.oacpRead(ctx, s, obj, req.Offset, req.Length)
		if result != ots.OACPSuccess {
			return fail(result)
		}
		return resp, func() { e.pump(ctx, s) }
	case ots.OACPWrite:
		result := e.oacpWrite(ctx, s, obj, req)
		if result != ots.OACPSuccess {
			return fail(result)
		}
		if req.Length == 0 {
			return resp, func() { e.finishWrite(ctx, s) }
		}
		return resp, nil
	}

	return fail(ots.OACPOpcodeNotSupported)
}

// placeholderName names a created object after the ID it is about to
// get, so names stay unique until the client renames it.
func (e *Engine) placeholderName() string {
	name := fmt.Sprintf("%s %s", DefaultObjectName, e.store.NextID())
	for n := 2; ; n++ {
		if _, taken := e.store.FindByName(name); !taken {
			return name
		}
		name = fmt.Sprintf("%s %s (%d)", DefaultObjectName, e.store.NextID(), n)
	}
}

// oacpCreate allocates an empty object and makes it the requester's
// current object. The requester's filters are reset so the new object is
// guaranteed to be a member of its list.
func (e *Engine) oacpCreate(ctx context.Context, s *Session, req codec.OACPRequest) ots.OACPResult {
	if !e.cfg.creatable(req.Type) {
		return ots.OACPUnsupportedType
	}
	if e.cfg.MaxObjectSize > 0 && req.Size > e.cfg.MaxObjectSize {
		return ots.OACPInsufficientResources
	}

	obj, err := e.store.Create(e.placeholderName(), req.Type, req.Size, e.cfg.DefaultProperties)
	if err != nil {
		logger.Warn("Session %s: create failed: %v", s.id, err)
		if store.IsCapacity(err) {
			return ots.OACPInsufficientResources
		}
		return ots.OACPOperationFailed
	}
	id := obj.ID

	e.persist(ctx, id)
	e.persistNextID(ctx)

	s.view.ResetFilters()
	e.rebuildViews()
	s.view.SetCurrent(id)

	e.notifyChanged(s, ots.ChangeCreation, id)
	logger.Info("Session %s created object %s (type %s, size %d)", s.id, id, req.Type, req.Size)
	return ots.OACPSuccess
}

func (e *Engine) oacpDelete(ctx context.Context, s *Session, obj *store.Object) ots.OACPResult {
	id := obj.ID
	if err := e.store.Delete(id); err != nil {
		logger.Warn("Session %s: delete of %s failed: %v", s.id, id, err)
		if store.IsLocked(err) {
			return ots.OACPObjectLocked
		}
		return ots.OACPProcedureNotPermitted
	}

	e.forget(ctx, id)
	e.rebuildViews()
	e.notifyChanged(s, ots.ChangeDeletion, id)
	logger.Info("Session %s deleted object %s", s.id, id)
	return ots.OACPSuccess
}

// oacpChecksum computes the CRC-32 (IEEE) of the window. Bytes past the
// current size count as zeros.
func (e *Engine) oacpChecksum(ctx context.Context, obj *store.Object, offset, length uint32) (uint32, ots.OACPResult) {
	limit := obj.AllocatedSize
	if obj.IsDirectory() {
		limit = uint32(len(e.refreshListing()))
	}
	if uint64(offset)+uint64(length) > uint64(limit) {
		return 0, ots.OACPInvalidParameter
	}

	data, err := e.readWindow(ctx, obj, offset, length)
	if err != nil {
		logger.Error("Checksum of %s failed: %v", obj.ID, err)
		return 0, ots.OACPOperationFailed
	}
	return crc32.ChecksumIEEE(data), ots.OACPSuccess
}

func (e *Engine) oacpExecute(ctx context.Context, obj *store.Object, params []byte) ots.OACPResult {
	if e.executor == nil {
		return ots.OACPSuccess
	}
	if err := e.executor.Execute(ctx, obj.Snapshot(), params); err != nil {
		logger.Warn("Execute of %s failed: %v", obj.ID, err)
		return ots.OACPOperationFailed
	}
	return ots.OACPSuccess
}

// oacpRead arms the session's channel to stream the window. Streaming
// starts once the response has been indicated.
func (e *Engine) oacpRead(ctx context.Context, s *Session, obj *store.Object, offset, length uint32) ots.OACPResult {
	if obj.IsDirectory() {
		size := uint32(len(e.refreshListing()))
		if offset != 0 || length != size {
			return ots.OACPInvalidParameter
		}
	} else if uint64(offset)+uint64(length) > uint64(obj.CurrentSize) {
		return ots.OACPInvalidParameter
	}

	if s.channel == nil || !s.xfer.Idle() {
		return ots.OACPChannelUnavailable
	}

	data, err := e.readWindow(ctx, obj, offset, length)
	if err != nil {
		logger.Error("Session %s: read of %s failed: %v", s.id, obj.ID, err)
		return ots.OACPOperationFailed
	}

	if err := e.store.Lock(obj.ID, s.id); err != nil {
		return ots.OACPObjectLocked
	}
	if err := s.xfer.ArmSend(offset, data); err != nil {
		e.store.Unlock(obj.ID, s.id)
		return ots.OACPChannelUnavailable
	}
	s.active = obj.ID

	logger.Debug("Session %s: reading %s [%d, %d)", s.id, obj.ID, offset, offset+length)
	return ots.OACPSuccess
}

// oacpWrite arms the session's channel to receive the window.
func (e *Engine) oacpWrite(ctx context.Context, s *Session, obj *store.Object, req codec.OACPRequest) ots.OACPResult {
	features := e.cfg.Features.OACP
	end := uint64(req.Offset) + uint64(req.Length)
	truncate := req.Mode&ots.WriteModeTruncate != 0

	if req.Offset > obj.CurrentSize {
		return ots.OACPInvalidParameter
	}
	if req.Offset < obj.CurrentSize &&
		(!obj.Properties.Has(ots.PropertyPatch) || !features.Has(ots.OACPFeaturePatch)) {
		return ots.OACPProcedureNotPermitted
	}
	if end > uint64(obj.AllocatedSize) &&
		(!obj.Properties.Has(ots.PropertyAppend) || !features.Has(ots.OACPFeatureAppend)) {
		return ots.OACPProcedureNotPermitted
	}
	if truncate && (!obj.Properties.Has(ots.PropertyTruncate) || !features.Has(ots.OACPFeatureTruncate)) {
		return ots.OACPProcedureNotPermitted
	}
	if end > math.MaxUint32 || (e.cfg.MaxObjectSize > 0 && end > uint64(e.cfg.MaxObjectSize)) {
		return ots.OACPInsufficientResources
	}

	if s.channel == nil || !s.xfer.Idle() {
		return ots.OACPChannelUnavailable
	}

	if err := e.store.Lock(obj.ID, s.id); err != nil {
		return ots.OACPObjectLocked
	}

	sink := &objectSink{e: e, id: obj.ID, ctx: ctx}
	if err := s.xfer.ArmReceive(req.Offset, req.Length, sink); err != nil {
		e.store.Unlock(obj.ID, s.id)
		return ots.OACPChannelUnavailable
	}
	s.active = obj.ID
	s.truncate = truncate
	s.sink = sink

	logger.Debug("Session %s: writing %s [%d, %d) truncate=%v", s.id, obj.ID, req.Offset, end, truncate)
	return ots.OACPSuccess
}

// oacpAbort stops the session's read in progress.
func (e *Engine) oacpAbort(s *Session) ots.OACPResult {
	if !s.xfer.Flags().Has(transfer.FlagReadInProgress) {
		return ots.OACPProcedureNotPermitted
	}
	e.abortTransfer(s, "abort")
	return ots.OACPSuccess
}

// finishWrite completes a write: truncates when requested, stamps the
// modification time and tells the other sessions.
func (e *Engine) finishWrite(ctx context.Context, s *Session) {
	id := s.active
	end := s.xfer.EndingOffset()

	e.flush(ctx, s, id)
	if s.truncate {
		if err := e.store.Truncate(id, end); err != nil {
			logger.Warn("Session %s: truncate of %s failed: %v", s.id, id, err)
		}
		if err := e.content.Truncate(ctx, content.IDForObject(id), uint64(end)); err != nil {
			// Nothing was ever stored for an empty object
			if end != 0 {
				logger.Warn("Session %s: content truncate of %s failed: %v", s.id, id, err)
			}
		}
	}
	_ = e.store.SetLastModified(id, e.stamp())

	e.store.Unlock(id, s.id)
	e.releaseTransfer(s)

	e.persist(ctx, id)
	e.rebuildViews()
	e.notifyChanged(s, ots.ChangeContents, id)
	logger.Debug("Session %s: write of %s complete", s.id, id)
}
