package engine

import (
	"context"
	"errors"

	"github.com/marmos91/dittoots/internal/logger"
	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/codec"
	"github.com/marmos91/dittoots/pkg/ots/store"
	"github.com/marmos91/dittoots/pkg/ots/view"
)

// olcpFeature lists the opcodes gated by a feature bit. First, Last,
// Previous and Next are mandatory.
var olcpFeature = map[ots.OLCPOpcode]ots.OLCPFeatures{
	ots.OLCPGoTo:                   ots.OLCPFeatureGoTo,
	ots.OLCPOrder:                  ots.OLCPFeatureOrder,
	ots.OLCPRequestNumberOfObjects: ots.OLCPFeatureRequestNumberOfObjects,
	ots.OLCPClearMarking:           ots.OLCPFeatureClearMarking,
}

// handleOLCP runs one Object List Control Point procedure against the
// session's view.
func (e *Engine) handleOLCP(ctx context.Context, s *Session, req codec.OLCPRequest) codec.OLCPResponse {
	resp := codec.OLCPResponse{RequestOpcode: req.Opcode, Result: ots.OLCPSuccess}

	if feature, gated := olcpFeature[req.Opcode]; gated && !e.cfg.Features.OLCP.Has(feature) {
		resp.Result = ots.OLCPOpcodeNotSupported
		return resp
	}

	var err error
	switch req.Opcode {
	case ots.OLCPFirst:
		_, err = s.view.First()
	case ots.OLCPLast:
		_, err = s.view.Last()
	case ots.OLCPPrevious:
		_, err = s.view.Previous()
	case ots.OLCPNext:
		_, err = s.view.Next()
	case ots.OLCPGoTo:
		_, err = s.view.GoTo(req.ID)
	case ots.OLCPOrder:
		err = s.view.Sort(req.Order)
	case ots.OLCPRequestNumberOfObjects:
		resp.Count, resp.HasCount = uint32(s.view.Len()), true
	case ots.OLCPClearMarking:
		err = e.clearMarking(ctx, s)
	default:
		resp.Result = ots.OLCPOpcodeNotSupported
		return resp
	}

	if err != nil {
		resp.Result = olcpResult(err)
		logger.Debug("Session %s: OLCP %s: %v", s.id, req.Opcode, err)
	}
	return resp
}

// olcpResult maps view errors onto OLCP result codes.
func olcpResult(err error) ots.OLCPResult {
	switch {
	case errors.Is(err, view.ErrNoObject):
		return ots.OLCPNoObject
	case errors.Is(err, view.ErrOutOfBounds):
		return ots.OLCPOutOfBounds
	case errors.Is(err, view.ErrNotFound):
		return ots.OLCPObjectIDNotFound
	case errors.Is(err, view.ErrInvalidOrder):
		return ots.OLCPInvalidParameter
	default:
		return ots.OLCPOperationFailed
	}
}

// clearMarking clears the mark of every object in the session's list.
func (e *Engine) clearMarking(ctx context.Context, s *Session) error {
	var cleared []ots.ObjectID
	for _, obj := range s.view.Objects() {
		if !obj.Marked {
			continue
		}
		if err := e.store.SetMarked(obj.ID, false); err != nil && !store.IsNotFound(err) {
			return err
		}
		cleared = append(cleared, obj.ID)
	}

	for _, id := range cleared {
		e.persist(ctx, id)
	}
	if len(cleared) > 0 {
		e.rebuildViews()
	}
	return nil
}
