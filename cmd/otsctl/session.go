package main

import (
	"context"
	"fmt"

	"github.com/marmos91/dittoots/pkg/adapter/tcp"
	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/client"
	"github.com/marmos91/dittoots/pkg/ots/codec"
	"github.com/marmos91/dittoots/pkg/ots/store"
	"github.com/marmos91/dittoots/pkg/ots/view"
)

// session wraps the callback API of client.Client in blocking calls.
type session struct {
	ctx  context.Context
	conn *tcp.ClientConn
	c    *client.Client
}

func dial(ctx context.Context, addr, bondKey string) (*session, error) {
	conn, err := tcp.Dial(ctx, addr, tcp.DialConfig{BondKey: bondKey})
	if err != nil {
		return nil, err
	}
	s := &session{ctx: ctx, conn: conn, c: conn.Client()}

	// Control point writes are rejected until indications are on
	err = waitErr(s, func(done func(error)) error {
		s.c.EnableIndications(done)
		return nil
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable indications: %w", err)
	}
	return s, nil
}

func (s *session) Close() error {
	return s.conn.Close()
}

type result[T any] struct {
	v   T
	err error
}

// wait blocks until the callback passed to start runs, the context ends
// or the connection drops.
func wait[T any](s *session, start func(done func(T, error)) error) (T, error) {
	ch := make(chan result[T], 1)
	var zero T
	if err := start(func(v T, err error) { ch <- result[T]{v, err} }); err != nil {
		return zero, err
	}
	select {
	case r := <-ch:
		return r.v, r.err
	case <-s.ctx.Done():
		return zero, s.ctx.Err()
	case <-s.conn.Done():
		return zero, fmt.Errorf("connection lost: %w", s.conn.Err())
	}
}

// waitErr is wait for callbacks that carry only an error.
func waitErr(s *session, start func(done func(error)) error) error {
	_, err := wait(s, func(done func(struct{}, error)) error {
		return start(func(err error) { done(struct{}{}, err) })
	})
	return err
}

func (s *session) directory() (*view.View, error) {
	return wait(s, s.c.FetchDirectory)
}

func (s *session) features() (ots.Features, error) {
	return wait(s, func(done func(ots.Features, error)) error {
		s.c.ReadFeatures(done)
		return nil
	})
}

// selectObject makes id the current object and returns its metadata.
func (s *session) selectObject(id ots.ObjectID) (store.Object, error) {
	req := codec.OLCPRequest{Opcode: ots.OLCPGoTo, ID: id}
	resp, err := wait(s, func(done func(codec.OLCPResponse, error)) error {
		return s.c.OLCP(req, done)
	})
	if err != nil {
		return store.Object{}, err
	}
	if resp.Result != ots.OLCPSuccess {
		return store.Object{}, &client.OLCPError{Opcode: req.Opcode, Result: resp.Result}
	}
	return s.metadata()
}

func (s *session) metadata() (store.Object, error) {
	return wait(s, func(done func(store.Object, error)) error {
		s.c.RefreshMetadata(done)
		return nil
	})
}

func (s *session) oacp(req codec.OACPRequest) (codec.OACPResponse, error) {
	resp, err := wait(s, func(done func(codec.OACPResponse, error)) error {
		return s.c.OACP(req, done)
	})
	if err != nil {
		return resp, err
	}
	if resp.Result != ots.OACPSuccess {
		return resp, &client.OACPError{Opcode: req.Opcode, Result: resp.Result}
	}
	return resp, nil
}

func (s *session) read(obj store.Object) ([]byte, error) {
	sink := client.NewMemorySink(int(obj.CurrentSize))
	err := waitErr(s, func(done func(error)) error {
		return s.c.ReadObject(0, obj.CurrentSize, sink, done)
	})
	if err != nil {
		return nil, err
	}
	return sink.Bytes(), nil
}

func (s *session) write(data []byte) error {
	return waitErr(s, func(done func(error)) error {
		return s.c.WriteObject(0, data, ots.WriteModeTruncate, done)
	})
}

func (s *session) setName(name string) error {
	return waitErr(s, func(done func(error)) error {
		s.c.Write(ots.HandleObjectName, codec.EncodeName(name), done)
		return nil
	})
}
