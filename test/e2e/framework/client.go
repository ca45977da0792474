package framework

import (
	"context"
	"testing"
	"time"

	"github.com/marmos91/dittoots/pkg/adapter/tcp"
	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/client"
	"github.com/marmos91/dittoots/pkg/ots/codec"
	"github.com/marmos91/dittoots/pkg/ots/store"
	"github.com/marmos91/dittoots/pkg/ots/view"
)

// OpTimeout bounds every blocking client call.
const OpTimeout = 10 * time.Second

// TestClient is a connected OTS client with blocking helpers. Helpers
// fail the test on transport errors and return procedure results as-is.
type TestClient struct {
	t    testing.TB
	conn *tcp.ClientConn
	c    *client.Client
}

// Connect dials ts and enables indications. bondKey may be empty for an
// unbonded session.
func Connect(t testing.TB, ts *TestServer, bondKey string) *TestClient {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), OpTimeout)
	defer cancel()

	conn, err := tcp.Dial(ctx, ts.Addr(), tcp.DialConfig{BondKey: bondKey})
	if err != nil {
		t.Fatalf("Failed to connect to %s: %v", ts.Addr(), err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	tc := &TestClient{t: t, conn: conn, c: conn.Client()}
	if err := tc.waitErr(func(done func(error)) error {
		tc.c.EnableIndications(done)
		return nil
	}); err != nil {
		t.Fatalf("Failed to enable indications: %v", err)
	}
	return tc
}

// Close drops the connection.
func (tc *TestClient) Close() {
	_ = tc.conn.Close()
}

// Client exposes the underlying client for calls without a helper.
func (tc *TestClient) Client() *client.Client {
	return tc.c
}

func wait[T any](tc *TestClient, start func(done func(T, error)) error) (T, error) {
	tc.t.Helper()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	var zero T
	if err := start(func(v T, err error) { ch <- result{v, err} }); err != nil {
		return zero, err
	}

	select {
	case r := <-ch:
		return r.v, r.err
	case <-tc.conn.Done():
		tc.t.Fatalf("Connection lost: %v", tc.conn.Err())
	case <-time.After(OpTimeout):
		tc.t.Fatalf("Timed out waiting for completion")
	}
	return zero, nil
}

func (tc *TestClient) waitErr(start func(done func(error)) error) error {
	tc.t.Helper()
	_, err := wait(tc, func(done func(struct{}, error)) error {
		return start(func(err error) { done(struct{}{}, err) })
	})
	return err
}

// OACP runs one object action procedure and returns the server's result.
func (tc *TestClient) OACP(req codec.OACPRequest) codec.OACPResponse {
	tc.t.Helper()
	resp, err := wait(tc, func(done func(codec.OACPResponse, error)) error {
		return tc.c.OACP(req, done)
	})
	if err != nil {
		tc.t.Fatalf("OACP %v: %v", req.Opcode, err)
	}
	return resp
}

// OLCP runs one object list procedure and returns the server's result.
func (tc *TestClient) OLCP(req codec.OLCPRequest) codec.OLCPResponse {
	tc.t.Helper()
	resp, err := wait(tc, func(done func(codec.OLCPResponse, error)) error {
		return tc.c.OLCP(req, done)
	})
	if err != nil {
		tc.t.Fatalf("OLCP %v: %v", req.Opcode, err)
	}
	return resp
}

// GoTo selects id and returns its metadata.
func (tc *TestClient) GoTo(id ots.ObjectID) store.Object {
	tc.t.Helper()
	if resp := tc.OLCP(codec.OLCPRequest{Opcode: ots.OLCPGoTo, ID: id}); resp.Result != ots.OLCPSuccess {
		tc.t.Fatalf("GoTo %s: %v", id, resp.Result)
	}
	return tc.Metadata()
}

// Metadata reads the current object's metadata.
func (tc *TestClient) Metadata() store.Object {
	tc.t.Helper()
	obj, err := wait(tc, func(done func(store.Object, error)) error {
		tc.c.RefreshMetadata(done)
		return nil
	})
	if err != nil {
		tc.t.Fatalf("Read metadata: %v", err)
	}
	return obj
}

// Put creates a named object holding data and returns its metadata.
func (tc *TestClient) Put(name string, data []byte) store.Object {
	tc.t.Helper()

	resp := tc.OACP(codec.OACPRequest{Opcode: ots.OACPCreate, Size: uint32(len(data)), Type: ots.UnspecifiedType})
	if resp.Result != ots.OACPSuccess {
		tc.t.Fatalf("Create %q: %v", name, resp.Result)
	}
	if err := tc.waitErr(func(done func(error)) error {
		tc.c.Write(ots.HandleObjectName, codec.EncodeName(name), done)
		return nil
	}); err != nil {
		tc.t.Fatalf("Set name %q: %v", name, err)
	}
	if len(data) > 0 {
		if err := tc.Write(0, data, ots.WriteModeNone); err != nil {
			tc.t.Fatalf("Write %q: %v", name, err)
		}
	}
	return tc.Metadata()
}

// Write transfers data into the current object.
func (tc *TestClient) Write(offset uint32, data []byte, mode ots.WriteMode) error {
	tc.t.Helper()
	return tc.waitErr(func(done func(error)) error {
		return tc.c.WriteObject(offset, data, mode, done)
	})
}

// Get reads the whole current object.
func (tc *TestClient) Get() []byte {
	tc.t.Helper()

	obj := tc.Metadata()
	sink := client.NewMemorySink(int(obj.CurrentSize))
	if obj.CurrentSize == 0 {
		return sink.Bytes()
	}
	if err := tc.waitErr(func(done func(error)) error {
		return tc.c.ReadObject(0, obj.CurrentSize, sink, done)
	}); err != nil {
		tc.t.Fatalf("Read %s: %v", obj.ID, err)
	}
	return sink.Bytes()
}

// Directory fetches and decodes the directory listing object.
func (tc *TestClient) Directory() *view.View {
	tc.t.Helper()
	v, err := wait(tc, tc.c.FetchDirectory)
	if err != nil {
		tc.t.Fatalf("Fetch directory: %v", err)
	}
	return v
}
