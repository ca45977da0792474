package client

import (
	"fmt"
	"sync"

	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/codec"
	"github.com/marmos91/dittoots/pkg/ots/store"
	"github.com/marmos91/dittoots/pkg/ots/view"
)

// FetchDirectory selects the directory listing object, reads it in full
// and decodes it into a local object store. The returned view filters and
// sorts the server's objects without further round trips.
//
// The directory listing object stays selected on the server afterwards.
func (c *Client) FetchDirectory(done func(*view.View, error)) error {
	c.mu.Lock()
	defer c.unlock()

	fail := func(err error) {
		c.later(func() { done(nil, err) })
	}

	req := codec.OLCPRequest{Opcode: ots.OLCPGoTo, ID: ots.DirectoryListingID}
	return c.olcp(req, func(resp codec.OLCPResponse, err error) {
		if err := olcpErr(req.Opcode, resp, err); err != nil {
			fail(fmt.Errorf("select directory: %w", err))
			return
		}
		c.hasCurrent = false

		c.enqueue(&attOp{h: ots.HandleObjectSize, done: func(value []byte, err error) {
			var size codec.Size
			if err == nil {
				size, err = codec.DecodeSize(value)
			}
			if err != nil {
				fail(fmt.Errorf("directory size: %w", err))
				return
			}

			buf := NewMemorySink(int(size.Current))
			err = c.readObject(0, size.Current, buf, func(err error) {
				if err != nil {
					fail(fmt.Errorf("read directory: %w", err))
					return
				}
				v, err := decodeDirectory(buf.Bytes())
				c.later(func() { done(v, err) })
			})
			if err != nil {
				fail(fmt.Errorf("read directory: %w", err))
			}
		}})
	})
}

func decodeDirectory(listing []byte) (*view.View, error) {
	objs, err := codec.DecodeDirectoryListing(listing)
	if err != nil {
		return nil, fmt.Errorf("decode directory: %w", err)
	}

	st := store.New(len(objs))
	for _, obj := range objs {
		if _, err := st.Restore(obj); err != nil {
			return nil, fmt.Errorf("decode directory: object %s: %w", obj.ID, err)
		}
	}
	return view.New(st), nil
}

// MemorySink collects an object read in memory.
type MemorySink struct {
	mu  sync.Mutex
	buf []byte
}

// NewMemorySink creates a sink with room for size bytes.
func NewMemorySink(size int) *MemorySink {
	return &MemorySink{buf: make([]byte, 0, size)}
}

// WriteAt implements io.WriterAt, growing the buffer as needed.
func (m *MemorySink) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	end := int(off) + len(p)
	if end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	copy(m.buf[off:], p)
	return len(p), nil
}

// Bytes returns the collected data.
func (m *MemorySink) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf
}
