// Command otsctl talks to a DittoOTS server over its TCP transport.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/marmos91/dittoots/internal/logger"
	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/codec"
)

const usage = `otsctl - DittoOTS command line client

Usage:
  otsctl [flags] <command> [args]

Commands:
  ls                     List objects
  features               Show the server's OACP and OLCP features
  get <id> [file]        Read an object (to stdout without file)
  put <file> [name]      Create an object from a file
  rm <id>                Delete an object

Flags:
`

func main() {
	addr := flag.String("addr", "localhost:6925", "Server address")
	bondKey := flag.String("bond", "", "Bond key, restores the list view of an earlier session")
	timeout := flag.Duration("timeout", time.Minute, "Overall timeout")
	typ := flag.String("type", "0x2ACA", "Object type for put")
	verbose := flag.Bool("v", false, "Log protocol activity")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *verbose {
		logger.SetLevel("DEBUG")
	} else {
		logger.SetLevel("ERROR")
	}
	logger.SetWriter(os.Stderr)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	if err := run(ctx, *addr, *bondKey, *typ, args); err != nil {
		fmt.Fprintf(os.Stderr, "otsctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, addr, bondKey, typ string, args []string) error {
	cmd, args := args[0], args[1:]

	s, err := dial(ctx, addr, bondKey)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	switch cmd {
	case "ls":
		return list(s, os.Stdout)
	case "features":
		return features(s, os.Stdout)
	case "get":
		if len(args) < 1 {
			return fmt.Errorf("usage: get <id> [file]")
		}
		out := ""
		if len(args) > 1 {
			out = args[1]
		}
		return get(s, args[0], out)
	case "put":
		if len(args) < 1 {
			return fmt.Errorf("usage: put <file> [name]")
		}
		name := filepath.Base(args[0])
		if len(args) > 1 {
			name = args[1]
		}
		return put(s, args[0], name, typ)
	case "rm":
		if len(args) != 1 {
			return fmt.Errorf("usage: rm <id>")
		}
		return remove(s, args[0])
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func list(s *session, w io.Writer) error {
	v, err := s.directory()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSIZE\tALLOCATED\tMODIFIED\tPROPERTIES")
	for _, obj := range v.Objects() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			obj.ID, obj.Name, obj.Type, obj.CurrentSize, obj.AllocatedSize,
			obj.LastModified, strings.Join(obj.Properties.Names(), ","))
	}
	return tw.Flush()
}

func features(s *session, w io.Writer) error {
	f, err := s.features()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "OACP: 0x%08X\nOLCP: 0x%08X\n", uint32(f.OACP), uint32(f.OLCP))
	return nil
}

func get(s *session, idArg, out string) error {
	id, err := parseID(idArg)
	if err != nil {
		return err
	}
	obj, err := s.selectObject(id)
	if err != nil {
		return err
	}
	data, err := s.read(obj)
	if err != nil {
		return err
	}

	if out == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(out, data, 0644)
}

func put(s *session, path, name, typArg string) error {
	t, err := ots.ParseObjectType(typArg)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if uint64(len(data)) > uint64(^uint32(0)) {
		return fmt.Errorf("%s: too large for an object", path)
	}

	// Create selects the new, unnamed object as current.
	if _, err := s.oacp(codec.OACPRequest{Opcode: ots.OACPCreate, Size: uint32(len(data)), Type: t}); err != nil {
		return err
	}
	if err := s.setName(name); err != nil {
		return fmt.Errorf("set name: %w", err)
	}
	if len(data) > 0 {
		if err := s.write(data); err != nil {
			return err
		}
	}

	obj, err := s.metadata()
	if err != nil {
		return err
	}
	fmt.Printf("%s %s (%d bytes)\n", obj.ID, obj.Name, obj.CurrentSize)
	return nil
}

func remove(s *session, idArg string) error {
	id, err := parseID(idArg)
	if err != nil {
		return err
	}
	if _, err := s.selectObject(id); err != nil {
		return err
	}
	_, err = s.oacp(codec.OACPRequest{Opcode: ots.OACPDelete})
	return err
}

// parseID accepts decimal or 0x-prefixed hex object IDs.
func parseID(s string) (ots.ObjectID, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid object ID %q", s)
	}
	id := ots.ObjectID(v)
	if !id.Valid() {
		return 0, fmt.Errorf("object ID %q does not fit in 48 bits", s)
	}
	return id, nil
}
