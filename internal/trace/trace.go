// Package trace parses allocator workload traces.
//
// A trace file is a plain-text script: a four-line header (suggested heap
// size, distinct block count, operation count, weight) followed by one
// operation per line:
//
//	a <id> <size>   allocate <size> bytes as block <id>
//	r <id> <size>   resize block <id> to <size> bytes
//	f <id>          release block <id>
//
// The suggested heap size and weight are carried through unvalidated; the
// replayer decides what to do with them.
package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrMalformed reports a trace file the parser cannot make sense of.
var ErrMalformed = errors.New("trace: malformed file")

// Kind is an operation discriminator, matching the script letter.
type Kind byte

const (
	KindAlloc   Kind = 'a'
	KindFree    Kind = 'f'
	KindRealloc Kind = 'r'
)

// Op is one scripted allocator operation. Size is meaningless for KindFree.
type Op struct {
	Kind Kind
	ID   int
	Size int
}

// Trace is a parsed workload script.
type Trace struct {
	Name     string
	HeapHint int // suggested heap size from the header, advisory only
	Blocks   int // number of distinct block ids
	Weight   int
	Ops      []Op
}

// ParseFile reads and parses one trace file.
func ParseFile(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tr, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	tr.Name = path
	return tr, nil
}

// Parse parses a trace script from r.
func Parse(r io.Reader) (*Trace, error) {
	sc := bufio.NewScanner(r)
	line := 0
	next := func() (string, bool) {
		for sc.Scan() {
			line++
			s := strings.TrimSpace(sc.Text())
			if s != "" {
				return s, true
			}
		}
		return "", false
	}
	headerInt := func(what string) (int, error) {
		s, ok := next()
		if !ok {
			return 0, fmt.Errorf("%w: missing %s header", ErrMalformed, what)
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("%w: line %d: bad %s %q", ErrMalformed, line, what, s)
		}
		return n, nil
	}

	var tr Trace
	var err error
	if tr.HeapHint, err = headerInt("heap hint"); err != nil {
		return nil, err
	}
	if tr.Blocks, err = headerInt("block count"); err != nil {
		return nil, err
	}
	opCount, err := headerInt("operation count")
	if err != nil {
		return nil, err
	}
	if tr.Weight, err = headerInt("weight"); err != nil {
		return nil, err
	}
	if tr.Blocks < 0 || opCount < 0 {
		return nil, fmt.Errorf("%w: negative header counts", ErrMalformed)
	}

	tr.Ops = make([]Op, 0, opCount)
	for {
		s, ok := next()
		if !ok {
			break
		}
		op, err := parseOp(s, tr.Blocks)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
		}
		tr.Ops = append(tr.Ops, op)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(tr.Ops) != opCount {
		return nil, fmt.Errorf("%w: header promises %d ops, file has %d",
			ErrMalformed, opCount, len(tr.Ops))
	}
	return &tr, nil
}

func parseOp(s string, blocks int) (Op, error) {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return Op{}, fmt.Errorf("short op %q", s)
	}

	var op Op
	switch fields[0] {
	case "a":
		op.Kind = KindAlloc
	case "f":
		op.Kind = KindFree
	case "r":
		op.Kind = KindRealloc
	default:
		return Op{}, fmt.Errorf("unknown op %q", fields[0])
	}

	id, err := strconv.Atoi(fields[1])
	if err != nil || id < 0 || id >= blocks {
		return Op{}, fmt.Errorf("bad block id %q", fields[1])
	}
	op.ID = id

	if op.Kind == KindFree {
		return op, nil
	}
	if len(fields) < 3 {
		return Op{}, fmt.Errorf("op %q needs a size", fields[0])
	}
	size, err := strconv.Atoi(fields[2])
	if err != nil || size < 0 {
		return Op{}, fmt.Errorf("bad size %q", fields[2])
	}
	op.Size = size
	return op, nil
}
