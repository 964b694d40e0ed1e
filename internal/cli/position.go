package cli

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mamaar/goextract/pkg/types"
)

// resolveFile maps a command line path onto a unit of prog. Paths are
// tried relative to the working directory first, then to the program root.
func resolveFile(prog *types.Program, file string) (*types.SourceUnit, error) {
	if abs, err := filepath.Abs(file); err == nil {
		if u := prog.Unit(abs); u != nil {
			return u, nil
		}
	}
	id, err := prog.ResolveUnit(file)
	if err != nil {
		return nil, err
	}
	return prog.Unit(id), nil
}

// parsePosition accepts a byte offset or a line:column pair.
func parsePosition(u *types.SourceUnit, pos string) (int, error) {
	if line, col, ok := strings.Cut(pos, ":"); ok {
		l, err1 := strconv.Atoi(line)
		c, err2 := strconv.Atoi(col)
		if err1 != nil || err2 != nil {
			return 0, fmt.Errorf("invalid position %q: want line:column", pos)
		}
		return u.OffsetAt(l, c)
	}
	off, err := strconv.Atoi(pos)
	if err != nil {
		return 0, fmt.Errorf("invalid position %q: want an offset or line:column", pos)
	}
	if off < 0 || off > len(u.Text) {
		return 0, fmt.Errorf("offset %d is outside %s (size %d)", off, u.ID, len(u.Text))
	}
	return off, nil
}

// parseSpan resolves the selection from start to end; an empty end selects
// the cursor position start.
func parseSpan(u *types.SourceUnit, start, end string) (types.Span, error) {
	s, err := parsePosition(u, start)
	if err != nil {
		return types.Span{}, err
	}
	if end == "" {
		return types.Span{Start: s, End: s}, nil
	}
	e, err := parsePosition(u, end)
	if err != nil {
		return types.Span{}, err
	}
	if e < s {
		return types.Span{}, fmt.Errorf("selection end %s is before its start %s", end, start)
	}
	return types.Span{Start: s, End: e}, nil
}
