package matfile

import (
	"fmt"
	"io"
	"strings"
)

// Describe writes one line per variable with its class, MATLAB shape and
// decoded element type, indented by level.
func (f *File) Describe(w io.Writer, level int) error {
	tab := strings.Repeat("    ", level)
	if _, err := fmt.Fprintf(w, "%s%s (%s, %d variables)\n", strings.Repeat("    ", max(level-1, 0)), f.Path, f.Format, len(f.order)); err != nil {
		return err
	}
	for _, name := range f.order {
		v := f.vars[name]
		if _, err := fmt.Fprintf(w, "%s%s: %s %v %s\n", tab, name, v.Class, v.Shape(), v.DType()); err != nil {
			return err
		}
	}
	for _, name := range f.Unsupported {
		if _, err := fmt.Fprintf(w, "%s%s: unsupported\n", tab, name); err != nil {
			return err
		}
	}
	return nil
}
