package task

import (
	"maps"
	"slices"

	"github.com/dorcha-inc/hsp/internal/params"
	"github.com/dorcha-inc/hsp/internal/registry"
)

// Args is a Source of keyword values, the usual way to call a task.
type Args map[string]any

// Values implements params.Source
func (a Args) Values() map[string]any { return a }

// Interface guard for Args
var _ params.Source = Args{}

// BuildArgs renders the store as the command line of an external tool.
//
// In mixed style the leading run of required parameters whose file default is
// undefined is passed positionally and everything else as name=value. Named
// style passes every value as name=value. Undefined values are left out, and
// extras follow in name order.
func BuildArgs(s *params.Store, style registry.ArgStyle) []string {
	taskMode := s.TaskMode()
	positional := style != registry.ArgStyleNamed

	var args []string
	for _, d := range s.Schema().Params() {
		v, _ := s.Get(d.Name)
		if positional && !d.Required(taskMode) {
			positional = false
		}
		if !v.IsDefined() {
			positional = false
			continue
		}
		if positional {
			args = append(args, v.String())
			continue
		}
		args = append(args, d.Name+"="+v.String())
	}

	extras := s.Extras()
	for _, name := range slices.Sorted(maps.Keys(extras)) {
		args = append(args, name+"="+extras[name])
	}
	return args
}
