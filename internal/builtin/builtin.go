// Package builtin provides the tasks hsp implements in process. Their parameter
// files are compiled in and used whenever PFILES holds no copy.
package builtin

import (
	_ "embed"

	"github.com/dorcha-inc/hsp/internal/registry"
	"github.com/dorcha-inc/hsp/internal/task"
)

// Module is the module name reported for built-in tasks.
const Module = "hsp"

var (
	//go:embed pfiles/template.par
	templatePar []byte
	//go:embed pfiles/plist.par
	plistPar []byte
	//go:embed pfiles/pget.par
	pgetPar []byte
	//go:embed pfiles/punlearn.par
	punlearnPar []byte
)

type builtin struct {
	name        string
	description string
	par         []byte
	run         task.NativeFunc
}

func builtins() []builtin {
	return []builtin{
		{"template", "Sample in-process task: copies bar into foo and increments bar", templatePar, runTemplate},
		{"plist", "List the parameters of a task with their current values", plistPar, runPlist},
		{"pget", "Print the current value of one parameter of a task", pgetPar, runPget},
		{"punlearn", "Forget learned values by removing the user parameter file of a task", punlearnPar, runPunlearn},
	}
}

func entryPoint(name string) string {
	return "builtin." + name
}

// Entries returns the registry entries of the built-in tasks.
func Entries() []*registry.Entry {
	var entries []*registry.Entry
	for _, b := range builtins() {
		entries = append(entries, &registry.Entry{
			Name:        b.name,
			Module:      Module,
			Kind:        registry.KindNative,
			EntryPoint:  entryPoint(b.name),
			ArgStyle:    registry.ArgStyleNamed,
			Description: b.description,
			EmbeddedPar: b.par,
		})
	}
	return entries
}

// Register binds the built-in implementations to r.
func Register(r *task.Runner) {
	for _, b := range builtins() {
		r.RegisterNative(entryPoint(b.name), b.run)
	}
}
