package gen

import (
	"golang.org/x/mod/modfile"
)

// descriptor renders the build descriptor of the generated project. The same
// content is written as <name>.mod and as go.mod so the project builds with
// and without the -modfile flag.
func (g *JenniferGenerator) descriptor() ([]byte, error) {
	c := g.config
	f := new(modfile.File)
	if err := f.AddModuleStmt(g.modulePath()); err != nil {
		return nil, NewGenerationError(KindIO, g.name(), "descriptor module", err)
	}
	if err := f.AddGoStmt(c.GoVersion); err != nil {
		return nil, NewGenerationError(KindIO, g.name(), "descriptor go version", err)
	}
	if err := f.AddRequire(c.RuntimePath, c.RuntimeVersion); err != nil {
		return nil, NewGenerationError(KindIO, g.name(), "descriptor require", err)
	}
	if c.RuntimeDir != "" {
		if err := f.AddReplace(c.RuntimePath, "", c.RuntimeDir, ""); err != nil {
			return nil, NewGenerationError(KindIO, g.name(), "descriptor replace", err)
		}
	}
	f.Cleanup()
	data, err := f.Format()
	if err != nil {
		return nil, NewGenerationError(KindIO, g.name(), "format descriptor", err)
	}
	return data, nil
}
