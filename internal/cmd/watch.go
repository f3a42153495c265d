package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/syssam/synchro/compiler/load"
	"github.com/syssam/synchro/internal/output"
)

// debounce is the quiet period after a change before regenerating.
const debounce = 200 * time.Millisecond

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	var flags generateFlags
	cmd := &cobra.Command{
		Use:   "watch MODULE",
		Short: "Regenerate a module whenever it or its metamodels change",
		Long: `Watch generates the module once, then again each time the module file
or one of its metamodel files changes. Failed generations are logged
and leave the previous output in place.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return exitError(runWatch(cmd.Context(), args[0], &flags))
		},
	}
	flags.register(cmd)
	return cmd
}

func runWatch(ctx context.Context, spec string, flags *generateFlags) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	files, err := watchedFiles(spec, flags)
	if err != nil {
		return err
	}
	// Editors replace files on save, so the directories are watched.
	dirs := make(map[string]bool)
	for _, f := range files {
		dir := filepath.Dir(f)
		if dirs[dir] {
			continue
		}
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		dirs[dir] = true
	}

	regenerate := func() {
		if _, err := runGenerate(ctx, spec, flags); err != nil {
			output.Failed(output.StageWatch, err)
		}
	}
	regenerate()
	output.Info("watching", "files", len(files))

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !files.has(ev.Name) || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			output.Debug("changed", "file", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			output.Warn("watch error", "err", err)
		case <-fire:
			fire = nil
			regenerate()
		}
	}
}

type fileSet []string

func (s fileSet) has(name string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	for _, f := range s {
		if f == abs {
			return true
		}
	}
	return false
}

// watchedFiles returns the module file, its metamodel files and its helper
// libraries, as absolute paths.
func watchedFiles(spec string, flags *generateFlags) (fileSet, error) {
	var out fileSet
	add := func(p string) error {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		out = append(out, abs)
		return nil
	}
	if err := add(spec); err != nil {
		return nil, err
	}
	for _, p := range append(append([]string{}, flags.in...), flags.out...) {
		if err := add(p); err != nil {
			return nil, err
		}
	}
	// Metamodels declared by the module are watched too. A module that does
	// not parse yet only watches itself.
	m, err := load.ParseFile(spec)
	if err != nil {
		return out, nil
	}
	dir := filepath.Dir(spec)
	for _, b := range append(append([]*load.ModelBinding{}, m.InModels...), m.OutModels...) {
		if b.Path == "" {
			continue
		}
		p := b.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		if err := add(p); err != nil {
			return nil, err
		}
	}
	for _, lib := range m.Libraries {
		if err := add(lib); err != nil {
			return nil, err
		}
	}
	return out, nil
}
