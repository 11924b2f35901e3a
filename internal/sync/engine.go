package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/jpfrdev/folder-sync/internal/stack"
)

const rootRel = "."

type walkPhase int

const (
	phaseForward walkPhase = iota
	phaseSweep
)

// walkFrame is one unit of pending traversal work: a directory identified
// by its path relative to the roots, and the phase to run on it.
type walkFrame struct {
	rel   string
	phase walkPhase
}

// Engine converges the replica tree onto the source tree, one pass at a
// time. A pass is strictly sequential and stateless: nothing persists
// between passes except the two trees and the log stream. All filesystem
// access goes through the injected afero.Fs.
type Engine struct {
	fs         afero.Fs
	hasher     *Hasher
	ignore     *IgnoreList
	log        *slog.Logger
	sourceDir  string
	replicaDir string
	dryRun     bool
}

func NewEngine(fs afero.Fs, hasher *Hasher, ignore *IgnoreList, log *slog.Logger, sourceDir, replicaDir string) *Engine {
	return &Engine{
		fs:         fs,
		hasher:     hasher,
		ignore:     ignore,
		log:        log,
		sourceDir:  sourceDir,
		replicaDir: replicaDir,
	}
}

// SetDryRun makes the engine log and count every decision without touching
// the replica.
func (e *Engine) SetDryRun(dryRun bool) {
	if dryRun && !e.dryRun {
		e.log = e.log.With("dryRun", true)
	}
	e.dryRun = dryRun
}

// Sync runs one full reconciliation pass. A nil error means the pass
// completed, possibly with isolated item failures counted in Result.Errors.
// A non-nil error means the pass aborted on a fatal root condition and no
// further passes should be scheduled.
func (e *Engine) Sync(ctx context.Context) (*Result, error) {
	res := &Result{}
	seen := mapset.NewSet[string]()

	// LIFO stack of pending directories instead of recursion, so traversal
	// depth is bounded by the heap, not the goroutine stack. A directory's
	// sweep frame is pushed below its child frames: every child subtree is
	// fully reconciled before the parent's sweep considers orphans.
	frames := stack.New[walkFrame]()
	frames.Push(walkFrame{rel: rootRel, phase: phaseForward})

	for frames.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		frame, _ := frames.Pop()

		switch frame.phase {
		case phaseForward:
			children, err := e.forward(frame.rel, seen, res)
			if err != nil {
				if frame.rel == rootRel {
					return res, err
				}
				// a failed subtree below the root is skipped, siblings
				// continue; its sweep is skipped too, because deleting
				// against an unknown source listing would wipe the subtree
				e.log.Error("sync subtree failed", "path", frame.rel, "error", err)
				res.Errors++
				continue
			}
			frames.Push(walkFrame{rel: frame.rel, phase: phaseSweep})
			for i := len(children) - 1; i >= 0; i-- {
				frames.Push(walkFrame{rel: children[i], phase: phaseForward})
			}
		case phaseSweep:
			e.sweep(frame.rel, seen, res)
		}
	}

	return res, nil
}

// forward reconciles one directory level source -> replica: ensures the
// replica directory exists, copies new and changed files, records every
// source entry in the seen set, and returns the subdirectories to descend
// into.
func (e *Engine) forward(rel string, seen mapset.Set[string], res *Result) ([]string, error) {
	srcDir := filepath.Join(e.sourceDir, rel)

	srcInfo, err := e.fs.Stat(srcDir)
	if err != nil {
		return nil, fmt.Errorf("source directory %s: %w", srcDir, err)
	}
	if !srcInfo.IsDir() {
		return nil, fmt.Errorf("source path %s is not a directory", srcDir)
	}

	if err := e.ensureReplicaDir(rel, res); err != nil {
		return nil, err
	}

	entries, err := afero.ReadDir(e.fs, srcDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list source directory %s: %w", srcDir, err)
	}

	var children []string
	for _, entry := range entries {
		childRel := filepath.Join(rel, entry.Name())
		if e.ignore.ShouldIgnore(childRel) {
			e.log.Debug("sync ignored", "path", childRel)
			continue
		}
		seen.Add(childRel)

		if entry.IsDir() {
			children = append(children, childRel)
			continue
		}
		e.syncFile(childRel, entry, res)
	}

	return children, nil
}

// ensureReplicaDir makes sure the replica side of rel is a directory,
// creating it when absent. A file in the way is replaced below the root;
// the roots themselves are user configuration and are never destructively
// coerced.
func (e *Engine) ensureReplicaDir(rel string, res *Result) error {
	repDir := filepath.Join(e.replicaDir, rel)

	info, err := e.fs.Stat(repDir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("replica directory %s: %w", repDir, err)
		}
		if !e.dryRun {
			if err := e.fs.MkdirAll(repDir, 0o755); err != nil {
				return fmt.Errorf("failed to create replica directory %s: %w", repDir, err)
			}
		}
		e.log.Info("sync", "op", OpCreateDir, "path", rel)
		res.Dirs++
		return nil
	}

	if info.IsDir() {
		return nil
	}

	if rel == rootRel {
		return fmt.Errorf("replica path %s exists and is not a directory", repDir)
	}

	if !e.dryRun {
		if err := e.fs.Remove(repDir); err != nil {
			return fmt.Errorf("failed to remove file %s: %w", repDir, err)
		}
		if err := e.fs.MkdirAll(repDir, 0o755); err != nil {
			return fmt.Errorf("failed to create replica directory %s: %w", repDir, err)
		}
	}
	e.log.Info("sync", "op", OpReplace, "path", rel, "have", "file", "want", "directory")
	res.Replaced++
	return nil
}

// syncFile reconciles a single file. Every failure here is an item-level
// failure: logged, counted, and the pass moves on to the next sibling.
func (e *Engine) syncFile(rel string, srcInfo os.FileInfo, res *Result) {
	srcPath := filepath.Join(e.sourceDir, rel)
	repPath := filepath.Join(e.replicaDir, rel)

	repInfo, err := e.fs.Stat(repPath)
	switch {
	case err != nil && errors.Is(err, os.ErrNotExist):
		if err := e.copyFile(srcPath, repPath, res); err != nil {
			e.log.Error("sync copy failed", "path", rel, "error", err)
			res.Errors++
			return
		}
		e.log.Info("sync", "op", OpCopyNew, "path", rel, "size", humanize.Bytes(uint64(srcInfo.Size())))
		res.Copied++

	case err != nil:
		e.log.Error("sync stat failed", "path", rel, "error", err)
		res.Errors++

	case repInfo.IsDir():
		// a directory occupies the replica path where the source has a file
		if !e.dryRun {
			if err := e.fs.RemoveAll(repPath); err != nil {
				e.log.Error("sync replace failed", "path", rel, "error", err)
				res.Errors++
				return
			}
		}
		if err := e.copyFile(srcPath, repPath, res); err != nil {
			e.log.Error("sync copy failed", "path", rel, "error", err)
			res.Errors++
			return
		}
		e.log.Info("sync", "op", OpReplace, "path", rel, "have", "directory", "want", "file", "size", humanize.Bytes(uint64(srcInfo.Size())))
		res.Replaced++

	default:
		same, err := e.sameContent(srcPath, repPath)
		if err != nil {
			e.log.Error("sync hash failed", "path", rel, "error", err)
			res.Errors++
			return
		}
		if same {
			e.log.Debug("sync", "op", OpSkipUnchanged, "path", rel)
			res.Skipped++
			return
		}
		if err := e.copyFile(srcPath, repPath, res); err != nil {
			e.log.Error("sync copy failed", "path", rel, "error", err)
			res.Errors++
			return
		}
		e.log.Info("sync", "op", OpCopyChanged, "path", rel, "size", humanize.Bytes(uint64(srcInfo.Size())))
		res.Updated++
	}
}

// sameContent compares two files by fingerprint.
func (e *Engine) sameContent(srcPath, repPath string) (bool, error) {
	srcSum, err := e.hasher.Hash(srcPath)
	if err != nil {
		return false, err
	}
	repSum, err := e.hasher.Hash(repPath)
	if err != nil {
		return false, err
	}
	return srcSum == repSum, nil
}

func (e *Engine) copyFile(srcPath, repPath string, res *Result) error {
	if e.dryRun {
		if info, err := e.fs.Stat(srcPath); err == nil {
			res.Bytes += info.Size()
		}
		return nil
	}

	srcFile, err := e.fs.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", srcPath, err)
	}
	defer srcFile.Close()

	repFile, err := e.fs.Create(repPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", repPath, err)
	}

	n, err := io.Copy(repFile, srcFile)
	if err != nil {
		repFile.Close()
		return fmt.Errorf("failed to copy %s: %w", srcPath, err)
	}
	if err := repFile.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", repPath, err)
	}

	res.Bytes += n
	return nil
}

// sweep removes every replica entry at this directory level that was not
// recorded during the forward pass and is not excluded. Deletion failures
// are logged per item and never abort the sweep.
func (e *Engine) sweep(rel string, seen mapset.Set[string], res *Result) {
	repDir := filepath.Join(e.replicaDir, rel)

	info, err := e.fs.Stat(repDir)
	if err != nil || !info.IsDir() {
		// nothing to sweep (e.g. dry-run never created the directory)
		return
	}

	entries, err := afero.ReadDir(e.fs, repDir)
	if err != nil {
		e.log.Error("sync sweep list failed", "path", rel, "error", err)
		res.Errors++
		return
	}

	for _, entry := range entries {
		childRel := filepath.Join(rel, entry.Name())
		if seen.Contains(childRel) || e.ignore.ShouldIgnore(childRel) {
			continue
		}
		e.deleteOrphan(childRel, entry.IsDir(), res)
	}
}

// deleteOrphan removes a replica entry that has no source counterpart.
// Directory trees are deleted bottom-up with the same explicit stack
// mechanism as the main walk; each removal failure is logged and skipped.
func (e *Engine) deleteOrphan(rel string, isDir bool, res *Result) {
	if !isDir {
		e.removeReplicaFile(rel, res)
		return
	}

	type deleteFrame struct {
		rel   string
		enter bool
	}
	pending := stack.New[deleteFrame]()
	pending.Push(deleteFrame{rel: rel, enter: true})

	for pending.Len() > 0 {
		frame, _ := pending.Pop()

		repPath := filepath.Join(e.replicaDir, frame.rel)

		if !frame.enter {
			// children are gone, remove the now-empty directory
			if !e.dryRun {
				if err := e.fs.Remove(repPath); err != nil {
					e.log.Error("sync delete failed", "path", frame.rel, "error", err)
					res.Errors++
					continue
				}
			}
			e.log.Info("sync", "op", OpDeleteOrphan, "path", frame.rel, "type", "directory")
			res.Deleted++
			continue
		}

		entries, err := afero.ReadDir(e.fs, repPath)
		if err != nil {
			e.log.Error("sync delete list failed", "path", frame.rel, "error", err)
			res.Errors++
			continue
		}

		pending.Push(deleteFrame{rel: frame.rel, enter: false})
		for _, entry := range entries {
			childRel := filepath.Join(frame.rel, entry.Name())
			if entry.IsDir() {
				pending.Push(deleteFrame{rel: childRel, enter: true})
			} else {
				e.removeReplicaFile(childRel, res)
			}
		}
	}
}

func (e *Engine) removeReplicaFile(rel string, res *Result) {
	if !e.dryRun {
		err := e.fs.Remove(filepath.Join(e.replicaDir, rel))
		switch {
		case err == nil:
		case errors.Is(err, os.ErrNotExist):
			// already gone, nothing to log
		default:
			e.log.Error("sync delete failed", "path", rel, "error", err)
			res.Errors++
			return
		}
	}
	e.log.Info("sync", "op", OpDeleteOrphan, "path", rel, "type", "file")
	res.Deleted++
}
