package sync

// OpType identifies a single reconciliation decision.
type OpType string

const (
	OpCreateDir     OpType = "CreateDir"
	OpCopyNew       OpType = "CopyNew"
	OpCopyChanged   OpType = "CopyChanged"
	OpSkipUnchanged OpType = "SkipUnchanged"
	OpReplace       OpType = "Replace"
	OpDeleteOrphan  OpType = "DeleteOrphan"
)

// Result aggregates the outcome counters of a single sync pass.
type Result struct {
	Dirs     int   // replica directories created
	Copied   int   // new files copied into the replica
	Updated  int   // changed files overwritten in the replica
	Replaced int   // type mismatches resolved by delete-then-create
	Skipped  int   // unchanged files left untouched
	Deleted  int   // orphan files and directories removed from the replica
	Errors   int   // item-level failures that were logged and skipped
	Bytes    int64 // bytes written to the replica
}

// HasChanges returns true if the pass mutated the replica.
func (r *Result) HasChanges() bool {
	return r.Dirs > 0 ||
		r.Copied > 0 ||
		r.Updated > 0 ||
		r.Replaced > 0 ||
		r.Deleted > 0
}
