package artifact

// ProcessingState is the per-source state machine of spec.md §3. States only
// ever advance; merge and update operations must never regress them.
type ProcessingState string

const (
	Indexed                  ProcessingState = "INDEXED"
	IndexedDuplicate         ProcessingState = "INDEXED_DUPLICATE"
	IndexedInvalid           ProcessingState = "INDEXED_INVALID"
	Ignored                  ProcessingState = "IGNORED"
	Mirrored                 ProcessingState = "MIRRORED"
	MirroringFailed          ProcessingState = "MIRRORING_FAILED"
	MirrorCorrupt            ProcessingState = "MIRROR_CORRUPT"
	DSCExtractionFailed      ProcessingState = "DSC_EXTRACTION_FAILED"
	SymbolExtractionFailed   ProcessingState = "SYMBOL_EXTRACTION_FAILED"
	BundleDuplicationDetected ProcessingState = "BUNDLE_DUPLICATION_DETECTED"
	SymbolsExtracted         ProcessingState = "SYMBOLS_EXTRACTED"
)

// rank orders states so that "advancing" can be checked numerically within a
// branch of the graph. States on different branches (e.g. an error state vs.
// its predecessor's siblings) are incomparable by rank alone; Advances below
// encodes the full edge set from spec.md §3's diagram.
var rank = map[ProcessingState]int{
	Indexed:                   0,
	IndexedDuplicate:          1,
	IndexedInvalid:            1,
	Ignored:                   1,
	Mirrored:                  1,
	MirroringFailed:           1,
	MirrorCorrupt:             2,
	DSCExtractionFailed:       2,
	SymbolExtractionFailed:    2,
	BundleDuplicationDetected: 2,
	SymbolsExtracted:          2,
}

// terminal is the set of states after which this run's processing of a
// source is done — no further transition is attempted in the same pass.
var terminal = map[ProcessingState]bool{
	SymbolsExtracted: true,
	IndexedDuplicate: true,
	IndexedInvalid:   true,
	Ignored:          true,
}

// retriable is the set of non-terminal error states a later run (via
// operator reset or automatic repair) may re-drive through the pipeline.
var retriable = map[ProcessingState]bool{
	MirrorCorrupt:          true,
	MirroringFailed:        true,
	DSCExtractionFailed:    true,
	SymbolExtractionFailed: true,
}

// edges enumerates the allowed direct transitions of the state diagram in
// spec.md §3. A transition not present here is a regression or an invalid
// jump and Advances rejects it.
var edges = map[ProcessingState]map[ProcessingState]bool{
	Indexed: {
		Mirrored:         true,
		IndexedDuplicate: true,
		IndexedInvalid:   true,
		Ignored:          true,
		MirroringFailed:  true,
	},
	Mirrored: {
		SymbolsExtracted:          true,
		MirrorCorrupt:             true,
		DSCExtractionFailed:       true,
		SymbolExtractionFailed:    true,
		BundleDuplicationDetected: true,
	},
	// Retriable error states feed back into the stage that can re-attempt
	// them, modeled as self-loops plus the forward edges they retry into.
	MirroringFailed: {
		Mirrored:        true,
		MirroringFailed: true,
	},
	MirrorCorrupt: {
		Mirrored:      true,
		MirrorCorrupt: true,
	},
	DSCExtractionFailed: {
		SymbolsExtracted:          true,
		DSCExtractionFailed:       true,
		SymbolExtractionFailed:    true,
		BundleDuplicationDetected: true,
	},
	SymbolExtractionFailed: {
		SymbolsExtracted:          true,
		DSCExtractionFailed:       true,
		SymbolExtractionFailed:    true,
		BundleDuplicationDetected: true,
	},
	BundleDuplicationDetected: {
		SymbolsExtracted:          true,
		BundleDuplicationDetected: true,
	},
}

// IsTerminal reports whether a state ends this run's processing of a source.
func (s ProcessingState) IsTerminal() bool { return terminal[s] }

// IsRetriable reports whether a state may be re-driven by a later run.
func (s ProcessingState) IsRetriable() bool { return retriable[s] }

// Advances reports whether transitioning from "from" to "to" is a legal,
// non-regressing move in the state machine. A same-state transition is
// always legal (idempotent re-application).
func Advances(from, to ProcessingState) bool {
	if from == to {
		return true
	}
	if from == "" {
		return true // unset -> anything is the initial assignment
	}
	return edges[from][to]
}
