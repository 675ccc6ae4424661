package artifact

import "testing"

func TestAdvancesAllowsForwardEdges(t *testing.T) {
	cases := []struct{ from, to ProcessingState }{
		{Indexed, Mirrored},
		{Indexed, IndexedDuplicate},
		{Mirrored, SymbolsExtracted},
		{Mirrored, MirrorCorrupt},
		{MirrorCorrupt, Mirrored},
		{DSCExtractionFailed, SymbolsExtracted},
		{BundleDuplicationDetected, SymbolsExtracted},
	}
	for _, c := range cases {
		if !Advances(c.from, c.to) {
			t.Errorf("Advances(%s, %s) = false, want true", c.from, c.to)
		}
	}
}

func TestAdvancesRejectsRegressions(t *testing.T) {
	cases := []struct{ from, to ProcessingState }{
		{SymbolsExtracted, Mirrored},
		{Mirrored, Indexed},
		{IndexedDuplicate, Mirrored},
		{SymbolExtractionFailed, Indexed},
	}
	for _, c := range cases {
		if Advances(c.from, c.to) {
			t.Errorf("Advances(%s, %s) = true, want false", c.from, c.to)
		}
	}
}

func TestAdvancesAllowsSameStateIdempotence(t *testing.T) {
	if !Advances(Mirrored, Mirrored) {
		t.Error("same-state transition should always advance")
	}
}

func TestAdvancesAllowsUnsetToAnything(t *testing.T) {
	if !Advances("", Indexed) {
		t.Error("unset -> Indexed should be the initial assignment")
	}
}

func TestIsTerminal(t *testing.T) {
	if !SymbolsExtracted.IsTerminal() {
		t.Error("SymbolsExtracted should be terminal")
	}
	if Mirrored.IsTerminal() {
		t.Error("Mirrored should not be terminal")
	}
}

func TestIsRetriable(t *testing.T) {
	if !MirrorCorrupt.IsRetriable() {
		t.Error("MirrorCorrupt should be retriable")
	}
	if SymbolsExtracted.IsRetriable() {
		t.Error("SymbolsExtracted should not be retriable")
	}
}
