package history

import "fmt"

// FeatureMode chooses which encounter sources participate in diagnosis
// extraction. It is a static policy fixed once per run, never a runtime
// state machine. Procedure extraction has no mode branching.
type FeatureMode int

const (
	// ModeInpOnly queries only interval (inpatient) records; point
	// (ED-like) records never participate.
	ModeInpOnly FeatureMode = iota
	// ModeBoth queries interval and point records unconditionally.
	ModeBoth
	// ModeInpIgnoreED behaves per episode: "inp"-typed episodes use only
	// interval records, all others use both sources.
	ModeInpIgnoreED
)

// ParseFeatureMode maps the run configuration string to a FeatureMode.
// The accepted spellings match the upstream episode pipeline.
func ParseFeatureMode(s string) (FeatureMode, error) {
	switch s {
	case "inp only":
		return ModeInpOnly, nil
	case "both":
		return ModeBoth, nil
	case "inp ignore ed":
		return ModeInpIgnoreED, nil
	}
	return 0, fmt.Errorf("unknown feature mode %q (want \"inp only\", \"both\", or \"inp ignore ed\")", s)
}

func (m FeatureMode) String() string {
	switch m {
	case ModeInpOnly:
		return "inp only"
	case ModeBoth:
		return "both"
	case ModeInpIgnoreED:
		return "inp ignore ed"
	}
	return fmt.Sprintf("FeatureMode(%d)", int(m))
}

// Sources resolves which encounter sources participate for one episode.
func (m FeatureMode) Sources(episodeType string) (useInpatient, useED bool) {
	switch m {
	case ModeInpOnly:
		return true, false
	case ModeBoth:
		return true, true
	case ModeInpIgnoreED:
		if episodeType == "inp" {
			return true, false
		}
		return true, true
	}
	return false, false
}
