package persistence

import (
	"time"

	"github.com/wrangler-run/wrangler/internal/catalog"
)

// DefinitionToEntry converts a catalog definition into the
// persisted-document shape used for the definitions file.
func DefinitionToEntry(def catalog.Definition) ProcessEntry {
	return ProcessEntry{
		ID:                 def.ID,
		Command:            def.Command,
		Args:               def.Args,
		Cwd:                def.Cwd,
		Env:                def.Env,
		AutoStartOnCreate:  def.AutoStartOnCreate,
		AutoStartOnRestore: def.AutoStartOnRestore,
	}
}

// EntryToDefinition converts a parsed process entry back into a catalog
// definition. CreatedAt is left zero; callers that need it populate it
// separately (the definitions file does not persist creation time).
func EntryToDefinition(entry ProcessEntry) catalog.Definition {
	return catalog.Definition{
		ID:                 entry.ID,
		Command:            entry.Command,
		Args:               entry.Args,
		Env:                entry.Env,
		Cwd:                entry.Cwd,
		AutoStartOnCreate:  entry.AutoStartOnCreate,
		AutoStartOnRestore: entry.AutoStartOnRestore,
	}
}

// RecordToSnapshotEntry renders a record's definition plus its current
// runtime state into the snapshot shape. A Running record is always
// normalized to NotStarted: the supervisor never adopts leftover
// processes across a restart, so there is no use in claiming otherwise
// on disk.
func RecordToSnapshotEntry(rec *catalog.Record) ProcessEntry {
	entry := DefinitionToEntry(rec.Definition())
	st := rec.State()

	switch st.Kind {
	case catalog.Stopped:
		entry.LastState = "Stopped"
		if st.ExitCode != nil {
			code := *st.ExitCode
			entry.LastExitCode = &code
		}
		entry.LastStoppedAt = formatTime(st.StoppedAt)
		entry.LastStartedAt = formatTime(st.StartedAt)
	case catalog.Failed:
		entry.LastState = "Failed"
		entry.LastErrorMessage = st.ErrorMessage
		entry.LastStartedAt = formatTime(st.StartedAt)
	case catalog.Running:
		// Normalize: never persist Running.
		entry.LastState = "NotStarted"
	default:
		entry.LastState = "NotStarted"
	}
	return entry
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SnapshotEntryLastKnown reconstructs a catalog.LastKnownInfo from a
// parsed snapshot entry, used by startup restore to carry last-known
// exit/timestamp metadata alongside a record. It never represents a
// live state: restore always inserts the record as NotStarted and
// attaches this as auxiliary information via Record.SetLastKnown. A nil
// return means the snapshot had no recorded outcome for this id.
func SnapshotEntryLastKnown(entry ProcessEntry) *catalog.LastKnownInfo {
	switch entry.LastState {
	case "Stopped":
		return &catalog.LastKnownInfo{
			Kind:      catalog.Stopped,
			ExitCode:  entry.LastExitCode,
			StoppedAt: parseTime(entry.LastStoppedAt),
			StartedAt: parseTime(entry.LastStartedAt),
		}
	case "Failed":
		return &catalog.LastKnownInfo{
			Kind:         catalog.Failed,
			ErrorMessage: entry.LastErrorMessage,
			StartedAt:    parseTime(entry.LastStartedAt),
		}
	default:
		return nil
	}
}
