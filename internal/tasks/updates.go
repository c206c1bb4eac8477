package tasks

import "fmt"

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchLists Phase = iota
	ResolveItems
	ExportList
	WriteManifest
)

func (p Phase) String() string {
	switch p {
	case FetchLists:
		return "fetch_lists"
	case ResolveItems:
		return "resolve_items"
	case ExportList:
		return "export_list"
	case WriteManifest:
		return "write_manifest"
	default:
		return ""
	}
}

func fetchListsUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchLists,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Found %d lists", total),
	}
}

func resolveItemsUpdate(step, total int, name string, items int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveItems,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Refreshing %d items of %s...", step, total, items, name),
	}
}

func exportCompletedUpdate(step, total int, res ListExportResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportList,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d items)", step, total, res.ListName, res.Items),
		Data:    res,
	}
}

func exportFailedUpdate(step, total int, res ListExportResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportList,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, res.ListName, res.Error),
		Data:    res,
	}
}

func manifestUpdate(path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WriteManifest,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Wrote manifest %s", path),
	}
}
