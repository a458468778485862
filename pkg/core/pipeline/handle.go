package pipeline

import (
	"os"

	"github.com/google/uuid"

	"insiderflow/pkg/logger"
)

// RunHandle identifies one collection run and owns its intermediate files.
// Closing the handle removes them unless the run was asked to keep them;
// report outputs are never tracked and always survive.
type RunHandle struct {
	ID           string
	keep         bool
	intermediate []string
}

func newRunHandle(keep bool) *RunHandle {
	return &RunHandle{ID: uuid.NewString(), keep: keep}
}

func (h *RunHandle) track(path string) {
	h.intermediate = append(h.intermediate, path)
}

// Close removes the run's intermediate files. Removal failures are logged,
// not returned: cleanup is best-effort and never fails a completed run.
func (h *RunHandle) Close() error {
	if h.keep {
		return nil
	}
	for _, path := range h.intermediate {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.L.Warn("could not remove intermediate file", "run", h.ID, "path", path, "error", err)
		}
	}
	h.intermediate = nil
	return nil
}
