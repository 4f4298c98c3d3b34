// Package worker wires the refinement workflow and its activities into a
// Temporal worker.
package worker

import (
	"github.com/ring2236/ESA-DGR/internal/activity"
	"github.com/ring2236/ESA-DGR/internal/workflow"
)

// Registry is the registration surface shared by sdk workers and the test
// workflow environment.
type Registry interface {
	RegisterWorkflow(w interface{})
	RegisterActivity(a interface{})
}

// RegisterAll registers the refinement workflow and every activity method
// of acts. Call it once, before the worker starts.
func RegisterAll(r Registry, acts *activity.Activities) {
	r.RegisterWorkflow(workflow.RefinementWorkflow)
	r.RegisterActivity(acts)
}
