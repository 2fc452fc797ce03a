package middleware

import (
	"net/http"

	"github.com/platinummonkey/schoolhouse/pkg/apierrors"
	"github.com/platinummonkey/schoolhouse/pkg/httputil"
	"github.com/platinummonkey/schoolhouse/pkg/observability"
)

// Guard is one named stage of a route pipeline. Check may return a derived
// request (for example with the identity attached) or an error to reject.
type Guard struct {
	Name  string
	Check func(r *http.Request) (*http.Request, error)
}

// RejectHook observes guard rejections
type RejectHook func(guard string, err error)

// Pipeline is an ordered, immutable list of guards
type Pipeline struct {
	guards   []Guard
	onReject RejectHook
}

// NewPipeline builds a pipeline. A guard without a name or check is a wiring
// mistake and panics at route registration.
func NewPipeline(guards ...Guard) *Pipeline {
	for _, g := range guards {
		if g.Name == "" || g.Check == nil {
			panic("middleware: guard must have a name and a check")
		}
	}
	return &Pipeline{guards: append([]Guard(nil), guards...)}
}

// WithRejectHook returns a copy of the pipeline that reports rejections to hook
func (p *Pipeline) WithRejectHook(hook RejectHook) *Pipeline {
	return &Pipeline{guards: p.guards, onReject: hook}
}

// Stages returns the guard names in execution order
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.guards))
	for i, g := range p.guards {
		names[i] = g.Name
	}
	return names
}

// Then runs the guards in order and calls h only if all of them pass
func (p *Pipeline) Then(h httputil.HandlerFunc) httputil.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		for _, g := range p.guards {
			next, err := g.Check(r)
			if err != nil {
				if p.onReject != nil {
					p.onReject(g.Name, err)
				}
				return err
			}
			if next != nil {
				r = next
			}
		}
		return h(w, r)
	}
}

// CountRejections is a RejectHook that feeds the guard rejection counter
func CountRejections(metrics *observability.Metrics) RejectHook {
	return func(guard string, err error) {
		if metrics == nil {
			return
		}
		metrics.GuardRejectionsTotal.WithLabelValues(guard, string(apierrors.KindOf(err))).Inc()
	}
}
