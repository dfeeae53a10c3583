package ingest

import (
	"context"
	"net/url"

	"github.com/srctrace/srctrace"
)

// pending validates the task payload before any work happens.
// Payload defects can never heal, so they come back permanent.
func pending(_ context.Context, c *Controller) (State, error) {
	switch {
	case c.fetch != nil:
		if c.Fetcher == nil {
			return Terminal, &srctrace.Error{
				Kind:    srctrace.ErrPrecondition,
				Message: "no fetcher configured",
			}
		}
		u, err := url.Parse(c.fetch.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return Terminal, &srctrace.Error{
				Kind:    srctrace.ErrPermanent,
				Message: "refusing to fetch non-http url: " + c.fetch.URL,
			}
		}
	case c.expand != nil:
		switch {
		case c.expand.Parent.IsZero() || c.expand.Path == "":
			return Terminal, &srctrace.Error{
				Kind:    srctrace.ErrPermanent,
				Message: "expand task missing parent or path",
			}
		case c.Archive == nil:
			return Terminal, &srctrace.Error{
				Kind:    srctrace.ErrPrecondition,
				Message: "no archive bucket configured, cannot expand",
			}
		}
	default:
		return Terminal, &srctrace.Error{
			Kind:    srctrace.ErrPermanent,
			Message: "controller started without a task",
		}
	}
	return Fetching, nil
}
