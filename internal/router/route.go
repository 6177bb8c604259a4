package router

import (
	"errors"
	"time"

	"github.com/livinlefevreloca/fastadapter/internal/batch"
)

// ErrMalformedPayload is returned for request bodies that are not valid JSON
var ErrMalformedPayload = errors.New("malformed payload")

// Route is the classification of an inbound request
type Route int

const (
	RouteUnrecognized Route = iota
	RouteCreate
	RouteAccept
)

func (r Route) String() string {
	switch r {
	case RouteCreate:
		return "create"
	case RouteAccept:
		return "accept"
	default:
		return "unrecognized"
	}
}

// Kind returns the batch kind a route submits to
func (r Route) Kind() (batch.Kind, bool) {
	switch r {
	case RouteCreate:
		return batch.KindCreate, true
	case RouteAccept:
		return batch.KindAccept, true
	default:
		return 0, false
	}
}

// Outcome is how the handling of one request ended
type Outcome int

const (
	OutcomeAccepted Outcome = iota
	OutcomeUnrecognized
	OutcomeMalformed
	OutcomeNotifyFailed
)

// Outcomes lists every outcome in reporting order
var Outcomes = []Outcome{OutcomeAccepted, OutcomeUnrecognized, OutcomeMalformed, OutcomeNotifyFailed}

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeUnrecognized:
		return "unrecognized"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeNotifyFailed:
		return "notify_failed"
	default:
		return "unknown"
	}
}

// Record describes one handled request
type Record struct {
	Route   Route
	Outcome Outcome
	BatchID string
	Latency time.Duration
}

// Classifier maps a request URI to a route.
// The create path is checked before the accept length.
type Classifier struct {
	createPath          string
	acceptMinPathLength int
}

// NewClassifier builds a classifier from router configuration
func NewClassifier(config Config) Classifier {
	return Classifier{
		createPath:          config.CreatePath,
		acceptMinPathLength: config.AcceptMinPathLength,
	}
}

// Classify returns the route for requestURI
func (c Classifier) Classify(requestURI string) Route {
	if requestURI == c.createPath {
		return RouteCreate
	}
	if len(requestURI) > c.acceptMinPathLength {
		return RouteAccept
	}
	return RouteUnrecognized
}
