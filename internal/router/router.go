package router

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/livinlefevreloca/fastadapter/internal/batch"
	"github.com/livinlefevreloca/fastadapter/internal/notifier"
)

// Scheduler accepts payloads for batching
type Scheduler interface {
	Submit(kind batch.Kind, payload []byte) *batch.Completion
}

// Notifier builds and delivers the downstream notifications
type Notifier interface {
	Send(ctx context.Context, n notifier.Notification) notifier.Result
	PayeeCreated(body []byte) notifier.Notification
	PayerCommitted(requestURI string) notifier.Notification
}

// Observer is notified of every handled request
type Observer func(Record)

// Router turns inbound transfer requests into batched jobs and answers 202
// once the job's batch has flushed and its notification has completed.
type Router struct {
	// Configuration
	config     Config
	classifier Classifier
	logger     *slog.Logger

	// Collaborators
	scheduler Scheduler
	notifier  Notifier
	engine    *gin.Engine

	observersMu sync.RWMutex
	observers   []Observer
}

// New creates a router with validated configuration
func New(config Config, scheduler Scheduler, notifier Notifier, logger *slog.Logger) (*Router, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)

	r := &Router{
		config:     config,
		classifier: NewClassifier(config),
		logger:     logger,
		scheduler:  scheduler,
		notifier:   notifier,
	}

	engine := gin.New()
	engine.Use(recovery(logger), accessLog(logger))
	// Classification is a predicate over the whole URI, so every method and path lands here
	engine.Any("/*path", r.handle)
	r.engine = engine

	return r, nil
}

// Handler returns the http.Handler serving every inbound request
func (r *Router) Handler() http.Handler {
	return r.engine
}

// AddObserver registers a function to receive every request record
func (r *Router) AddObserver(observer Observer) {
	r.observersMu.Lock()
	defer r.observersMu.Unlock()
	r.observers = append(r.observers, observer)
}

// GetConfig returns the router configuration
func (r *Router) GetConfig() Config {
	return r.config
}

func (r *Router) handle(c *gin.Context) {
	start := time.Now()
	requestURI := c.Request.RequestURI
	route := r.classifier.Classify(requestURI)

	kind, ok := route.Kind()
	if !ok {
		r.logger.Warn("unknown request path", "uri", requestURI, "method", c.Request.Method)
		c.Status(http.StatusOK)
		c.Writer.WriteHeaderNow()
		r.finish(c, Record{Route: route, Outcome: OutcomeUnrecognized, Latency: time.Since(start)})
		return
	}

	body, err := readPayload(c.Request.Body)
	if err != nil {
		r.logger.Warn("malformed payload",
			"route", route.String(),
			"uri", requestURI,
			"error", err)
		r.finish(c, Record{Route: route, Outcome: OutcomeMalformed, Latency: time.Since(start)})
		r.refuse(c)
		return
	}

	// Step 1: Wait for the batch holding this job to flush
	summary := r.scheduler.Submit(kind, body).Summary()

	// Step 2: Notify the downstream party, detached from the caller's cancellation
	var notification notifier.Notification
	if route == RouteCreate {
		notification = r.notifier.PayeeCreated(body)
	} else {
		notification = r.notifier.PayerCommitted(requestURI)
	}
	ctx := context.WithoutCancel(c.Request.Context())
	result := r.notifier.Send(ctx, notification)

	outcome := OutcomeAccepted
	if !result.OK() {
		outcome = OutcomeNotifyFailed
		r.logger.Error("notification failed",
			"route", route.String(),
			"batch_id", summary.BatchID,
			"url", notification.URL(),
			"status", result.StatusCode,
			"error", result.Err)
	}

	// Step 3: Acknowledge the caller; notification failures are not distinguished
	c.Status(http.StatusAccepted)
	c.Writer.WriteHeaderNow()
	r.finish(c, Record{Route: route, Outcome: outcome, BatchID: summary.BatchID, Latency: time.Since(start)})
}

// refuse applies the malformed payload policy
func (r *Router) refuse(c *gin.Context) {
	if r.config.MalformedPolicy == PolicyReject {
		c.Status(http.StatusBadRequest)
		c.Writer.WriteHeaderNow()
		return
	}

	// net/http closes the connection without writing a response
	panic(http.ErrAbortHandler)
}

func (r *Router) finish(c *gin.Context, record Record) {
	c.Set(outcomeKey, record.Outcome.String())

	r.observersMu.RLock()
	observers := make([]Observer, len(r.observers))
	copy(observers, r.observers)
	r.observersMu.RUnlock()

	for _, observer := range observers {
		observer(record)
	}
}

// readPayload buffers the whole body and checks it is a JSON document
func readPayload(body io.Reader) ([]byte, error) {
	payload, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrMalformedPayload, err)
	}
	if !json.Valid(payload) {
		return nil, ErrMalformedPayload
	}
	return payload, nil
}
