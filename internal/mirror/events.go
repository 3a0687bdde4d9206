package mirror

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/asad/blobmirror/internal/logging"
)

// EventKind identifies a step of a mirror run.
type EventKind int

const (
	EventListingContainers EventKind = iota
	EventContainersListed
	EventListingBlobs
	EventBlobsListed
	EventDownloading
	EventDownloaded
	EventCompleted
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventListingContainers:
		return "listing_containers"
	case EventContainersListed:
		return "containers_listed"
	case EventListingBlobs:
		return "listing_blobs"
	case EventBlobsListed:
		return "blobs_listed"
	case EventDownloading:
		return "downloading"
	case EventDownloaded:
		return "downloaded"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is a progress notification. Fields not relevant to Kind are zero.
type Event struct {
	Kind      EventKind
	Container string
	Blob      string
	Snapshot  string
	Path      string
	Count     int
	Bytes     int64
	Duration  time.Duration
	Err       error
}

// Observer receives progress events. Observe is called synchronously from the run.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// Observers fans an event out to each observer in order.
type Observers []Observer

func (o Observers) Observe(e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(e)
		}
	}
}

// LogObserver writes each event to a structured logger.
type LogObserver struct {
	logger logging.Logger
}

// NewLogObserver creates an observer that logs through logger.
func NewLogObserver(logger logging.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (o *LogObserver) Observe(e Event) {
	switch e.Kind {
	case EventListingContainers:
		o.logger.Info("listing containers")
	case EventContainersListed:
		o.logger.Info("containers listed", logging.Int("count", e.Count))
	case EventListingBlobs:
		o.logger.Info("listing blobs", logging.String("container", e.Container))
	case EventBlobsListed:
		o.logger.Info("blobs listed",
			logging.String("container", e.Container),
			logging.Int("count", e.Count),
		)
	case EventDownloading:
		o.logger.Info("downloading",
			logging.String("container", e.Container),
			logging.String("blob", e.Blob),
			logging.String("snapshot", e.Snapshot),
			logging.String("path", e.Path),
		)
	case EventDownloaded:
		o.logger.Debug("downloaded",
			logging.String("path", e.Path),
			logging.String("size", humanize.IBytes(uint64(e.Bytes))),
			logging.Duration("elapsed", e.Duration),
		)
	case EventCompleted:
		o.logger.Info("mirror completed",
			logging.Int("blobs", e.Count),
			logging.String("total", humanize.IBytes(uint64(e.Bytes))),
			logging.Duration("elapsed", e.Duration),
		)
	case EventFailed:
		o.logger.Error("mirror failed",
			logging.Int("blobs", e.Count),
			logging.Duration("elapsed", e.Duration),
			logging.ErrorField(e.Err),
		)
	}
}
