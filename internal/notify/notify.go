package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Notification kinds emitted by the task subsystem.
const (
	KindTaskCreated      = "tarea.creada"
	KindTaskCancelled    = "tarea.cancelada"
	KindResponsibleAdded = "tarea.responsable"
	KindCollaboratorAdd  = "tarea.colaborador"
	KindMention          = "tarea.mencion"
	KindTaskTrashed      = "tarea.papelera"
)

// Destination pairs a person with their notification-routing identity.
type Destination struct {
	PersonID  int64  `json:"person_id"`
	RoutingID string `json:"routing_id,omitempty"`
}

// Notification is the single call shape handed to the delivery collaborator.
type Notification struct {
	Kind         string         `json:"kind"`
	Title        string         `json:"title"`
	Body         string         `json:"body"`
	Payload      map[string]any `json:"payload"`
	LinkURL      string         `json:"link_url,omitempty"`
	Channels     []string       `json:"channels"`
	Destinations []Destination  `json:"destinations"`
}

// Dispatcher delivers one notification. Implementations live outside this
// module; tests inject fakes.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// LogDispatcher writes deliveries to the log instead of an external channel.
// Used by self-hosted deployments without a push backend, and as the default
// for the CLI.
type LogDispatcher struct {
	Log *logrus.Logger
}

func (d LogDispatcher) Dispatch(_ context.Context, n Notification) error {
	log := d.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log.WithFields(logrus.Fields{
		"kind":         n.Kind,
		"title":        n.Title,
		"destinations": len(n.Destinations),
		"channels":     n.Channels,
	}).Info("notification")
	return nil
}

// Sender executes dispatches after the triggering mutation has committed.
// Each dispatch runs detached from the request context with its own timeout,
// and failures are logged, never propagated.
type Sender struct {
	Dispatcher Dispatcher
	Timeout    time.Duration
	Log        *logrus.Logger

	wg sync.WaitGroup
}

func (s *Sender) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return 5 * time.Second
}

func (s *Sender) logger() *logrus.Logger {
	if s.Log != nil {
		return s.Log
	}
	return logrus.StandardLogger()
}

// Send fires a notification without blocking the caller. Notifications with
// no destinations are dropped.
func (s *Sender) Send(notifications ...Notification) {
	if s == nil || s.Dispatcher == nil {
		return
	}
	for _, n := range notifications {
		if len(n.Destinations) == 0 {
			continue
		}
		n := n
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout())
			defer cancel()
			if err := s.Dispatcher.Dispatch(ctx, n); err != nil {
				s.logger().WithError(err).WithFields(logrus.Fields{
					"kind":         n.Kind,
					"destinations": len(n.Destinations),
				}).Error("notification dispatch failed")
			}
		}()
	}
}

// Wait blocks until all in-flight dispatches finish. Used by tests and
// graceful shutdown.
func (s *Sender) Wait() {
	s.wg.Wait()
}
