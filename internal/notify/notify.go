package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nkoval/pgkeep/internal/config"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Event is the payload shared by all notifier implementations.
type Event struct {
	Database string `json:"database"`
	Status   string `json:"status"`
	Artifact string `json:"artifact,omitempty"`
	Bytes    int64  `json:"bytes"`
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

type route struct {
	onSuccess bool
	onFailure bool
	notifier  Notifier
}

// Dispatcher fans an event out to every configured route that subscribes to
// the event's status.
type Dispatcher struct {
	routes []route
}

func NewDispatcher(cfgs []config.NotificationConfig) (*Dispatcher, error) {
	routes := make([]route, 0, len(cfgs))
	for i, n := range cfgs {
		onSuccess, onFailure, err := parseOn(n.On)
		if err != nil {
			return nil, fmt.Errorf("notifications[%d]: %w", i, err)
		}

		var nf Notifier
		switch strings.ToLower(strings.TrimSpace(n.Type)) {
		case "webhook":
			nf, err = NewWebhook(n.Config.URL, n.Config.Headers)
		case "email":
			nf, err = NewEmail(n.Config.SMTPHost, n.Config.SMTPPort, n.Config.From, n.Config.To, n.Config.Username, n.Config.Password)
		default:
			return nil, fmt.Errorf("notifications[%d]: unsupported type %q", i, n.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("notifications[%d] %s: %w", i, n.Type, err)
		}
		routes = append(routes, route{onSuccess: onSuccess, onFailure: onFailure, notifier: nf})
	}
	return &Dispatcher{routes: routes}, nil
}

func (d *Dispatcher) Notify(ctx context.Context, event Event) error {
	if d == nil || len(d.routes) == 0 {
		return nil
	}

	var errs []error
	for i, r := range d.routes {
		if !r.wants(event.Status) {
			continue
		}
		if err := r.notifier.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("notification route %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (r route) wants(status string) bool {
	switch status {
	case StatusSuccess:
		return r.onSuccess
	case StatusFailure:
		return r.onFailure
	default:
		return false
	}
}

func parseOn(raw []string) (onSuccess, onFailure bool, err error) {
	for _, v := range raw {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "success":
			onSuccess = true
		case "failure":
			onFailure = true
		case "both":
			onSuccess = true
			onFailure = true
		default:
			return false, false, fmt.Errorf("on contains unsupported value %q", v)
		}
	}

	if !onSuccess && !onFailure {
		return false, false, fmt.Errorf("on must include success, failure, or both")
	}

	return onSuccess, onFailure, nil
}
