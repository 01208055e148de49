package events

import (
	"context"
	"errors"
)

// Stream carrying every client event.
const StreamClient = "marketplace:client"

// Event types
const (
	EventSessionChanged       = "session_changed"
	EventLayerSwitchSuggested = "layer_switch_suggested"
	EventForcedLogout         = "forced_logout"
	EventUploadProgress       = "upload_progress"
	EventInscriptionProgress  = "inscription_progress"
	EventOrderStatusChanged   = "order_status_changed"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}

// MultiPublisher publishes to every publisher and joins the failures.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, stream string, event Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, stream, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
