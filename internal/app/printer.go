package app

import (
	"io"
	"sync"

	"github.com/centrifugal/subclient/client"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/encoding/json"
	"github.com/tidwall/gjson"
)

// eventPrinter writes client events to output as JSON lines.
type eventPrinter struct {
	mu  sync.Mutex
	out io.Writer
}

func newEventPrinter(out io.Writer) *eventPrinter {
	return &eventPrinter{out: out}
}

type printedEvent struct {
	Event     string          `json:"event"`
	Status    string          `json:"status,omitempty"`
	Entity    string          `json:"entity,omitempty"`
	Kind      string          `json:"kind,omitempty"`
	Entities  []string        `json:"entities,omitempty"`
	Failed    []string        `json:"failed,omitempty"`
	Channel   string          `json:"channel,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	RawData   string          `json:"raw_data,omitempty"`
	Meta      json.RawMessage `json:"meta,omitempty"`
	Issuer    string          `json:"issuer,omitempty"`
	Signal    bool            `json:"signal,omitempty"`
	Action    string          `json:"action,omitempty"`
	ClientID  string          `json:"client_id,omitempty"`
	Previous  string          `json:"previous,omitempty"`
	Occupancy int             `json:"occupancy,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	State     map[string]any  `json:"state,omitempty"`
	Local     bool            `json:"local,omitempty"`
	ID        string          `json:"id,omitempty"`
	Token     string          `json:"token,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func entityNames(entities []client.Entity) []string {
	if len(entities) == 0 {
		return nil
	}
	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = e.FullName()
	}
	return names
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (p *printedEvent) setEntity(e client.Entity) {
	if e.IsZero() {
		return
	}
	p.Entity = e.FullName()
	p.Kind = e.Kind().String()
}

func (p *printedEvent) setData(data []byte) {
	if len(data) == 0 {
		return
	}
	if gjson.ValidBytes(data) {
		p.Data = data
		return
	}
	p.RawData = string(data)
}

func toPrinted(ev client.Event) printedEvent {
	p := printedEvent{Event: ev.Category().String()}
	switch e := ev.(type) {
	case client.ConnectionEvent:
		p.Status = e.Status.String()
		p.Token = e.Token
		p.Error = errString(e.Err)
	case client.SubscriptionEvent:
		p.Entities = entityNames(e.Subscribed)
		p.Failed = entityNames(e.Failed)
		p.Error = errString(e.Err)
	case client.UnsubscriptionEvent:
		p.Entities = entityNames(e.Unsubscribed)
		p.Failed = entityNames(e.Failed)
		p.Error = errString(e.Err)
	case client.MessageEvent:
		p.setEntity(e.Entity)
		p.Channel = e.Channel
		p.setData(e.Payload)
		if gjson.ValidBytes(e.Meta) {
			p.Meta = e.Meta
		}
		p.Issuer = e.Issuer
		p.Signal = e.Signal
		p.Token = e.Token
	case client.PresenceEvent:
		p.setEntity(e.Entity)
		p.Action = string(e.Action)
		p.ClientID = e.ClientID
		p.Occupancy = e.Occupancy
		p.Timestamp = e.Timestamp
		p.State = e.State
		p.Local = e.Local
	case client.PublishEvent:
		p.setEntity(e.Entity)
		p.ID = e.ID
		p.Token = e.Token
		p.Error = errString(e.Err)
	case client.IdentityEvent:
		p.Previous = e.Previous
		p.ClientID = e.Current
		p.Error = errString(e.Err)
	case client.ErrorEvent:
		p.Entities = entityNames(e.Related)
		p.Error = errString(e.Err)
	}
	return p
}

// Print is an observer of client events.
func (p *eventPrinter) Print(ev client.Event) {
	data, err := json.Marshal(toPrinted(ev))
	if err != nil {
		log.Error().Err(err).Str("event", ev.Category().String()).Msg("error encoding event")
		return
	}
	data = append(data, '\n')
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = p.out.Write(data)
}
