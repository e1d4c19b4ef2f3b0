package transport

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/centrifugal/subclient/internal/timetoken"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Event types as sent in "e" field of subscribe envelope.
const (
	EventTypeMessage = 0
	EventTypeSignal  = 1
)

// Event is a raw event extracted from subscribe response.
type Event struct {
	// Channel event was published to.
	Channel string
	// Subscription is the subscribed entity which matched: channel group
	// name for group subscriptions, empty otherwise.
	Subscription string
	Type         int
	Issuer       string
	Payload      []byte
	Meta         []byte
	Cursor       timetoken.Cursor
}

// Response of a subscribe request.
type Response struct {
	Cursor timetoken.Cursor
	Events []Event
}

var errMalformedResponse = errors.New("malformed response")

// ParseSubscribeResponse extracts token and event list from subscribe
// envelope. Events keep server order.
func ParseSubscribeResponse(body []byte) (*Response, error) {
	if !gjson.ValidBytes(body) {
		return nil, errMalformedResponse
	}
	res := gjson.ParseBytes(body)
	token := res.Get("t.t")
	if !token.Exists() || token.String() == "" {
		return nil, fmt.Errorf("%w: no time token", errMalformedResponse)
	}
	resp := &Response{
		Cursor: timetoken.Cursor{Token: tokenString(token), Region: int(res.Get("t.r").Int())},
	}
	messages := res.Get("m")
	if !messages.IsArray() {
		return resp, nil
	}
	messages.ForEach(func(_, v gjson.Result) bool {
		ev := Event{
			Channel:      v.Get("c").String(),
			Subscription: v.Get("b").String(),
			Type:         int(v.Get("e").Int()),
			Issuer:       v.Get("i").String(),
			Cursor: timetoken.Cursor{
				Token:  tokenString(v.Get("p.t")),
				Region: int(v.Get("p.r").Int()),
			},
		}
		if ev.Subscription == ev.Channel {
			ev.Subscription = ""
		}
		if d := v.Get("d"); d.Exists() {
			ev.Payload = []byte(d.Raw)
		}
		if u := v.Get("u"); u.Exists() {
			ev.Meta = []byte(u.Raw)
		}
		resp.Events = append(resp.Events, ev)
		return true
	})
	return resp, nil
}

// tokenString returns token literal. Numeric tokens exceed float64 precision
// so raw JSON text is used for them.
func tokenString(r gjson.Result) string {
	if r.Type == gjson.Number {
		return r.Raw
	}
	return r.String()
}

// PresencePayload is a parsed presence event payload.
type PresencePayload struct {
	Action    string
	ClientID  string
	Occupancy int
	Timestamp int64
	State     []byte
}

// ParsePresencePayload parses payload of event published to presence
// companion channel.
func ParsePresencePayload(payload []byte) (PresencePayload, error) {
	if !gjson.ValidBytes(payload) {
		return PresencePayload{}, errMalformedResponse
	}
	res := gjson.ParseBytes(payload)
	p := PresencePayload{
		Action:    res.Get("action").String(),
		ClientID:  res.Get("uuid").String(),
		Occupancy: int(res.Get("occupancy").Int()),
		Timestamp: res.Get("timestamp").Int(),
	}
	if p.Action == "" {
		return PresencePayload{}, fmt.Errorf("%w: presence event without action", errMalformedResponse)
	}
	if d := res.Get("data"); d.Exists() && d.IsObject() {
		p.State = []byte(d.Raw)
	}
	return p, nil
}

// parsePublishResponse extracts token from `[1,"Sent","<token>"]`.
func parsePublishResponse(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", errMalformedResponse
	}
	res := gjson.ParseBytes(body)
	if res.Get("0").Int() != 1 {
		return "", &Error{Kind: KindServer, StatusCode: http.StatusOK, Message: res.Get("1").String()}
	}
	return tokenString(res.Get("2")), nil
}

// parseTimeResponse extracts token from `[<token>]`.
func parseTimeResponse(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", errMalformedResponse
	}
	token := tokenString(gjson.GetBytes(body, "0"))
	if token == "" {
		return "", fmt.Errorf("%w: no time token", errMalformedResponse)
	}
	return token, nil
}

// parseErrorResponse builds Error from a non-2xx response.
func parseErrorResponse(status int, body []byte) *Error {
	e := &Error{Kind: KindServer, StatusCode: status, Message: http.StatusText(status)}
	if gjson.ValidBytes(body) {
		res := gjson.ParseBytes(body)
		if msg := res.Get("message"); msg.Exists() && msg.String() != "" {
			e.Message = msg.String()
		} else if msg := res.Get("error_message"); msg.Exists() {
			e.Message = msg.String()
		}
		for _, ch := range res.Get("payload.channels").Array() {
			e.Channels = append(e.Channels, ch.String())
		}
		for _, g := range res.Get("payload.channel-groups").Array() {
			e.Groups = append(e.Groups, g.String())
		}
	} else if len(bytes.TrimSpace(body)) > 0 {
		e.Message = string(bytes.TrimSpace(body))
	}
	if status == http.StatusGone || strings.Contains(strings.ToLower(e.Message), "timetoken") {
		e.Kind = KindTokenExpired
	}
	return e
}

// buildPublishBody attaches push notification side payloads. Object payloads
// get pn_apns / pn_gcm keys merged in, other payloads are wrapped into
// pn_other.
func buildPublishBody(payload, apns, gcm []byte) ([]byte, error) {
	if len(apns) == 0 && len(gcm) == 0 {
		return payload, nil
	}
	body := payload
	if !gjson.ParseBytes(payload).IsObject() {
		var err error
		body, err = sjson.SetRawBytes([]byte(`{}`), "pn_other", payload)
		if err != nil {
			return nil, err
		}
	}
	var err error
	if len(apns) > 0 {
		if !gjson.ValidBytes(apns) {
			return nil, fmt.Errorf("invalid APNS payload")
		}
		body, err = sjson.SetRawBytes(body, "pn_apns", apns)
		if err != nil {
			return nil, err
		}
	}
	if len(gcm) > 0 {
		if !gjson.ValidBytes(gcm) {
			return nil, fmt.Errorf("invalid GCM payload")
		}
		body, err = sjson.SetRawBytes(body, "pn_gcm", gcm)
		if err != nil {
			return nil, err
		}
	}
	return body, nil
}
