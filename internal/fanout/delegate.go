package fanout

// Delegate capabilities. A delegate implements any subset of them and
// receives only the categories it has methods for.
type (
	ConnectionListener     interface{ OnConnection(ConnectionEvent) }
	SubscriptionListener   interface{ OnSubscription(SubscriptionEvent) }
	UnsubscriptionListener interface{ OnUnsubscription(UnsubscriptionEvent) }
	MessageListener        interface{ OnMessage(MessageEvent) }
	PresenceListener       interface{ OnPresence(PresenceEvent) }
	PublishListener        interface{ OnPublish(PublishEvent) }
	IdentityListener       interface{ OnIdentity(IdentityEvent) }
	ErrorListener          interface{ OnError(ErrorEvent) }
)

// Delegate implements every capability.
type Delegate interface {
	ConnectionListener
	SubscriptionListener
	UnsubscriptionListener
	MessageListener
	PresenceListener
	PublishListener
	IdentityListener
	ErrorListener
}

// NopDelegate can be embedded to implement only some Delegate methods.
type NopDelegate struct{}

func (NopDelegate) OnConnection(ConnectionEvent)         {}
func (NopDelegate) OnSubscription(SubscriptionEvent)     {}
func (NopDelegate) OnUnsubscription(UnsubscriptionEvent) {}
func (NopDelegate) OnMessage(MessageEvent)               {}
func (NopDelegate) OnPresence(PresenceEvent)             {}
func (NopDelegate) OnPublish(PublishEvent)               {}
func (NopDelegate) OnIdentity(IdentityEvent)             {}
func (NopDelegate) OnError(ErrorEvent)                   {}

// deliverDelegate calls the capability of d matching ev. Returns false
// when d has no such capability.
func deliverDelegate(d any, ev Event) bool {
	switch e := ev.(type) {
	case ConnectionEvent:
		if l, ok := d.(ConnectionListener); ok {
			l.OnConnection(e)
			return true
		}
	case SubscriptionEvent:
		if l, ok := d.(SubscriptionListener); ok {
			l.OnSubscription(e)
			return true
		}
	case UnsubscriptionEvent:
		if l, ok := d.(UnsubscriptionListener); ok {
			l.OnUnsubscription(e)
			return true
		}
	case MessageEvent:
		if l, ok := d.(MessageListener); ok {
			l.OnMessage(e)
			return true
		}
	case PresenceEvent:
		if l, ok := d.(PresenceListener); ok {
			l.OnPresence(e)
			return true
		}
	case PublishEvent:
		if l, ok := d.(PublishListener); ok {
			l.OnPublish(e)
			return true
		}
	case IdentityEvent:
		if l, ok := d.(IdentityListener); ok {
			l.OnIdentity(e)
			return true
		}
	case ErrorEvent:
		if l, ok := d.(ErrorListener); ok {
			l.OnError(e)
			return true
		}
	}
	return false
}
