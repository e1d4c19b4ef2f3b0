package app

import (
	"fmt"

	"github.com/centrifugal/subclient/client"
	"github.com/centrifugal/subclient/internal/configtypes"

	"github.com/rs/zerolog/log"
)

// listenPlan is what listen command keeps client subscribed to.
type listenPlan struct {
	entities []client.Entity
	presence bool
	state    client.MemberState
}

func newListenPlan(cfg configtypes.Listen) (listenPlan, error) {
	var p listenPlan
	for _, ch := range cfg.Channels {
		e := client.Channel(ch)
		if err := e.Validate(); err != nil {
			return listenPlan{}, fmt.Errorf("channel %q: %w", ch, err)
		}
		p.entities = append(p.entities, e)
	}
	for _, g := range cfg.Groups {
		e, err := client.ParseGroup(g)
		if err != nil {
			return listenPlan{}, fmt.Errorf("group %q: %w", g, err)
		}
		p.entities = append(p.entities, e)
	}
	st, err := cfg.MemberState()
	if err != nil {
		return listenPlan{}, err
	}
	p.state = st
	p.presence = cfg.Presence
	return p, nil
}

func (p listenPlan) options() []client.SubscribeOption {
	var opts []client.SubscribeOption
	if p.presence {
		opts = append(opts, client.WithPresence())
	}
	if p.state != nil {
		opts = append(opts, client.WithState(p.state))
	}
	opts = append(opts, client.OnSubscribed(func(e client.SubscriptionEvent) {
		if e.Err != nil {
			log.Error().Err(e.Err).Strs("failed", entityNames(e.Failed)).Msg("subscribe failed")
			return
		}
		log.Info().Strs("entities", entityNames(e.Subscribed)).Msg("subscribed")
	}))
	return opts
}

// wanted returns all entities of plan including presence companions.
func (p listenPlan) wanted() map[client.Entity]struct{} {
	m := make(map[client.Entity]struct{}, len(p.entities)*2)
	for _, e := range p.entities {
		m[e] = struct{}{}
		if p.presence && !e.IsPresence() {
			m[e.WithPresence()] = struct{}{}
		}
	}
	return m
}

// apply brings client membership to the plan. Entities subscribed but
// missing from the plan are unsubscribed.
func (p listenPlan) apply(c *client.Client) error {
	wanted := p.wanted()
	var stale []client.Entity
	for _, e := range c.Subscriptions() {
		if _, ok := wanted[e]; !ok {
			stale = append(stale, e)
		}
	}
	if len(stale) > 0 {
		err := c.Unsubscribe(stale, client.OnUnsubscribed(func(e client.UnsubscriptionEvent) {
			if e.Err != nil {
				log.Error().Err(e.Err).Strs("failed", entityNames(e.Failed)).Msg("unsubscribe failed")
				return
			}
			log.Info().Strs("entities", entityNames(e.Unsubscribed)).Msg("unsubscribed")
		}))
		if err != nil {
			return fmt.Errorf("unsubscribe: %w", err)
		}
	}
	if len(p.entities) == 0 {
		return nil
	}
	if err := c.Subscribe(p.entities, p.options()...); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}
