package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscribe registers filter with the broker. Matching messages are queued
// and returned by Poll.
//
// Subscriptions are not restored by the client. A caller that reconnects
// must subscribe again.
func (c *Client) Subscribe(filter string) error {
	if err := ValidateFilter(filter); err != nil {
		return err
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Subscribe(filter, byte(c.cfg.QoS), c.enqueue)
	if !token.WaitTimeout(defaultSubscribeTimeout) {
		return fmt.Errorf("%w: %w after %v", ErrSubscribeFailed, ErrTimeout, defaultSubscribeTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}

// enqueue copies a paho message into the inbound queue. It never blocks:
// paho's router goroutine must keep servicing the connection.
func (c *Client) enqueue(_ pahomqtt.Client, msg pahomqtt.Message) {
	m := Message{
		Topic:   msg.Topic(),
		Payload: append([]byte(nil), msg.Payload()...),
	}

	select {
	case c.inbound <- m:
	default:
		if logger := c.getLogger(); logger != nil {
			logger.Warn("inbound queue full, dropping message",
				"topic", m.Topic,
				"bytes", len(m.Payload),
				"capacity", cap(c.inbound),
			)
		}
	}
}

// Poll returns the next queued message without blocking.
func (c *Client) Poll() (Message, bool) {
	select {
	case m := <-c.inbound:
		return m, true
	default:
		return Message{}, false
	}
}

// Pending returns the number of queued messages.
func (c *Client) Pending() int {
	return len(c.inbound)
}
