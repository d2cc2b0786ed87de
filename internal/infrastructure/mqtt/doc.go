// Package mqtt provides the agent's MQTT-over-TLS session.
//
// This package manages:
//   - One connection attempt at a time against the broker (ssl:// or tcp://)
//   - TLS client authentication with a certificate and a slot-held key
//   - Subscriptions whose messages are queued for synchronous draining
//   - Fire-and-forget publishing
//   - Optional presence messages with a Last Will and Testament
//
// # Reconnection
//
// paho's auto-reconnect is disabled. The agent's main loop notices a dropped
// session through IsConnected and runs its own retry policy, so every
// reconnect goes through the same path as the first connect and the
// subscription is re-issued each time.
//
// # Inbound messages
//
// paho delivers messages on its own goroutine. The handler installed by
// Subscribe only copies the message into a bounded queue; the main loop
// drains it with Poll. When the queue is full the newest message is dropped
// and a warning is logged.
//
// # Security Considerations
//
//   - TLS 1.2 minimum; the client certificate's key never leaves the
//     secure element (see package secureelement)
//   - The TLS layer is given the link's clock for certificate validity
//
// # Usage
//
//	client, err := mqtt.NewClient(cfg.MQTT, tlsConfig)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	_ = client.Subscribe(cfg.MQTT.Topics.Incoming)
//
//	for {
//	    msg, ok := client.Poll()
//	    if !ok {
//	        break
//	    }
//	    fmt.Printf("%s: %s\n", msg.Topic, msg.Payload)
//	}
package mqtt
