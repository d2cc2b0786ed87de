package mqtt

import (
	"fmt"
	"strings"
)

// Default topics used by the device.
const (
	// DefaultIncomingTopic carries messages addressed to the device.
	DefaultIncomingTopic = "arduino/incoming"

	// DefaultOutgoingTopic carries telemetry published by the device.
	DefaultOutgoingTopic = "arduino/outgoing"
)

// maxTopicLength is the MQTT limit on a UTF-8 encoded topic.
const maxTopicLength = 65535

// ValidateTopic checks a topic name used for publishing.
// Wildcards are not allowed in topic names.
func ValidateTopic(topic string) error {
	if err := validateCommon(topic); err != nil {
		return err
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: wildcard in topic name %q", ErrInvalidTopic, topic)
	}
	return nil
}

// ValidateFilter checks a subscription filter.
//
// '+' must occupy a whole level; '#' must occupy the whole last level.
func ValidateFilter(filter string) error {
	if err := validateCommon(filter); err != nil {
		return err
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "#":
			if i != len(levels)-1 {
				return fmt.Errorf("%w: '#' must be the last level in %q", ErrInvalidTopic, filter)
			}
		case level == "+":
		case strings.ContainsAny(level, "+#"):
			return fmt.Errorf("%w: wildcard must occupy a whole level in %q", ErrInvalidTopic, filter)
		}
	}
	return nil
}

func validateCommon(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: empty topic", ErrInvalidTopic)
	}
	if len(topic) > maxTopicLength {
		return fmt.Errorf("%w: topic exceeds %d bytes", ErrInvalidTopic, maxTopicLength)
	}
	if strings.ContainsRune(topic, 0) {
		return fmt.Errorf("%w: NUL character in topic", ErrInvalidTopic)
	}
	return nil
}
