package enums

import (
	"fmt"
	"strings"
)

// CarrierChannel is how a carrier is contacted.
type CarrierChannel string

const (
	// CarrierChannelEmail replies asynchronously through the reply feed.
	CarrierChannelEmail CarrierChannel = "email"
	// CarrierChannelAPI prices synchronously over HTTP.
	CarrierChannelAPI CarrierChannel = "api"
)

var validCarrierChannels = []CarrierChannel{CarrierChannelEmail, CarrierChannelAPI}

func (c CarrierChannel) String() string {
	return string(c)
}

func (c CarrierChannel) IsValid() bool {
	for _, candidate := range validCarrierChannels {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCarrierChannel is case-insensitive.
func ParseCarrierChannel(value string) (CarrierChannel, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validCarrierChannels {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid carrier channel %q", value)
}
