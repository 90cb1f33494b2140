package groupconfig

import (
	"fmt"
	"strings"
)

const (
	channelSeparatorConstant          = "/"
	defaultTrackNameConstant          = "latest"
	invalidRiskErrorTemplateConstant  = "invalid risk: %s"
	unparsableChannelTemplateConstant = "could not parse channel: %s"
)

// Risk enumerates the risk levels a channel may carry.
type Risk string

// Risk levels ordered from least to most stable.
const (
	RiskEdge      Risk = "edge"
	RiskBeta      Risk = "beta"
	RiskCandidate Risk = "candidate"
	RiskStable    Risk = "stable"
)

var orderedRisks = []Risk{RiskEdge, RiskBeta, RiskCandidate, RiskStable}

// KnownRisks returns the accepted risk names in canonical order.
func KnownRisks() []string {
	riskNames := make([]string, 0, len(orderedRisks))
	for _, riskLevel := range orderedRisks {
		riskNames = append(riskNames, string(riskLevel))
	}
	return riskNames
}

func isKnownRisk(candidate string) bool {
	for _, riskLevel := range orderedRisks {
		if string(riskLevel) == candidate {
			return true
		}
	}
	return false
}

// Channel represents a store channel as track and risk coordinates.
type Channel struct {
	Track string
	Risk  Risk
}

// String renders the channel in track/risk notation.
func (channel Channel) String() string {
	return channel.Track + channelSeparatorConstant + string(channel.Risk)
}

// ParseChannel interprets a channel string. A bare risk implies the latest
// track and a bare track implies the stable risk.
func ParseChannel(value string) (Channel, error) {
	trimmedValue := strings.TrimSpace(value)
	if isKnownRisk(trimmedValue) {
		return Channel{Track: defaultTrackNameConstant, Risk: Risk(trimmedValue)}, nil
	}

	if strings.Contains(trimmedValue, channelSeparatorConstant) {
		channelParts := strings.SplitN(trimmedValue, channelSeparatorConstant, 2)
		trackName := channelParts[0]
		riskName := channelParts[1]
		if len(trackName) == 0 || !isKnownRisk(riskName) {
			return Channel{}, fmt.Errorf(invalidRiskErrorTemplateConstant, riskName)
		}
		return Channel{Track: trackName, Risk: Risk(riskName)}, nil
	}

	if len(trimmedValue) == 0 {
		return Channel{}, fmt.Errorf(unparsableChannelTemplateConstant, value)
	}

	return Channel{Track: trimmedValue, Risk: RiskStable}, nil
}

// TrackGroup collects the channels that share a track. A recipe can target a
// single track with multiple risks, so recipes are planned per track group.
type TrackGroup struct {
	Track    string
	Channels []string
}

// GroupChannelsByTrack partitions channels by their track, preserving the
// order tracks first appear in. Grouping parses each channel to find its
// track, but the group keeps the channel strings as configured so they match
// what recipes carry in store_channels. Unparsable channels are skipped; the
// loader rejects them before planning ever sees one.
func GroupChannelsByTrack(channels []string) []TrackGroup {
	trackOrder := make([]string, 0, len(channels))
	channelsByTrack := make(map[string][]string, len(channels))
	for _, channelValue := range channels {
		parsedChannel, parseError := ParseChannel(channelValue)
		if parseError != nil {
			continue
		}
		trackName := parsedChannel.Track
		if _, trackSeen := channelsByTrack[trackName]; !trackSeen {
			trackOrder = append(trackOrder, trackName)
		}
		channelsByTrack[trackName] = append(channelsByTrack[trackName], strings.TrimSpace(channelValue))
	}

	trackGroups := make([]TrackGroup, 0, len(trackOrder))
	for _, trackName := range trackOrder {
		trackGroups = append(trackGroups, TrackGroup{Track: trackName, Channels: channelsByTrack[trackName]})
	}
	return trackGroups
}
