package rtc

import (
	"fmt"
	"strings"

	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/jingle/internal/domain"
)

func candidateFromICE(c ice.Candidate) domain.Candidate {
	out := domain.Candidate{
		Foundation: c.Foundation(),
		Component:  c.Component(),
		Protocol:   c.NetworkType().NetworkShort(),
		Priority:   c.Priority(),
		IP:         c.Address(),
		Port:       uint16(c.Port()),
		Type:       c.Type().String(),
	}
	if rel := c.RelatedAddress(); rel != nil {
		out.RelAddr = rel.Address
		out.RelPort = uint16(rel.Port)
	}
	if tcp := c.TCPType(); tcp != ice.TCPTypeUnspecified {
		out.TCPType = tcp.String()
	}
	return out
}

func candidateFromWebRTC(c *webrtc.ICECandidate) domain.Candidate {
	return domain.Candidate{
		Foundation: c.Foundation,
		Component:  c.Component,
		Protocol:   c.Protocol.String(),
		Priority:   c.Priority,
		IP:         c.Address,
		Port:       c.Port,
		Type:       c.Typ.String(),
		RelAddr:    c.RelatedAddress,
		RelPort:    c.RelatedPort,
		TCPType:    c.TCPType,
	}
}

// marshalCandidate renders c in the SDP candidate-attribute grammar,
// without the "candidate:" prefix.
func marshalCandidate(c domain.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d %s %d %s %d typ %s",
		c.Foundation, c.Component, strings.ToLower(c.Protocol), c.Priority, c.IP, c.Port, c.Type)
	if c.RelAddr != "" {
		fmt.Fprintf(&b, " raddr %s rport %d", c.RelAddr, c.RelPort)
	}
	if c.TCPType != "" {
		fmt.Fprintf(&b, " tcptype %s", c.TCPType)
	}
	fmt.Fprintf(&b, " generation %d", c.Generation)
	return b.String()
}

// ParseCandidate parses one SDP candidate attribute, with or without the
// "candidate:" prefix.
func ParseCandidate(raw string) (domain.Candidate, error) {
	c, err := ice.UnmarshalCandidate(strings.TrimPrefix(raw, "candidate:"))
	if err != nil {
		return domain.Candidate{}, fmt.Errorf("parse candidate: %w", err)
	}
	return candidateFromICE(c), nil
}
