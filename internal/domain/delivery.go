package domain

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// DeliveryStatus is the outcome of a single push to a connection.
type DeliveryStatus int

const (
	DeliveryOK DeliveryStatus = iota
	// DeliveryGone means the connection no longer exists and must be pruned.
	DeliveryGone
	// DeliveryTransient means the push failed but the connection may still be live.
	DeliveryTransient
)

func (s DeliveryStatus) String() string {
	switch s {
	case DeliveryOK:
		return "ok"
	case DeliveryGone:
		return "gone"
	case DeliveryTransient:
		return "transient"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// DeliveryChannel pushes bytes to a connection. The returned error is non-nil
// only together with DeliveryTransient.
type DeliveryChannel interface {
	Push(ctx context.Context, connectionID string, data []byte) (DeliveryStatus, error)
}

// Endpoint is the routing information a send trigger carries for the delivery channel.
type Endpoint struct {
	DomainName string `json:"domainName"`
	Stage      string `json:"stage"`
}

// IsZero reports whether the endpoint carries no routing information.
func (e Endpoint) IsZero() bool {
	return e.DomainName == "" && e.Stage == ""
}

// URL returns "{scheme}://{domainName}/{stage}" without a trailing slash.
func (e Endpoint) URL(scheme string) string {
	u := url.URL{Scheme: scheme, Host: e.DomainName}
	if stage := strings.Trim(e.Stage, "/"); stage != "" {
		u.Path = "/" + stage
	}
	return u.String()
}

// ChannelResolver maps routing information to the delivery channel serving it.
type ChannelResolver interface {
	Channel(endpoint Endpoint) (DeliveryChannel, error)
}
