// Package gatewayapi delivers messages through a gateway's connection
// management API: POST {endpoint}/@connections/{connectionId} with the raw
// payload as body. A 410 Gone reply means the connection no longer exists.
package gatewayapi
