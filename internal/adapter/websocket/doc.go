// Package websocket is the in-process gateway. It upgrades clients on /ws,
// assigns each a connection ID, fires the connect, disconnect and send
// triggers, and implements domain.DeliveryChannel over the live sockets.
package websocket
