package domain

import "net/http"

// Trigger response bodies. Clients observe these strings.
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusMessageSent  = "message sent"
)

// Response is the envelope returned by every trigger operation.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       string
}

// OK builds the success envelope shared by all triggers.
func OK(body string) Response {
	return Response{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

// SendRequest is a send trigger: the sender, the raw JSON body and where to deliver.
type SendRequest struct {
	ConnectionID string
	Body         []byte
	Endpoint     Endpoint
}

// Payload is the expected shape of a send trigger body.
type Payload struct {
	Message *string `json:"message"`
}
