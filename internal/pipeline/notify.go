package pipeline

import (
	"sync"

	"github.com/gorilla/websocket"
)

// notification is the message shape pushed to whatever downstream
// collaborator subscribed to completion events, e.g. the UI renderer.
type notification struct {
	Type       string               `json:"type"`
	Transcript *DiarizedTranscript  `json:"transcript,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// Notifier is the narrow emission contract the post-processing pipeline
// needs from its UI collaborator: two events, completion and failure.
type Notifier interface {
	OnComplete(transcript *DiarizedTranscript)
	OnError(sourceAudioPath string, err error)
}

// NoopNotifier discards every event. Used in tests and headless runs where
// nothing is listening.
type NoopNotifier struct{}

func (NoopNotifier) OnComplete(*DiarizedTranscript) {}
func (NoopNotifier) OnError(string, error)          {}

// wsClient wraps one websocket connection with the mutex the corpus uses
// around concurrent writers, since multiple pipeline runs may complete
// around the same time.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(msg notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

// WebsocketNotifier fans completion/error events out to every currently
// registered client. A client that errors on write is dropped rather than
// retried — the pipeline's own success does not depend on delivery.
type WebsocketNotifier struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// NewWebsocketNotifier builds an empty notifier; call Register as each
// client connects.
func NewWebsocketNotifier() *WebsocketNotifier {
	return &WebsocketNotifier{clients: make(map[*wsClient]struct{})}
}

// Register adds a connection to the broadcast set and returns a function to
// remove it again on disconnect.
func (n *WebsocketNotifier) Register(conn *websocket.Conn) (unregister func()) {
	c := &wsClient{conn: conn}
	n.mu.Lock()
	n.clients[c] = struct{}{}
	n.mu.Unlock()
	return func() {
		n.mu.Lock()
		delete(n.clients, c)
		n.mu.Unlock()
	}
}

func (n *WebsocketNotifier) OnComplete(transcript *DiarizedTranscript) {
	n.broadcast(notification{Type: "diarized_transcript", Transcript: transcript})
}

func (n *WebsocketNotifier) OnError(sourceAudioPath string, err error) {
	n.broadcast(notification{Type: "pipeline_error", Error: err.Error()})
}

func (n *WebsocketNotifier) broadcast(msg notification) {
	n.mu.Lock()
	clients := make([]*wsClient, 0, len(n.clients))
	for c := range n.clients {
		clients = append(clients, c)
	}
	n.mu.Unlock()

	for _, c := range clients {
		if err := c.send(msg); err != nil {
			n.mu.Lock()
			delete(n.clients, c)
			n.mu.Unlock()
		}
	}
}
