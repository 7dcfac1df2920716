package ws

import "github.com/rs/zerolog/log"

// Hub maintains the set of active clients and fans ledger activity out to them.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Inbound messages for global broadcast.
	Broadcast chan []byte

	// Register requests from the clients.
	Register chan *Client

	// Unregister requests from clients.
	Unregister chan *Client

	// Targeted messages for the subscribers of one account.
	targeted chan targetedMessage

	// A map of account numbers to the set of clients subscribed to them.
	// Only the Run goroutine touches this map and clients above.
	subscriptions map[string]map[*Client]bool
}

type targetedMessage struct {
	accountNumber string
	payload       []byte
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		Broadcast:     make(chan []byte),
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		targeted:      make(chan targetedMessage),
		clients:       make(map[*Client]bool),
		subscriptions: make(map[string]map[*Client]bool),
	}
}

// Run starts the Hub's message processing loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.clients[client] = true
			log.Info().Int("total_clients", len(h.clients)).Msg("Activity feed client connected")
			// A client that names an account on registration watches only that account.
			if client.AccountNumber != "" {
				h.addSubscription(client, client.AccountNumber)
			}
		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				h.removeSubscription(client)
				log.Info().Int("total_clients", len(h.clients)).Msg("Activity feed client disconnected")
			}
		case message := <-h.Broadcast:
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					close(client.Send)
					delete(h.clients, client)
					h.removeSubscription(client)
				}
			}
		case msg := <-h.targeted:
			for client := range h.subscriptions[msg.accountNumber] {
				select {
				case client.Send <- msg.payload:
				default:
					close(client.Send)
					delete(h.clients, client)
					h.removeSubscription(client)
				}
			}
		}
	}
}

// BroadcastTo sends a message to all clients subscribed to an account
// number. The send is handed to the Run goroutine, which owns the client
// and subscription maps; calling this from request goroutines is safe.
func (h *Hub) BroadcastTo(accountNumber string, message []byte) {
	h.targeted <- targetedMessage{accountNumber: accountNumber, payload: message}
}

func (h *Hub) addSubscription(client *Client, accountNumber string) {
	if h.subscriptions[accountNumber] == nil {
		h.subscriptions[accountNumber] = make(map[*Client]bool)
	}
	h.subscriptions[accountNumber][client] = true
}

func (h *Hub) removeSubscription(client *Client) {
	for accountNumber, subs := range h.subscriptions {
		if _, ok := subs[client]; ok {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.subscriptions, accountNumber)
			}
		}
	}
}
