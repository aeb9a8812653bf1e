package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"proxpay/internal/domain"
	"proxpay/internal/registry"
	"proxpay/internal/transaction"
	"proxpay/internal/ws"
	pkgerrors "proxpay/pkg/errors"
	"proxpay/pkg/validator"

	"github.com/gorilla/websocket"
)

// WSHandler owns the realtime surface: connection upgrades and the event
// protocol spoken by devices and POS clients.
type WSHandler struct {
	hub         *ws.Hub
	devices     *registry.DeviceRegistry
	sessions    *registry.SessionRegistry
	coordinator *transaction.Coordinator
	validator   *validator.Validator
	upgrader    websocket.Upgrader
	logger      Logger
}

func NewWSHandler(
	hub *ws.Hub,
	devices *registry.DeviceRegistry,
	sessions *registry.SessionRegistry,
	coordinator *transaction.Coordinator,
	val *validator.Validator,
	log Logger,
) *WSHandler {
	return &WSHandler{
		hub:         hub,
		devices:     devices,
		sessions:    sessions,
		coordinator: coordinator,
		validator:   val,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Terminals and devices connect from arbitrary origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: log,
	}
}

// ServeWS upgrades the connection and greets the client.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", map[string]interface{}{
			"error": err.Error(),
			"ip":    r.RemoteAddr,
		})
		return
	}

	client := ws.NewClient(conn, h.hub, h)
	client.Send("connected", map[string]string{"session_id": client.ID()})

	h.logger.Info("Websocket client connected", map[string]interface{}{
		"session_id": client.ID(),
		"clients":    h.hub.ClientCount(),
	})
}

// HandleEvent dispatches one inbound envelope.
func (h *WSHandler) HandleEvent(c *ws.Client, event string, data json.RawMessage) {
	switch event {
	case "register_phone":
		h.registerPhone(c, data)
	case "join_room":
		h.joinRoom(c, data)
	case "request_location_proof":
		h.requestLocationProof(c, data)
	case "location_proof_response":
		h.locationProofResponse(c, data)
	case "confirmation_response":
		h.confirmationResponse(c, data)
	default:
		c.Send("error", map[string]string{"message": "Unknown event: " + event})
	}
}

// HandleDisconnect drops every session bound to the closed channel.
func (h *WSHandler) HandleDisconnect(c *ws.Client) {
	h.sessions.UnregisterByChannel(c)
	h.logger.Info("Websocket client disconnected", map[string]interface{}{
		"session_id": c.ID(),
	})
}

func (h *WSHandler) registerPhone(c *ws.Client, data json.RawMessage) {
	var req struct {
		CardToken string `json:"card_token"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.CardToken == "" {
		c.Send("error", map[string]string{"message": "card_token is required"})
		return
	}

	if _, err := h.devices.Lookup(req.CardToken); err != nil {
		c.Send("error", map[string]string{"message": "Device not registered"})
		return
	}

	h.sessions.Register(req.CardToken, c)
	c.Send("registered", map[string]string{
		"card_token": req.CardToken,
		"status":     "ok",
	})

	h.logger.Info("Phone registered on channel", map[string]interface{}{
		"card_token": req.CardToken,
		"session_id": c.ID(),
	})
}

func (h *WSHandler) joinRoom(c *ws.Client, data json.RawMessage) {
	var req struct {
		Room string `json:"room"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.Room == "" {
		c.Send("error", map[string]string{"message": "room is required"})
		return
	}
	c.Join(req.Room)
}

func (h *WSHandler) requestLocationProof(c *ws.Client, data json.RawMessage) {
	var req transaction.ProofRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.Send("error", map[string]string{"message": "Invalid proof request"})
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		c.Send("error", map[string]interface{}{
			"message": "Invalid proof request",
			"errors":  errs,
		})
		return
	}

	// The requesting POS client always hears the result, whether or not
	// it joined the transaction room beforehand.
	c.Join(registry.POSRoom(req.TransactionID))

	if err := h.coordinator.RequestProof(&req); err != nil {
		msg := "Failed to request proof"
		switch {
		case errors.Is(err, pkgerrors.ErrDeviceNotConnected):
			msg = "Device not connected"
		case errors.Is(err, pkgerrors.ErrAlreadyFinalized):
			msg = "Duplicate transaction ID"
		}
		c.Send("error", map[string]string{
			"message":        msg,
			"transaction_id": req.TransactionID,
		})
		return
	}
}

func (h *WSHandler) locationProofResponse(c *ws.Client, data json.RawMessage) {
	var p domain.LocationProof
	if err := json.Unmarshal(data, &p); err != nil || p.TransactionID == "" {
		c.Send("error", map[string]string{"message": "Invalid location proof"})
		return
	}

	if err := h.coordinator.SubmitProof(p.TransactionID, &p); err != nil {
		msg := "Failed to process proof"
		if errors.Is(err, pkgerrors.ErrTransactionNotFound) {
			msg = "Unknown transaction"
		}
		c.Send("error", map[string]string{
			"message":        msg,
			"transaction_id": p.TransactionID,
		})
	}
}

func (h *WSHandler) confirmationResponse(c *ws.Client, data json.RawMessage) {
	var req struct {
		TransactionID string `json:"transaction_id"`
		Confirmed     bool   `json:"confirmed"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.TransactionID == "" {
		c.Send("error", map[string]string{"message": "transaction_id is required"})
		return
	}

	if err := h.coordinator.SubmitConfirmation(req.TransactionID, req.Confirmed); err != nil {
		msg := "Failed to process confirmation"
		switch {
		case errors.Is(err, pkgerrors.ErrTransactionNotFound):
			msg = "Unknown transaction"
		case errors.Is(err, pkgerrors.ErrNotAwaitingConfirmation):
			msg = "Transaction is not awaiting confirmation"
		}
		c.Send("error", map[string]string{
			"message":        msg,
			"transaction_id": req.TransactionID,
		})
	}
}
