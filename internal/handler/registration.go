package handler

import (
	"encoding/json"
	"net/http"

	"proxpay/internal/domain"
	"proxpay/internal/proof"
	"proxpay/internal/registry"
	"proxpay/pkg/config"
	"proxpay/pkg/validator"

	"github.com/shopspring/decimal"
)

// ProofVerifier validates a signed location proof against a reference
// location and produces the policy decision.
type ProofVerifier interface {
	Verify(p *domain.LocationProof, posLocation domain.Location, amount decimal.Decimal) domain.ValidationResult
}

// RegistrationHandler serves card and device enrollment plus the
// standalone location-proof check.
type RegistrationHandler struct {
	cards     *registry.CardRegistry
	devices   *registry.DeviceRegistry
	verifier  ProofVerifier
	validator *validator.Validator
	cardDefs  config.CardConfig
	logger    Logger
}

func NewRegistrationHandler(
	cards *registry.CardRegistry,
	devices *registry.DeviceRegistry,
	verifier ProofVerifier,
	val *validator.Validator,
	cardDefs config.CardConfig,
	log Logger,
) *RegistrationHandler {
	return &RegistrationHandler{
		cards:     cards,
		devices:   devices,
		verifier:  verifier,
		validator: val,
		cardDefs:  cardDefs,
		logger:    log,
	}
}

type registerCardRequest struct {
	CardNumber    string              `json:"card_number" validate:"required"`
	PhoneLocation *domain.Coordinates `json:"phone_location" validate:"required"`
	PhoneNumber   string              `json:"phone_number"`
}

// RegisterCard binds a card number to a phone location and phone number.
func (h *RegistrationHandler) RegisterCard(w http.ResponseWriter, r *http.Request) {
	var req registerCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	phone := req.PhoneNumber
	if phone == "" {
		phone = h.cardDefs.DefaultPhone
	}

	reg := h.cards.Register(req.CardNumber, req.PhoneLocation.ToLocation(), phone)

	h.logger.Info("Card registered", map[string]interface{}{
		"card_number": reg.CardNumber,
	})
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"status":       "registered",
		"card_number":  reg.CardNumber,
		"location":     reg.Location,
		"phone_number": reg.PhoneNumber,
	})
}

type registerDeviceRequest struct {
	CardToken   string `json:"card_token" validate:"required"`
	PublicKey   string `json:"public_key" validate:"required"`
	Attestation string `json:"attestation" validate:"required"`
}

// RegisterDevice enrolls a mobile device for a card token after checking
// its attestation.
func (h *RegistrationHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	if !proof.ValidAttestation(req.Attestation) {
		respondError(w, http.StatusBadRequest, "Invalid device attestation")
		return
	}

	reg := h.devices.Register(req.CardToken, req.PublicKey)

	h.logger.Info("Device registered", map[string]interface{}{
		"card_token": reg.CardToken,
	})
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"status":        "registered",
		"card_token":    reg.CardToken,
		"registered_at": reg.RegisteredAt,
	})
}

type proveLocationRequest struct {
	domain.LocationProof
	Amount decimal.Decimal `json:"amount"`
}

// ProveLocation runs the full verification pipeline on a signed proof
// against the card's registered phone location: attestation, signature,
// freshness, distance and policy. Verification failures come back as 400
// with the DENY-shaped result.
func (h *RegistrationHandler) ProveLocation(w http.ResponseWriter, r *http.Request) {
	var req proveLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.CardToken == "" {
		respondError(w, http.StatusBadRequest, "card_token is required")
		return
	}

	card, err := lookupCard(h.cards, h.cardDefs, h.logger, req.CardToken)
	if err != nil {
		respondError(w, http.StatusNotFound, "Card not registered")
		return
	}

	result := h.verifier.Verify(&req.LocationProof, card.Location, req.Amount)

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadRequest
	}
	respondJSON(w, status, result)
}
