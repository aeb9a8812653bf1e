package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"proxpay/internal/domain"
	"proxpay/internal/geo"
	"proxpay/internal/registry"
	"proxpay/internal/stepup"
	"proxpay/internal/transaction"
	"proxpay/pkg/config"
	pkgerrors "proxpay/pkg/errors"
	"proxpay/pkg/validator"

	"github.com/shopspring/decimal"
)

// TransactionHandler serves the synchronous validation path and the
// transaction history endpoint.
type TransactionHandler struct {
	cards       *registry.CardRegistry
	geo         *geo.Service
	stepup      *stepup.Service
	coordinator *transaction.Coordinator
	validator   *validator.Validator
	policy      config.PolicyConfig
	cardDefs    config.CardConfig
	logger      Logger
}

func NewTransactionHandler(
	cards *registry.CardRegistry,
	geoSvc *geo.Service,
	stepupSvc *stepup.Service,
	coordinator *transaction.Coordinator,
	val *validator.Validator,
	policy config.PolicyConfig,
	cardDefs config.CardConfig,
	log Logger,
) *TransactionHandler {
	return &TransactionHandler{
		cards:       cards,
		geo:         geoSvc,
		stepup:      stepupSvc,
		coordinator: coordinator,
		validator:   val,
		policy:      policy,
		cardDefs:    cardDefs,
		logger:      log,
	}
}

type validateTransactionRequest struct {
	CardNumber          string              `json:"card_number" validate:"required"`
	Amount              decimal.Decimal     `json:"amount" validate:"gt=0"`
	MerchantName        string              `json:"merchant_name"`
	TransactionLocation *domain.Coordinates `json:"transaction_location" validate:"required"`
}

type validationDetails struct {
	PhoneLocation       domain.Location `json:"phone_location"`
	TransactionLocation domain.Location `json:"transaction_location"`
	DistanceMiles       float64         `json:"distance_miles"`
	Reason              string          `json:"reason"`
}

// ValidateTransaction checks a transaction against the card's registered
// location. High-value transactions are deferred to SMS step-up.
func (h *TransactionHandler) ValidateTransaction(w http.ResponseWriter, r *http.Request) {
	var req validateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	card, err := lookupCard(h.cards, h.cardDefs, h.logger, req.CardNumber)
	if err != nil {
		respondError(w, http.StatusNotFound, "Card not registered")
		return
	}

	txLocation := req.TransactionLocation.ToLocation()
	check := h.geo.Check(card.Location, txLocation)

	if req.Amount.GreaterThan(decimal.NewFromFloat(h.policy.StepUpAmount)) {
		id, err := h.stepup.Initiate(r.Context(), domain.PendingStepUp{
			CardNumber:          card.CardNumber,
			Amount:              req.Amount,
			MerchantName:        req.MerchantName,
			PhoneLocation:       card.Location,
			TransactionLocation: txLocation,
			Check:               check,
			PhoneNumber:         card.PhoneNumber,
		})
		if err != nil {
			h.logger.Error("Step-up initiation failed", map[string]interface{}{
				"card_number": card.CardNumber,
				"error":       err.Error(),
			})
			if errors.Is(err, pkgerrors.ErrProviderUnavailable) {
				respondError(w, http.StatusInternalServerError, "Verification provider unavailable")
				return
			}
			respondError(w, http.StatusInternalServerError, "Verification provider error")
			return
		}

		respondJSON(w, http.StatusOK, map[string]interface{}{
			"transaction_approved": false,
			"requires_2fa":         true,
			"transaction_id":       id,
			"amount":               req.Amount,
			"merchant_name":        req.MerchantName,
			"message":              "Verification code sent to registered phone number",
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"transaction_approved": check.Valid,
		"requires_2fa":         false,
		"card_number":          card.CardNumber,
		"amount":               req.Amount,
		"merchant_name":        req.MerchantName,
		"validation_details": validationDetails{
			PhoneLocation:       card.Location,
			TransactionLocation: txLocation,
			DistanceMiles:       check.DistanceMiles,
			Reason:              check.Reason,
		},
	})
}

type verifyTwoFactorRequest struct {
	TransactionID    string `json:"transaction_id" validate:"required"`
	VerificationCode string `json:"verification_code" validate:"required"`
}

// VerifyTwoFactor completes a deferred high-value transaction with the
// SMS code. A wrong code can be retried until the record expires.
func (h *TransactionHandler) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req verifyTwoFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	rec, err := h.stepup.Confirm(r.Context(), req.TransactionID, req.VerificationCode)
	if err != nil {
		switch {
		case errors.Is(err, pkgerrors.ErrTransactionNotFound):
			respondError(w, http.StatusNotFound, "Transaction not found")
		case errors.Is(err, pkgerrors.ErrTransactionExpired):
			respondError(w, http.StatusBadRequest, "Transaction expired")
		case errors.Is(err, pkgerrors.ErrCodeRejected):
			respondJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":                "Invalid verification code",
				"transaction_approved": false,
			})
		case errors.Is(err, pkgerrors.ErrProviderUnavailable):
			respondError(w, http.StatusInternalServerError, "Verification provider unavailable")
		default:
			h.logger.Error("Step-up confirmation failed", map[string]interface{}{
				"transaction_id": req.TransactionID,
				"error":          err.Error(),
			})
			respondError(w, http.StatusInternalServerError, "Verification provider error")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"transaction_approved": rec.Check.Valid,
		"two_factor_verified":  true,
		"card_number":          rec.CardNumber,
		"amount":               rec.Amount,
		"merchant_name":        rec.MerchantName,
		"validation_details": validationDetails{
			PhoneLocation:       rec.PhoneLocation,
			TransactionLocation: rec.TransactionLocation,
			DistanceMiles:       rec.Check.DistanceMiles,
			Reason:              rec.Check.Reason,
		},
	})
}

// GetHistory returns a card's completed transactions, most recent first.
func (h *TransactionHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	cardToken := r.URL.Query().Get("card_token")
	if cardToken == "" {
		respondError(w, http.StatusBadRequest, "card_token is required")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	txs := h.coordinator.History(cardToken, limit)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
		"limit":        limit,
	})
}

// lookupCard resolves a card registration, provisioning unknown cards at
// the default location when enabled.
func lookupCard(cards *registry.CardRegistry, defs config.CardConfig, log Logger, cardNumber string) (*domain.CardRegistration, error) {
	card, err := cards.Lookup(cardNumber)
	if err == nil {
		return card, nil
	}
	if !defs.AutoProvision {
		return nil, err
	}

	log.Info("Auto-provisioning unregistered card", map[string]interface{}{
		"card_number": cardNumber,
	})
	return cards.Register(cardNumber, domain.Location{
		Lat: defs.DefaultLat,
		Lon: defs.DefaultLon,
	}, defs.DefaultPhone), nil
}
