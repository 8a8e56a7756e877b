package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"storefront-adyen/internal/adyen"
	"storefront-adyen/internal/logger"
	"storefront-adyen/internal/payment"
	"storefront-adyen/internal/storefront"
	"storefront-adyen/internal/utils"

	"github.com/gorilla/mux"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// NotificationReceiver parses and stores Adyen notifications.
type NotificationReceiver interface {
	GetPaymentNotification(ctx context.Context, form url.Values) (*adyen.Notification, bool, error)
}

type Reconciler interface {
	HandleNotifications(ctx context.Context) (int, error)
	Stats() map[string]uint64
}

type Handler struct {
	Payments   payment.Service
	Receiver   NotificationReceiver
	Reconciler Reconciler

	// Absolute origin used for result URLs, e.g. https://shop.example.com
	BaseURL   string
	AllowMock bool
}

type PayRequest struct {
	OrderNumber   string `json:"order_number"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	BasketID      string `json:"basket_id"`
	ShopperEmail  string `json:"shopper_email"`
	ShopperLocale string `json:"shopper_locale"`
	ForceMulti    bool   `json:"force_multi"`
}

type PayResponse struct {
	RedirectURL       string `json:"redirect_url"`
	MerchantReference string `json:"merchant_reference"`
}

type ResultResponse struct {
	BasketID          string                     `json:"basket_id"`
	MerchantReference string                     `json:"merchant_reference"`
	AuthResult        string                     `json:"auth_result"`
	Sources           []storefront.PaymentSource `json:"sources"`
	Events            []storefront.PaymentEvent  `json:"events"`
}

type ReconcileResponse struct {
	Processed int               `json:"processed"`
	Errors    []string          `json:"errors,omitempty"`
	Stats     map[string]uint64 `json:"stats"`
}

// Notification is the endpoint Adyen posts notifications to. Anything that
// was stored, duplicates included, is acknowledged with "[accepted]" so
// Adyen stops retrying.
func (h *Handler) Notification(w http.ResponseWriter, r *http.Request) {
	log := logger.FromCtx(r.Context())

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	n, dup, err := h.Receiver.GetPaymentNotification(r.Context(), r.PostForm)
	if errors.Is(err, adyen.ErrInvalidNotification) {
		log.Warn("rejected adyen notification", zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Error("failed to store adyen notification", zap.Error(err))
		http.Error(w, "failed to store notification", http.StatusInternalServerError)
		return
	}

	if dup {
		log.Info("duplicate adyen notification",
			zap.String("psp_reference", n.PSPReference),
			zap.String("event_code", n.EventCode),
		)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(adyen.NotificationAccepted))
}

// PaymentResult handles the shopper's return from the hosted payment page.
func (h *Handler) PaymentResult(w http.ResponseWriter, r *http.Request) {
	basketID := mux.Vars(r)["basketID"]
	log := logger.FromCtx(r.Context()).With(zap.String("basket_id", basketID))

	result, err := h.Payments.GetPaymentResult(r.Context(), r.URL.Query())
	if err != nil {
		if errors.Is(err, adyen.ErrInvalidResult) || errors.Is(err, adyen.ErrInvalidSignature) {
			utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Error("failed to read payment result", zap.Error(err))
		utils.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}

	sources, events, err := h.Payments.HandlePaymentResult(r.Context(), result)
	switch {
	case err == nil:
	case errors.Is(err, payment.ErrPaymentFailed):
		utils.WriteJSON(w, map[string]string{
			"error":       err.Error(),
			"auth_result": result.AuthResult,
		}, http.StatusPaymentRequired)
		return
	case errors.Is(err, adyen.ErrPaymentNotFound):
		utils.WriteJSONError(w, "payment not found", http.StatusNotFound)
		return
	default:
		log.Error("failed to handle payment result", zap.Error(err))
		utils.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, ResultResponse{
		BasketID:          basketID,
		MerchantReference: result.MerchantReference,
		AuthResult:        result.AuthResult,
		Sources:           sources,
		Events:            events,
	}, http.StatusOK)
}

// Pay creates a payment for the basket and returns the hosted payment page
// URL to redirect the shopper to.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	var req PayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONError(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.BasketID) == "" {
		utils.WriteJSONError(w, "basket_id is required", http.StatusBadRequest)
		return
	}

	p, err := h.Payments.CreatePayment(r.Context(), adyen.CreatePaymentRequest{
		OrderNumber:   req.OrderNumber,
		Amount:        req.Amount,
		CurrencyCode:  req.Currency,
		ShopperEmail:  req.ShopperEmail,
		ShopperLocale: req.ShopperLocale,
	})
	if err != nil {
		h.writePaymentError(w, r, err)
		return
	}

	redirect, err := h.Payments.Pay(r.Context(), p, req.BasketID, h.absoluteURL, req.ForceMulti)
	if err != nil {
		h.writePaymentError(w, r, err)
		return
	}

	utils.WriteJSON(w, PayResponse{
		RedirectURL:       redirect,
		MerchantReference: p.MerchantReference,
	}, http.StatusOK)
}

func (h *Handler) absoluteURL(path string) string {
	return utils.JoinURL(h.BaseURL, path)
}

func (h *Handler) writePaymentError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, adyen.ErrInvalidPayment):
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, adyen.ErrDuplicateReference):
		utils.WriteJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, adyen.ErrPaymentNotFound):
		utils.WriteJSONError(w, "payment not found", http.StatusNotFound)
	default:
		logger.FromCtx(r.Context()).Error("payment request failed", zap.Error(err))
		utils.WriteJSONError(w, "internal error", http.StatusInternalServerError)
	}
}

// MockResult fakes Adyen's redirect back to the shop. Only routed outside
// production.
func (h *Handler) MockResult(w http.ResponseWriter, r *http.Request) {
	if !h.AllowMock {
		http.NotFound(w, r)
		return
	}

	ref := mux.Vars(r)["merchantReference"]
	authResult := strings.ToUpper(r.URL.Query().Get("authResult"))
	if authResult == "" {
		authResult = adyen.AuthResultAuthorised
	}

	target, err := h.Payments.MockPaymentResultURL(r.Context(), ref, authResult)
	switch {
	case err == nil:
		http.Redirect(w, r, target, http.StatusFound)
	case errors.Is(err, adyen.ErrPaymentNotFound):
		utils.WriteJSONError(w, "payment not found", http.StatusNotFound)
	case errors.Is(err, adyen.ErrMissingResultURL):
		utils.WriteJSONError(w, err.Error(), http.StatusConflict)
	default:
		logger.FromCtx(r.Context()).Error("failed to build mock result", zap.Error(err))
		utils.WriteJSONError(w, "internal error", http.StatusInternalServerError)
	}
}

// Reconcile runs one reconciliation pass on demand. Per-notification
// failures are reported but do not fail the request.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserIDFromContext(r.Context())
	log := logger.FromCtx(r.Context()).With(zap.String("user_id", userID))

	processed, err := h.Reconciler.HandleNotifications(r.Context())
	resp := ReconcileResponse{Processed: processed}
	if err != nil {
		log.Warn("reconciliation finished with errors", zap.Error(err))
		for _, e := range multierr.Errors(err) {
			resp.Errors = append(resp.Errors, e.Error())
		}
	}
	resp.Stats = h.Reconciler.Stats()

	log.Info("manual reconciliation", zap.Int("processed", processed))
	utils.WriteJSON(w, resp, http.StatusOK)
}

func Health(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}
