package gateways

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"

	"go-storefront/models"
)

// Razorpay implements the hosted-popup flow: the server pre-creates an order,
// the popup returns a payment id plus a signature over "order_id|payment_id",
// and the server verifies the signature before fetching the payment.
type Razorpay struct {
	caller *Caller
	creds  Credentials
}

func NewRazorpay(caller *Caller, creds Credentials) *Razorpay {
	return &Razorpay{caller: caller, creds: creds}
}

type razorpayOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayOrder struct {
	ID      string `json:"id"`
	Receipt string `json:"receipt"`
	Status  string `json:"status"`
}

type razorpayPayment struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Status           string `json:"status"`
	Amount           int64  `json:"amount"`
	ErrorDescription string `json:"error_description"`
}

// SignRazorpay returns hex(HMAC-SHA256(secret, orderID|paymentID)), the signature
// the popup hands back to the storefront.
func SignRazorpay(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (*Razorpay) ID() models.ProviderID {
	return models.ProviderRazorpay
}

func (*Razorpay) RequiresClientProof() bool {
	return true
}

func (r *Razorpay) CreateUpstreamOrder(ctx context.Context, req UpstreamOrderRequest) (models.SessionData, error) {
	creds, err := r.creds.Provider(models.ProviderRazorpay)
	if err != nil {
		return models.SessionData{}, err
	}

	notes := map[string]string{"cart_id": req.CartID, "session_id": req.SessionID}
	for k, v := range req.Extra {
		notes[k] = v
	}
	body, err := json.Marshal(razorpayOrderRequest{
		Amount:   req.Amount,
		Currency: strings.ToUpper(req.CurrencyCode),
		Receipt:  receiptFor(req.SessionID),
		Notes:    notes,
	})
	if err != nil {
		return models.SessionData{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, creds.APIBase+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return models.SessionData{}, err
	}
	httpReq.SetBasicAuth(creds.KeyID, creds.Secret)
	httpReq.Header.Set("Content-Type", "application/json")

	var order razorpayOrder
	if err := r.caller.Do(httpReq, &order); err != nil {
		return models.SessionData{}, upstreamOrderError("razorpay", err)
	}
	if order.ID == "" {
		return models.SessionData{}, models.ErrProviderUnavailable.Wrap(errors.New("razorpay returned an order without id"))
	}

	return models.NewRazorpayData(models.RazorpayData{
		OrderID: order.ID,
		Receipt: order.Receipt,
		Status:  order.Status,
	}), nil
}

func (*Razorpay) Reconcile(data models.SessionData, proof models.ClientProof) (models.SessionData, error) {
	arm, ok := data.RazorpayArm()
	if !ok {
		return data, models.ErrInvalidProof.Withf("session data does not belong to razorpay")
	}
	if proof.Razorpay != nil {
		arm = arm.MergeProof(*proof.Razorpay)
	}
	return models.NewRazorpayData(arm), nil
}

// VerifyCallback recomputes the signature over the server's order id and the
// reconciled payment id and compares it in constant time.
func (r *Razorpay) VerifyCallback(data models.SessionData, proof models.ClientProof) error {
	arm, ok := data.RazorpayArm()
	if !ok || arm.OrderID == "" || arm.PaymentID == "" {
		return models.ErrInvalidProof.Withf("razorpay_order_id and razorpay_payment_id are required")
	}
	if proof.Razorpay == nil || proof.Razorpay.Signature == "" {
		return models.ErrInvalidProof.Withf("razorpay_signature is required")
	}
	creds, err := r.creds.Provider(models.ProviderRazorpay)
	if err != nil {
		return err
	}

	expected := SignRazorpay(creds.Secret, arm.OrderID, arm.PaymentID)
	if !hmac.Equal([]byte(expected), []byte(proof.Razorpay.Signature)) {
		return models.ErrInvalidSignature
	}
	return nil
}

func (r *Razorpay) Authorize(ctx context.Context, data models.SessionData, _ models.ClientProof) (AuthorizeResult, error) {
	arm, ok := data.RazorpayArm()
	if !ok || arm.PaymentID == "" {
		return AuthorizeResult{}, models.ErrInvalidProof.Withf("razorpay_payment_id is required")
	}
	creds, err := r.creds.Provider(models.ProviderRazorpay)
	if err != nil {
		return AuthorizeResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, creds.APIBase+"/v1/payments/"+url.PathEscape(arm.PaymentID), nil)
	if err != nil {
		return AuthorizeResult{}, err
	}
	httpReq.SetBasicAuth(creds.KeyID, creds.Secret)

	var payment razorpayPayment
	if err := r.caller.Do(httpReq, &payment); err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			log.Printf("razorpay payment lookup rejected payment=%s status=%d", arm.PaymentID, statusErr.Code)
			return AuthorizeResult{Status: models.SessionError, Data: data, Reason: "payment could not be found"}, nil
		}
		return AuthorizeResult{}, err
	}

	arm.Status = payment.Status
	result := AuthorizeResult{Data: models.NewRazorpayData(arm)}
	if payment.OrderID != "" && payment.OrderID != arm.OrderID {
		log.Printf("razorpay payment order mismatch payment=%s order=%s expected=%s", payment.ID, payment.OrderID, arm.OrderID)
		result.Status = models.SessionError
		result.Reason = "payment does not belong to this order"
		return result, nil
	}

	switch payment.Status {
	case "authorized":
		result.Status = models.SessionAuthorized
	case "captured":
		result.Status = models.SessionCaptured
	case "failed":
		result.Status = models.SessionError
		result.Reason = "payment failed"
		if payment.ErrorDescription != "" {
			result.Reason = payment.ErrorDescription
		}
	default:
		result.Status = models.SessionError
		result.Reason = "payment not completed"
	}
	return result, nil
}

// receiptFor keeps the receipt within razorpay's 40 character limit.
func receiptFor(sessionID string) string {
	if len(sessionID) > 40 {
		return sessionID[:40]
	}
	return sessionID
}
