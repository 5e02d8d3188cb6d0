package events

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log"
	"strings"

	"go-storefront/models"
	"go-storefront/utils"
)

// EmailNotifier sends the order confirmation e-mail.
type EmailNotifier struct {
	mailer utils.Mailer
}

func NewEmailNotifier(mailer utils.Mailer) *EmailNotifier {
	return &EmailNotifier{mailer: mailer}
}

func (n *EmailNotifier) Handle(ctx context.Context, event models.OrderCompletedEvent) error {
	if event.Email == "" {
		log.Printf("order confirmation skipped order=%s: no e-mail on order", event.OrderID)
		return nil
	}
	subject, body := renderConfirmation(event)
	if err := n.mailer.SendEmail(event.Email, subject, body); err != nil {
		return fmt.Errorf("send order confirmation %s: %w", event.OrderID, err)
	}
	return nil
}

// Dispatch lets the poller hand records straight to the notifier when Kafka is not configured.
func (n *EmailNotifier) Dispatch(ctx context.Context, rec models.OutboxRecord) error {
	var event models.OrderCompletedEvent
	if err := json.Unmarshal(rec.Payload, &event); err != nil {
		return fmt.Errorf("decode order event %s: %w", rec.EventID, err)
	}
	return n.Handle(ctx, event)
}

func renderConfirmation(event models.OrderCompletedEvent) (string, string) {
	money := func(amount int64) string {
		return models.FormatAmount(amount, event.CurrencyCode)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<strong>Dear Customer,</strong><br><br>Thank you for your purchase! Your order (ID: %s) has been placed successfully.<br><br>", html.EscapeString(event.OrderID))
	b.WriteString("<table>")
	for _, item := range event.Items {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>x%d</td><td>%s</td></tr>", html.EscapeString(item.Title), item.Quantity, money(item.Total()))
	}
	b.WriteString("</table><br>")
	fmt.Fprintf(&b, "Subtotal: %s<br>", money(event.Totals.Subtotal))
	fmt.Fprintf(&b, "Shipping: %s<br>", money(event.Totals.ShippingTotal))
	if event.Totals.DiscountTotal > 0 {
		fmt.Fprintf(&b, "Discount: -%s<br>", money(event.Totals.DiscountTotal))
	}
	fmt.Fprintf(&b, "Total Amount: <strong>%s</strong><br><br>Thank you for shopping with us!", money(event.Totals.Total))

	return "Order Confirmation " + event.OrderID, b.String()
}
