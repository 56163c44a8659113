package notify

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bizworx/bizworx-api/shared/mailer"
	"github.com/bizworx/bizworx-api/shared/models"
)

func parseID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

func invoiceMessage(b *models.Business, inv *models.Invoice) mailer.Message {
	var text strings.Builder
	fmt.Fprintf(&text, "Hello %s,\n\n", inv.Client.Name)
	fmt.Fprintf(&text, "%s has sent you invoice %s.\n\n", b.Name, inv.Number)
	for _, item := range inv.Items {
		fmt.Fprintf(&text, "  %s  %.2f x %.2f = %.2f\n", item.Description, item.Quantity, item.Rate, item.Amount)
	}
	fmt.Fprintf(&text, "\nSubtotal: %.2f\nTax: %.2f\nTotal due: %.2f\n", inv.Subtotal, inv.TaxAmount, inv.Balance())
	if inv.DueDate != nil {
		fmt.Fprintf(&text, "Due by: %s\n", inv.DueDate.Format("January 2, 2006"))
	}
	if inv.Notes != "" {
		fmt.Fprintf(&text, "\n%s\n", inv.Notes)
	}
	fmt.Fprintf(&text, "\nThank you,\n%s\n", b.Name)

	return mailer.Message{
		To:      inv.Client.Email,
		ReplyTo: b.Email,
		Subject: fmt.Sprintf("Invoice %s from %s", inv.Number, b.Name),
		Text:    text.String(),
	}
}

func estimateMessage(b *models.Business, est *models.Estimate, share SharePayload) mailer.Message {
	var text strings.Builder
	fmt.Fprintf(&text, "Hello %s,\n\n", est.Client.Name)
	fmt.Fprintf(&text, "%s has prepared estimate %s for %.2f.\n\n", b.Name, est.Number, est.Total)
	fmt.Fprintf(&text, "Review and approve it here:\n%s\n\n", share.URL)
	if !share.ExpiresAt.IsZero() {
		fmt.Fprintf(&text, "This link is valid until %s.\n\n", share.ExpiresAt.Format("January 2, 2006"))
	}
	fmt.Fprintf(&text, "Thank you,\n%s\n", b.Name)

	return mailer.Message{
		To:      est.Client.Email,
		ReplyTo: b.Email,
		Subject: fmt.Sprintf("Estimate %s from %s", est.Number, b.Name),
		Text:    text.String(),
	}
}
