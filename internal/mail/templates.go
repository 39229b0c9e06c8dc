// internal/mail/templates.go
package mail

import (
	"fmt"
	"html/template"
	"strings"
)

// Templates keyed by notification type. Layout and wording follow the
// messages users already receive from this system.
var templates = map[string]struct {
	subject string
	body    string
}{
	"checkout_confirmation": {
		subject: "Checkout Confirmation - Inventory Tracker",
		body: `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #2563eb;">Checkout Confirmation</h2>
  <p>Hello {{.userName}},</p>
  <p>You have successfully checked out the following item(s):</p>
  <div style="background-color: #f8fafc; padding: 20px; border-radius: 8px; margin: 20px 0;">
    <h3 style="margin-top: 0;">Item Details</h3>
    <p><strong>Item:</strong> {{.itemName}}</p>
    <p><strong>Quantity:</strong> {{.quantity}}</p>
    <p><strong>Expected Return Date:</strong> {{.expectedReturnDate}}</p>
    <p><strong>Purpose:</strong> {{.purpose}}</p>
  </div>
  <p>Please ensure you return the item(s) by the expected return date.</p>
  <p>If you need to extend the return date, use the system to request an extension.</p>
  {{template "footer"}}
</div>`,
	},
	"return_confirmation": {
		subject: "Return Confirmation - Inventory Tracker",
		body: `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #059669;">Return Confirmation</h2>
  <p>Hello {{.userName}},</p>
  <p>You have successfully returned the following item(s):</p>
  <div style="background-color: #f0fdf4; padding: 20px; border-radius: 8px; margin: 20px 0;">
    <h3 style="margin-top: 0;">Item Details</h3>
    <p><strong>Item:</strong> {{.itemName}}</p>
    <p><strong>Quantity:</strong> {{.quantity}}</p>
    <p><strong>Return Date:</strong> {{.returnDate}}</p>
    <p><strong>Condition:</strong> {{.condition}}</p>
  </div>
  <p>Thank you for returning the item(s)!</p>
  {{template "footer"}}
</div>`,
	},
	"return_reminder": {
		subject: "Return Reminder - Inventory Tracker",
		body: `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #f59e0b;">Return Reminder</h2>
  <p>Hello {{.userName}},</p>
  <p>This is a friendly reminder that you have item(s) due for return:</p>
  <div style="background-color: #fffbeb; padding: 20px; border-radius: 8px; margin: 20px 0; border-left: 4px solid #f59e0b;">
    <h3 style="margin-top: 0;">Item Details</h3>
    <p><strong>Item:</strong> {{.itemName}}</p>
    <p><strong>Quantity:</strong> {{.quantity}}</p>
    <p><strong>Expected Return Date:</strong> {{.expectedReturnDate}}</p>
  </div>
  <p>Please return the item(s) in time to avoid any penalties.</p>
  {{template "footer"}}
</div>`,
	},
	"overdue_alert": {
		subject: "URGENT: Overdue Items - Inventory Tracker",
		body: `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #dc2626;">Overdue Items Alert</h2>
  <p>Hello {{.userName}},</p>
  <p><strong>URGENT:</strong> You have overdue item(s) that need to be returned immediately:</p>
  <div style="background-color: #fef2f2; padding: 20px; border-radius: 8px; margin: 20px 0; border-left: 4px solid #dc2626;">
    <h3 style="margin-top: 0;">Overdue Item Details</h3>
    <p><strong>Item:</strong> {{.itemName}}</p>
    <p><strong>Quantity:</strong> {{.quantity}}</p>
    <p><strong>Expected Return Date:</strong> {{.expectedReturnDate}}</p>
    <p><strong>Days Overdue:</strong> {{.daysOverdue}}</p>
  </div>
  <p style="color: #dc2626; font-weight: bold;">Please return the item(s) immediately to avoid penalties.</p>
  {{template "footer"}}
</div>`,
	},
	"approval_request": {
		subject: "Approval Required - Inventory Tracker",
		body: `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #7c3aed;">Approval Required</h2>
  <p>Hello {{.managerName}},</p>
  <p>{{.userName}} has requested checkout of item(s) that require your approval:</p>
  <div style="background-color: #faf5ff; padding: 20px; border-radius: 8px; margin: 20px 0; border-left: 4px solid #7c3aed;">
    <h3 style="margin-top: 0;">Request Details</h3>
    <p><strong>Item:</strong> {{.itemName}}</p>
    <p><strong>Quantity:</strong> {{.quantity}}</p>
    <p><strong>Expected Return Date:</strong> {{.expectedReturnDate}}</p>
    <p><strong>Purpose:</strong> {{.purpose}}</p>
  </div>
  <p>Please log into the system to approve or reject this request.</p>
  {{template "footer"}}
</div>`,
	},
	"approval_decision": {
		subject: "Checkout Request Decision - Inventory Tracker",
		body: `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Checkout Request {{.decision}}</h2>
  <p>Hello {{.userName}},</p>
  <p>Your checkout request has been <strong>{{.decision}}</strong>:</p>
  <div style="background-color: #f8fafc; padding: 20px; border-radius: 8px; margin: 20px 0;">
    <h3 style="margin-top: 0;">Request Details</h3>
    <p><strong>Item:</strong> {{.itemName}}</p>
    <p><strong>Quantity:</strong> {{.quantity}}</p>
    {{if .notes}}<p><strong>Notes:</strong> {{.notes}}</p>{{end}}
  </div>
  {{template "footer"}}
</div>`,
	},
	"extension_request": {
		subject: "Extension Request - Inventory Tracker",
		body: `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #7c3aed;">Extension Request</h2>
  <p>Hello {{.managerName}},</p>
  <p>{{.userName}} has requested an extension for {{.itemName}}:</p>
  <div style="background-color: #faf5ff; padding: 20px; border-radius: 8px; margin: 20px 0; border-left: 4px solid #7c3aed;">
    <h3 style="margin-top: 0;">Request Details</h3>
    <p><strong>Requested Return Date:</strong> {{.newReturnDate}}</p>
    <p><strong>Reason:</strong> {{.reason}}</p>
  </div>
  {{template "footer"}}
</div>`,
	},
}

const footer = `{{define "footer"}}<hr style="margin: 30px 0; border: none; border-top: 1px solid #e5e7eb;">
<p style="color: #6b7280; font-size: 14px;">This is an automated message from the Inventory Tracker system.</p>{{end}}`

// HasTemplate reports whether a template exists for the given name.
func HasTemplate(name string) bool {
	_, ok := templates[name]
	return ok
}

func renderTemplate(name, subjectOverride string, data map[string]string) (string, string, error) {
	tmpl, ok := templates[name]
	if !ok {
		return "", "", fmt.Errorf("unknown email template %q", name)
	}

	t, err := template.New(name).Parse(footer + tmpl.body)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse template %q: %w", name, err)
	}

	var buf strings.Builder
	if err := t.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("failed to render template %q: %w", name, err)
	}

	subject := tmpl.subject
	if subjectOverride != "" {
		subject = subjectOverride
	}
	return subject, buf.String(), nil
}
