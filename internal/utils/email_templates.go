package utils

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"pharmacie_back_end/internal/models"
)

var templateFuncs = template.FuncMap{
	"money": Money,
	"line": func(it models.OrderItem) float64 {
		return it.Price * float64(it.Quantity)
	},
	"statusLabel": StatusLabel,
	"date": func(o models.Order) string {
		return o.CreatedAt.Format("02/01/2006")
	},
}

// Money formate un montant dans la devise de la commande.
func Money(amount float64, currency string) string {
	switch strings.ToLower(currency) {
	case "inr", "":
		return fmt.Sprintf("₹%.2f", amount)
	case "eur":
		return fmt.Sprintf("%.2f€", amount)
	case "usd":
		return fmt.Sprintf("$%.2f", amount)
	}
	return fmt.Sprintf("%.2f %s", amount, strings.ToUpper(currency))
}

func StatusLabel(status string) string {
	switch status {
	case models.OrderAwaitingPayment:
		return "En attente de paiement"
	case models.OrderPending:
		return "En attente de confirmation"
	case models.OrderConfirmed:
		return "Confirmée"
	case models.OrderShipped:
		return "Expédiée"
	case models.OrderDelivered:
		return "Livrée"
	case models.OrderCancelled:
		return "Annulée"
	}
	return status
}

const itemsTable = `{{define "items"}}
<table style="width: 100%; border-collapse: collapse; margin: 20px 0;">
	<thead>
		<tr style="background-color: #f0f0f0;">
			<th style="padding: 10px; text-align: left; border: 1px solid #ddd;">Produit</th>
			<th style="padding: 10px; text-align: left; border: 1px solid #ddd;">Quantité</th>
			<th style="padding: 10px; text-align: left; border: 1px solid #ddd;">Prix unitaire</th>
			<th style="padding: 10px; text-align: left; border: 1px solid #ddd;">Total</th>
		</tr>
	</thead>
	<tbody>
	{{range .Items}}
		<tr>
			<td style="padding: 10px; border: 1px solid #ddd;">{{.Name}}{{if .RequiresPrescription}} (Rx){{end}}</td>
			<td style="padding: 10px; border: 1px solid #ddd;">{{.Quantity}}</td>
			<td style="padding: 10px; border: 1px solid #ddd;">{{money .Price $.Currency}}</td>
			<td style="padding: 10px; border: 1px solid #ddd;">{{money (line .) $.Currency}}</td>
		</tr>
	{{end}}
	</tbody>
	<tfoot>
		<tr><td colspan="3" style="padding: 10px; text-align: right;">Sous-total</td><td style="padding: 10px;">{{money .Subtotal .Currency}}</td></tr>
		{{if .Discount}}<tr><td colspan="3" style="padding: 10px; text-align: right;">Économies</td><td style="padding: 10px;">{{money .Discount .Currency}}</td></tr>{{end}}
		<tr><td colspan="3" style="padding: 10px; text-align: right;">Livraison</td><td style="padding: 10px;">{{if .Shipping}}{{money .Shipping .Currency}}{{else}}Offerte{{end}}</td></tr>
		<tr><td colspan="3" style="padding: 10px; text-align: right; font-weight: bold;">Total</td><td style="padding: 10px; font-weight: bold;">{{money .Total .Currency}}</td></tr>
	</tfoot>
</table>
{{end}}`

var (
	confirmationTmpl = template.Must(template.New("confirmation").Funcs(templateFuncs).Parse(itemsTable + `
<!DOCTYPE html>
<html lang="fr">
<head><meta charset="UTF-8"><title>Confirmation de commande</title></head>
<body style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 20px;">
	<div style="max-width: 600px; margin: auto; background-color: white; padding: 20px; border-radius: 10px;">
		<h2 style="color: #1b7f5b;">Commande {{.Order.Reference}} enregistrée</h2>
		<p>Bonjour {{.Order.ShippingAddress.FullName}},</p>
		<p>Nous avons bien reçu votre commande. Statut actuel : <strong>{{statusLabel .Order.Status}}</strong>.</p>
		{{template "items" .Order}}
		<p>Livraison à : {{.Order.ShippingAddress.Line1}}, {{.Order.ShippingAddress.City}} {{.Order.ShippingAddress.Pincode}}</p>
		{{if .QRCID}}<p style="text-align: center;"><img src="cid:{{.QRCID}}" alt="{{.Order.Reference}}" width="160" height="160"></p>{{end}}
		<p style="margin-top: 30px; color: #555;">Cordialement,<br><strong>L'équipe Pharmacie</strong></p>
	</div>
</body>
</html>`))

	statusTmpl = template.Must(template.New("status").Funcs(templateFuncs).Parse(`
<!DOCTYPE html>
<html lang="fr">
<head><meta charset="UTF-8"><title>Suivi de commande</title></head>
<body style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 20px;">
	<div style="max-width: 600px; margin: auto; background-color: white; padding: 20px; border-radius: 10px;">
		<h2 style="color: #333;">Commande {{.Reference}}</h2>
		<p>Votre commande est maintenant : <strong>{{statusLabel .Status}}</strong>.</p>
		<p>Montant : {{money .Total .Currency}}</p>
		<p style="margin-top: 30px; color: #555;">Cordialement,<br><strong>L'équipe Pharmacie</strong></p>
	</div>
</body>
</html>`))

	welcomeTmpl = template.Must(template.New("welcome").Parse(`
<!DOCTYPE html>
<html lang="fr">
<head><meta charset="UTF-8"><title>Bienvenue</title></head>
<body style="font-family: Arial, sans-serif; background-color: #f5f5f5; padding: 20px;">
	<div style="max-width: 600px; margin: auto; background-color: white; padding: 30px; border-radius: 12px;">
		<h1 style="color: #1b7f5b;">Bienvenue {{.}} !</h1>
		<p>Votre compte est prêt. Vous pouvez dès maintenant commander vos médicaments, envoyer vos ordonnances et faire don de vos médicaments inutilisés.</p>
	</div>
</body>
</html>`))

	invoiceTmpl = template.Must(template.New("invoice").Funcs(templateFuncs).Parse(itemsTable + `
<!DOCTYPE html>
<html lang="fr">
<head>
	<meta charset="UTF-8">
	<title>Facture {{.Order.Reference}}</title>
	<style>
		body { font-family: Arial, sans-serif; margin: 40px; color: #222; }
		header { display: flex; justify-content: space-between; align-items: flex-start; }
		.muted { color: #777; font-size: 12px; }
	</style>
</head>
<body>
	<header>
		<div>
			<h1>Facture {{.Order.Reference}}</h1>
			<p class="muted">Date : {{date .Order}}<br>Paiement : {{.Order.PaymentMethod}}<br>Statut : {{statusLabel .Order.Status}}</p>
		</div>
		{{if .QR}}<img src="{{.QR}}" width="120" height="120" alt="QR">{{end}}
	</header>
	<section>
		<h3>Adresse de livraison</h3>
		<p>{{.Order.ShippingAddress.FullName}}<br>{{.Order.ShippingAddress.Line1}}{{if .Order.ShippingAddress.Line2}}<br>{{.Order.ShippingAddress.Line2}}{{end}}<br>
		{{.Order.ShippingAddress.City}}, {{.Order.ShippingAddress.State}} {{.Order.ShippingAddress.Pincode}}<br>{{.Order.ShippingAddress.Phone}}</p>
	</section>
	{{template "items" .Order}}
</body>
</html>`))
)

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendu %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// OrderConfirmationHTML référence le QR code en pièce incorporée (cid) quand qrCID est non vide.
func OrderConfirmationHTML(order models.Order, qrCID string) (string, error) {
	return render(confirmationTmpl, struct {
		Order models.Order
		QRCID string
	}{order, qrCID})
}

func OrderStatusHTML(order models.Order) (string, error) {
	return render(statusTmpl, order)
}

func WelcomeHTML(name string) (string, error) {
	return render(welcomeTmpl, name)
}

// InvoiceHTML attend le QR code déjà encodé en data URL.
func InvoiceHTML(order models.Order, qrDataURL string) (string, error) {
	return render(invoiceTmpl, struct {
		Order models.Order
		QR    template.URL
	}{order, template.URL(qrDataURL)})
}
