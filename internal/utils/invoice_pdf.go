package utils

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/skip2/go-qrcode"

	"pharmacie_back_end/internal/models"
)

// OrderQR encode la référence de commande et, si connu, le lien de suivi.
func OrderQR(order models.Order, frontendURL string) ([]byte, error) {
	content := order.Reference()
	if frontendURL != "" {
		content = strings.TrimRight(frontendURL, "/") + "/orders/" + order.ID.String()
	}
	return qrcode.Encode(content, qrcode.Medium, 256)
}

func OrderQRDataURL(order models.Order, frontendURL string) (string, error) {
	png, err := OrderQR(order, frontendURL)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// InvoiceRenderer produit la facture PDF d'une commande.
type InvoiceRenderer interface {
	Render(ctx context.Context, order models.Order) ([]byte, error)
}

// ChromeInvoiceRenderer imprime le HTML de facture avec un Chrome headless.
type ChromeInvoiceRenderer struct {
	FrontendURL string
	Timeout     time.Duration
}

func (r ChromeInvoiceRenderer) Render(ctx context.Context, order models.Order) ([]byte, error) {
	qr, err := OrderQRDataURL(order, r.FrontendURL)
	if err != nil {
		return nil, fmt.Errorf("erreur génération QR: %w", err)
	}
	html, err := InvoiceHTML(order, qr)
	if err != nil {
		return nil, err
	}
	return PrintHTMLToPDF(ctx, html, r.Timeout)
}

func PrintHTMLToPDF(ctx context.Context, html string, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := chromedp.NewContext(ctx)
	defer cancel()
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	var pdf []byte
	err := chromedp.Run(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			pdf = buf
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("impression PDF: %w", err)
	}
	return pdf, nil
}
