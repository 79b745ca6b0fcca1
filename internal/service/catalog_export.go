package service

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gocql/gocql"
	log "github.com/sirupsen/logrus"
	"github.com/tealeg/xlsx"

	"pharmacie_back_end/internal/models"
	"pharmacie_back_end/internal/store"
)

var exportHeaders = []string{
	"ID", "Nom", "Description", "Composition", "Fabricant", "Prix", "MRP",
	"Stock", "Catégorie", "Ordonnance", "Actif", "Tags", "Créé le",
}

// ExportProducts écrit tout le catalogue (actifs et inactifs) au format xlsx.
func (s *CatalogService) ExportProducts(ctx context.Context, w io.Writer) error {
	products, err := s.products.List(ctx, store.ProductFilter{IncludeInactive: true})
	if err != nil {
		return err
	}

	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Produits")
	if err != nil {
		return err
	}

	header := sheet.AddRow()
	for _, h := range exportHeaders {
		header.AddCell().SetValue(h)
	}

	for _, p := range products {
		row := sheet.AddRow()
		row.AddCell().SetValue(p.ID.String())
		row.AddCell().SetValue(p.Name)
		row.AddCell().SetValue(p.Description)
		row.AddCell().SetValue(p.Composition)
		row.AddCell().SetValue(p.Manufacturer)
		row.AddCell().SetValue(p.Price)
		row.AddCell().SetValue(p.MRP)
		row.AddCell().SetValue(p.Stock)
		row.AddCell().SetValue(p.CategoryID.String())
		row.AddCell().SetValue(strconv.FormatBool(p.RequiresPrescription))
		row.AddCell().SetValue(strconv.FormatBool(p.IsActive))
		row.AddCell().SetValue(strings.Join(p.Tags, ","))
		row.AddCell().SetValue(p.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	return file.Write(w)
}

type ImportReport struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// ImportProducts relit le format d'ExportProducts. ID vide: création, sinon mise à jour.
func (s *CatalogService) ImportProducts(ctx context.Context, r io.ReaderAt, size int64) (ImportReport, error) {
	var report ImportReport

	book, err := xlsx.OpenReaderAt(r, size)
	if err != nil {
		return report, invalidf("fichier Excel illisible")
	}
	if len(book.Sheets) == 0 || book.Sheets[0].MaxRow < 2 {
		return report, invalidf("fichier Excel vide ou sans ligne d'en-tête")
	}

	sheet := book.Sheets[0]
	for i := 1; i < sheet.MaxRow; i++ {
		row := sheet.Rows[i]
		get := func(idx int) string {
			if idx < len(row.Cells) {
				return strings.TrimSpace(row.Cells[idx].String())
			}
			return ""
		}

		in, perr := importRow(get)
		if perr != nil {
			report.Skipped++
			report.Errors = append(report.Errors, fmt.Sprintf("ligne %d: %v", i+1, perr))
			continue
		}

		if raw := get(0); raw != "" {
			id, perr := gocql.ParseUUID(raw)
			if perr != nil {
				report.Skipped++
				report.Errors = append(report.Errors, fmt.Sprintf("ligne %d: ID invalide", i+1))
				continue
			}
			p, err := s.UpdateProduct(ctx, id, in)
			if err != nil {
				report.Skipped++
				report.Errors = append(report.Errors, fmt.Sprintf("ligne %d: %v", i+1, err))
				continue
			}
			// La colonne stock est une valeur cible: l'écart passe par AdjustStock.
			if delta := in.Stock - p.Stock; delta != 0 {
				if _, err := s.AdjustStock(ctx, id, delta); err != nil {
					report.Errors = append(report.Errors, fmt.Sprintf("ligne %d: stock: %v", i+1, err))
				}
			}
			report.Updated++
			continue
		}

		if _, err := s.CreateProduct(ctx, in); err != nil {
			report.Skipped++
			report.Errors = append(report.Errors, fmt.Sprintf("ligne %d: %v", i+1, err))
			continue
		}
		report.Created++
	}

	log.Printf("📥 Import catalogue: %d créés, %d mis à jour, %d ignorés", report.Created, report.Updated, report.Skipped)
	return report, nil
}

func importRow(get func(int) string) (models.ProductInput, error) {
	price, err := strconv.ParseFloat(get(5), 64)
	if err != nil {
		return models.ProductInput{}, fmt.Errorf("prix invalide")
	}
	var mrp float64
	if v := get(6); v != "" {
		if mrp, err = strconv.ParseFloat(v, 64); err != nil {
			return models.ProductInput{}, fmt.Errorf("MRP invalide")
		}
	}
	stock, err := strconv.ParseFloat(get(7), 64)
	if err != nil {
		return models.ProductInput{}, fmt.Errorf("stock invalide")
	}
	rx, _ := strconv.ParseBool(get(9))
	active := true
	if v := get(10); v != "" {
		active, _ = strconv.ParseBool(v)
	}
	var tags []string
	if v := get(11); v != "" {
		tags = strings.Split(v, ",")
	}

	return models.ProductInput{
		Name:                 get(1),
		Description:          get(2),
		Composition:          get(3),
		Manufacturer:         get(4),
		Price:                price,
		MRP:                  mrp,
		Stock:                int(stock),
		CategoryID:           get(8),
		Tags:                 tags,
		RequiresPrescription: rx,
		IsActive:             &active,
	}, nil
}
