package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pharmacie_back_end/internal/service"
)

type PrescriptionHandler struct {
	prescriptions *service.PrescriptionService
}

func NewPrescriptionHandler(s *service.PrescriptionService) *PrescriptionHandler {
	return &PrescriptionHandler{prescriptions: s}
}

// multipartOverhead couvre les en-têtes et champs texte autour du fichier.
const multipartOverhead = 64 << 10

// POST /api/prescriptions (multipart: file, notes, patient_name)
func (h *PrescriptionHandler) Upload(c *gin.Context) {
	limit := h.prescriptions.MaxBytes() + multipartOverhead
	if c.Request.ContentLength > limit {
		respondError(c, service.ErrFileTooLarge)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	fh, err := c.FormFile("file")
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondError(c, service.ErrFileTooLarge)
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Aucun fichier reçu"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Fichier illisible"})
		return
	}
	defer f.Close()

	p, err := h.prescriptions.Upload(c.Request.Context(), c.GetString("user_id"), service.PrescriptionUpload{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
		PatientName: c.PostForm("patient_name"),
		Notes:       c.PostForm("notes"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// GET /api/prescriptions
func (h *PrescriptionHandler) List(c *gin.Context) {
	list, err := h.prescriptions.List(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orEmpty(list))
}

// GET /api/prescriptions/:id
func (h *PrescriptionHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	p, err := h.prescriptions.Get(c.Request.Context(), c.GetString("user_id"), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// GET /api/prescriptions/:id/file : URL signée valable 15 minutes
func (h *PrescriptionHandler) File(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	url, err := h.prescriptions.FileURL(c.Request.Context(), c.GetString("user_id"), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "expires_in": int(service.SignedURLTTL.Seconds())})
}

// DELETE /api/prescriptions/:id
func (h *PrescriptionHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.prescriptions.Delete(c.Request.Context(), c.GetString("user_id"), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Ordonnance supprimée"})
}

type reviewInput struct {
	Status string `json:"status" binding:"required,oneof=verified rejected"`
	Note   string `json:"note" binding:"max=500"`
}

// POST /api/admin/prescriptions/:id/review
func (h *PrescriptionHandler) Review(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var in reviewInput
	if !bindJSON(c, &in) {
		return
	}
	p, err := h.prescriptions.Review(c.Request.Context(), id, in.Status, in.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
