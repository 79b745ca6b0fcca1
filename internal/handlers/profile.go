package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pharmacie_back_end/internal/models"
	"pharmacie_back_end/internal/service"
)

type ProfileHandler struct {
	profiles *service.ProfileService
}

func NewProfileHandler(s *service.ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: s}
}

// GET /api/profile
func (h *ProfileHandler) Get(c *gin.Context) {
	p, err := h.profiles.Get(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// PUT /api/profile
func (h *ProfileHandler) Update(c *gin.Context) {
	var in models.ProfileInput
	if !bindJSON(c, &in) {
		return
	}
	p, err := h.profiles.Update(c.Request.Context(), c.GetString("user_id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// POST /api/profile/avatar (multipart "file")
func (h *ProfileHandler) UploadAvatar(c *gin.Context) {
	fh, err := c.FormFile("file")
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

	p, err := h.profiles.UploadAvatar(c.Request.Context(), c.GetString("user_id"), f, fh.Size, fh.Header.Get("Content-Type"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
