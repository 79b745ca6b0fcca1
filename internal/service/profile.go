package service

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/google/uuid"

	"pharmacie_back_end/internal/models"
	"pharmacie_back_end/internal/storage"
	"pharmacie_back_end/internal/store"
)

const maxAvatarBytes = 2 << 20

type ProfileService struct {
	store  store.Profiles
	files  storage.Store
	bucket string
	Clock  Clock
}

func NewProfileService(s store.Profiles, files storage.Store, bucket string) *ProfileService {
	return &ProfileService{store: s, files: files, bucket: bucket}
}

// Get renvoie un profil vide plutôt qu'une erreur quand rien n'est enregistré.
func (s *ProfileService) Get(ctx context.Context, userID string) (models.UserProfile, error) {
	p, err := s.store.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return models.UserProfile{UserID: userID}, nil
	}
	return p, err
}

func (s *ProfileService) Update(ctx context.Context, userID string, in models.ProfileInput) (models.UserProfile, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return models.UserProfile{}, err
	}
	p.FullName = strings.TrimSpace(in.FullName)
	p.Phone = strings.TrimSpace(in.Phone)
	p.DateOfBirth = in.DateOfBirth
	p.Gender = in.Gender
	p.UpdatedAt = s.Clock.now()

	if err := s.store.Upsert(ctx, p); err != nil {
		return models.UserProfile{}, err
	}
	return p, nil
}

func (s *ProfileService) UploadAvatar(ctx context.Context, userID string, r io.Reader, size int64, contentType string) (models.UserProfile, error) {
	ext := storage.Ext(contentType)
	if ext == "" || ext == ".pdf" {
		return models.UserProfile{}, invalidf("format d'image non supporté: %s", contentType)
	}
	if size > maxAvatarBytes {
		return models.UserProfile{}, ErrFileTooLarge
	}

	p, err := s.Get(ctx, userID)
	if err != nil {
		return models.UserProfile{}, err
	}

	key := storage.CleanKey("avatars", userID, uuid.NewString()+ext)
	if err := s.files.Upload(ctx, storage.Object{Bucket: s.bucket, Key: key, Size: size, ContentType: contentType}, r); err != nil {
		return models.UserProfile{}, err
	}

	p.AvatarURL = s.files.PublicURL(s.bucket, key)
	p.UpdatedAt = s.Clock.now()
	if err := s.store.Upsert(ctx, p); err != nil {
		return models.UserProfile{}, err
	}
	return p, nil
}
