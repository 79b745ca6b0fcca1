package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gocql/gocql"
	log "github.com/sirupsen/logrus"

	"pharmacie_back_end/internal/models"
	"pharmacie_back_end/internal/storage"
	"pharmacie_back_end/internal/store"
)

const SignedURLTTL = 15 * time.Minute

var ErrFileTooLarge = errors.New("fichier trop volumineux")

var allowedPrescriptionTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"application/pdf": true,
}

// Extractor lit une ordonnance. Seule l'implémentation simulée existe.
type Extractor interface {
	Extract(ctx context.Context, p models.Prescription) (models.PrescriptionExtraction, error)
}

// MockExtractor renvoie toujours le même résultat.
type MockExtractor struct{}

func (MockExtractor) Extract(_ context.Context, p models.Prescription) (models.PrescriptionExtraction, error) {
	return models.PrescriptionExtraction{
		DoctorName: "Dr. A. Sharma",
		IssuedOn:   p.CreatedAt.Format("2006-01-02"),
		Medicines: []models.ExtractedMedicine{
			{Name: "Amoxicillin", Dosage: "500 mg", Frequency: "3 fois par jour", DurationDays: 5},
			{Name: "Paracetamol", Dosage: "650 mg", Frequency: "si fièvre", DurationDays: 3},
			{Name: "Cetirizine", Dosage: "10 mg", Frequency: "le soir", DurationDays: 5},
		},
		Confidence: 0.92,
	}, nil
}

type PrescriptionUpload struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
	PatientName string
	Notes       string
}

type PrescriptionService struct {
	store     store.Prescriptions
	files     storage.Store
	bucket    string
	maxBytes  int64
	delay     time.Duration
	extractor Extractor
	queue     chan gocql.UUID
	Clock     Clock

	mu     sync.Mutex
	runCtx context.Context // posé par Run, nil tant que le worker ne tourne pas
}

func NewPrescriptionService(s store.Prescriptions, files storage.Store, bucket string, maxBytes int64, delay time.Duration) *PrescriptionService {
	return &PrescriptionService{
		store:     s,
		files:     files,
		bucket:    bucket,
		maxBytes:  maxBytes,
		delay:     delay,
		extractor: MockExtractor{},
		queue:     make(chan gocql.UUID, 256),
	}
}

// MaxBytes est la taille maximale acceptée pour un fichier d'ordonnance.
func (s *PrescriptionService) MaxBytes() int64 { return s.maxBytes }

func (s *PrescriptionService) Upload(ctx context.Context, userID string, up PrescriptionUpload) (models.Prescription, error) {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(up.ContentType, ";")[0]))
	if !allowedPrescriptionTypes[ct] {
		return models.Prescription{}, invalidf("type de fichier non accepté: %s (jpeg, png ou pdf)", up.ContentType)
	}
	if up.Size <= 0 {
		return models.Prescription{}, invalidf("fichier vide")
	}
	if up.Size > s.maxBytes {
		return models.Prescription{}, ErrFileTooLarge
	}

	now := s.Clock.now()
	p := models.Prescription{
		ID:          gocql.TimeUUID(),
		UserID:      userID,
		FileName:    up.FileName,
		ContentType: ct,
		Size:        up.Size,
		PatientName: strings.TrimSpace(up.PatientName),
		Notes:       strings.TrimSpace(up.Notes),
		Status:      models.PrescriptionUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	p.FileKey = storage.CleanKey("prescriptions", userID, p.ID.String()+storage.Ext(ct))

	// La limite est revérifiée sur le flux réel, la taille annoncée peut mentir.
	body := &countingReader{r: up.Body, limit: s.maxBytes}
	obj := storage.Object{Bucket: s.bucket, Key: p.FileKey, Size: up.Size, ContentType: ct}
	err := s.files.Upload(ctx, obj, body)
	if body.n > s.maxBytes || errors.Is(err, ErrFileTooLarge) {
		_ = s.files.Remove(ctx, s.bucket, p.FileKey)
		log.Printf("🚫 Ordonnance refusée pour %s: flux de plus de %d octets", userID, s.maxBytes)
		return models.Prescription{}, ErrFileTooLarge
	}
	if err != nil {
		return models.Prescription{}, err
	}
	if body.n == 0 {
		_ = s.files.Remove(ctx, s.bucket, p.FileKey)
		return models.Prescription{}, invalidf("fichier vide")
	}
	p.Size = body.n
	if err := s.store.Create(ctx, p); err != nil {
		_ = s.files.Remove(ctx, s.bucket, p.FileKey)
		return models.Prescription{}, err
	}

	log.Printf("📄 Ordonnance %s reçue pour %s (%s, %d octets)", p.ID, userID, ct, p.Size)
	s.enqueue(p.ID)
	return p, nil
}

// countingReader compte les octets réellement lus et échoue au-delà de limit.
type countingReader struct {
	r     io.Reader
	n     int64
	limit int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.n > c.limit {
		return n, ErrFileTooLarge
	}
	return n, err
}

// enqueue ne bloque jamais l'appelant. Une ordonnance qui n'entre pas dans la
// file reste "uploaded" en base et sera reprise au prochain démarrage du worker.
func (s *PrescriptionService) enqueue(id gocql.UUID) {
	select {
	case s.queue <- id:
		return
	default:
	}

	s.mu.Lock()
	runCtx := s.runCtx
	s.mu.Unlock()
	if runCtx == nil {
		log.Printf("⚠️ File de traitement pleine et worker arrêté, ordonnance %s reprise au démarrage", id)
		return
	}
	log.Printf("⚠️ File de traitement pleine, ordonnance %s en attente", id)
	go func() {
		select {
		case s.queue <- id:
		case <-runCtx.Done():
		}
	}()
}

// resume remet en file les ordonnances restées en attente, y compris celles
// interrompues en cours de traitement par un arrêt du serveur.
func (s *PrescriptionService) resume(ctx context.Context) {
	for _, status := range []string{models.PrescriptionProcessing, models.PrescriptionUploaded} {
		pending, err := s.store.ListByStatus(ctx, status)
		if err != nil {
			log.Printf("❌ Reprise des ordonnances %s: %v", status, err)
			continue
		}
		for _, p := range pending {
			if status == models.PrescriptionProcessing {
				err := s.store.SetStatus(ctx, p.ID, models.PrescriptionProcessing, models.PrescriptionUploaded, s.Clock.now())
				if err != nil {
					log.Printf("⚠️ Reprise ordonnance %s: %v", p.ID, err)
					continue
				}
			}
			s.enqueue(p.ID)
		}
		if len(pending) > 0 {
			log.Printf("🔁 %d ordonnance(s) %s remise(s) en file", len(pending), status)
		}
	}
}

// Run traite la file jusqu'à l'annulation du contexte, puis attend les traitements en cours.
func (s *PrescriptionService) Run(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()

	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.runCtx = nil
		s.mu.Unlock()
	}()

	log.Printf("🩺 Worker ordonnances démarré (délai %s)", s.delay)
	s.resume(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Println("🛑 Worker ordonnances arrêté")
			return
		case id := <-s.queue:
			wg.Add(1)
			go func() {
				defer wg.Done()
				timer := time.NewTimer(s.delay)
				defer timer.Stop()
				select {
				case <-ctx.Done():
					return
				case <-timer.C:
				}
				if err := s.Process(ctx, id); err != nil {
					log.Printf("❌ Traitement ordonnance %s: %v", id, err)
				}
			}()
		}
	}
}

// Process fait passer une ordonnance uploaded → processing → processed.
// Le passage à processing est conditionnel: un seul worker traite une ordonnance.
func (s *PrescriptionService) Process(ctx context.Context, id gocql.UUID) error {
	err := s.store.SetStatus(ctx, id, models.PrescriptionUploaded, models.PrescriptionProcessing, s.Clock.now())
	if errors.Is(err, store.ErrConflict) {
		return nil
	}
	if err != nil {
		return err
	}
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	extraction, err := s.extractor.Extract(ctx, p)
	if err != nil {
		if rerr := s.store.SetStatus(ctx, id, models.PrescriptionProcessing, models.PrescriptionUploaded, s.Clock.now()); rerr != nil {
			log.Printf("⚠️ Remise en attente ordonnance %s: %v", id, rerr)
		}
		return err
	}

	if err := s.store.SetExtraction(ctx, id, extraction, s.Clock.now()); err != nil {
		return err
	}
	log.Printf("✅ Ordonnance %s traitée (confiance %.2f)", id, extraction.Confidence)
	return nil
}

func (s *PrescriptionService) List(ctx context.Context, userID string) ([]models.Prescription, error) {
	return s.store.ListByUser(ctx, userID)
}

// Get masque les ordonnances des autres utilisateurs derrière ErrNotFound.
func (s *PrescriptionService) Get(ctx context.Context, userID string, id gocql.UUID) (models.Prescription, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return models.Prescription{}, err
	}
	if p.UserID != userID {
		return models.Prescription{}, store.ErrNotFound
	}
	return p, nil
}

func (s *PrescriptionService) FileURL(ctx context.Context, userID string, id gocql.UUID) (string, error) {
	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return "", err
	}
	return s.files.SignedURL(ctx, s.bucket, p.FileKey, SignedURLTTL)
}

func (s *PrescriptionService) Delete(ctx context.Context, userID string, id gocql.UUID) error {
	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if p.OrderID != nil {
		return ErrForbidden
	}
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return ErrForbidden
		}
		return err
	}
	if err := s.files.Remove(ctx, s.bucket, p.FileKey); err != nil {
		log.Printf("⚠️ Suppression fichier %s: %v", p.FileKey, err)
	}
	return nil
}

// Review est l'action pharmacien: verified ou rejected, seulement après traitement.
func (s *PrescriptionService) Review(ctx context.Context, id gocql.UUID, status, note string) (models.Prescription, error) {
	if status != models.PrescriptionVerified && status != models.PrescriptionRejected {
		return models.Prescription{}, invalidf("statut de revue invalide: %s", status)
	}
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return models.Prescription{}, err
	}
	if p.Status == models.PrescriptionUploaded || p.Status == models.PrescriptionProcessing {
		return models.Prescription{}, conflictf("ordonnance pas encore traitée")
	}

	note = strings.TrimSpace(note)
	now := s.Clock.now()
	if err := s.store.SetReview(ctx, id, p.Status, status, note, now); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return models.Prescription{}, conflictf("ordonnance modifiée entre-temps, rechargez-la")
		}
		return models.Prescription{}, err
	}
	p.Status = status
	p.ReviewNote = note
	p.UpdatedAt = now
	return p, nil
}

// ForOrder vérifie qu'une ordonnance peut justifier une nouvelle commande.
func (s *PrescriptionService) ForOrder(ctx context.Context, userID string, id gocql.UUID) (models.Prescription, error) {
	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return models.Prescription{}, err
	}
	if !p.Usable() {
		return models.Prescription{}, invalidf("ordonnance non exploitable (statut %s)", p.Status)
	}
	if p.OrderID != nil {
		return models.Prescription{}, conflictf("ordonnance déjà utilisée pour une commande")
	}
	return p, nil
}

// Claim réserve l'ordonnance pour orderID. Deux commandes concurrentes ne
// peuvent pas réserver la même ordonnance: la seconde reçoit ErrConflict.
func (s *PrescriptionService) Claim(ctx context.Context, id, orderID gocql.UUID) error {
	err := s.store.ClaimForOrder(ctx, id, orderID, s.Clock.now())
	if errors.Is(err, store.ErrConflict) {
		return conflictf("ordonnance déjà utilisée pour une commande")
	}
	return err
}

// Release libère l'ordonnance si orderID la tient encore (annulation, échec de commande).
func (s *PrescriptionService) Release(ctx context.Context, id, orderID gocql.UUID) error {
	err := s.store.ReleaseOrder(ctx, id, orderID, s.Clock.now())
	if errors.Is(err, store.ErrConflict) {
		return nil
	}
	return err
}
