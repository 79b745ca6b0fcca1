package service

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacie_back_end/internal/models"
	"pharmacie_back_end/internal/storage"
	"pharmacie_back_end/internal/store"
	"pharmacie_back_end/internal/store/memory"
)

func newPrescriptions(delay time.Duration) (*PrescriptionService, *storage.Memory) {
	s, files, _ := newPrescriptionsWithStore(delay)
	return s, files
}

func newPrescriptionsWithStore(delay time.Duration) (*PrescriptionService, *storage.Memory, store.Prescriptions) {
	files := storage.NewMemory()
	rx := memory.New().Prescriptions
	s := NewPrescriptionService(rx, files, "prescriptions", 1024, delay)
	s.Clock = tickClock()
	return s, files, rx
}

// processed dépose et traite une ordonnance pour userID.
func processed(t *testing.T, s *PrescriptionService, userID string) models.Prescription {
	t.Helper()
	ctx := context.Background()
	p, err := s.Upload(ctx, userID, upload("image/png", "png"))
	require.NoError(t, err)
	require.NoError(t, s.Process(ctx, p.ID))
	p, err = s.Get(ctx, userID, p.ID)
	require.NoError(t, err)
	return p
}

func upload(ct string, body string) PrescriptionUpload {
	return PrescriptionUpload{FileName: "rx", ContentType: ct, Size: int64(len(body)), Body: strings.NewReader(body)}
}

func TestUploadValidatesFile(t *testing.T) {
	ctx := context.Background()
	s, files := newPrescriptions(0)

	_, err := s.Upload(ctx, "u1", upload("text/plain", "hello"))
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = s.Upload(ctx, "u1", upload("image/png", ""))
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = s.Upload(ctx, "u1", upload("application/pdf", strings.Repeat("x", 2048)))
	assert.ErrorIs(t, err, ErrFileTooLarge)

	p, err := s.Upload(ctx, "u1", upload("application/pdf; charset=binary", "%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, models.PrescriptionUploaded, p.Status)
	assert.Equal(t, "prescriptions/u1/"+p.ID.String()+".pdf", p.FileKey)
	assert.True(t, files.Exists("prescriptions", p.FileKey))
	assert.EqualValues(t, len("%PDF-1.4"), p.Size)
}

func TestUploadCountsTheRealStream(t *testing.T) {
	ctx := context.Background()
	s, files := newPrescriptions(0)

	// Taille annoncée sous la limite, flux réel au-dessus.
	up := PrescriptionUpload{FileName: "rx.png", ContentType: "image/png", Size: 10, Body: strings.NewReader(strings.Repeat("x", 4096))}
	_, err := s.Upload(ctx, "u1", up)
	assert.ErrorIs(t, err, ErrFileTooLarge)

	list, err := s.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)

	p, err := s.Upload(ctx, "u1", upload("image/png", "png"))
	require.NoError(t, err)
	assert.True(t, files.Exists("prescriptions", p.FileKey))
}

func TestProcessProducesFixedExtraction(t *testing.T) {
	ctx := context.Background()
	s, _ := newPrescriptions(0)

	p, err := s.Upload(ctx, "u1", upload("image/jpeg", "jpeg"))
	require.NoError(t, err)
	require.NoError(t, s.Process(ctx, p.ID))

	got, err := s.Get(ctx, "u1", p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PrescriptionProcessed, got.Status)
	require.NotNil(t, got.Extraction)
	assert.Equal(t, 0.92, got.Extraction.Confidence)
	assert.NotEmpty(t, got.Extraction.Medicines)

	// Déjà traitée: aucun effet.
	require.NoError(t, s.Process(ctx, p.ID))
}

func TestWorkerProcessesAfterDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s, _ := newPrescriptions(10 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	p, err := s.Upload(ctx, "u1", upload("image/png", "png"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		got, err := s.Get(context.Background(), "u1", p.ID)
		return err == nil && got.Status == models.PrescriptionProcessed
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("le worker ne s'arrête pas")
	}
}

func TestWorkerStopsBeforeDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s, _ := newPrescriptions(time.Hour)

	p, err := s.Upload(ctx, "u1", upload("image/png", "png"))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	got, err := s.Get(context.Background(), "u1", p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PrescriptionUploaded, got.Status)
}

func TestOwnershipDeleteAndSignedURL(t *testing.T) {
	ctx := context.Background()
	s, files := newPrescriptions(0)

	p, err := s.Upload(ctx, "u1", upload("image/png", "png"))
	require.NoError(t, err)

	_, err = s.Get(ctx, "u2", p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.FileURL(ctx, "u2", p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	url, err := s.FileURL(ctx, "u1", p.ID)
	require.NoError(t, err)
	assert.Contains(t, url, p.FileKey)

	require.NoError(t, s.Process(ctx, p.ID))
	orderID := gocql.TimeUUID()
	require.NoError(t, s.Claim(ctx, p.ID, orderID))
	assert.ErrorIs(t, s.Delete(ctx, "u1", p.ID), ErrForbidden)

	require.NoError(t, s.Release(ctx, p.ID, orderID))
	require.NoError(t, s.Delete(ctx, "u1", p.ID))
	assert.False(t, files.Exists("prescriptions", p.FileKey))
}

func TestReviewAndForOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := newPrescriptions(0)

	p, err := s.Upload(ctx, "u1", upload("image/png", "png"))
	require.NoError(t, err)

	_, err = s.ForOrder(ctx, "u1", p.ID)
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = s.Review(ctx, p.ID, models.PrescriptionVerified, "")
	assert.ErrorIs(t, err, ErrConflict)

	require.NoError(t, s.Process(ctx, p.ID))
	_, err = s.Review(ctx, p.ID, "approved", "")
	assert.ErrorIs(t, err, ErrInvalid)

	reviewed, err := s.Review(ctx, p.ID, models.PrescriptionVerified, " ok ")
	require.NoError(t, err)
	assert.Equal(t, "ok", reviewed.ReviewNote)

	_, err = s.ForOrder(ctx, "u1", p.ID)
	require.NoError(t, err)

	orderID := gocql.TimeUUID()
	require.NoError(t, s.Claim(ctx, p.ID, orderID))
	_, err = s.ForOrder(ctx, "u1", p.ID)
	assert.ErrorIs(t, err, ErrConflict)

	// La revue n'écrit que statut et note: la commande reste rattachée.
	_, err = s.Review(ctx, p.ID, models.PrescriptionRejected, "illisible")
	require.NoError(t, err)
	got, err := s.Get(ctx, "u1", p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.OrderID)
	assert.Equal(t, orderID, *got.OrderID)

	p2, _ := s.Upload(ctx, "u1", upload("image/png", "png"))
	_ = s.Process(ctx, p2.ID)
	_, _ = s.Review(ctx, p2.ID, models.PrescriptionRejected, "")
	_, err = s.ForOrder(ctx, "u1", p2.ID)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestClaimHasSingleWinner(t *testing.T) {
	ctx := context.Background()
	s, _ := newPrescriptions(0)
	p := processed(t, s, "u1")

	const contenders = 10
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Claim(ctx, p.ID, gocql.TimeUUID()); err == nil {
				wins.Add(1)
			} else {
				assert.ErrorIs(t, err, ErrConflict)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())

	// Une libération par une autre commande est sans effet.
	require.NoError(t, s.Release(ctx, p.ID, gocql.TimeUUID()))
	got, err := s.Get(ctx, "u1", p.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.OrderID)
}

func TestRunResumesInterruptedPrescriptions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, _, rx := newPrescriptionsWithStore(time.Millisecond)

	now := time.Now()
	waiting := models.Prescription{ID: gocql.TimeUUID(), UserID: "u1", Status: models.PrescriptionUploaded, CreatedAt: now}
	stuck := models.Prescription{ID: gocql.TimeUUID(), UserID: "u1", Status: models.PrescriptionProcessing, CreatedAt: now}
	require.NoError(t, rx.Create(ctx, waiting))
	require.NoError(t, rx.Create(ctx, stuck))

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	for _, id := range []gocql.UUID{waiting.ID, stuck.ID} {
		assert.Eventually(t, func() bool {
			got, err := rx.Get(context.Background(), id)
			return err == nil && got.Status == models.PrescriptionProcessed
		}, 2*time.Second, 10*time.Millisecond)
	}

	cancel()
	<-done
}

func TestEnqueueWaitsForWorkerWhenQueueIsFull(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s, _ := newPrescriptions(0)
	s.queue = make(chan gocql.UUID)

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.runCtx != nil
	}, time.Second, 5*time.Millisecond)

	p, err := s.Upload(context.Background(), "u1", upload("image/png", "png"))
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		got, err := s.Get(context.Background(), "u1", p.ID)
		return err == nil && got.Status == models.PrescriptionProcessed
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("le worker ne s'arrête pas")
	}
}
