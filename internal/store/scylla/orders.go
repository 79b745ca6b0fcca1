package scylla

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gocql/gocql"

	"pharmacie_back_end/internal/models"
	"pharmacie_back_end/internal/store"
)

const orderColumns = `order_id, user_id, email, items, address, prescription_id, payment_method, payment_intent_id,
	status, subtotal, discount, shipping, total, currency, notes, created_at, updated_at`

type orderStore struct{ s *gocql.Session }

func (r *orderStore) scan(scan func(...any) bool) (models.Order, bool, error) {
	var (
		o              models.Order
		items, address string
	)
	if !scan(&o.ID, &o.UserID, &o.Email, &items, &address, &o.PrescriptionID, &o.PaymentMethod, &o.PaymentIntentID,
		&o.Status, &o.Subtotal, &o.Discount, &o.Shipping, &o.Total, &o.Currency, &o.Notes, &o.CreatedAt, &o.UpdatedAt) {
		return o, false, nil
	}
	if err := decode(items, &o.Items); err != nil {
		return o, true, fmt.Errorf("décodage lignes commande %s: %w", o.ID, err)
	}
	if err := decode(address, &o.ShippingAddress); err != nil {
		return o, true, fmt.Errorf("décodage adresse commande %s: %w", o.ID, err)
	}
	return o, true, nil
}

func (r *orderStore) Create(ctx context.Context, o models.Order) error {
	items, err := encode(o.Items)
	if err != nil {
		return err
	}
	address, err := encode(o.ShippingAddress)
	if err != nil {
		return err
	}
	batch := r.s.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`INSERT INTO orders (`+orderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.UserID, o.Email, items, address, o.PrescriptionID, o.PaymentMethod, o.PaymentIntentID,
		o.Status, o.Subtotal, o.Discount, o.Shipping, o.Total, o.Currency, o.Notes, o.CreatedAt, o.UpdatedAt)
	batch.Query(`INSERT INTO orders_by_user (user_id, order_id) VALUES (?, ?)`, o.UserID, o.ID)
	return r.s.ExecuteBatch(batch)
}

func (r *orderStore) Get(ctx context.Context, id gocql.UUID) (models.Order, error) {
	iter := r.s.Query(`SELECT `+orderColumns+` FROM orders WHERE order_id = ?`, id).WithContext(ctx).Iter()
	o, ok, err := r.scan(iter.Scan)
	if cerr := iter.Close(); cerr != nil {
		return models.Order{}, cerr
	}
	if err != nil {
		return models.Order{}, err
	}
	if !ok {
		return models.Order{}, store.ErrNotFound
	}
	return o, nil
}

func (r *orderStore) ListByUser(ctx context.Context, userID string) ([]models.Order, error) {
	iter := r.s.Query(`SELECT order_id FROM orders_by_user WHERE user_id = ?`, userID).WithContext(ctx).Iter()
	var (
		id  gocql.UUID
		ids []gocql.UUID
	)
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}

	orders := make([]models.Order, 0, len(ids))
	for _, id := range ids {
		o, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (r *orderStore) ListAll(ctx context.Context) ([]models.Order, error) {
	iter := r.s.Query(`SELECT ` + orderColumns + ` FROM orders`).WithContext(ctx).Iter()
	var orders []models.Order
	for {
		o, ok, err := r.scan(iter.Scan)
		if err != nil {
			iter.Close()
			return nil, err
		}
		if !ok {
			break
		}
		orders = append(orders, o)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders, nil
}

// UpdateStatus est une transaction légère (IF status = ?).
func (r *orderStore) UpdateStatus(ctx context.Context, id gocql.UUID, from, to string) error {
	existing := map[string]any{}
	applied, err := r.s.Query(`UPDATE orders SET status = ?, updated_at = ? WHERE order_id = ? IF status = ?`, to, time.Now(), id, from).
		WithContext(ctx).MapScanCAS(existing)
	if err != nil {
		return err
	}
	if !applied {
		return casFailure(existing, "status")
	}
	return nil
}

// casFailure distingue une ligne absente (la colonne testée n'est pas renvoyée)
// d'une condition qui ne tient plus.
func casFailure(existing map[string]any, column string) error {
	if v, ok := existing[column]; !ok || v == nil || v == "" {
		return store.ErrNotFound
	}
	return store.ErrConflict
}

// --- Ordonnances ---

const prescriptionColumns = `prescription_id, user_id, file_key, file_name, content_type, size, patient_name, notes,
	status, extraction, order_id, review_note, created_at, updated_at`

type prescriptionStore struct{ s *gocql.Session }

func (r *prescriptionStore) scan(scan func(...any) bool) (models.Prescription, bool, error) {
	var (
		p          models.Prescription
		extraction string
	)
	if !scan(&p.ID, &p.UserID, &p.FileKey, &p.FileName, &p.ContentType, &p.Size, &p.PatientName, &p.Notes,
		&p.Status, &extraction, &p.OrderID, &p.ReviewNote, &p.CreatedAt, &p.UpdatedAt) {
		return p, false, nil
	}
	if extraction != "" {
		p.Extraction = &models.PrescriptionExtraction{}
		if err := decode(extraction, p.Extraction); err != nil {
			return p, true, fmt.Errorf("décodage extraction %s: %w", p.ID, err)
		}
	}
	return p, true, nil
}

func (r *prescriptionStore) write(ctx context.Context, p models.Prescription) error {
	var extraction string
	if p.Extraction != nil {
		var err error
		if extraction, err = encode(p.Extraction); err != nil {
			return err
		}
	}
	return r.s.Query(`INSERT INTO prescriptions (`+prescriptionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.FileKey, p.FileName, p.ContentType, p.Size, p.PatientName, p.Notes,
		p.Status, extraction, p.OrderID, p.ReviewNote, p.CreatedAt, p.UpdatedAt).WithContext(ctx).Exec()
}

func (r *prescriptionStore) Create(ctx context.Context, p models.Prescription) error {
	return r.write(ctx, p)
}

func (r *prescriptionStore) Get(ctx context.Context, id gocql.UUID) (models.Prescription, error) {
	iter := r.s.Query(`SELECT `+prescriptionColumns+` FROM prescriptions WHERE prescription_id = ?`, id).WithContext(ctx).Iter()
	p, ok, err := r.scan(iter.Scan)
	if cerr := iter.Close(); cerr != nil {
		return models.Prescription{}, cerr
	}
	if err != nil {
		return models.Prescription{}, err
	}
	if !ok {
		return models.Prescription{}, store.ErrNotFound
	}
	return p, nil
}

func (r *prescriptionStore) ListByUser(ctx context.Context, userID string) ([]models.Prescription, error) {
	iter := r.s.Query(`SELECT `+prescriptionColumns+` FROM prescriptions WHERE user_id = ?`, userID).WithContext(ctx).Iter()
	var out []models.Prescription
	for {
		p, ok, err := r.scan(iter.Scan)
		if err != nil {
			iter.Close()
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, p)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *prescriptionStore) ListByStatus(ctx context.Context, status string) ([]models.Prescription, error) {
	iter := r.s.Query(`SELECT `+prescriptionColumns+` FROM prescriptions WHERE status = ?`, status).WithContext(ctx).Iter()
	var out []models.Prescription
	for {
		p, ok, err := r.scan(iter.Scan)
		if err != nil {
			iter.Close()
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, p)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *prescriptionStore) Delete(ctx context.Context, id gocql.UUID) error {
	existing := map[string]any{}
	applied, err := r.s.Query(`DELETE FROM prescriptions WHERE prescription_id = ? IF status != null AND order_id = null`, id).
		WithContext(ctx).MapScanCAS(existing)
	if err != nil {
		return err
	}
	if !applied {
		return casFailure(existing, "status")
	}
	return nil
}

// cas exécute une écriture conditionnelle; la condition porte toujours sur status.
func (r *prescriptionStore) cas(ctx context.Context, stmt string, args ...any) error {
	existing := map[string]any{}
	applied, err := r.s.Query(stmt, args...).WithContext(ctx).MapScanCAS(existing)
	if err != nil {
		return err
	}
	if !applied {
		return casFailure(existing, "status")
	}
	return nil
}

func (r *prescriptionStore) SetStatus(ctx context.Context, id gocql.UUID, from, to string, at time.Time) error {
	return r.cas(ctx, `UPDATE prescriptions SET status = ?, updated_at = ? WHERE prescription_id = ? IF status = ?`,
		to, at, id, from)
}

func (r *prescriptionStore) SetExtraction(ctx context.Context, id gocql.UUID, ex models.PrescriptionExtraction, at time.Time) error {
	extraction, err := encode(ex)
	if err != nil {
		return err
	}
	return r.cas(ctx, `UPDATE prescriptions SET status = ?, extraction = ?, updated_at = ? WHERE prescription_id = ? IF status = ?`,
		models.PrescriptionProcessed, extraction, at, id, models.PrescriptionProcessing)
}

func (r *prescriptionStore) SetReview(ctx context.Context, id gocql.UUID, from, to, note string, at time.Time) error {
	return r.cas(ctx, `UPDATE prescriptions SET status = ?, review_note = ?, updated_at = ? WHERE prescription_id = ? IF status = ?`,
		to, note, at, id, from)
}

func (r *prescriptionStore) ClaimForOrder(ctx context.Context, id, orderID gocql.UUID, at time.Time) error {
	return r.cas(ctx, `UPDATE prescriptions SET order_id = ?, updated_at = ? WHERE prescription_id = ?
		IF status IN (?, ?) AND order_id = null`,
		orderID, at, id, models.PrescriptionProcessed, models.PrescriptionVerified)
}

func (r *prescriptionStore) ReleaseOrder(ctx context.Context, id, orderID gocql.UUID, at time.Time) error {
	return r.cas(ctx, `UPDATE prescriptions SET order_id = null, updated_at = ? WHERE prescription_id = ? IF status != null AND order_id = ?`,
		at, id, orderID)
}

// --- Dons ---

const donationColumns = `donation_id, user_id, donor_name, phone, pickup_address, city, pincode, medicines, notes, status, created_at, updated_at`

type donationStore struct{ s *gocql.Session }

func (r *donationStore) list(ctx context.Context, q *gocql.Query) ([]models.Donation, error) {
	iter := q.WithContext(ctx).Iter()
	var (
		d         models.Donation
		medicines string
		out       []models.Donation
	)
	for iter.Scan(&d.ID, &d.UserID, &d.DonorName, &d.Phone, &d.PickupAddress, &d.City, &d.Pincode, &medicines, &d.Notes, &d.Status, &d.CreatedAt, &d.UpdatedAt) {
		if err := decode(medicines, &d.Medicines); err != nil {
			iter.Close()
			return nil, fmt.Errorf("décodage don %s: %w", d.ID, err)
		}
		out = append(out, d)
		d = models.Donation{}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *donationStore) Create(ctx context.Context, d models.Donation) error {
	medicines, err := encode(d.Medicines)
	if err != nil {
		return err
	}
	return r.s.Query(`INSERT INTO donations (`+donationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.UserID, d.DonorName, d.Phone, d.PickupAddress, d.City, d.Pincode, medicines, d.Notes, d.Status, d.CreatedAt, d.UpdatedAt).
		WithContext(ctx).Exec()
}

func (r *donationStore) Get(ctx context.Context, id gocql.UUID) (models.Donation, error) {
	out, err := r.list(ctx, r.s.Query(`SELECT `+donationColumns+` FROM donations WHERE donation_id = ?`, id))
	if err != nil {
		return models.Donation{}, err
	}
	if len(out) == 0 {
		return models.Donation{}, store.ErrNotFound
	}
	return out[0], nil
}

func (r *donationStore) ListByUser(ctx context.Context, userID string) ([]models.Donation, error) {
	return r.list(ctx, r.s.Query(`SELECT `+donationColumns+` FROM donations WHERE user_id = ?`, userID))
}

func (r *donationStore) ListAll(ctx context.Context) ([]models.Donation, error) {
	return r.list(ctx, r.s.Query(`SELECT `+donationColumns+` FROM donations`))
}

func (r *donationStore) UpdateStatus(ctx context.Context, id gocql.UUID, status string) error {
	applied, err := r.s.Query(`UPDATE donations SET status = ?, updated_at = ? WHERE donation_id = ? IF EXISTS`, status, time.Now(), id).
		WithContext(ctx).MapScanCAS(map[string]any{})
	if err != nil {
		return err
	}
	if !applied {
		return store.ErrNotFound
	}
	return nil
}
