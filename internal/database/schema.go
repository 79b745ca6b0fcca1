package database

import (
	"fmt"

	"github.com/gocql/gocql"
)

var schemas = map[string][]string{
	KeyspaceCatalog: {
		`CREATE TABLE IF NOT EXISTS products (
			product_id uuid PRIMARY KEY,
			name text, description text, composition text, manufacturer text,
			price double, mrp double, stock int, category_id uuid,
			image_urls list<text>, tags list<text>,
			requires_prescription boolean, is_active boolean,
			created_at timestamp, updated_at timestamp)`,
		`CREATE TABLE IF NOT EXISTS products_by_category (
			category_id uuid, product_id uuid,
			PRIMARY KEY (category_id, product_id))`,
		`CREATE TABLE IF NOT EXISTS categories (
			category_id uuid PRIMARY KEY,
			name text, slug text, description text, image_url text, created_at timestamp)`,
		`CREATE TABLE IF NOT EXISTS medicines (
			medicine_id uuid PRIMARY KEY,
			name text, composition text, manufacturer text, schedule text, created_at timestamp)`,
	},
	KeyspaceUsers: {
		`CREATE TABLE IF NOT EXISTS users (
			user_id text PRIMARY KEY,
			email text, password text, name text, role text,
			provider text, provider_id text, created_at timestamp)`,
		`CREATE TABLE IF NOT EXISTS users_by_email (email text PRIMARY KEY, user_id text)`,
		`CREATE TABLE IF NOT EXISTS users_by_provider (
			provider text, provider_id text, user_id text,
			PRIMARY KEY ((provider, provider_id)))`,
		`CREATE TABLE IF NOT EXISTS addresses (
			user_id text, address_id timeuuid,
			full_name text, phone text, line1 text, line2 text, city text, state text,
			pincode text, country text, label text, is_default boolean, created_at timestamp,
			PRIMARY KEY (user_id, address_id))`,
		`CREATE TABLE IF NOT EXISTS profiles (
			user_id text PRIMARY KEY,
			full_name text, phone text, date_of_birth text, gender text,
			avatar_url text, updated_at timestamp)`,
	},
	KeyspaceOrders: {
		`CREATE TABLE IF NOT EXISTS orders (
			order_id timeuuid PRIMARY KEY,
			user_id text, email text, items text, address text, prescription_id uuid,
			payment_method text, payment_intent_id text, status text,
			subtotal double, discount double, shipping double, total double,
			currency text, notes text, created_at timestamp, updated_at timestamp)`,
		`CREATE TABLE IF NOT EXISTS orders_by_user (
			user_id text, order_id timeuuid,
			PRIMARY KEY (user_id, order_id)) WITH CLUSTERING ORDER BY (order_id DESC)`,
		`CREATE TABLE IF NOT EXISTS prescriptions (
			prescription_id timeuuid PRIMARY KEY,
			user_id text, file_key text, file_name text, content_type text, size bigint,
			patient_name text, notes text, status text, extraction text,
			order_id uuid, review_note text, created_at timestamp, updated_at timestamp)`,
		`CREATE INDEX IF NOT EXISTS ON prescriptions (user_id)`,
		`CREATE INDEX IF NOT EXISTS ON prescriptions (status)`,
		`CREATE TABLE IF NOT EXISTS donations (
			donation_id timeuuid PRIMARY KEY,
			user_id text, donor_name text, phone text, pickup_address text,
			city text, pincode text, medicines text, notes text, status text,
			created_at timestamp, updated_at timestamp)`,
		`CREATE INDEX IF NOT EXISTS ON donations (user_id)`,
	},
}

// CreateSchema crée les tables du keyspace logique name.
func CreateSchema(session *gocql.Session, name string) error {
	stmts, ok := schemas[name]
	if !ok {
		return fmt.Errorf("aucun schéma pour %s", name)
	}
	for _, stmt := range stmts {
		if err := session.Query(stmt).Exec(); err != nil {
			return err
		}
	}
	return nil
}
