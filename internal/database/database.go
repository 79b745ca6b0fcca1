package database

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/gocql/gocql"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// --- Configuration ScyllaDB ---
type ScyllaKeyspaceConfig struct {
	Hosts       []string
	Keyspace    string
	Username    string
	Password    string
	SSLEnabled  bool
	CACertPath  string
	Timeout     time.Duration
	NumConns    int
	Consistency gocql.Consistency
}

type ScyllaManager struct {
	sessions map[string]*gocql.Session // keyspace → session
	configs  map[string]ScyllaKeyspaceConfig
	mu       sync.Mutex
}

// Noms logiques des keyspaces.
const (
	KeyspaceCatalog = "catalog"
	KeyspaceUsers   = "users"
	KeyspaceOrders  = "orders"
)

// --- Variables Globales ---
var (
	Scylla  *ScyllaManager
	Redis   *redis.Client
	Elastic *elasticsearch.Client
	MinIO   *minio.Client
)

// ConnectScylla initialise le gestionnaire de sessions et crée le schéma.
func ConnectScylla() error {
	Scylla = &ScyllaManager{
		sessions: make(map[string]*gocql.Session),
		configs:  loadScyllaConfigs(),
	}

	for _, name := range []string{KeyspaceCatalog, KeyspaceUsers, KeyspaceOrders} {
		session, err := Scylla.GetSession(name)
		if err != nil {
			return fmt.Errorf("échec initialisation keyspace %s: %w", name, err)
		}
		if err := CreateSchema(session, name); err != nil {
			return fmt.Errorf("échec création schéma %s: %w", name, err)
		}
	}
	return nil
}

// loadScyllaConfigs charge les configurations depuis .env
func loadScyllaConfigs() map[string]ScyllaKeyspaceConfig {
	configs := make(map[string]ScyllaKeyspaceConfig)

	hosts := strings.Split(os.Getenv("SCYLLA_HOSTS"), ",")
	sslEnabled := strings.ToLower(os.Getenv("SCYLLA_SSL_ENABLED")) == "true"
	caPath := os.Getenv("SCYLLA_SSL_CA_PATH")

	for name, prefix := range map[string]string{
		KeyspaceCatalog: "SCYLLA_KS_CATALOG",
		KeyspaceUsers:   "SCYLLA_KS_USERS",
		KeyspaceOrders:  "SCYLLA_KS_ORDERS",
	} {
		ks := os.Getenv(prefix + "_KEYSPACE")
		if ks == "" {
			ks = "pharmacie_" + name
		}
		configs[name] = ScyllaKeyspaceConfig{
			Hosts:       hosts,
			Keyspace:    ks,
			Username:    os.Getenv(prefix + "_ROLE"),
			Password:    os.Getenv(prefix + "_PASSWORD"),
			SSLEnabled:  sslEnabled,
			CACertPath:  caPath,
			Timeout:     5 * time.Second,
			NumConns:    10,
			Consistency: gocql.Quorum,
		}
	}
	return configs
}

func createScyllaCluster(config ScyllaKeyspaceConfig) (*gocql.ClusterConfig, error) {
	cluster := gocql.NewCluster(config.Hosts...)
	cluster.Keyspace = config.Keyspace
	cluster.Consistency = config.Consistency
	cluster.Timeout = config.Timeout
	cluster.NumConns = config.NumConns
	cluster.MaxWaitSchemaAgreement = 30 * time.Second
	cluster.ReconnectInterval = 1 * time.Second

	if config.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: config.Username,
			Password: config.Password,
		}
	}

	if config.SSLEnabled && config.CACertPath != "" {
		caCert, err := os.ReadFile(config.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("impossible de lire le certificat CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("impossible de parser le certificat CA")
		}
		cluster.SslOpts = &gocql.SslOptions{Config: &tls.Config{RootCAs: pool}}
	}

	cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.RoundRobinHostPolicy())
	return cluster, nil
}

// GetSession retourne une session pour un keyspace logique (catalog, users, orders).
func (sm *ScyllaManager) GetSession(name string) (*gocql.Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	config, exists := sm.configs[name]
	if !exists {
		return nil, fmt.Errorf("keyspace '%s' non configuré", name)
	}

	if session, exists := sm.sessions[name]; exists && !session.Closed() {
		return session, nil
	}

	if err := ensureKeyspace(config); err != nil {
		return nil, err
	}

	cluster, err := createScyllaCluster(config)
	if err != nil {
		return nil, fmt.Errorf("erreur configuration cluster pour %s: %w", name, err)
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("erreur création session pour %s: %w", name, err)
	}

	sm.sessions[name] = session
	log.Printf("✅ Nouvelle session ScyllaDB pour keyspace '%s'", config.Keyspace)
	return session, nil
}

// ensureKeyspace crée le keyspace avant d'ouvrir une session dessus.
func ensureKeyspace(config ScyllaKeyspaceConfig) error {
	bootstrap := config
	bootstrap.Keyspace = ""
	cluster, err := createScyllaCluster(bootstrap)
	if err != nil {
		return err
	}
	session, err := cluster.CreateSession()
	if err != nil {
		return fmt.Errorf("connexion ScyllaDB impossible: %w", err)
	}
	defer session.Close()

	stmt := fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}`, config.Keyspace)
	return session.Query(stmt).Exec()
}

// Session est un raccourci qui panique si le keyspace n'est pas ouvert: à
// n'appeler qu'après ConnectScylla.
func Session(name string) *gocql.Session {
	s, err := Scylla.GetSession(name)
	if err != nil {
		log.Fatalf("❌ Session ScyllaDB %s indisponible: %v", name, err)
	}
	return s
}

// CloseScylla ferme toutes les sessions ScyllaDB
func CloseScylla() {
	if Scylla == nil {
		return
	}
	Scylla.mu.Lock()
	defer Scylla.mu.Unlock()

	for name, session := range Scylla.sessions {
		session.Close()
		log.Printf("🔌 Session ScyllaDB fermée pour keyspace '%s'", name)
	}
}

// PingScylla vérifie qu'une requête triviale passe.
func PingScylla() error {
	if Scylla == nil {
		return fmt.Errorf("ScyllaDB non initialisé")
	}
	s, err := Scylla.GetSession(KeyspaceUsers)
	if err != nil {
		return err
	}
	return s.Query("SELECT now() FROM system.local").Exec()
}

// =============================================
// REDIS
// =============================================
func ConnectRedis(ctx context.Context) error {
	Redis = redis.NewClient(&redis.Options{
		Addr:         os.Getenv("REDIS_HOST"),
		Password:     os.Getenv("REDIS_PASSWORD"),
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := Redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("erreur connexion Redis: %w", err)
	}
	log.Println("✅ Connecté à Redis")
	return nil
}

// =============================================
// ELASTICSEARCH
// =============================================
func ConnectElastic() error {
	url := os.Getenv("ELASTIC_URL")
	if url == "" {
		log.Println("⚠️ ELASTIC_URL absent, recherche en repli sur la base")
		return nil
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
		Username:  os.Getenv("ELASTIC_USER"),
		Password:  os.Getenv("ELASTIC_PASSWORD"),
	})
	if err != nil {
		return fmt.Errorf("erreur création client Elasticsearch: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return fmt.Errorf("erreur connexion Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	Elastic = client
	log.Println("✅ Connecté à Elasticsearch")
	return nil
}

// =============================================
// MINIO
// =============================================
func ConnectMinIO(ctx context.Context, buckets ...string) error {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		log.Println("⚠️ MINIO_ENDPOINT absent, stockage fichiers en mémoire")
		return nil
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(os.Getenv("MINIO_ACCESS_KEY"), os.Getenv("MINIO_SECRET_KEY"), ""),
		Secure: os.Getenv("MINIO_USE_SSL") == "true",
	})
	if err != nil {
		return fmt.Errorf("erreur connexion MinIO: %w", err)
	}

	for _, bucket := range buckets {
		exists, err := client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("erreur vérification bucket %s: %w", bucket, err)
		}
		if exists {
			log.Println("🪣 Bucket MinIO déjà présent :", bucket)
			continue
		}
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("erreur création bucket %s: %w", bucket, err)
		}
		log.Println("🪣 Bucket créé :", bucket)
	}

	MinIO = client
	log.Println("✅ Connecté à MinIO :", endpoint)
	return nil
}
