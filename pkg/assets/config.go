package assets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opencomply/comply-server/pkg/apierror"
	"github.com/opencomply/comply-server/pkg/tenancy"
)

// TokenKeyEnv names the environment variable holding the key material for
// API token encryption at rest.
const TokenKeyEnv = "COMPLY_ASSETS_TOKEN_KEY"

// SyncConfig is the persisted per-tenant JIRA Assets connection and sync
// configuration. The API token is stored AES-GCM encrypted.
type SyncConfig struct {
	ID                  string     `gorm:"primaryKey;column:id;type:varchar(36)"`
	Tenant              string     `gorm:"column:tenant;uniqueIndex:idx_sync_config_tenant;not null"`
	BaseURL             string     `gorm:"column:base_url;not null"`
	WorkspaceID         string     `gorm:"column:workspace_id"`
	Email               string     `gorm:"column:email"`
	TokenCiphertext     string     `gorm:"column:token_ciphertext;not null"`
	Deployment          Deployment `gorm:"column:deployment_type;not null;default:cloud"`
	SchemaID            string     `gorm:"column:schema_id"`
	ObjectTypeID        string     `gorm:"column:object_type_id"`
	SyncEnabled         bool       `gorm:"column:sync_enabled;not null;default:false"`
	SyncIntervalMinutes int        `gorm:"column:sync_interval_minutes;not null;default:60"`
	LastSyncAt          *time.Time `gorm:"column:last_sync_at"`
	LastSyncStatus      string     `gorm:"column:last_sync_status"`
	LastSyncMessage     string     `gorm:"column:last_sync_message"`
	CreatedAt           time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (SyncConfig) TableName() string { return "asset_sync_configs" }

// TokenCipher encrypts and decrypts the stored API token with AES-GCM.
// The key is derived from the configured key material with SHA-256.
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher creates a TokenCipher from key material.
func NewTokenCipher(keyMaterial string) (*TokenCipher, error) {
	if keyMaterial == "" {
		return nil, fmt.Errorf("token encryption key is empty (set %s)", TokenKeyEnv)
	}
	key := sha256.Sum256([]byte(keyMaterial))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &TokenCipher{aead: aead}, nil
}

// NewTokenCipherFromEnv creates a TokenCipher from COMPLY_ASSETS_TOKEN_KEY.
func NewTokenCipherFromEnv() (*TokenCipher, error) {
	return NewTokenCipher(os.Getenv(TokenKeyEnv))
}

// Encrypt seals a plaintext token, base64-encoding nonce and ciphertext.
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a sealed token produced by Encrypt.
func (c *TokenCipher) Decrypt(ciphertext string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode token ciphertext: %w", err)
	}
	if len(sealed) < c.aead.NonceSize() {
		return "", fmt.Errorf("token ciphertext is truncated")
	}
	nonce, data := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, data, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt token: %w", err)
	}
	return string(plain), nil
}

// ConfigStore provides database operations for sync configurations.
type ConfigStore struct {
	db     *gorm.DB
	cipher *TokenCipher
}

// NewConfigStore creates a new ConfigStore.
func NewConfigStore(db *gorm.DB, cipher *TokenCipher) *ConfigStore {
	return &ConfigStore{db: db, cipher: cipher}
}

// AutoMigrate creates or updates the sync config table.
func (s *ConfigStore) AutoMigrate() error {
	return s.db.AutoMigrate(&SyncConfig{})
}

// Get retrieves the tenant's sync configuration. Returns NotFoundError if
// none has been saved.
func (s *ConfigStore) Get(ctx context.Context, tenant tenancy.TenantID) (*SyncConfig, error) {
	var cfg SyncConfig
	err := s.db.WithContext(ctx).
		Where("tenant = ?", tenant.String()).
		First(&cfg).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apierror.NewNotFound("sync config", tenant.String())
		}
		return nil, fmt.Errorf("get sync config: %w", err)
	}
	return &cfg, nil
}

// Save creates or replaces the tenant's sync configuration, encrypting the
// plaintext token. An empty plainToken keeps the stored ciphertext.
func (s *ConfigStore) Save(ctx context.Context, tenant tenancy.TenantID, cfg *SyncConfig, plainToken string) error {
	if cfg.BaseURL == "" {
		return apierror.NewValidation("base_url is required")
	}
	if cfg.Deployment != DeploymentCloud && cfg.Deployment != DeploymentDatacenter {
		return apierror.NewValidation(fmt.Sprintf("deployment_type must be %q or %q", DeploymentCloud, DeploymentDatacenter))
	}

	existing, err := s.Get(ctx, tenant)
	if err != nil && !apierror.IsNotFound(err) {
		return err
	}

	if plainToken != "" {
		sealed, err := s.cipher.Encrypt(plainToken)
		if err != nil {
			return err
		}
		cfg.TokenCiphertext = sealed
	} else if existing != nil {
		cfg.TokenCiphertext = existing.TokenCiphertext
	} else {
		return apierror.NewValidation("api_token is required for a new configuration")
	}

	cfg.Tenant = tenant.String()
	if existing != nil {
		cfg.ID = existing.ID
		cfg.CreatedAt = existing.CreatedAt
		if err := s.db.WithContext(ctx).Save(cfg).Error; err != nil {
			return fmt.Errorf("update sync config: %w", err)
		}
		return nil
	}

	cfg.ID = uuid.New().String()
	if err := s.db.WithContext(ctx).Create(cfg).Error; err != nil {
		return fmt.Errorf("create sync config: %w", err)
	}
	return nil
}

// ClientConfig decrypts the token and assembles the client configuration.
func (s *ConfigStore) ClientConfig(cfg *SyncConfig) (ClientConfig, error) {
	token, err := s.cipher.Decrypt(cfg.TokenCiphertext)
	if err != nil {
		return ClientConfig{}, err
	}
	return ClientConfig{
		BaseURL:     cfg.BaseURL,
		WorkspaceID: cfg.WorkspaceID,
		Email:       cfg.Email,
		APIToken:    token,
		Deployment:  cfg.Deployment,
	}, nil
}

// RecordOutcome mirrors a finished sync onto the config row for quick UI
// polling.
func (s *ConfigStore) RecordOutcome(ctx context.Context, tenant tenancy.TenantID, status, message string, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&SyncConfig{}).
		Where("tenant = ?", tenant.String()).
		Updates(map[string]any{
			"last_sync_at":      at,
			"last_sync_status":  status,
			"last_sync_message": message,
		}).Error
	if err != nil {
		return fmt.Errorf("record sync outcome: %w", err)
	}
	return nil
}

// ListSyncEnabled returns every tenant configuration with scheduling
// enabled, for the interval enqueuer.
func (s *ConfigStore) ListSyncEnabled(ctx context.Context) ([]SyncConfig, error) {
	var configs []SyncConfig
	err := s.db.WithContext(ctx).
		Where("sync_enabled = ?", true).
		Find(&configs).Error
	if err != nil {
		return nil, fmt.Errorf("list sync-enabled configs: %w", err)
	}
	return configs, nil
}
