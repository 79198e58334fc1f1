// ABOUTME: End-to-end encryption for smellybot in encrypted rooms
// ABOUTME: Wraps the mautrix crypto helper with a per-account SQLite store

package main

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/crypto/cryptohelper"
	"maunium.net/go/mautrix/event"
)

// CryptoManager owns the Olm machine used for encrypted rooms.
type CryptoManager struct {
	helper *cryptohelper.CryptoHelper
	logger *slog.Logger
}

// SetupCrypto enables E2EE on client, storing keys under dataDir. A stale
// store left behind by a previous device is reset. The recovery key, when
// given, cross-signs the device; failing that only logs.
func SetupCrypto(ctx context.Context, client *mautrix.Client, recoveryKey string, dataDir string, logger *slog.Logger) (*CryptoManager, error) {
	logger = logger.With("component", "crypto")

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	userID := client.UserID.String()
	dbPath := filepath.Join(dataDir, fmt.Sprintf("crypto-%s.db", accountSlug(userID)))
	logger.Info("setting up encryption", "db", dbPath)

	if stale, err := storedDeviceDiffers(dbPath, client.DeviceID.String()); err != nil {
		logger.Debug("could not read stored device id", "error", err)
	} else if stale {
		logger.Warn("crypto store belongs to another device, resetting it")
		for _, suffix := range []string{"", "-wal", "-shm"} {
			if err := os.Remove(dbPath + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("removing old crypto store: %w", err)
			}
		}
	}

	helper, err := cryptohelper.NewCryptoHelper(client, storeKey(userID), dbPath)
	if err != nil {
		return nil, fmt.Errorf("creating crypto helper: %w", err)
	}
	if err := helper.Init(ctx); err != nil {
		return nil, fmt.Errorf("initializing crypto helper: %w", err)
	}
	client.Crypto = helper

	if recoveryKey != "" {
		if err := helper.Machine().VerifyWithRecoveryKey(ctx, recoveryKey); err != nil {
			logger.Warn("failed to verify with recovery key", "error", err)
		} else {
			logger.Info("device verified with recovery key")
		}
	}

	return &CryptoManager{helper: helper, logger: logger}, nil
}

// Decrypt decrypts an m.room.encrypted event fetched outside the sync loop.
func (cm *CryptoManager) Decrypt(ctx context.Context, evt *event.Event) (*event.Event, error) {
	return cm.helper.Decrypt(ctx, evt)
}

// Close releases the crypto store.
func (cm *CryptoManager) Close() error {
	if cm.helper != nil {
		return cm.helper.Close()
	}
	return nil
}

// accountSlug converts a Matrix user ID to a filesystem-safe string.
// Example: @smellybot:matrix.org -> smellybot_matrix.org
func accountSlug(userID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		case r == ':':
			return '_'
		default:
			return -1
		}
	}, strings.TrimPrefix(userID, "@"))
}

// storeKey derives the pickle key for the crypto store from the account.
func storeKey(userID string) []byte {
	h := sha256.Sum256([]byte("smellybot-crypto:" + userID))
	return h[:]
}

// storedDeviceDiffers reports whether an existing crypto store at dbPath holds
// keys for a device other than deviceID.
func storedDeviceDiffers(dbPath, deviceID string) (bool, error) {
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return false, err
	}
	defer db.Close()

	var stored string
	err = db.QueryRow("SELECT device_id FROM crypto_account LIMIT 1").Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return stored != deviceID, nil
}
