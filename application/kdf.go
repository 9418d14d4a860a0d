package application

import "time"

// KeyDeriver derives per-layer and per-session keys via HKDF-SHA256.
type KeyDeriver interface {
	DeriveLayerKey(master []byte, layerIndex, totalLayers int) ([]byte, error)
	DeriveSessionMasterKey(sharedSecret, sessionID []byte, context string, timestamp time.Time) ([]byte, error)
}
