package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dropDatabas3/janus/internal/util/atomicwrite"
)

var ErrNoActiveKey = errors.New("no_active_signing_key")

// keyRecord es la forma persistida de una clave de firma.
type keyRecord struct {
	KID        string    `json:"kid"`
	Alg        string    `json:"alg"` // siempre "EdDSA"
	PublicKey  string    `json:"public_key"`            // base64url
	PrivateKey string    `json:"private_key,omitempty"` // base64url (seed+pub)
	Status     string    `json:"status"`                // active | retiring
	NotBefore  time.Time `json:"not_before"`
}

type keyFile struct {
	Keys []keyRecord `json:"keys"`
}

// Keystore mantiene la clave Ed25519 activa (y opcionalmente una retiring
// durante rotación), persistida en un archivo JSON bajo dir.
type Keystore struct {
	path string

	mu       sync.RWMutex
	active   keyRecord
	retiring *keyRecord
	priv     ed25519.PrivateKey
	pub      ed25519.PublicKey
}

// GenerateEd25519 genera un par de claves nuevo.
func GenerateEd25519() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// OpenKeystore carga el keystore desde dir/signing-keys.json.
// Si no existe, genera una clave activa y la persiste (bootstrap).
func OpenKeystore(dir string) (*Keystore, error) {
	ks := &Keystore{path: filepath.Join(dir, "signing-keys.json")}

	b, err := os.ReadFile(ks.path)
	if errors.Is(err, os.ErrNotExist) {
		if err := ks.bootstrap(); err != nil {
			return nil, err
		}
		return ks, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keystore: read %s: %w", ks.path, err)
	}

	var kf keyFile
	if err := json.Unmarshal(b, &kf); err != nil {
		return nil, fmt.Errorf("keystore: parse %s: %w", ks.path, err)
	}
	for i := range kf.Keys {
		switch kf.Keys[i].Status {
		case "active":
			ks.active = kf.Keys[i]
		case "retiring":
			r := kf.Keys[i]
			ks.retiring = &r
		}
	}
	if ks.active.KID == "" {
		return nil, ErrNoActiveKey
	}
	if err := ks.decodeActive(); err != nil {
		return nil, err
	}
	return ks, nil
}

func (k *Keystore) bootstrap() error {
	pub, priv, err := GenerateEd25519()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	k.active = keyRecord{
		KID:        "boot-" + now.Format("20060102T150405Z"),
		Alg:        "EdDSA",
		PublicKey:  base64.RawURLEncoding.EncodeToString(pub),
		PrivateKey: base64.RawURLEncoding.EncodeToString(priv),
		Status:     "active",
		NotBefore:  now,
	}
	k.priv = priv
	k.pub = pub
	return k.persist()
}

func (k *Keystore) decodeActive() error {
	privB, err := base64.RawURLEncoding.DecodeString(k.active.PrivateKey)
	if err != nil || len(privB) != ed25519.PrivateKeySize {
		return fmt.Errorf("keystore: bad private key for kid %s", k.active.KID)
	}
	pubB, err := base64.RawURLEncoding.DecodeString(k.active.PublicKey)
	if err != nil || len(pubB) != ed25519.PublicKeySize {
		return fmt.Errorf("keystore: bad public key for kid %s", k.active.KID)
	}
	k.priv = ed25519.PrivateKey(privB)
	k.pub = ed25519.PublicKey(pubB)
	return nil
}

func (k *Keystore) persist() error {
	kf := keyFile{Keys: []keyRecord{k.active}}
	if k.retiring != nil {
		kf.Keys = append(kf.Keys, *k.retiring)
	}
	b, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return err
	}
	return atomicwrite.AtomicWriteFile(k.path, b, 0600)
}

// Active devuelve la clave activa.
func (k *Keystore) Active() (kid string, priv ed25519.PrivateKey, pub ed25519.PublicKey, err error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.active.KID == "" || len(k.priv) == 0 {
		return "", nil, nil, ErrNoActiveKey
	}
	return k.active.KID, k.priv, k.pub, nil
}

// PublicKeyByKID devuelve la pubkey para un KID (active o retiring).
func (k *Keystore) PublicKeyByKID(kid string) (ed25519.PublicKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if kid == k.active.KID {
		return k.pub, nil
	}
	if k.retiring != nil && kid == k.retiring.KID {
		b, err := base64.RawURLEncoding.DecodeString(k.retiring.PublicKey)
		if err != nil {
			return nil, err
		}
		return ed25519.PublicKey(b), nil
	}
	return nil, fmt.Errorf("keystore: unknown kid %q", kid)
}

// Rotate genera una clave nueva; la activa pasa a retiring (su pubkey sigue
// publicada en el JWKS hasta la próxima rotación).
func (k *Keystore) Rotate() (newKID string, err error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	pub, priv, err := GenerateEd25519()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()

	old := k.active
	old.Status = "retiring"
	old.PrivateKey = "" // la privada retirada no se necesita más
	k.retiring = &old

	k.active = keyRecord{
		KID:        "rot-" + now.Format("20060102T150405Z"),
		Alg:        "EdDSA",
		PublicKey:  base64.RawURLEncoding.EncodeToString(pub),
		PrivateKey: base64.RawURLEncoding.EncodeToString(priv),
		Status:     "active",
		NotBefore:  now,
	}
	k.priv = priv
	k.pub = pub

	if err := k.persist(); err != nil {
		return "", err
	}
	return k.active.KID, nil
}

// JWK es una clave pública en formato JWKS.
type JWK struct {
	KID string `json:"kid"`
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	X   string `json:"x"`
}

// JWKS es el documento expuesto en /.well-known/jwks.json.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWKSJSON serializa las claves publicables (active + retiring).
func (k *Keystore) JWKSJSON() ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	recs := []keyRecord{k.active}
	if k.retiring != nil {
		recs = append(recs, *k.retiring)
	}

	out := JWKS{Keys: make([]JWK, 0, len(recs))}
	for _, r := range recs {
		out.Keys = append(out.Keys, JWK{
			KID: r.KID,
			Kty: "OKP",
			Crv: "Ed25519",
			Alg: "EdDSA",
			Use: "sig",
			X:   r.PublicKey,
		})
	}
	return json.Marshal(out)
}
