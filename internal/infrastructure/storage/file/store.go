package filestore

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/thanhpk/randstr"

	"github.com/blockwatch-network/blockwatch-daemon/internal/core/domain"
)

// envelope wraps every persisted document with the schema version so a
// reader can refuse documents it does not understand instead of silently
// misinterpreting fields.
type envelope struct {
	Version   string          `json:"cache_version"`
	UpdatedAt int64           `json:"updated_at"`
	Data      json.RawMessage `json:"data"`
}

// cacheStore implements domain.CacheStore on top of plain files, one per
// cache type. Writes are serialized by a mutex and made visible atomically
// by writing to a temporary file and renaming it over the target. When a
// passphrase is available documents are encrypted at rest; otherwise the
// store degrades to plaintext with a one-time warning.
type cacheStore struct {
	datadir string
	cipher  *cipherBox

	mtx sync.Mutex
}

// NewCacheStore returns a domain.CacheStore persisting documents under
// datadir. passphraseFile may be empty or missing; in that case documents
// are stored in plaintext.
func NewCacheStore(datadir, passphraseFile string) (domain.CacheStore, error) {
	if err := os.MkdirAll(datadir, 0700); err != nil {
		return nil, fmt.Errorf("creating cache datadir: %w", err)
	}

	store := &cacheStore{datadir: datadir}

	if len(passphraseFile) > 0 {
		passphrase, err := ioutil.ReadFile(passphraseFile)
		if err == nil && len(passphrase) > 0 {
			store.cipher = newCipherBox(passphrase)
		}
	}
	if store.cipher == nil {
		log.Warn(
			"cache encryption key material unavailable, storing documents in plaintext",
		)
	}

	return store, nil
}

func (s *cacheStore) Get(cacheType string, doc interface{}) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	buf, err := s.readDocument(s.path(cacheType))
	if os.IsNotExist(err) {
		return domain.ErrCacheNotFound
	}
	if err == nil {
		err = s.unmarshalEnvelope(buf, doc)
	}
	if err == nil {
		return nil
	}
	if err == domain.ErrCacheVersionUnknown {
		log.Warnf(
			"cache %s carries an unknown version, reinitializing", cacheType,
		)
		return domain.ErrCacheNotFound
	}

	// The document is unreadable. Fall back to the last known-good backup
	// before giving up and forcing a full resync.
	log.WithError(err).Warnf(
		"cache %s is corrupt, falling back to last known-good backup", cacheType,
	)
	buf, bakErr := s.readDocument(s.bakPath(cacheType))
	if bakErr == nil {
		if err := s.unmarshalEnvelope(buf, doc); err == nil {
			return nil
		}
	}

	log.Warnf("no usable backup for cache %s, reinitializing", cacheType)
	return domain.ErrCacheNotFound
}

func (s *cacheStore) Put(cacheType string, doc interface{}) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling cache %s: %w", cacheType, err)
	}
	buf, err := json.Marshal(envelope{
		Version:   domain.CacheVersion,
		UpdatedAt: time.Now().Unix(),
		Data:      data,
	})
	if err != nil {
		return err
	}

	if s.cipher != nil {
		if buf, err = s.cipher.seal(buf); err != nil {
			return fmt.Errorf("encrypting cache %s: %w", cacheType, err)
		}
	}

	target := s.path(cacheType)

	// Keep the previous good document around as backup before replacing it.
	if _, err := os.Stat(target); err == nil {
		if buf, err := ioutil.ReadFile(target); err == nil {
			s.writeAtomic(s.bakPath(cacheType), buf)
		}
	}

	return s.writeAtomic(target, buf)
}

func (s *cacheStore) Close() error {
	return nil
}

// writeAtomic guarantees no partially written document is ever visible to a
// reader: the content lands in a temporary file first and is renamed over
// the target only once fully flushed.
func (s *cacheStore) writeAtomic(target string, buf []byte) error {
	tmp := fmt.Sprintf("%s.%s.tmp", target, randstr.Hex(8))

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, target)
}

func (s *cacheStore) readDocument(path string) ([]byte, error) {
	buf, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if isEncrypted(buf) {
		if s.cipher == nil {
			return nil, fmt.Errorf(
				"document is encrypted but no key material is available",
			)
		}
		return s.cipher.open(buf)
	}
	return buf, nil
}

func (s *cacheStore) unmarshalEnvelope(buf []byte, doc interface{}) error {
	env := envelope{}
	if err := json.Unmarshal(buf, &env); err != nil {
		return fmt.Errorf("invalid cache document: %s", err)
	}
	if env.Version != domain.CacheVersion {
		return domain.ErrCacheVersionUnknown
	}
	if err := json.Unmarshal(env.Data, doc); err != nil {
		return fmt.Errorf("invalid cache payload: %s", err)
	}
	return nil
}

func (s *cacheStore) path(cacheType string) string {
	return filepath.Join(s.datadir, fmt.Sprintf("%s.json", cacheType))
}

func (s *cacheStore) bakPath(cacheType string) string {
	return filepath.Join(s.datadir, fmt.Sprintf("%s.json.bak", cacheType))
}
