package publisher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/maheshrc27/autopost/internal/instagram"
	"github.com/maheshrc27/autopost/pkg/utils"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// FileSessionStore keeps one <username>_session.json per account, sealed
// with AES-GCM when a key is set.
type FileSessionStore struct {
	dir string
	key []byte
}

var _ SessionStore = (*FileSessionStore)(nil)

func NewFileSessionStore(dir string, key []byte) *FileSessionStore {
	return &FileSessionStore{dir: dir, key: key}
}

func (s *FileSessionStore) Path(username string) string {
	return filepath.Join(s.dir, unsafeFileChars.ReplaceAllString(username, "_")+"_session.json")
}

func (s *FileSessionStore) Load(username string) (*instagram.Session, error) {
	data, err := os.ReadFile(s.Path(username))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading session: %w", err)
	}

	if len(s.key) > 0 {
		data, err = utils.DecryptBytes(string(data), s.key)
		if err != nil {
			return nil, fmt.Errorf("decrypting session: %w", err)
		}
	}
	return instagram.UnmarshalSession(data)
}

// Save writes through a temp file and rename so a crash never leaves a
// truncated session behind.
func (s *FileSessionStore) Save(sess *instagram.Session) error {
	if sess == nil {
		return errors.New("nil session")
	}
	data, err := sess.Marshal()
	if err != nil {
		return err
	}
	if len(s.key) > 0 {
		sealed, err := utils.Encrypt(data, s.key)
		if err != nil {
			return fmt.Errorf("encrypting session: %w", err)
		}
		data = []byte(sealed)
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating sessions directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".session-*")
	if err != nil {
		return fmt.Errorf("creating temp session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing session: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing session: %w", err)
	}
	return os.Rename(tmp.Name(), s.Path(sess.Username))
}
