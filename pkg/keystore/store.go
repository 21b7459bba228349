package keystore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrKeyNotFound = errors.New("keystore: no key for address")

// Store 按地址管理 keystore 文件: <dir>/<address>.json
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(address string) string {
	return filepath.Join(s.dir, filepath.Base(address)+".json")
}

func (s *Store) Save(k *EncryptedKeyJSON) error {
	if k.Address == "" {
		return errors.New("keystore: address is required")
	}
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return err
	}
	return k.SaveToFile(s.path(k.Address))
}

func (s *Store) Load(address string) (*EncryptedKeyJSON, error) {
	k, err := LoadFromFile(s.path(address))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w %s", ErrKeyNotFound, address)
	}
	return k, err
}

// List 返回所有已保存的地址
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), ".json"))
	}
	return out, nil
}
