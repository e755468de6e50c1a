package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"Soundy/logger"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// LocalStore serves media from <root>/<trackID>/<name>. An index of the directory is kept current
// with fsnotify, so files dropped in by ffmpeg become visible without a restart.
type LocalStore struct {
	root    string
	watcher *fsnotify.Watcher
	log     *zap.Logger

	mu    sync.RWMutex
	index map[string]struct{} // keys as trackID/name

	done chan struct{}
	wg   sync.WaitGroup
}

func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media dir %s: %w", root, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	s := &LocalStore{
		root:    root,
		watcher: watcher,
		log:     logger.Named("storage"),
		index:   make(map[string]struct{}),
		done:    make(chan struct{}),
	}
	if err := s.watchDir(root); err != nil {
		watcher.Close()
		return nil, err
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to read media dir %s: %w", root, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			s.addTrackDir(filepath.Join(root, entry.Name()))
		}
	}

	s.wg.Add(1)
	go s.watch()

	s.mu.RLock()
	logger.Info("[Storage] 本地媒体目录已索引", logger.String("root", root), logger.Int("files", len(s.index)))
	s.mu.RUnlock()
	return s, nil
}

func (s *LocalStore) watchDir(dir string) error {
	if err := s.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	return nil
}

// addTrackDir watches a track directory and indexes the files already in it.
func (s *LocalStore) addTrackDir(dir string) {
	if err := s.watchDir(dir); err != nil {
		s.log.Warn("[Storage] 监听目录失败", zap.Error(err))
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.log.Warn("[Storage] 读取目录失败", zap.String("dir", dir), zap.Error(err))
		return
	}

	trackID := filepath.Base(dir)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range entries {
		if !entry.IsDir() {
			s.index[trackID+"/"+entry.Name()] = struct{}{}
		}
	}
}

func (s *LocalStore) watch() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.apply(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("[Storage] 文件监听错误", zap.Error(err))
		}
	}
}

func (s *LocalStore) apply(event fsnotify.Event) {
	rel, err := filepath.Rel(s.root, event.Name)
	if err != nil {
		return
	}
	parent := filepath.Dir(rel)

	switch {
	case event.Op&fsnotify.Create != 0:
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if parent == "." {
				s.addTrackDir(event.Name)
			}
			return
		}
		if parent != "." && filepath.Dir(parent) == "." {
			s.mu.Lock()
			s.index[filepath.ToSlash(rel)] = struct{}{}
			s.mu.Unlock()
		}
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		key := filepath.ToSlash(rel)
		s.mu.Lock()
		delete(s.index, key)
		if parent == "." {
			// a whole track directory went away
			prefix := key + "/"
			for k := range s.index {
				if len(k) > len(prefix) && k[:len(prefix)] == prefix {
					delete(s.index, k)
				}
			}
		}
		s.mu.Unlock()
	}
}

func (s *LocalStore) has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[key]
	return ok
}

func (s *LocalStore) Get(_ context.Context, trackID, name string) ([]byte, string, error) {
	key, err := objectKey(trackID, name)
	if err != nil {
		return nil, "", err
	}
	if !s.has(key) {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(key)))
	if os.IsNotExist(err) {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, ContentType(name), nil
}

func (s *LocalStore) Put(_ context.Context, trackID, name string, data []byte) error {
	key, err := objectKey(trackID, name)
	if err != nil {
		return err
	}
	dir := filepath.Join(s.root, trackID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}

	s.mu.Lock()
	s.index[key] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *LocalStore) Close() error {
	close(s.done)
	err := s.watcher.Close()
	s.wg.Wait()
	return err
}
