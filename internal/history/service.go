// Package history keeps a git-backed revision log of context documents,
// one repository per privacy layer. Recording is best-effort: the document
// store logs and continues when a revision write fails, so history lags
// rather than blocks a save.
package history

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Commit is one recorded revision of a document.
type Commit struct {
	Hash    string
	Message string
	Author  string
	When    time.Time
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Record commits the document content at relPath inside the layer's
// repository, creating the repository on first use. An unchanged document
// is a no-op, not an error.
func (s *Service) Record(layerPath, relPath, content, author string) error {
	lock := s.layerLock(layerPath)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.ensureRepo(layerPath)
	if err != nil {
		return err
	}

	fullPath := filepath.Join(s.baseDir, layerPath, relPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("create document dir: %w", err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write document: %w", err)
	}

	return s.commit(repo, relPath, "Update "+relPath, author, false)
}

// Remove commits the deletion of relPath. A document that was never
// recorded is a no-op.
func (s *Service) Remove(layerPath, relPath, author string) error {
	lock := s.layerLock(layerPath)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(filepath.Join(s.baseDir, layerPath))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open layer repo: %w", err)
	}

	fullPath := filepath.Join(s.baseDir, layerPath, relPath)
	if _, err := os.Stat(fullPath); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("remove document: %w", err)
	}

	return s.commit(repo, relPath, "Delete "+relPath, author, false)
}

// History lists the revisions touching relPath, newest first.
func (s *Service) History(layerPath, relPath string, limit int) ([]Commit, error) {
	lock := s.layerLock(layerPath)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(filepath.Join(s.baseDir, layerPath))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []Commit{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open layer repo: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		return []Commit{}, nil
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash(), FileName: &relPath})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	commits := make([]Commit, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		commits = append(commits, Commit{
			Hash:    commitObj.Hash.String()[:7],
			Message: commitObj.Message,
			Author:  commitObj.Author.Name,
			When:    commitObj.Author.When,
		})
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return commits, nil
}

func (s *Service) ensureRepo(layerPath string) (*git.Repository, error) {
	path := filepath.Join(s.baseDir, layerPath)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open layer repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create layer repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init layer repo: %w", err)
	}
	return repo, nil
}

func (s *Service) commit(repo *git.Repository, relPath, message, author string, allowEmpty bool) error {
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if _, err := worktree.Add(relPath); err != nil {
		return fmt.Errorf("git add %s: %w", relPath, err)
	}

	_, err = worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: allowEmpty,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@substrate.local", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if errors.Is(err, git.ErrEmptyCommit) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("commit %s: %w", relPath, err)
	}
	return nil
}

func (s *Service) layerLock(layerPath string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[layerPath]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[layerPath] = lock
	return lock
}

func sanitizeEmail(input string) string {
	runes := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			runes = append(runes, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			runes = append(runes, '.')
		}
	}
	if len(runes) == 0 {
		return "user"
	}
	return string(runes)
}
