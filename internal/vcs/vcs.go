package vcs

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
)

// shortHashLength matches `git rev-parse --short`.
const shortHashLength = 7

var (
	// ErrNotRepository is returned when no git repository encloses the path.
	ErrNotRepository = errors.New("not inside a git repository")
	// ErrNoCommits is returned for a repository without a HEAD commit.
	ErrNoCommits = errors.New("repository has no commits")
)

// Revision identifies the checked-out source a release is built from.
type Revision struct {
	// Commit is the full HEAD hash.
	Commit string
	// Short is the abbreviated hash used for stamping.
	Short string
	// Branch is the short branch name, empty for a detached HEAD.
	Branch string
	// Dirty reports uncommitted changes in the worktree.
	Dirty bool
}

// Label returns the short hash, suffixed with "-dirty" for modified worktrees.
func (r Revision) Label() string {
	if r.Dirty {
		return r.Short + "-dirty"
	}

	return r.Short
}

// Describe opens the repository enclosing path and reports its HEAD.
func Describe(path string) (Revision, error) {
	repo, err := openEnclosing(path)
	if err != nil {
		return Revision{}, err
	}

	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return Revision{}, ErrNoCommits
	} else if err != nil {
		return Revision{}, fmt.Errorf("resolve HEAD: %w", err)
	}

	hash := head.Hash().String()
	rev := Revision{
		Commit: hash,
		Short:  hash[:min(shortHashLength, len(hash))],
	}

	if head.Name().IsBranch() {
		rev.Branch = head.Name().Short()
	}

	worktree, err := repo.Worktree()
	if err != nil {
		// Bare repositories have no worktree to be dirty.
		return rev, nil //nolint:nilerr // Worktree-less repositories are clean by definition.
	}

	status, err := worktree.Status()
	if err != nil {
		return Revision{}, fmt.Errorf("worktree status: %w", err)
	}

	rev.Dirty = !status.IsClean()

	return rev, nil
}

// openEnclosing opens the repository containing path, searching parent directories.
func openEnclosing(path string) (*git.Repository, error) {
	dir, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%s: %w", dir, ErrNotRepository)
	} else if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", dir, err)
	}

	return repo, nil
}
