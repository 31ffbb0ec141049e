// Package git lists changed files with go-git, for the converter's git filter.
package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/stackvity/diagram-converter/pkg/converter"
	libgit "github.com/stackvity/diagram-converter/pkg/converter/git"
)

// patchTimeout bounds the diff between a reference and HEAD.
const patchTimeout = 60 * time.Second

// GoGitClient implements converter.GitClient using go-git, so no git binary is needed.
type GoGitClient struct {
	logger *slog.Logger
}

var _ converter.GitClient = (*GoGitClient)(nil)

// NewGoGitClient creates a new GoGitClient.
func NewGoGitClient(loggerHandler slog.Handler) *GoGitClient {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	logger := slog.New(loggerHandler).With(slog.String("component", "gitClient"), slog.String("backend", "go-git"))
	return &GoGitClient{logger: logger}
}

func (c *GoGitClient) openRepo(repoPath string) (*git.Repository, string, error) {
	absRepoPath, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, "", libgit.Errorf("absolute path for '%s': %w", repoPath, err)
	}

	repo, err := git.PlainOpenWithOptions(absRepoPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, "", libgit.Errorf("repository not found at or above '%s': %w", absRepoPath, err)
		}
		return nil, "", libgit.Errorf("open repository at '%s': %w", absRepoPath, err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, "", libgit.Errorf("worktree for '%s': %w", absRepoPath, err)
	}
	return repo, worktree.Filesystem.Root(), nil
}

func (c *GoGitClient) resolveRevision(repo *git.Repository, refName string) (*plumbing.Hash, error) {
	hash, err := repo.ResolveRevision(plumbing.Revision(refName))
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) || errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, libgit.Errorf("invalid git reference '%s': %w", refName, err)
		}
		return nil, libgit.Errorf("could not resolve git reference '%s': %w", refName, err)
	}
	return hash, nil
}

// GetChangedFiles returns the absolute paths of files changed in the repository
// containing repoPath, sorted. GitDiffModeDiffOnly reports staged and unstaged
// changes to tracked files (untracked files are left out); GitDiffModeSince
// reports files that differ between ref and HEAD, including deletions.
func (c *GoGitClient) GetChangedFiles(repoPath string, mode converter.GitDiffMode, ref string) ([]string, error) {
	logArgs := []any{slog.String("repo", repoPath), slog.String("mode", string(mode)), slog.String("ref", ref)}

	repo, root, err := c.openRepo(repoPath)
	if err != nil {
		c.logger.Error("Failed to open repository", append(logArgs, slog.String("error", err.Error()))...)
		return nil, err
	}

	var relPaths []string
	switch mode {
	case converter.GitDiffModeDiffOnly:
		relPaths, err = c.worktreeChanges(repo)
	case converter.GitDiffModeSince:
		relPaths, err = c.changesSince(repo, ref)
	default:
		err = libgit.Errorf("unsupported git diff mode: %s", mode)
	}
	if err != nil {
		c.logger.Error("Failed to list changed files", append(logArgs, slog.String("error", err.Error()))...)
		return nil, err
	}

	files := make([]string, 0, len(relPaths))
	for _, rel := range relPaths {
		files = append(files, filepath.Join(root, filepath.FromSlash(rel)))
	}
	sort.Strings(files)
	c.logger.Debug("Changed files listed", append(logArgs, slog.Int("count", len(files)))...)
	return files, nil
}

func (c *GoGitClient) worktreeChanges(repo *git.Repository) ([]string, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, libgit.Errorf("worktree: %w", err)
	}
	status, err := worktree.Status()
	if err != nil {
		return nil, libgit.Errorf("status: %w", err)
	}

	var paths []string
	for path, fileStatus := range status {
		untracked := fileStatus.Staging == git.Untracked && fileStatus.Worktree == git.Untracked
		if untracked || (fileStatus.Staging == git.Unmodified && fileStatus.Worktree == git.Unmodified) {
			continue
		}
		c.logger.Debug("Changed in worktree", slog.String("path", path),
			slog.String("status", fmt.Sprintf("%c%c", fileStatus.Staging, fileStatus.Worktree)))
		paths = append(paths, path)
	}
	return paths, nil
}

func (c *GoGitClient) changesSince(repo *git.Repository, ref string) ([]string, error) {
	if ref == "" {
		return nil, libgit.Errorf("git diff mode 'since' requires a non-empty reference")
	}

	headRef, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			c.logger.Warn("HEAD not found, repository has no commits")
			return nil, nil
		}
		return nil, libgit.Errorf("HEAD reference: %w", err)
	}
	headCommit, err := repo.CommitObject(headRef.Hash())
	if err != nil {
		return nil, libgit.Errorf("HEAD commit: %w", err)
	}

	sinceHash, err := c.resolveRevision(repo, ref)
	if err != nil {
		return nil, err
	}
	sinceCommit, err := repo.CommitObject(*sinceHash)
	if err != nil {
		return nil, libgit.Errorf("commit for '%s': %w", ref, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), patchTimeout)
	defer cancel()
	patch, err := sinceCommit.PatchContext(ctx, headCommit)
	if err != nil {
		return nil, libgit.Errorf("diff between '%s' and HEAD: %w", ref, err)
	}

	seen := make(map[string]struct{})
	var paths []string
	for _, filePatch := range patch.FilePatches() {
		from, to := filePatch.Files()
		var path string
		switch {
		case to != nil:
			path = to.Path()
		case from != nil:
			path = from.Path()
		default:
			continue
		}
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}
		paths = append(paths, path)
	}
	return paths, nil
}
