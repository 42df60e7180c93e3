package sources

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-enry/go-enry/v2"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/samber/mo"
	giturls "github.com/whilp/git-urls"

	"github.com/mystery000/Chatjet-sub000/internal/core/train"
	"github.com/mystery000/Chatjet-sub000/internal/core/train/parse"
)

// gitClient は Git リポジトリの取得とツリー読み出しを提供する
type gitClient struct {
	cloneBaseDir string
	sshKeyPath   string
	sshPassword  string
}

// urlToDirectoryName は Git URL をクローン先ディレクトリ名に変換する
// 例: git@github.com:user/repo.git -> github.com/user/repo
func (c *gitClient) urlToDirectoryName(gitURL string) (string, error) {
	u, err := giturls.Parse(gitURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse git URL: %w", err)
	}

	hostname := u.Hostname()
	if hostname == "" {
		hostname = u.Host
	}

	path := strings.TrimPrefix(u.Path, "/")
	path = strings.TrimSuffix(path, ".git")

	return filepath.Join(hostname, path), nil
}

// listFiles はリポジトリを最新化し、指定ブランチのツリーを FileList として返す
func (c *gitClient) listFiles(ctx context.Context, data train.GitRepoData) (train.FileList, error) {
	dirName, err := c.urlToDirectoryName(data.URL)
	if err != nil {
		return train.FileList{}, err
	}

	repoPath := filepath.Join(c.cloneBaseDir, dirName)
	if err := c.cloneOrPull(ctx, data.URL, repoPath, data.Branch); err != nil {
		return train.FileList{}, err
	}

	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return train.FileList{}, fmt.Errorf("failed to open repository: %w", err)
	}

	hash, err := c.resolveRef(repo, data.Branch)
	if err != nil {
		return train.FileList{}, err
	}

	commit, err := repo.CommitObject(hash)
	if err != nil {
		return train.FileList{}, fmt.Errorf("failed to get commit object: %w", err)
	}

	tree, err := commit.Tree()
	if err != nil {
		return train.FileList{}, fmt.Errorf("failed to get tree: %w", err)
	}

	var paths []string
	err = tree.Files().ForEach(func(f *object.File) error {
		paths = append(paths, f.Name)
		return nil
	})
	if err != nil {
		return train.FileList{}, fmt.Errorf("failed to iterate files: %w", err)
	}

	return train.FileList{
		Count: len(paths),
		PathFor: func(i int) string {
			return paths[i]
		},
		ContentFor: func(_ context.Context, i int) (mo.Option[parse.RawDocument], error) {
			file, err := tree.File(paths[i])
			if err != nil {
				return mo.None[parse.RawDocument](), fmt.Errorf("failed to get file %s: %w", paths[i], err)
			}
			content, err := file.Contents()
			if err != nil {
				return mo.None[parse.RawDocument](), fmt.Errorf("failed to read file contents: %w", err)
			}
			if enry.IsBinary([]byte(content)) {
				return mo.None[parse.RawDocument](), nil
			}
			return mo.Some(parse.RawDocument{
				Path:    paths[i],
				Name:    filepath.Base(paths[i]),
				Content: content,
			}), nil
		},
	}, nil
}

// cloneOrPull はリポジトリが存在しない場合はクローン、存在する場合は pull する
func (c *gitClient) cloneOrPull(ctx context.Context, url, destDir, ref string) error {
	gitDir := filepath.Join(destDir, ".git")
	if _, err := os.Stat(gitDir); os.IsNotExist(err) {
		return c.clone(ctx, url, destDir)
	}
	return c.pull(ctx, destDir, ref)
}

func (c *gitClient) clone(ctx context.Context, url, destDir string) error {
	auth, err := c.getSSHAuth()
	if err != nil {
		return fmt.Errorf("failed to setup SSH auth: %w", err)
	}

	_, err = git.PlainCloneContext(ctx, destDir, false, &git.CloneOptions{
		URL:  url,
		Auth: auth,
	})
	if err != nil {
		return fmt.Errorf("failed to clone repository: %w", err)
	}
	return nil
}

func (c *gitClient) pull(ctx context.Context, repoPath, ref string) error {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return fmt.Errorf("failed to open repository: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	auth, err := c.getSSHAuth()
	if err != nil {
		return fmt.Errorf("failed to setup SSH auth: %w", err)
	}

	remote, err := repo.Remote("origin")
	if err != nil {
		return fmt.Errorf("failed to get remote: %w", err)
	}

	err = remote.FetchContext(ctx, &git.FetchOptions{Auth: auth})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return fmt.Errorf("failed to fetch: %w", err)
	}

	if ref != "" {
		err = worktree.Checkout(&git.CheckoutOptions{
			Branch: plumbing.NewRemoteReferenceName("origin", ref),
			Force:  true,
		})
		if err != nil {
			return fmt.Errorf("failed to checkout: %w", err)
		}
	}
	return nil
}

func (c *gitClient) getSSHAuth() (*ssh.PublicKeys, error) {
	if c.sshKeyPath == "" {
		return nil, nil
	}

	if _, err := os.Stat(c.sshKeyPath); os.IsNotExist(err) {
		return nil, nil
	}

	auth, err := ssh.NewPublicKeysFromFile("git", c.sshKeyPath, c.sshPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to load SSH key: %w", err)
	}
	return auth, nil
}

func (c *gitClient) resolveRef(repo *git.Repository, ref string) (plumbing.Hash, error) {
	if ref == "" {
		headRef, err := repo.Head()
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("failed to resolve HEAD: %w", err)
		}
		return headRef.Hash(), nil
	}

	branchRef, err := repo.Reference(plumbing.NewBranchReferenceName(ref), true)
	if err == nil {
		return branchRef.Hash(), nil
	}

	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", ref), true)
	if err == nil {
		return remoteRef.Hash(), nil
	}

	tagRef, err := repo.Reference(plumbing.NewTagReferenceName(ref), true)
	if err == nil {
		return tagRef.Hash(), nil
	}

	return plumbing.ZeroHash, fmt.Errorf("failed to resolve ref: %s", ref)
}
