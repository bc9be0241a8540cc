package publish

import (
	"context"
	"log"
	"os/exec"
	"strings"
)

// GitPublisher commits and pushes result documents to the site repository.
type GitPublisher struct {
	repoDir string
	remote  string
	branch  string
}

func NewGitPublisher(repoDir, remote, branch string) *GitPublisher {
	if remote == "" {
		remote = "origin"
	}
	if branch == "" {
		branch = "main"
	}
	return &GitPublisher{repoDir: repoDir, remote: remote, branch: branch}
}

func (p *GitPublisher) Publish(ctx context.Context, paths []string, message string) bool {
	addArgs := append([]string{"add", "--"}, paths...)
	if out, err := p.git(ctx, addArgs...); err != nil {
		log.Printf("git add failed: %v: %s", err, out)
		return false
	}

	out, err := p.git(ctx, "commit", "-m", message)
	if err != nil {
		// an unchanged result set is a successful publish
		if strings.Contains(out, "nothing to commit") {
			log.Println("git: nothing to commit, result set unchanged")
			return true
		}
		log.Printf("git commit failed: %v: %s", err, out)
		return false
	}

	if out, err := p.git(ctx, "push", p.remote, p.branch); err != nil {
		log.Printf("git push failed: %v: %s", err, out)
		return false
	}

	log.Printf("published %d files to %s/%s", len(paths), p.remote, p.branch)
	return true
}

func (p *GitPublisher) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = p.repoDir
	out, err := cmd.CombinedOutput()
	return string(out), err
}
