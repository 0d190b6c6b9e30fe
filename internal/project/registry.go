package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Project is one self-contained scanning profile: a topic scope, the sources
// to pull from, and the instruction templates used against the model.
type Project struct {
	Name        string
	Description string
	Topic       string
	Subreddits  []string
	HNKeywords  []string
	FeedURLs    []string

	classifyTemplate string
	digestTemplate   string
	tierTemplate     string // empty when the project has no tier pass
}

type projectFile struct {
	Description string `yaml:"description"`
	Topic       string `yaml:"topic"`
	Sources     struct {
		Reddit struct {
			Subreddits []string `yaml:"subreddits"`
		} `yaml:"reddit"`
		HackerNews struct {
			Keywords []string `yaml:"keywords"`
		} `yaml:"hackernews"`
		RSS struct {
			Feeds []string `yaml:"feeds"`
		} `yaml:"rss"`
	} `yaml:"sources"`
}

// Registry loads project configurations from a directory tree and owns the
// per-project template cache. State is explicit: entries are cached on first
// load and invalidated only by Reload.
type Registry struct {
	dir string

	mu    sync.Mutex
	cache map[string]*Project
}

// NewRegistry points the registry at a projects directory. Each project is a
// subdirectory holding config.yaml and a prompts/ folder.
func NewRegistry(dir string) *Registry {
	return &Registry{dir: dir, cache: map[string]*Project{}}
}

// List discovers project names by scanning for config.yaml files.
func (r *Registry) List() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read projects dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(r.dir, entry.Name(), "config.yaml")); err == nil {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Load returns the project configuration, reading it on first access.
func (r *Registry) Load(name string) (*Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.cache[name]; ok {
		return p, nil
	}

	projectDir := filepath.Join(r.dir, name)
	raw, err := os.ReadFile(filepath.Join(projectDir, "config.yaml"))
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", name, err)
	}

	var file projectFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("project %s: parse config.yaml: %w", name, err)
	}

	p := &Project{
		Name:        name,
		Description: file.Description,
		Topic:       file.Topic,
		Subreddits:  file.Sources.Reddit.Subreddits,
		HNKeywords:  file.Sources.HackerNews.Keywords,
		FeedURLs:    file.Sources.RSS.Feeds,
	}

	promptsDir := filepath.Join(projectDir, "prompts")
	p.classifyTemplate, err = readPrompt(promptsDir, "classify")
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", name, err)
	}
	p.digestTemplate, _ = readPrompt(promptsDir, "digest")
	p.tierTemplate, _ = readPrompt(promptsDir, "tiers")

	r.cache[name] = p
	return p, nil
}

// Reload drops the cached entries so the next Load re-reads from disk.
func (r *Registry) Reload() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = map[string]*Project{}
}

// ClassifyTemplate returns the mandatory classification prompt template.
func (r *Registry) ClassifyTemplate(project string) (string, error) {
	p, err := r.Load(project)
	if err != nil {
		return "", err
	}
	return p.classifyTemplate, nil
}

// DigestTemplate returns the article-generation template, if the project has one.
func (r *Registry) DigestTemplate(project string) (string, bool) {
	p, err := r.Load(project)
	if err != nil || p.digestTemplate == "" {
		return "", false
	}
	return p.digestTemplate, true
}

// TierTemplate returns the tier-tagging template. Absence disables the tier
// pass for the project.
func (r *Registry) TierTemplate(project string) (string, bool) {
	p, err := r.Load(project)
	if err != nil || p.tierTemplate == "" {
		return "", false
	}
	return p.tierTemplate, true
}

// Topic returns the project topic used for relevance filtering in prompts.
func (r *Registry) Topic(project string) string {
	p, err := r.Load(project)
	if err != nil {
		return ""
	}
	return p.Topic
}

func readPrompt(dir, name string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(dir, name+".md"))
	if err != nil {
		return "", fmt.Errorf("load prompt %s: %w", name, err)
	}
	content := strings.TrimSpace(string(raw))
	if content == "" {
		return "", fmt.Errorf("prompt %s is empty", name)
	}
	return content, nil
}
