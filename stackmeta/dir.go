package stackmeta

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// stackDefinition is the on-disk shape of a stack metadata file.
type stackDefinition struct {
	Stack        StackID                     `yaml:"stack"`
	Repositories map[string][]RepositoryInfo `yaml:"repositories"`
}

// DirProvider loads stack metadata from a directory of YAML files, one file
// per stack version, named "<name>-<version>.yaml":
//
//	stack:
//	  name: HDP
//	  version: "1.3.0"
//	repositories:
//	  centos6:
//	    - id: HDP-1.3.0
//	      name: HDP
//	      base_url: http://repo.example.com/hdp/centos6
//
// Definitions are parsed on first request and cached for the life of the
// provider. A missing file is not an error; it means the stack is unknown
// and therefore supports no platforms.
type DirProvider struct {
	dir string

	mu    sync.Mutex
	cache map[string]map[string][]RepositoryInfo
}

// NewDirProvider returns a DirProvider rooted at dir. The directory must
// exist; its contents are validated lazily.
func NewDirProvider(dir string) (*DirProvider, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stack metadata directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("stack metadata path %s is not a directory", dir)
	}
	return &DirProvider{
		dir:   dir,
		cache: make(map[string]map[string][]RepositoryInfo),
	}, nil
}

// Repositories implements Provider.
func (p *DirProvider) Repositories(stack StackID) (map[string][]RepositoryInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if repos, ok := p.cache[stack.String()]; ok {
		return copyRepos(repos), nil
	}

	path := filepath.Join(p.dir, stack.String()+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Unknown stack: cache the miss so repeated lookups stay cheap.
			p.cache[stack.String()] = nil
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read stack definition %s: %w", path, err)
	}

	var def stackDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse stack definition %s: %w", path, err)
	}
	if !def.Stack.IsZero() && def.Stack != stack {
		return nil, fmt.Errorf("stack definition %s declares %s, expected %s",
			path, def.Stack, stack)
	}

	p.cache[stack.String()] = def.Repositories
	return copyRepos(def.Repositories), nil
}

func copyRepos(repos map[string][]RepositoryInfo) map[string][]RepositoryInfo {
	if repos == nil {
		return nil
	}
	out := make(map[string][]RepositoryInfo, len(repos))
	for osType, list := range repos {
		out[osType] = append([]RepositoryInfo(nil), list...)
	}
	return out
}
