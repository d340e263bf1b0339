package template

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultMaxDepth is the cycle-limit default named in the design notes for
// cyclic template references encountered during evaluation.
const DefaultMaxDepth = 32

// Loader implements §4.1: it parses YAML message/resource/datatype
// templates into the AST in ast.go, resolves resourcePath references
// lazily and caches them by path, and layers three discovery tiers —
// override folder over primary folder over the packaged fallback — per the
// template discovery protocol in §6. Load is pure: all of this state is
// the Loader's own cache, never a process-wide singleton.
type Loader struct {
	PrimaryDir  string
	OverrideDir string
	Embedded    fs.FS
	MaxDepth    int
	Logger      zerolog.Logger

	mu             sync.Mutex
	resourceCache  map[string]*ResourceTemplate
	messageCache   map[string]*MessageTemplate
}

// NewLoader constructs a Loader. embedded is the packaged
// classpath-equivalent fallback tier (normally embedded.FS, the templates
// shipped with this module); pass a nil fs.FS to disable the fallback tier
// entirely (useful in tests).
func NewLoader(primaryDir, overrideDir string, embedded fs.FS) *Loader {
	return &Loader{
		PrimaryDir:    primaryDir,
		OverrideDir:   overrideDir,
		Embedded:      embedded,
		MaxDepth:      DefaultMaxDepth,
		Logger:        zerolog.Nop(),
		resourceCache: make(map[string]*ResourceTemplate),
		messageCache:  make(map[string]*MessageTemplate),
	}
}

// GetMessageTemplate implements the version-dispatch-with-fallback policy
// adopted for the respect-MSH-12 Open Question: it first tries
// v<version>/message/<messageType>.yml, then falls back to
// message/<messageType>.yml, consulting override-then-primary-then-embedded
// at each of those two candidate paths before moving to the next candidate.
func (l *Loader) GetMessageTemplate(messageType, version string) (*MessageTemplate, error) {
	cacheKey := version + "/" + messageType
	l.mu.Lock()
	if mt, ok := l.messageCache[cacheKey]; ok {
		l.mu.Unlock()
		return mt, nil
	}
	l.mu.Unlock()

	candidates := candidatePaths("message", messageType, version)
	var raw []byte
	var resolvedPath string
	var err error
	for _, c := range candidates {
		raw, err = l.readTemplateFile(c)
		if err == nil {
			resolvedPath = c
			break
		}
	}
	if raw == nil {
		return nil, &NotFoundError{MessageType: messageType, Version: version}
	}

	mt, err := decodeMessageTemplate(resolvedPath, raw)
	if err != nil {
		return nil, err
	}
	if err := validateOrdering(mt, l.resolveResourceTemplate, l.maxDepth()); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.messageCache[cacheKey] = mt
	l.mu.Unlock()
	l.Logger.Debug().Str("messageType", messageType).Str("version", version).Str("path", resolvedPath).Msg("loaded message template")
	return mt, nil
}

// candidatePaths returns, in priority order, the relative template paths
// the loader tries for a given (kind, name, version): the version-specific
// path first, then the version-agnostic path. kind is "message",
// "resource" or "datatype"; for resource/datatype lookups version is "".
func candidatePaths(kind, name, version string) []string {
	rel := kind + "/" + name + ".yml"
	if version == "" {
		return []string{rel}
	}
	return []string{"v" + version + "/" + rel, rel}
}

// resolveResourceTemplate resolves a bare resourcePath (e.g.
// "resource/Patient" or "datatype/HumanName") to a *ResourceTemplate,
// caching by path. This is the Loader's side of lazy resourcePath
// resolution: Resource/Datatype Templates are only read from disk the
// first time some Message Template's entry (or some other template's
// Resource expression) names them.
func (l *Loader) resolveResourceTemplate(path string) (*ResourceTemplate, error) {
	l.mu.Lock()
	if rt, ok := l.resourceCache[path]; ok {
		l.mu.Unlock()
		return rt, nil
	}
	l.mu.Unlock()

	raw, err := l.readTemplateFile(path + ".yml")
	if err != nil {
		return nil, &LoadError{Path: path, Reason: "not found in any resource tier"}
	}
	rt, err := decodeResourceTemplate(path, raw)
	if err != nil {
		return nil, err
	}
	if err := validateResourceTemplate(rt); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.resourceCache[path] = rt
	l.mu.Unlock()
	return rt, nil
}

// ResourceTemplate is the public accessor a ResourceEntry or Resource
// expression uses to resolve its resourcePath/valueOf against this Loader.
func (l *Loader) ResourceTemplate(path string) (*ResourceTemplate, error) {
	return l.resolveResourceTemplate(path)
}

func (l *Loader) maxDepth() int {
	if l.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return l.MaxDepth
}

// readTemplateFile consults, in order, the override folder, the primary
// folder, and the embedded fallback — the three tiers named in §6 — for
// one relative template path.
func (l *Loader) readTemplateFile(rel string) ([]byte, error) {
	if l.OverrideDir != "" {
		if b, err := os.ReadFile(filepath.Join(l.OverrideDir, rel)); err == nil {
			return b, nil
		}
	}
	if l.PrimaryDir != "" {
		if b, err := os.ReadFile(filepath.Join(l.PrimaryDir, rel)); err == nil {
			return b, nil
		}
	}
	if l.Embedded != nil {
		if b, err := fs.ReadFile(l.Embedded, rel); err == nil {
			return b, nil
		}
	}
	return nil, &LoadError{Path: rel, Reason: "not found in override, primary, or embedded tier"}
}

// DiscoverMessageTypes lists every message template name available across
// the three tiers, for the `supported.hl7.messages: "*"` configuration
// option and for the CLI's `templates` subcommand. Names are deduplicated
// and returned without a stable order guarantee beyond "override and
// primary entries before embedded-only entries" — callers that need a
// deterministic listing should sort the result.
func (l *Loader) DiscoverMessageTypes() ([]string, error) {
	seen := map[string]bool{}
	var names []string
	add := func(dir string) error {
		if dir == "" {
			return nil
		}
		entries, err := os.ReadDir(filepath.Join(dir, "message"))
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			name := trimYAMLExt(e.Name())
			if name != "" && !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
		return nil
	}
	if err := add(l.OverrideDir); err != nil {
		return nil, err
	}
	if err := add(l.PrimaryDir); err != nil {
		return nil, err
	}
	if l.Embedded != nil {
		entries, err := fs.ReadDir(l.Embedded, "message")
		if err == nil {
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				name := trimYAMLExt(e.Name())
				if name != "" && !seen[name] {
					seen[name] = true
					names = append(names, name)
				}
			}
		}
	}
	return names, nil
}

func trimYAMLExt(name string) string {
	const ext = ".yml"
	if len(name) > len(ext) && name[len(name)-len(ext):] == ext {
		return name[:len(name)-len(ext)]
	}
	return ""
}
