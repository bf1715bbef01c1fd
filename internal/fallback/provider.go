package fallback

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/benmeehan/device-agent/pkg/file"
	"github.com/rs/zerolog"
)

// Provider supplies substitute text for responses that have no output.
type Provider interface {
	// Content returns at most limit bytes of fallback text, or false when
	// none is available.
	Content(limit int) ([]byte, bool)
}

// FileProvider reads fallback text from a file. The file is either given
// directly, or located inside the newest semantic-version directory of a
// component under an artifacts root:
//
//	<artifactsDir>/<component>/<version>/<fileName>
//
// The location is resolved on every call so a redeployed component version
// is picked up without a restart.
type FileProvider struct {
	filePath     string
	artifactsDir string
	component    string
	fileName     string
	fileClient   file.FileOperations
	logger       zerolog.Logger
}

// NewFileProvider creates a FileProvider. filePath takes precedence over
// the artifacts lookup when set.
func NewFileProvider(filePath, artifactsDir, component, fileName string, fileClient file.FileOperations, logger zerolog.Logger) *FileProvider {
	return &FileProvider{
		filePath:     filePath,
		artifactsDir: artifactsDir,
		component:    component,
		fileName:     fileName,
		fileClient:   fileClient,
		logger:       logger,
	}
}

// Content implements Provider.
func (p *FileProvider) Content(limit int) ([]byte, bool) {
	path, err := p.Resolve()
	if err != nil {
		p.logger.Debug().Err(err).Msg("Fallback content unavailable")
		return nil, false
	}

	data, err := p.fileClient.ReadFileHead(path, limit)
	if err != nil {
		p.logger.Warn().Err(err).Str("path", path).Msg("Failed to read fallback content")
		return nil, false
	}
	return data, true
}

// Resolve returns the path of the fallback file currently in effect.
func (p *FileProvider) Resolve() (string, error) {
	if p.filePath != "" {
		return p.filePath, nil
	}
	if p.artifactsDir == "" || p.component == "" {
		return "", fmt.Errorf("no fallback file configured")
	}

	componentDir := filepath.Join(p.artifactsDir, p.component)
	dirs, err := p.fileClient.ListDirectories(componentDir)
	if err != nil {
		return "", fmt.Errorf("failed to list component versions: %w", err)
	}

	versions := make([]*semver.Version, 0, len(dirs))
	names := make(map[*semver.Version]string, len(dirs))
	for _, dir := range dirs {
		v, err := semver.NewVersion(dir)
		if err != nil {
			continue
		}
		versions = append(versions, v)
		names[v] = dir
	}
	sort.Sort(sort.Reverse(semver.Collection(versions)))

	for _, v := range versions {
		candidate := filepath.Join(componentDir, names[v], p.fileName)
		exists, err := p.fileClient.IsFileExists(candidate)
		if err == nil && exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no %s found under %s", p.fileName, componentDir)
}
