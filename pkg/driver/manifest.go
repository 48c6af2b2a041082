package driver

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"routines/runtime-go/pkg/parser"
	"routines/runtime-go/pkg/registry"
)

// ManifestFileName is the conventional manifest name inside a routine source.
const ManifestFileName = "routines.yml"

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Manifest represents the parsed contents of routines.yml.
type Manifest struct {
	Path     string
	Skill    string
	Routines []*RoutineSpec
}

// RoutineSpec describes one program routine declared by a manifest. Exactly
// one of Source and File is set; File is relative to the manifest directory.
type RoutineSpec struct {
	Name        string
	Skill       string
	Description string
	Params      []string
	Source      string
	File        string
}

// QualifiedName mirrors registry.Routine.QualifiedName for reporting.
func (r *RoutineSpec) QualifiedName() string {
	if r.Skill == "" {
		return r.Name
	}
	return r.Skill + "." + r.Name
}

// ValidationError aggregates manifest validation failures.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "manifest: invalid configuration"
	}
	var b strings.Builder
	b.WriteString("manifest validation failed:")
	for _, issue := range e.Issues {
		b.WriteString("\n- ")
		b.WriteString(issue)
	}
	return b.String()
}

// LoadManifest parses routines.yml from disk, returning a validated manifest.
func LoadManifest(path string) (*Manifest, error) {
	if path == "" {
		return nil, fmt.Errorf("manifest: empty path")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: resolve %s: %w", path, err)
	}
	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("manifest: open %s: %w", absPath, err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)

	var raw manifestFile
	if err := decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("manifest: %s is empty", absPath)
		}
		return nil, fmt.Errorf("manifest: parse %s: %w", absPath, err)
	}

	manifest := raw.toManifest(absPath)
	if err := manifest.validate(); err != nil {
		return nil, err
	}
	return manifest, nil
}

func (m *Manifest) validate() error {
	var errs ValidationError
	if m.Skill != "" && !identifierPattern.MatchString(m.Skill) {
		errs.Issues = append(errs.Issues, fmt.Sprintf("skill %q must be an identifier", m.Skill))
	}
	if len(m.Routines) == 0 {
		errs.Issues = append(errs.Issues, "routines must declare at least one routine")
	}
	seen := make(map[string]int, len(m.Routines))
	for i, r := range m.Routines {
		label := fmt.Sprintf("routines[%d]", i)
		if r.Name != "" {
			label = fmt.Sprintf("routine %q", r.Name)
		}
		switch {
		case r.Name == "":
			errs.Issues = append(errs.Issues, fmt.Sprintf("routines[%d] missing name", i))
		case !identifierPattern.MatchString(r.Name):
			errs.Issues = append(errs.Issues, fmt.Sprintf("%s: name must be an identifier", label))
		}
		if r.Skill != "" && !identifierPattern.MatchString(r.Skill) {
			errs.Issues = append(errs.Issues, fmt.Sprintf("%s: skill %q must be an identifier", label, r.Skill))
		}
		if r.Name != "" {
			if prev, dup := seen[r.QualifiedName()]; dup {
				errs.Issues = append(errs.Issues, fmt.Sprintf("%s duplicates routines[%d]", label, prev))
			} else {
				seen[r.QualifiedName()] = i
			}
		}
		switch {
		case r.Source == "" && r.File == "":
			errs.Issues = append(errs.Issues, fmt.Sprintf("%s: one of source or file must be provided", label))
		case r.Source != "" && r.File != "":
			errs.Issues = append(errs.Issues, fmt.Sprintf("%s: source and file are mutually exclusive", label))
		case r.File != "" && filepath.IsAbs(r.File):
			errs.Issues = append(errs.Issues, fmt.Sprintf("%s: file must be relative to the manifest", label))
		}
		params := make(map[string]bool, len(r.Params))
		for _, p := range r.Params {
			if !identifierPattern.MatchString(p) {
				errs.Issues = append(errs.Issues, fmt.Sprintf("%s: parameter %q must be an identifier", label, p))
			} else if params[p] {
				errs.Issues = append(errs.Issues, fmt.Sprintf("%s: duplicate parameter %q", label, p))
			}
			params[p] = true
		}
	}
	if len(errs.Issues) > 0 {
		return &errs
	}
	return nil
}

// ReadSource returns the routine's program text, reading File relative to
// the manifest when the source is not inline.
func (m *Manifest) ReadSource(r *RoutineSpec) (string, string, error) {
	if r.File == "" {
		return r.Source, m.Path, nil
	}
	path := filepath.Join(filepath.Dir(m.Path), filepath.FromSlash(r.File))
	data, err := os.ReadFile(path)
	if err != nil {
		return "", path, fmt.Errorf("manifest: routine %s: %w", r.QualifiedName(), err)
	}
	return string(data), path, nil
}

// CheckResult is the outcome of loading one routine's program.
type CheckResult struct {
	Routine string
	Origin  string
	Source  string
	Err     error
}

// Check loads every routine program without registering anything.
func (m *Manifest) Check() []CheckResult {
	results := make([]CheckResult, 0, len(m.Routines))
	for _, r := range m.Routines {
		source, origin, err := m.ReadSource(r)
		if err == nil {
			_, err = parser.Load(source)
		}
		results = append(results, CheckResult{Routine: r.QualifiedName(), Origin: origin, Source: source, Err: err})
	}
	return results
}

// Register validates every routine program and adds the routines to reg.
// Nothing is registered when any program fails to load.
func (m *Manifest) Register(reg *registry.Registry) error {
	var errs ValidationError
	routines := make([]*registry.Routine, 0, len(m.Routines))
	for _, result := range m.Check() {
		if result.Err != nil {
			errs.Issues = append(errs.Issues, fmt.Sprintf("%s: %v", result.Routine, result.Err))
		}
	}
	if len(errs.Issues) > 0 {
		return &errs
	}
	for _, r := range m.Routines {
		source, origin, err := m.ReadSource(r)
		if err != nil {
			return err
		}
		routines = append(routines, &registry.Routine{
			Name:        r.Name,
			Skill:       r.Skill,
			Description: r.Description,
			Params:      append([]string(nil), r.Params...),
			Kind:        registry.KindProgram,
			Source:      source,
			Origin:      origin,
		})
	}
	for _, r := range routines {
		if err := reg.Register(r); err != nil {
			return fmt.Errorf("manifest %s: %w", m.Path, err)
		}
	}
	return nil
}

type manifestFile struct {
	Skill    string         `yaml:"skill"`
	Routines []manifestItem `yaml:"routines"`
}

type manifestItem struct {
	Name        string     `yaml:"name"`
	Skill       string     `yaml:"skill"`
	Description string     `yaml:"description"`
	Params      stringList `yaml:"params"`
	Source      string     `yaml:"source"`
	File        string     `yaml:"file"`
}

type stringList []string

func (mf manifestFile) toManifest(path string) *Manifest {
	result := &Manifest{
		Path:     path,
		Skill:    strings.TrimSpace(mf.Skill),
		Routines: make([]*RoutineSpec, 0, len(mf.Routines)),
	}
	for _, item := range mf.Routines {
		skill := strings.TrimSpace(item.Skill)
		if skill == "" {
			skill = result.Skill
		}
		result.Routines = append(result.Routines, &RoutineSpec{
			Name:        strings.TrimSpace(item.Name),
			Skill:       skill,
			Description: strings.TrimSpace(item.Description),
			Params:      item.Params.Clone(),
			Source:      item.Source,
			File:        strings.TrimSpace(item.File),
		})
	}
	return result
}

func (l stringList) Clone() []string {
	if len(l) == 0 {
		return nil
	}
	out := make([]string, 0, len(l))
	for _, item := range l {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

func (l *stringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" || strings.TrimSpace(value.Value) == "" {
			*l = nil
			return nil
		}
		var items []string
		for _, part := range strings.Split(value.Value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		*l = stringList(items)
		return nil
	case yaml.SequenceNode:
		items := make([]string, 0, len(value.Content))
		for _, node := range value.Content {
			var str string
			if err := node.Decode(&str); err != nil {
				return err
			}
			items = append(items, strings.TrimSpace(str))
		}
		*l = stringList(items)
		return nil
	case yaml.AliasNode:
		return l.UnmarshalYAML(value.Alias)
	case 0:
		*l = nil
		return nil
	default:
		return fmt.Errorf("manifest: expected string or sequence for list but found %s", value.ShortTag())
	}
}
