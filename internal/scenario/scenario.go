package scenario

import (
	"bytes"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is an ordered verification run against one application.
type Scenario struct {
	Name        string
	Description string
	// BaseURL is the root that relative Navigate URLs resolve against.
	BaseURL string
	// SuccessScreenshot asks the runner for a confirmation artifact when every step passes.
	SuccessScreenshot bool
	Steps             []Step
}

type scenarioFile struct {
	Name              string      `yaml:"name"`
	Description       string      `yaml:"description"`
	BaseURL           string      `yaml:"base_url"`
	SuccessScreenshot bool        `yaml:"success_screenshot"`
	Steps             []yaml.Node `yaml:"steps"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return Parse(data)
}

// LoadFS loads every *.yaml file in dir of fsys, sorted by file name.
func LoadFS(fsys fs.FS, dir string) ([]*Scenario, error) {
	matches, err := fs.Glob(fsys, path.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	scenarios := make([]*Scenario, 0, len(matches))
	for _, m := range matches {
		data, err := fs.ReadFile(fsys, m)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m, err)
		}
		s, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m, err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// Parse decodes a scenario document. Unknown fields are rejected so typos
// surface at load time rather than as a silently skipped step.
func Parse(data []byte) (*Scenario, error) {
	var raw scenarioFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	s := &Scenario{
		Name:              raw.Name,
		Description:       raw.Description,
		BaseURL:           raw.BaseURL,
		SuccessScreenshot: raw.SuccessScreenshot,
	}
	for i := range raw.Steps {
		step, err := decodeStep(&raw.Steps[i])
		if err != nil {
			return nil, fmt.Errorf("invalid scenario: steps[%d]: %w", i, err)
		}
		s.Steps = append(s.Steps, step)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return s, nil
}

var (
	namePattern    = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)
	capturePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// Validate checks the scenario without a browser: structure, step
// parameters, and that every {label} is captured by an earlier step.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !namePattern.MatchString(s.Name) {
		return fmt.Errorf("name %q must be a file-name-safe identifier", s.Name)
	}
	if s.BaseURL != "" {
		u, err := url.Parse(s.BaseURL)
		if err != nil || !u.IsAbs() {
			return fmt.Errorf("base_url %q must be an absolute URL", s.BaseURL)
		}
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	captured := make(map[string]int)
	for i, step := range s.Steps {
		if err := validateStep(step, s.BaseURL); err != nil {
			return fmt.Errorf("steps[%d] (%s): %w", i, step.Kind(), err)
		}
		for _, ref := range step.Refs() {
			if _, ok := captured[ref]; !ok {
				return fmt.Errorf("steps[%d] (%s): {%s} is not captured by an earlier read_attribute step", i, step.Kind(), ref)
			}
		}
		if ra, ok := step.(ReadAttribute); ok {
			if prev, dup := captured[ra.Label]; dup {
				return fmt.Errorf("steps[%d] (%s): label %q already captured by steps[%d]", i, step.Kind(), ra.Label, prev)
			}
			captured[ra.Label] = i
		}
	}
	return nil
}

// Warnings lists constructs that load fine but make a scenario fragile.
func (s *Scenario) Warnings() []string {
	var out []string
	for i, step := range s.Steps {
		if sl, ok := step.(Sleep); ok {
			out = append(out, fmt.Sprintf("steps[%d]: fixed sleep of %s; prefer wait_for, wait_gone or wait_count", i, sl.Duration))
		}
	}
	return out
}

func validateStep(step Step, baseURL string) error {
	switch st := step.(type) {
	case Navigate:
		if strings.TrimSpace(st.URL) == "" {
			return fmt.Errorf("url is required")
		}
		u, err := url.Parse(st.URL)
		if err != nil {
			return fmt.Errorf("invalid url: %w", err)
		}
		if !u.IsAbs() && baseURL == "" {
			return fmt.Errorf("relative url %q needs a base_url", st.URL)
		}
	case WaitFor:
		return checkWait(st.Selector.Validate(), st.Timeout)
	case WaitGone:
		return checkWait(st.Selector.Validate(), st.Timeout)
	case WaitCount:
		if st.Count < 0 {
			return fmt.Errorf("count must be non-negative")
		}
		return checkWait(st.Selector.Validate(), st.Timeout)
	case Click:
		return st.Selector.Validate()
	case AssertVisible:
		return st.Selector.Validate()
	case AssertCount:
		if st.Count < 0 {
			return fmt.Errorf("count must be non-negative")
		}
		return st.Selector.Validate()
	case AssertContent:
		if st.Contains == "" {
			return fmt.Errorf("contains is required")
		}
	case AssertAttribute:
		if st.Attr == "" {
			return fmt.Errorf("attr is required")
		}
		return st.Selector.Validate()
	case ReadAttribute:
		if st.Attr == "" {
			return fmt.Errorf("attr is required")
		}
		if !capturePattern.MatchString(st.Label) {
			return fmt.Errorf("as must be a capture label like game_id, got %q", st.Label)
		}
		if st.Pattern != "" {
			re, err := regexp.Compile(st.Pattern)
			if err != nil {
				return fmt.Errorf("invalid pattern: %w", err)
			}
			if re.NumSubexp() != 1 {
				return fmt.Errorf("pattern must have exactly one capture group, has %d", re.NumSubexp())
			}
		}
		return st.Selector.Validate()
	case Screenshot:
		if !namePattern.MatchString(st.Name) {
			return fmt.Errorf("screenshot name %q must be a file-name-safe identifier", st.Name)
		}
	case Sleep:
		if st.Duration <= 0 {
			return fmt.Errorf("duration must be positive")
		}
	default:
		return fmt.Errorf("unsupported step type %T", step)
	}
	return nil
}

func checkWait(selErr error, timeout time.Duration) error {
	if selErr != nil {
		return selErr
	}
	if timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}
	return nil
}
