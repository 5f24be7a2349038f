package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/gofast/pkg/types"
)

// TokenEnv overrides credentials.token when set
const TokenEnv = "GOFAST_TOKEN"

// Defaults
const (
	DefaultConcurrency     = 10
	DefaultPort            = 8080
	DefaultNamePrefix      = "gofast-worker"
	DefaultSSHUser         = "root"
	DefaultSSHKey          = "~/.ssh/id_rsa"
	DefaultConnectAttempts = 6
	DefaultConnectDelay    = 5 * time.Second
	DefaultPollInterval    = 5 * time.Second
	DefaultPollTimeout     = 10 * time.Minute
	DefaultFetchTimeout    = 30 * time.Second
	DefaultDataDir         = ".gofast"
	DefaultRemoteDir       = "/root"
)

// Error reports an invalid fleet file
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid config: %v", e.Err)
	}
	return fmt.Sprintf("invalid config: %s: %v", e.Field, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fieldError(field, format string, args ...interface{}) *Error {
	return &Error{Field: field, Err: fmt.Errorf(format, args...)}
}

// File is the on-disk shape of the fleet file
type File struct {
	Concurrency *int        `yaml:"concurrency"`
	Proxy       *bool       `yaml:"proxy"`
	Port        int         `yaml:"port"`
	NamePrefix  string      `yaml:"name_prefix"`
	DataDir     string      `yaml:"data_dir"`
	Start       string      `yaml:"start"`
	Setup       [][]string  `yaml:"setup"`
	Artifact    ArtifactDoc `yaml:"artifact"`
	Template    TemplateDoc `yaml:"template"`
	Credentials CredsDoc    `yaml:"credentials"`
	Timeouts    TimeoutsDoc `yaml:"timeouts"`
}

// ArtifactDoc is the artifact section of the fleet file
type ArtifactDoc struct {
	Path       string `yaml:"path"`
	Build      string `yaml:"build"`
	BuildDir   string `yaml:"build_dir"`
	RemotePath string `yaml:"remote_path"`
}

// TemplateDoc describes the instance every worker is created from
type TemplateDoc struct {
	Region  string   `yaml:"region"`
	Size    string   `yaml:"size"`
	Image   string   `yaml:"image"`
	SSHKeys []string `yaml:"ssh_keys"`
	Tags    []string `yaml:"tags"`
}

// CredsDoc holds the provider token and the SSH login for workers
type CredsDoc struct {
	Token   string `yaml:"token"`
	SSHUser string `yaml:"ssh_user"`
	SSHKey  string `yaml:"ssh_key"`
}

// TimeoutsDoc overrides connect, poll and fetch timing. Zero values take the
// defaults.
type TimeoutsDoc struct {
	ConnectAttempts int           `yaml:"connect_attempts"`
	ConnectDelay    time.Duration `yaml:"connect_delay"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	PollTimeout     time.Duration `yaml:"poll_timeout"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
}

// Load reads and resolves the fleet file at path
func Load(filename string) (*types.FleetConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a fleet file, applies defaults and the token override, and
// resolves setup commands. Unknown keys and unknown setup operations are
// rejected.
func Parse(data []byte) (*types.FleetConfig, error) {
	var doc File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, &Error{Err: fmt.Errorf("failed to parse YAML: %w", err)}
	}

	if token := os.Getenv(TokenEnv); token != "" {
		doc.Credentials.Token = token
	}

	cfg, err := resolve(doc)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolve(doc File) (*types.FleetConfig, error) {
	cfg := &types.FleetConfig{
		Concurrency:  orIntPtr(doc.Concurrency, DefaultConcurrency),
		Proxy:        doc.Proxy == nil || *doc.Proxy,
		Port:         orInt(doc.Port, DefaultPort),
		NamePrefix:   orString(doc.NamePrefix, DefaultNamePrefix),
		StartCommand: strings.TrimSpace(doc.Start),
		DataDir:      orString(doc.DataDir, DefaultDataDir),
		Template: types.InstanceTemplate{
			Region:  doc.Template.Region,
			Size:    doc.Template.Size,
			Image:   doc.Template.Image,
			SSHKeys: doc.Template.SSHKeys,
			Tags:    doc.Template.Tags,
		},
		Credentials: types.Credentials{
			Token:   doc.Credentials.Token,
			SSHUser: orString(doc.Credentials.SSHUser, DefaultSSHUser),
		},
		Artifact: types.Artifact{
			Path:       doc.Artifact.Path,
			Build:      doc.Artifact.Build,
			BuildDir:   doc.Artifact.BuildDir,
			RemotePath: doc.Artifact.RemotePath,
		},
		Timeouts: types.Timeouts{
			ConnectAttempts: orInt(doc.Timeouts.ConnectAttempts, DefaultConnectAttempts),
			ConnectDelay:    orDuration(doc.Timeouts.ConnectDelay, DefaultConnectDelay),
			PollInterval:    orDuration(doc.Timeouts.PollInterval, DefaultPollInterval),
			PollTimeout:     orDuration(doc.Timeouts.PollTimeout, DefaultPollTimeout),
			FetchTimeout:    orDuration(doc.Timeouts.FetchTimeout, DefaultFetchTimeout),
		},
	}

	keyPath, err := ExpandHome(orString(doc.Credentials.SSHKey, DefaultSSHKey))
	if err != nil {
		return nil, fieldError("credentials.ssh_key", "%v", err)
	}
	cfg.Credentials.SSHKeyPath = keyPath

	if cfg.Artifact.Path != "" && cfg.Artifact.RemotePath == "" {
		cfg.Artifact.RemotePath = path.Join(DefaultRemoteDir, filepath.Base(cfg.Artifact.Path))
	}

	setup, err := ResolveSetup(doc.Setup)
	if err != nil {
		return nil, err
	}
	cfg.Setup = setup

	return cfg, nil
}

// ResolveSetup turns [op, args...] entries into typed setup commands
func ResolveSetup(entries [][]string) ([]types.SetupCommand, error) {
	steps := make([]types.SetupCommand, 0, len(entries))
	for i, entry := range entries {
		field := fmt.Sprintf("setup[%d]", i)
		if len(entry) == 0 {
			return nil, fieldError(field, "empty setup step")
		}

		op, err := types.ParseOperation(entry[0])
		if err != nil {
			return nil, &Error{Field: field, Err: err}
		}

		cmd := types.SetupCommand{Op: op, Args: entry[1:]}
		if err := cmd.Validate(); err != nil {
			return nil, &Error{Field: field, Err: err}
		}
		steps = append(steps, cmd)
	}
	return steps, nil
}

// Validate checks a resolved configuration
func Validate(cfg *types.FleetConfig) error {
	switch {
	case cfg.Concurrency < 1:
		return fieldError("concurrency", "must be at least 1, got %d", cfg.Concurrency)
	case cfg.Port < 1 || cfg.Port > 65535:
		return fieldError("port", "out of range: %d", cfg.Port)
	case cfg.StartCommand == "":
		return fieldError("start", "worker start command is required")
	case cfg.Credentials.Token == "":
		return fieldError("credentials.token", "provider token is required (or set %s)", TokenEnv)
	case cfg.Template.Region == "":
		return fieldError("template.region", "required")
	case cfg.Template.Size == "":
		return fieldError("template.size", "required")
	case cfg.Template.Image == "":
		return fieldError("template.image", "required")
	case cfg.Artifact.Build != "" && cfg.Artifact.Path == "":
		return fieldError("artifact.path", "required when artifact.build is set")
	case cfg.Timeouts.ConnectAttempts < 1:
		return fieldError("timeouts.connect_attempts", "must be at least 1")
	case cfg.Timeouts.PollTimeout < cfg.Timeouts.PollInterval:
		return fieldError("timeouts.poll_timeout", "shorter than poll_interval")
	}
	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// orIntPtr keeps an explicit value, zero included, so Validate can reject it
func orIntPtr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orString(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func orDuration(v, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	return v
}
