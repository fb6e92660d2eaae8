package config

import (
	"encoding/json"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	appName   = "pixel-scroll"
	envPrefix = "PIXELSCROLL"
)

// Config holds runtime configuration for stitching, the capture loop and
// output. Fields may be loaded from a JSON file, PIXELSCROLL_* environment
// variables and command-line flags, in increasing precedence.
type Config struct {
	Debug bool `json:"debug" mapstructure:"debug"`

	// Stitching parameters
	Threshold      float64 `json:"threshold" mapstructure:"threshold"`
	MaxSearchRows  int     `json:"max_search_rows" mapstructure:"max_search_rows"`
	MinOverlapRows int     `json:"min_overlap_rows" mapstructure:"min_overlap_rows"`
	Stride         int     `json:"stride" mapstructure:"stride"`
	InitialRows    int     `json:"initial_rows" mapstructure:"initial_rows"`

	// Capture loop
	CaptureIntervalMS   int `json:"capture_interval_ms" mapstructure:"capture_interval_ms"`
	MaxFrames           int `json:"max_frames" mapstructure:"max_frames"`
	StopAfterDuplicates int `json:"stop_after_duplicates" mapstructure:"stop_after_duplicates"`

	// Output
	OutputDir       string `json:"output_dir" mapstructure:"output_dir"`
	Format          string `json:"format" mapstructure:"format"`
	JPEGQuality     int    `json:"jpeg_quality" mapstructure:"jpeg_quality"`
	PreviewMaxWidth int    `json:"preview_max_width" mapstructure:"preview_max_width"`

	// Default capture region
	SelectionX int `json:"selection_x" mapstructure:"selection_x"`
	SelectionY int `json:"selection_y" mapstructure:"selection_y"`
	SelectionW int `json:"selection_w" mapstructure:"selection_w"`
	SelectionH int `json:"selection_h" mapstructure:"selection_h"`
}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	return &Config{
		Debug:               false,
		Threshold:           0.98,
		MaxSearchRows:       0,
		MinOverlapRows:      4,
		Stride:              2,
		InitialRows:         0,
		CaptureIntervalMS:   300,
		MaxFrames:           200,
		StopAfterDuplicates: 3,
		OutputDir:           filepath.Join(xdg.UserDirs.Pictures, appName),
		Format:              "png",
		JPEGQuality:         92,
		PreviewMaxWidth:     480,
	}
}

// DefaultPath returns the XDG location of the config file.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.json")
}

// Validate clamps/normalizes values to safe ranges.
func (c *Config) Validate() error {
	d := DefaultConfig()
	if c.Threshold <= 0 || c.Threshold > 1 {
		c.Threshold = d.Threshold
	}
	if c.MaxSearchRows < 0 {
		c.MaxSearchRows = 0
	}
	if c.MinOverlapRows < 1 {
		c.MinOverlapRows = d.MinOverlapRows
	}
	if c.Stride <= 0 {
		c.Stride = d.Stride
	}
	if c.InitialRows < 0 {
		c.InitialRows = 0
	}
	if c.CaptureIntervalMS < 10 {
		c.CaptureIntervalMS = d.CaptureIntervalMS
	}
	if c.MaxFrames <= 0 {
		c.MaxFrames = d.MaxFrames
	}
	if c.StopAfterDuplicates < 0 {
		c.StopAfterDuplicates = 0
	}
	if c.OutputDir == "" {
		c.OutputDir = d.OutputDir
	}
	c.Format = strings.TrimPrefix(strings.ToLower(c.Format), ".")
	switch c.Format {
	case "png", "jpg", "jpeg", "bmp", "gif", "tif", "tiff":
	default:
		c.Format = d.Format
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		c.JPEGQuality = d.JPEGQuality
	}
	if c.PreviewMaxWidth < 0 {
		c.PreviewMaxWidth = 0
	}
	if c.SelectionW < 0 || c.SelectionH < 0 {
		c.SelectionW, c.SelectionH = 0, 0
	}
	return nil
}

// Selection returns the configured default region; empty when unset.
func (c *Config) Selection() image.Rectangle {
	if c.SelectionW <= 0 || c.SelectionH <= 0 {
		return image.Rectangle{}
	}
	return image.Rect(c.SelectionX, c.SelectionY, c.SelectionX+c.SelectionW, c.SelectionY+c.SelectionH)
}

// Load reads configuration from the JSON file at path (DefaultPath when
// empty), then applies environment variables and any flags in fs whose
// names match config keys, reading hyphens as underscores. A missing file
// yields defaults. On a decode error it returns defaults with the error.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	return LoadFS(afero.NewOsFs(), path, fs)
}

// LoadFS is Load reading the config file from fsys.
func LoadFS(fsys afero.Fs, path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetFs(fsys)
	cfg := DefaultConfig()
	setDefaults(v, cfg)
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	if fs != nil {
		fs.VisitAll(func(f *pflag.Flag) {
			if key := strings.ReplaceAll(f.Name, "-", "_"); isKey(key) {
				_ = v.BindPFlag(key, f)
			}
		})
	}
	if path == "" {
		path = DefaultPath()
	}
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return cfg, err
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return DefaultConfig(), err
	}
	_ = cfg.Validate()
	return cfg, nil
}

// Save writes the configuration to path on fsys in JSON format. A nil fsys
// means the OS filesystem.
func (c *Config) Save(fsys afero.Fs, path string) error {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	_ = c.Validate()
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := fsys.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

// asMap flattens cfg into its JSON keys.
func asMap(cfg *Config) map[string]any {
	raw, _ := json.Marshal(cfg)
	m := map[string]any{}
	_ = json.Unmarshal(raw, &m)
	return m
}

func isKey(name string) bool {
	_, ok := asMap(DefaultConfig())[name]
	return ok
}

func setDefaults(v *viper.Viper, cfg *Config) {
	for k, val := range asMap(cfg) {
		v.SetDefault(k, val)
	}
}
