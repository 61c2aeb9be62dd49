// README: Icon repository: pin images loaded once at startup, read-only afterwards.
package icons

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"parkmark/internal/logging"
)

var ErrIconLoadFailed = errors.New("icon load failed")

type Icon struct {
	Name   string  `json:"name"`
	URL    string  `json:"url"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Loader fetches the raw bytes of a named icon and the URL clients should use.
type Loader interface {
	Fetch(ctx context.Context, name string) (data []byte, url string, err error)
}

type HTTPLoader struct {
	BaseURL string
	Client  *http.Client
}

func (l HTTPLoader) Fetch(ctx context.Context, name string) ([]byte, string, error) {
	client := l.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	url := strings.TrimRight(l.BaseURL, "/") + "/" + path.Clean(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, "", err
	}
	return data, url, nil
}

// DirLoader reads icons from a local directory; URLPrefix is what clients see.
type DirLoader struct {
	Dir       string
	URLPrefix string
}

func (l DirLoader) Fetch(ctx context.Context, name string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	clean := filepath.Base(name)
	data, err := os.ReadFile(filepath.Join(l.Dir, clean))
	if err != nil {
		return nil, "", err
	}
	return data, strings.TrimRight(l.URLPrefix, "/") + "/" + clean, nil
}

// NewLoader picks HTTPLoader for http(s) bases and DirLoader otherwise.
func NewLoader(base string) Loader {
	if strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://") {
		return HTTPLoader{BaseURL: base}
	}
	return DirLoader{Dir: base, URLPrefix: "/assets"}
}

// Repository is immutable once Load returns.
type Repository struct {
	icons    map[string]Icon
	failures map[string]error
}

// Load fetches every name once. A failing icon is recorded and left out; the
// rest stay usable.
func Load(ctx context.Context, loader Loader, names []string) *Repository {
	r := &Repository{icons: make(map[string]Icon), failures: make(map[string]error)}
	for _, name := range names {
		if _, seen := r.icons[name]; seen {
			continue
		}
		icon, err := loadOne(ctx, loader, name)
		if err != nil {
			r.failures[name] = err
			logging.Error().Err(err).Str("icon", name).Msg("icon unavailable")
			continue
		}
		r.icons[name] = icon
	}
	return r
}

func loadOne(ctx context.Context, loader Loader, name string) (Icon, error) {
	data, url, err := loader.Fetch(ctx, name)
	if err != nil {
		return Icon{}, fmt.Errorf("%w: %s: %v", ErrIconLoadFailed, name, err)
	}
	w, h, err := dimensions(data)
	if err != nil {
		return Icon{}, fmt.Errorf("%w: %s: %v", ErrIconLoadFailed, name, err)
	}
	return Icon{Name: name, URL: url, Width: w, Height: h}, nil
}

func (r *Repository) Get(name string) (Icon, bool) {
	icon, ok := r.icons[name]
	return icon, ok
}

// Err returns the load failure for name, or nil.
func (r *Repository) Err(name string) error {
	return r.failures[name]
}

func (r *Repository) All() []Icon {
	out := make([]Icon, 0, len(r.icons))
	for _, icon := range r.icons {
		out = append(out, icon)
	}
	return out
}

func dimensions(data []byte) (float64, float64, error) {
	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("<")) {
		return svgDimensions(trimmed)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return float64(cfg.Width), float64(cfg.Height), nil
}

type svgRoot struct {
	XMLName xml.Name `xml:"svg"`
	Width   string   `xml:"width,attr"`
	Height  string   `xml:"height,attr"`
	ViewBox string   `xml:"viewBox,attr"`
}

func svgDimensions(data []byte) (float64, float64, error) {
	var root svgRoot
	if err := xml.Unmarshal(data, &root); err != nil {
		return 0, 0, err
	}
	w, wok := parseLength(root.Width)
	h, hok := parseLength(root.Height)
	if wok && hok {
		return w, h, nil
	}
	fields := strings.Fields(strings.ReplaceAll(root.ViewBox, ",", " "))
	if len(fields) == 4 {
		vw, err1 := strconv.ParseFloat(fields[2], 64)
		vh, err2 := strconv.ParseFloat(fields[3], 64)
		if err1 == nil && err2 == nil && vw > 0 && vh > 0 {
			return vw, vh, nil
		}
	}
	return 0, 0, errors.New("svg has no usable width/height or viewBox")
}

func parseLength(v string) (float64, bool) {
	v = strings.TrimSuffix(strings.TrimSpace(v), "px")
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, false
	}
	return f, true
}
