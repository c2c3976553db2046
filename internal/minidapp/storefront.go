package minidapp

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// StoreDapp is one entry of a Storefront manifest.
type StoreDapp struct {
	File          string          `json:"file" mapstructure:"file"`
	Name          string          `json:"name" mapstructure:"name"`
	Description   string          `json:"description" mapstructure:"description"`
	Version       string          `json:"version" mapstructure:"version"`
	Date          string          `json:"date" mapstructure:"date"`
	Icon          string          `json:"icon,omitempty" mapstructure:"icon"`
	RepositoryURL string          `json:"repository_url,omitempty" mapstructure:"repository_url"`
	About         string          `json:"about,omitempty" mapstructure:"about"`
	Screenshots   []string        `json:"screenshots,omitempty" mapstructure:"screenshots"`
	ReleaseNotes  string          `json:"release_notes,omitempty" mapstructure:"release_notes"`
	History       json.RawMessage `json:"history,omitempty" mapstructure:"-"`
}

// StoreManifest is the JSON document the Minima Storefront MiniDapp loads.
type StoreManifest struct {
	Name            string      `json:"name"`
	Description     string      `json:"description"`
	Version         string      `json:"version"`
	ManifestVersion int         `json:"manifest_version"`
	Banner          string      `json:"banner,omitempty"`
	Icon            string      `json:"icon,omitempty"`
	Dapps           []StoreDapp `json:"dapps"`
}

type StoreRequest struct {
	Name        string
	Description string
	Dapps       []StoreDapp
	BannerURL   string
	IconURL     string
	// OutputDir defaults to ./minidapp_stores.
	OutputDir string
	// PublicBase is the URL prefix the output directory is served under, if any.
	PublicBase string
}

type StoreResult struct {
	Path      string        `json:"store_json_path"`
	PublicURL string        `json:"public_url,omitempty"`
	Manifest  StoreManifest `json:"store_json"`
}

const storeDateLayout = "Jan 02, 2006"

// CreateStore writes a Storefront manifest named after the store into OutputDir.
func CreateStore(req StoreRequest) (*StoreResult, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, ErrInvalidProject.Msg("store name is required")
	}
	dir := req.OutputDir
	if dir == "" {
		dir = "./minidapp_stores"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ErrIO.MsgErr("unable to create store directory", err)
	}

	today := time.Now().Format(storeDateLayout)
	m := StoreManifest{
		Name:            req.Name,
		Description:     req.Description,
		Version:         "1.0",
		ManifestVersion: 2,
		Banner:          req.BannerURL,
		Icon:            req.IconURL,
		Dapps:           make([]StoreDapp, 0, len(req.Dapps)),
	}
	for i, d := range req.Dapps {
		if d.Name == "" {
			d.Name = "App " + strconv.Itoa(i+1)
		}
		if d.Version == "" {
			d.Version = DefaultVersion
		}
		if d.Date == "" {
			d.Date = today
		}
		m.Dapps = append(m.Dapps, d)
	}

	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, ErrMiniDapp.MsgErr("unable to encode store manifest", err)
	}
	fileName := storeFileName(req.Name)
	path := filepath.Join(dir, fileName)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return nil, ErrIO.MsgErr("unable to write store manifest", err)
	}
	abs, _ := filepath.Abs(path)
	res := &StoreResult{Path: abs, Manifest: m}
	if req.PublicBase != "" {
		res.PublicURL = strings.TrimRight(req.PublicBase, "/") + "/" + fileName
	}
	log.Info().Str("store", req.Name).Int("dapps", len(m.Dapps)).Str("path", abs).Msg("created MiniDapp store")
	return res, nil
}

func storeFileName(name string) string {
	r := strings.NewReplacer(" ", "_", "/", "_", `\`, "_")
	return strings.ToLower(r.Replace(name)) + ".json"
}

// Installed is an installed MiniDapp as reported by the mds command.
type Installed struct {
	UID  string
	Conf Conf
}

// ParseInstalled reads the mds listing, which nodes return either as
// {"minidapps":[...]} or as a bare array.
func ParseInstalled(raw json.RawMessage) []Installed {
	r := gjson.ParseBytes(raw)
	items := r.Get("minidapps")
	if r.IsArray() {
		items = r
	}
	var out []Installed
	for _, it := range items.Array() {
		conf := it.Get("conf")
		out = append(out, Installed{
			UID: it.Get("uid").String(),
			Conf: Conf{
				Name:        conf.Get("name").String(),
				Version:     conf.Get("version").String(),
				Description: conf.Get("description").String(),
				Icon:        conf.Get("icon").String(),
				Category:    conf.Get("category").String(),
				Browser:     conf.Get("browser").String(),
			},
		})
	}
	return out
}

// StoreEntries turns installed user MiniDapps into store entries served by the node at
// nodeBase. System apps and stores are skipped.
func StoreEntries(installed []Installed, nodeBase string) []StoreDapp {
	nodeBase = strings.TrimRight(nodeBase, "/")
	today := time.Now().Format(storeDateLayout)
	var out []StoreDapp
	for _, app := range installed {
		if app.Conf.Category == "System" || app.Conf.Category == "Store" || app.Conf.Name == "Storefront" {
			continue
		}
		d := StoreDapp{
			File:        nodeBase + "/" + app.UID + "/app.mds.zip",
			Name:        orDefault(app.Conf.Name, "Unknown App"),
			Description: orDefault(app.Conf.Description, "Installed MiniDapp"),
			Version:     orDefault(app.Conf.Version, DefaultVersion),
			Date:        today,
		}
		if app.Conf.Icon != "" {
			d.Icon = nodeBase + "/" + app.UID + "/" + app.Conf.Icon
		}
		out = append(out, d)
	}
	return out
}

// StoreInfo is an installed Storefront store.
type StoreInfo struct {
	UID         string `json:"uid"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Version     string `json:"version"`
}

// Stores lists installed MiniDapps in the Store category.
func Stores(installed []Installed, nodeBase string) []StoreInfo {
	nodeBase = strings.TrimRight(nodeBase, "/")
	out := []StoreInfo{}
	for _, app := range installed {
		if app.Conf.Category != "Store" {
			continue
		}
		out = append(out, StoreInfo{
			UID:         app.UID,
			Name:        orDefault(app.Conf.Name, "Unknown Store"),
			Description: app.Conf.Description,
			URL:         nodeBase + "/" + app.UID + "/store.json",
			Version:     orDefault(app.Conf.Version, "1.0"),
		})
	}
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
