package minidapp

import (
	"bytes"
	"html/template"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog/log"
)

const (
	DefaultVersion  = "1.0.0"
	DefaultCategory = "Utility"
)

// ProjectRequest describes a new MiniDapp project.
type ProjectRequest struct {
	Name        string
	Description string
	OutputDir   string
	Version     string
	Category    string
}

// Project is a scaffolded MiniDapp directory.
type Project struct {
	Path  string   `json:"project_path"`
	Files []string `json:"files"`
}

var indexPage = template.Must(template.New("index.html").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Name}}</title>
    <script src="./mds.js"></script>
    <style>
        body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; max-width: 800px; margin: 0 auto; padding: 20px; }
        .status { padding: 10px; border-radius: 5px; margin: 10px 0; }
        .success { background: #d4edda; color: #155724; }
        .info { background: #d1ecf1; color: #0c5460; }
    </style>
</head>
<body>
    <h1>{{.Name}}</h1>
    <p>{{.Description}}</p>
    <div id="status" class="status info">Initializing MDS connection...</div>
    <div id="content"></div>
    <script>
        MDS.init(function(msg) {
            if (msg.event == "inited") {
                var status = document.getElementById("status");
                status.className = "status success";
                status.textContent = "Connected to Minima!";
                MDS.cmd("status", function(resp) {
                    if (!resp.status) {
                        return;
                    }
                    var data = resp.response;
                    document.getElementById("content").innerHTML =
                        "<h2>Node Info</h2>" +
                        "<p><strong>Version:</strong> " + data.version + "</p>" +
                        "<p><strong>Block:</strong> " + data.chain.block + "</p>" +
                        "<p><strong>Uptime:</strong> " + data.uptime + "</p>";
                });
            }
        });
    </script>
</body>
</html>
`))

// CreateProject scaffolds OutputDir/Name with a dapp.conf and an index.html page.
// An existing directory is reused and the two files are overwritten.
func CreateProject(req ProjectRequest) (*Project, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrInvalidProject.Msg("name is required")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, ErrInvalidProject.Msgf("name %q cannot be used as a directory name", name)
	}
	if strings.TrimSpace(req.OutputDir) == "" {
		return nil, ErrInvalidProject.Msg("output_dir is required")
	}
	if req.Version == "" {
		req.Version = DefaultVersion
	}
	if _, err := semver.NewVersion(req.Version); err != nil {
		return nil, ErrInvalidProject.Msgf("version %q is not a semantic version", req.Version)
	}
	if req.Category == "" {
		req.Category = DefaultCategory
	}

	dir := filepath.Join(req.OutputDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ErrIO.MsgErr("unable to create project directory", err)
	}

	conf := &Conf{
		Name:        name,
		Version:     req.Version,
		Description: req.Description,
		Icon:        "icon.png",
		Category:    req.Category,
		Browser:     "index.html",
	}
	confBytes, err := conf.encode()
	if err != nil {
		return nil, ErrMiniDapp.MsgErr("unable to encode dapp.conf", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ConfFile), confBytes, 0o644); err != nil {
		return nil, ErrIO.MsgErr("unable to write dapp.conf", err)
	}

	var page bytes.Buffer
	if err := indexPage.Execute(&page, struct{ Name, Description string }{name, req.Description}); err != nil {
		return nil, ErrMiniDapp.MsgErr("unable to render index.html", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "index.html"), page.Bytes(), 0o644); err != nil {
		return nil, ErrIO.MsgErr("unable to write index.html", err)
	}

	log.Info().Str("project_path", dir).Msg("created MiniDapp project")
	return &Project{Path: dir, Files: []string{ConfFile, "index.html"}}, nil
}

// WriteFile writes content to fileName inside projectPath, creating parent directories.
// Names that resolve outside the project are rejected.
func WriteFile(projectPath, fileName, content string) (string, error) {
	target, err := resolveInside(projectPath, fileName)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", ErrIO.MsgErr("unable to create directory", err)
	}
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return "", ErrIO.MsgErr("unable to write "+fileName, err)
	}
	log.Info().Str("file", fileName).Str("project_path", projectPath).Msg("wrote MiniDapp file")
	return target, nil
}

func resolveInside(root, name string) (string, error) {
	if strings.TrimSpace(root) == "" {
		return "", ErrInvalidProject.Msg("project_path is required")
	}
	if strings.TrimSpace(name) == "" {
		return "", ErrInvalidProject.Msg("file_name is required")
	}
	if filepath.IsAbs(name) {
		return "", ErrPathEscape.Msgf("%s is an absolute path", name)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", ErrIO.MsgErr("unable to resolve project path", err)
	}
	target := filepath.Join(absRoot, name)
	rel, err := filepath.Rel(absRoot, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrPathEscape.Msgf("%s resolves outside %s", name, root)
	}
	return target, nil
}
