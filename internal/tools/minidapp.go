package tools

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog/log"
	"github.com/tansive/minima-mcp/internal/minidapp"
)

type minidappTools struct{ Deps }

func (g *minidappTools) Name() string { return "minidapp" }

func (g *minidappTools) Tools() []server.ServerTool {
	return []server.ServerTool{
		tool(mcp.NewTool("create_minidapp_project",
			mcp.WithDescription("Create a MiniDapp project with dapp.conf and a starter index.html."),
			mcp.WithString("name", mcp.Required(), mcp.Description("MiniDapp name")),
			mcp.WithString("description", mcp.Required(), mcp.Description("MiniDapp description")),
			mcp.WithString("output_dir", mcp.Required(), mcp.Description("Directory to create project in")),
			mcp.WithString("version", mcp.Description("Version"), mcp.DefaultString(minidapp.DefaultVersion)),
			mcp.WithString("category", mcp.Description("Category"), mcp.DefaultString(minidapp.DefaultCategory)),
		), g.createProject),
		tool(mcp.NewTool("write_minidapp_file",
			mcp.WithDescription("Write a file into a MiniDapp project. The path must stay inside the project."),
			mcp.WithString("project_path", mcp.Required(), mcp.Description("Path to MiniDapp project directory")),
			mcp.WithString("file_name", mcp.Required(), mcp.Description("File name (e.g., 'app.js', 'style.css')")),
			mcp.WithString("content", mcp.Required(), mcp.Description("File content")),
		), g.writeFile),
		tool(mcp.NewTool("package_minidapp",
			mcp.WithDescription("Package a MiniDapp project into a .mds.zip, reporting missing mds.js and script syntax problems as warnings."),
			mcp.WithString("project_path", mcp.Required(), mcp.Description("Path to MiniDapp project directory")),
			mcp.WithString("output_path", mcp.Description("Output .mds.zip path (optional)")),
		), g.pack),
		tool(mcp.NewTool("install_packaged_minidapp",
			mcp.WithDescription("Install a packaged .mds.zip on the node."),
			mcp.WithString("zip_path", mcp.Required(), mcp.Description("Path to .mds.zip file")),
		), g.install),
		tool(mcp.NewTool("create_minidapp_store",
			mcp.WithDescription("Create a MiniDapp Store manifest that the Minima Storefront MiniDapp can load. "+
				"Set scan_installed to include the MiniDapps installed on this node."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Store name (e.g., 'DeFi Hub', 'Gaming Store')")),
			mcp.WithString("description", mcp.Required(), mcp.Description("Store description")),
			mcp.WithArray("dapps", mcp.Description("MiniDapps in the store (optional)"),
				mcp.Items(map[string]any{"type": "object"})),
			mcp.WithString("banner_url", mcp.Description("Banner image URL")),
			mcp.WithString("icon_url", mcp.Description("Store icon URL")),
			mcp.WithString("output_dir", mcp.Description("Directory to create store files")),
			mcp.WithBoolean("scan_installed", mcp.Description("Include the MiniDapps installed on this node"), mcp.DefaultBool(false)),
		), g.createStore),
		tool(mcp.NewTool("list_minidapp_stores",
			mcp.WithDescription("List the MiniDapp Stores installed on this node."),
		), g.listStores),
	}
}

func (g *minidappTools) createProject(_ context.Context, req mcp.CallToolRequest) (*Reply, error) {
	args := struct {
		Name        string `json:"name" validate:"required"`
		Description string `json:"description" validate:"required"`
		OutputDir   string `json:"output_dir" validate:"required"`
		Version     string `json:"version"`
		Category    string `json:"category"`
	}{Version: minidapp.DefaultVersion, Category: g.DefaultCategory}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	p, err := minidapp.CreateProject(minidapp.ProjectRequest{
		Name:        args.Name,
		Description: args.Description,
		OutputDir:   args.OutputDir,
		Version:     args.Version,
		Category:    args.Category,
	})
	if err != nil {
		return nil, err
	}
	return reply(p).msg("Created MiniDapp project '" + args.Name + "'"), nil
}

func (g *minidappTools) writeFile(_ context.Context, req mcp.CallToolRequest) (*Reply, error) {
	var args struct {
		ProjectPath string `json:"project_path" validate:"required"`
		FileName    string `json:"file_name" validate:"required"`
		Content     string `json:"content"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	path, err := minidapp.WriteFile(args.ProjectPath, args.FileName, args.Content)
	if err != nil {
		return nil, err
	}
	return reply(map[string]string{"file_path": path}).msg("File '" + args.FileName + "' written successfully"), nil
}

func (g *minidappTools) pack(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	var args struct {
		ProjectPath string `json:"project_path" validate:"required"`
		OutputPath  string `json:"output_path"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	res, err := minidapp.Package(ctx, minidapp.PackageRequest{
		ProjectPath: args.ProjectPath,
		OutputPath:  args.OutputPath,
		MaxSize:     g.MaxPackageSize,
	})
	if err != nil {
		return nil, err
	}
	r := reply(res).msg("MiniDapp packaged: " + res.ZipPath)
	if len(res.Warnings) > 0 {
		r.with("warnings", res.Warnings)
	}
	return r, nil
}

func (g *minidappTools) install(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	var args struct {
		ZipPath string `json:"zip_path" validate:"required"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	out, err := minidapp.Install(ctx, g.Node, args.ZipPath)
	if err != nil {
		return nil, err
	}
	return reply(out).msg("MiniDapp installed successfully"), nil
}

// storeDapp decodes one store entry. History is kept as given, whatever its shape.
func storeDapp(m map[string]any) (minidapp.StoreDapp, error) {
	var d minidapp.StoreDapp
	if err := mapstructure.WeakDecode(m, &d); err != nil {
		return d, ErrInvalidArgs.MsgErr("invalid store entry", err)
	}
	if h, ok := m["history"]; ok && h != nil {
		raw, err := json.Marshal(h)
		if err != nil {
			return d, ErrInvalidArgs.MsgErr("invalid store entry history", err)
		}
		d.History = raw
	}
	return d, nil
}

func (g *minidappTools) createStore(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	var args struct {
		Name          string           `json:"name" validate:"required"`
		Description   string           `json:"description" validate:"required"`
		Dapps         []map[string]any `json:"dapps"`
		BannerURL     string           `json:"banner_url"`
		IconURL       string           `json:"icon_url"`
		OutputDir     string           `json:"output_dir"`
		ScanInstalled bool             `json:"scan_installed"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	dapps := make([]minidapp.StoreDapp, 0, len(args.Dapps))
	for _, m := range args.Dapps {
		d, err := storeDapp(m)
		if err != nil {
			return nil, err
		}
		dapps = append(dapps, d)
	}
	scanned := 0
	if args.ScanInstalled {
		raw, err := g.Node.MiniDapps(ctx)
		if err != nil {
			// The store is still useful without the installed apps.
			log.Ctx(ctx).Warn().Err(err).Msg("unable to scan installed MiniDapps")
		} else {
			entries := minidapp.StoreEntries(minidapp.ParseInstalled(raw), g.Node.BaseURL())
			scanned = len(entries)
			dapps = append(dapps, entries...)
		}
	}
	res, err := minidapp.CreateStore(minidapp.StoreRequest{
		Name:        args.Name,
		Description: args.Description,
		Dapps:       dapps,
		BannerURL:   args.BannerURL,
		IconURL:     args.IconURL,
		OutputDir:   args.OutputDir,
		PublicBase:  g.StorePublicBase,
	})
	if err != nil {
		return nil, err
	}
	location := res.PublicURL
	if location == "" {
		location = res.Path
	}
	msg := "Successfully created MiniDapp Store JSON '" + args.Name + "' with " + strconv.Itoa(len(dapps)) + " MiniDapps"
	if scanned > 0 {
		msg += " (" + strconv.Itoa(scanned) + " from installed apps)"
	}
	return reply(map[string]any{
		"store_name":         args.Name,
		"store_description":  args.Description,
		"dapps_count":        len(dapps),
		"scanned_apps_count": scanned,
		"store_json_path":    res.Path,
		"public_url":         res.PublicURL,
		"store_json":         res.Manifest,
		"usage_instructions": []string{
			"Copy this URL: " + location,
			"Open the Minima Storefront MiniDapp",
			"Click the '+' button to add a store",
			"Paste the URL and load your MiniDapp store",
		},
	}).msg(msg), nil
}

func (g *minidappTools) listStores(ctx context.Context, _ mcp.CallToolRequest) (*Reply, error) {
	raw, err := g.Node.MiniDapps(ctx)
	if err != nil {
		return nil, err
	}
	stores := minidapp.Stores(minidapp.ParseInstalled(raw), g.Node.BaseURL())
	return reply(map[string]any{"stores": stores, "count": len(stores)}), nil
}
