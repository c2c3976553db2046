package tools

import (
	"context"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/tansive/minima-mcp/internal/mds"
)

// minPeers is the peer count under which diagnose_node warns.
const minPeers = 5

type perfTest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Iterations  int    `json:"iterations"`
	// rateKey names the throughput figure in results.
	rateKey string
	run     func(ctx context.Context, node Node) error
}

var perfTests = map[string]perfTest{
	"status_query": {
		Name:        "Status Query Test",
		Description: "Tests status command query speed",
		Iterations:  10,
		rateKey:     "queries_per_second",
		run: func(ctx context.Context, node Node) error {
			_, err := node.Status(ctx)
			return err
		},
	},
	"balance_query": {
		Name:        "Balance Query Test",
		Description: "Tests balance command query speed",
		Iterations:  10,
		rateKey:     "queries_per_second",
		run: func(ctx context.Context, node Node) error {
			_, err := node.Balance(ctx, mds.BalanceQuery{})
			return err
		},
	},
	"script_compilation": {
		Name:        "Script Compilation Test",
		Description: "Tests KISSVM script compilation speed",
		Iterations:  5,
		rateKey:     "compilations_per_second",
		run: func(ctx context.Context, node Node) error {
			_, err := compileScript(ctx, node, "RETURN TRUE")
			return err
		},
	},
}

var uptimePart = regexp.MustCompile(`(?i)(\d+)\s*(year|month|week|day|hour|minute|second|millisecond)s?\b`)

var uptimeUnits = map[string]time.Duration{
	"year":        365 * 24 * time.Hour,
	"month":       30 * 24 * time.Hour,
	"week":        7 * 24 * time.Hour,
	"day":         24 * time.Hour,
	"hour":        time.Hour,
	"minute":      time.Minute,
	"second":      time.Second,
	"millisecond": time.Millisecond,
}

// parseUptime reads the node's uptime text, e.g. "0 Years 0 Months 2 Days 3 Hours 4 Minutes".
// ok is false when no known unit is found.
func parseUptime(s string) (time.Duration, bool) {
	var d time.Duration
	found := false
	for _, m := range uptimePart.FindAllStringSubmatch(s, -1) {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		d += time.Duration(n) * uptimeUnits[strings.ToLower(m[2])]
		found = true
	}
	return d, found
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

func now() string { return time.Now().UTC().Format(time.RFC3339) }

type developerTools struct{ Deps }

func (g *developerTools) Name() string { return "developer" }

func (g *developerTools) Tools() []server.ServerTool {
	return []server.ServerTool{
		tool(mcp.NewTool("get_node_metrics",
			mcp.WithDescription("Get node, memory, network and coin metrics in one report."),
		), g.metrics),
		tool(mcp.NewTool("get_chain_statistics",
			mcp.WithDescription("Get chain height, weight, sync state and average block time."),
		), g.chainStats),
		tool(mcp.NewTool("run_performance_test",
			mcp.WithDescription("Time a batch of node commands."),
			mcp.WithString("test_type", mcp.Description("Test type"), mcp.Enum("status_query", "balance_query", "script_compilation"), mcp.DefaultString("status_query")),
		), g.perfTest),
		tool(mcp.NewTool("get_memory_usage",
			mcp.WithDescription("Get node memory usage."),
		), g.memory),
		tool(mcp.NewTool("get_disk_usage",
			mcp.WithDescription("Get the node data directory and, when it is on this host, its size."),
		), g.disk),
		tool(mcp.NewTool("diagnose_node",
			mcp.WithDescription("Run node diagnostics: health, peers, sync and balance checks."),
		), g.diagnose),
		tool(mcp.NewTool("get_available_performance_tests",
			mcp.WithDescription("List the performance tests run_performance_test accepts."),
		), g.availableTests),
	}
}

func (g *developerTools) status(ctx context.Context) (*mds.NodeStatus, error) {
	raw, err := g.Node.Status(ctx)
	if err != nil {
		return nil, err
	}
	return mds.DecodeStatus(raw)
}

func (g *developerTools) metrics(ctx context.Context, _ mcp.CallToolRequest) (*Reply, error) {
	st, err := g.status(ctx)
	if err != nil {
		return nil, err
	}
	network, err := g.Node.Network(ctx)
	if err != nil {
		return nil, err
	}
	peers, err := g.Node.Peers(ctx)
	if err != nil {
		return nil, err
	}
	coins, err := g.Node.Coins(ctx, mds.CoinQuery{Relevant: true})
	if err != nil {
		return nil, err
	}
	return reply(map[string]any{
		"node": map[string]any{
			"version":      st.Version,
			"uptime":       st.Uptime,
			"chain_block":  st.Chain.Block,
			"chain_weight": st.Chain.Weight,
		},
		"memory": st.Memory,
		"network": map[string]any{
			"peers_count":    len(mds.ListItems(peers, "peers")),
			"network_status": network,
		},
		"blockchain": map[string]any{
			"coins_count": len(mds.ListItems(coins, "coins")),
			"chain_sync":  st.Chain.Sync,
		},
		"timestamp": now(),
	}), nil
}

func (g *developerTools) chainStats(ctx context.Context, _ mcp.CallToolRequest) (*Reply, error) {
	st, err := g.status(ctx)
	if err != nil {
		return nil, err
	}
	stats := map[string]any{
		"current_block": st.Chain.Block,
		"chain_weight":  st.Chain.Weight,
		"chain_length":  st.Chain.Length,
		"cascade_node":  st.Chain.Cascade,
		"sync_status":   st.Chain.Sync,
		"difficulty":    st.Chain.Difficulty,
	}
	// Blocks seen since start over uptime; a rough figure when the node synced from scratch.
	if up, ok := parseUptime(st.Uptime); ok && up > 0 && st.Chain.Block > 0 {
		stats["avg_block_time_minutes"] = round(up.Minutes()/float64(st.Chain.Block), 2)
	} else {
		stats["avg_block_time_minutes"] = "unknown"
	}
	return reply(stats), nil
}

func (g *developerTools) perfTest(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	args := struct {
		TestType string `json:"test_type"`
	}{TestType: "status_query"}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	test, ok := perfTests[args.TestType]
	if !ok {
		return nil, ErrInvalidArgs.Msgf("Unknown test type: %s", args.TestType)
	}
	start := time.Now()
	for i := 0; i < test.Iterations; i++ {
		if err := test.run(ctx, g.Node); err != nil {
			return nil, err
		}
	}
	elapsed := time.Since(start).Seconds()
	results := map[string]any{
		"test_type":          args.TestType,
		"timestamp":          now(),
		"iterations":         test.Iterations,
		"total_time_seconds": round(elapsed, 3),
		"avg_time_seconds":   round(elapsed/float64(test.Iterations), 3),
	}
	if elapsed > 0 {
		results[test.rateKey] = round(float64(test.Iterations)/elapsed, 2)
	}
	return reply(results), nil
}

func (g *developerTools) memory(ctx context.Context, _ mcp.CallToolRequest) (*Reply, error) {
	st, err := g.status(ctx)
	if err != nil {
		return nil, err
	}
	usage := 0.0
	if total := mds.ParseSize(st.Memory.Total); total > 0 {
		usage = round(mds.ParseSize(st.Memory.Used)/total*100, 2)
	}
	return reply(map[string]any{
		"total":            st.Memory.Total,
		"used":             st.Memory.Used,
		"free":             st.Memory.Free,
		"usage_percentage": usage,
		"timestamp":        now(),
	}), nil
}

// dirSize sums the sizes of the regular files under dir.
func dirSize(ctx context.Context, dir string) (int64, int, error) {
	var size int64
	files := 0
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		files++
		return nil
	})
	return size, files, err
}

func (g *developerTools) disk(ctx context.Context, _ mcp.CallToolRequest) (*Reply, error) {
	st, err := g.status(ctx)
	if err != nil {
		return nil, err
	}
	data := map[string]any{"data_directory": st.DataDir}
	info, statErr := os.Stat(st.DataDir)
	if st.DataDir == "unknown" || statErr != nil || !info.IsDir() {
		data["note"] = "Disk usage details require file system access to the node data directory"
		return reply(data), nil
	}
	size, files, err := dirSize(ctx, st.DataDir)
	if err != nil {
		data["note"] = "Unable to measure the data directory: " + err.Error()
		return reply(data), nil
	}
	data["size_bytes"] = size
	data["size_mb"] = round(float64(size)/(1<<20), 2)
	data["file_count"] = files
	return reply(data), nil
}

func (g *developerTools) diagnose(ctx context.Context, _ mcp.CallToolRequest) (*Reply, error) {
	healthy := g.Node.Healthy(ctx)
	st, err := g.status(ctx)
	if err != nil {
		return nil, err
	}
	peers, err := g.Node.Peers(ctx)
	if err != nil {
		return nil, err
	}
	balance, balanceErr := g.Node.Balance(ctx, mds.BalanceQuery{})

	issues := []string{}
	warnings := []string{}
	if !healthy {
		issues = append(issues, "Node health check failed")
	}
	if balanceErr != nil {
		issues = append(issues, "Balance check failed: "+errorText(balanceErr))
	}
	peerCount := len(mds.ListItems(peers, "peers"))
	switch {
	case peerCount == 0:
		warnings = append(warnings, "No peers connected")
	case peerCount < minPeers:
		warnings = append(warnings, "Low peer count: "+strconv.Itoa(peerCount))
	}
	if st.Chain.Sync != "true" {
		warnings = append(warnings, "Chain may not be synced: "+st.Chain.Sync)
	}
	overall := "healthy"
	if len(issues) > 0 {
		overall = "issues_detected"
	}
	return reply(map[string]any{
		"timestamp":      now(),
		"overall_status": overall,
		"issues":         issues,
		"warnings":       warnings,
		"details": map[string]any{
			"health":        healthy,
			"peer_count":    peerCount,
			"sync_status":   st.Chain.Sync,
			"chain_block":   st.Chain.Block,
			"balance_check": balanceErr == nil && len(balance) > 0 && string(balance) != "null",
		},
	}), nil
}

func (g *developerTools) availableTests(context.Context, mcp.CallToolRequest) (*Reply, error) {
	return reply(map[string]any{"tests": perfTests, "count": len(perfTests)}), nil
}
