// Package mdstest provides a fake Minima MDS endpoint for tests. It serves the login page
// and the command endpoint, decodes every command it receives and answers from handlers
// registered per command prefix.
package mdstest

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// DefaultUID is the session UID issued by a Node unless LoginBody is overridden.
const DefaultUID = "0xABCDEF0123"

// Reply is a canned response. Hangup closes the connection without answering, after the
// command has been recorded.
type Reply struct {
	Status int
	Body   string
	Hangup bool
}

// HandlerFunc answers one decoded command line.
type HandlerFunc func(command string) Reply

// Node is a fake MDS endpoint backed by httptest.Server.
type Node struct {
	Server *httptest.Server

	mu        sync.Mutex
	password  string
	loginBody string
	handlers  map[string]HandlerFunc
	commands  []string
	uids      []string
	logins    int
}

// NewNode starts a plain HTTP fake node accepting password. Close it with t.Cleanup.
func NewNode(password string) *Node {
	n := &Node{
		password:  password,
		loginBody: LoginPage(DefaultUID),
		handlers:  make(map[string]HandlerFunc),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/login.html", n.serveLogin)
	mux.HandleFunc("/mdscommand_/cmd", n.serveCommand)
	n.Server = httptest.NewServer(mux)
	return n
}

// LoginPage renders the script redirect the node sends after a good login.
func LoginPage(uid string) string {
	return fmt.Sprintf(`<html><head><script>window.location.href = "index.html?uid=%s";</script></head></html>`, uid)
}

func (n *Node) Close() {
	n.Server.Close()
}

// Host and Port split the server address for client options.
func (n *Node) Host() string {
	host, _, _ := net.SplitHostPort(n.Server.Listener.Addr().String())
	return host
}

func (n *Node) Port() int {
	_, port, _ := net.SplitHostPort(n.Server.Listener.Addr().String())
	p, _ := strconv.Atoi(port)
	return p
}

// SetLoginBody replaces the page served after a successful login.
func (n *Node) SetLoginBody(body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.loginBody = body
}

// Handle registers a handler for commands equal to prefix or starting with prefix and a
// space. The longest matching prefix wins.
func (n *Node) Handle(prefix string, h HandlerFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[prefix] = h
}

// HandleJSON registers a handler that always answers 200 with v encoded as JSON.
func (n *Node) HandleJSON(prefix string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	n.Handle(prefix, func(string) Reply { return Reply{Status: http.StatusOK, Body: string(b)} })
}

// HandleResponse registers a successful {"status":true,"response":v} reply.
func (n *Node) HandleResponse(prefix string, v any) {
	n.HandleJSON(prefix, map[string]any{"status": true, "response": v})
}

// Commands returns every decoded command received so far.
func (n *Node) Commands() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.commands...)
}

// UIDs returns the uid query value of every command request.
func (n *Node) UIDs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.uids...)
}

func (n *Node) Logins() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.logins
}

func (n *Node) serveLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	n.logins++
	body := n.loginBody
	ok := r.PostForm.Get("password") == n.password
	n.mu.Unlock()
	if !ok {
		io.WriteString(w, "<html>Incorrect password</html>")
		return
	}
	io.WriteString(w, body)
}

func (n *Node) serveCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	command, err := url.PathUnescape(string(raw))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.commands = append(n.commands, command)
	n.uids = append(n.uids, r.URL.Query().Get("uid"))
	h := n.match(command)
	n.mu.Unlock()

	reply := Reply{Status: http.StatusOK, Body: `{"status":false,"message":"Command not found"}`}
	if h != nil {
		reply = h(command)
	}
	if reply.Hangup {
		if conn, _, err := http.NewResponseController(w).Hijack(); err == nil {
			conn.Close()
		}
		return
	}
	if reply.Status == 0 {
		reply.Status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reply.Status)
	io.WriteString(w, reply.Body)
}

func (n *Node) match(command string) HandlerFunc {
	var best string
	var h HandlerFunc
	for prefix, fn := range n.handlers {
		if command != prefix && !strings.HasPrefix(command, prefix+" ") {
			continue
		}
		if h == nil || len(prefix) > len(best) {
			best, h = prefix, fn
		}
	}
	return h
}
