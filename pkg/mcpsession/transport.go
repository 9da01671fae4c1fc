package mcpsession

import (
	"net/http"
	"net/url"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	stdioSchemePrefix = "stdio://"
	sseSchemePrefix   = "sse://"
)

// Interpreters used to launch script servers by file extension.
var Interpreters = map[string]string{
	".py": "python",
	".js": "node",
}

// TransportKind is the kind of transport parsed from a spec string.
type TransportKind string

const (
	TransportStdio      TransportKind = "stdio"
	TransportSSE        TransportKind = "sse"
	TransportStreamable TransportKind = "streamable"
)

// TransportSpec is a parsed server address.
type TransportSpec struct {
	Kind TransportKind
	// Command and Args are set for stdio transports.
	Command string
	Args    []string
	// Endpoint is set for HTTP transports.
	Endpoint string
}

// ParseTransport parses a server address:
//
//	stdio://cmd args      stdio command
//	sse://host/path       SSE endpoint, https is assumed without a scheme
//	http+sse://host       SSE endpoint over http
//	https+stream://host   streamable HTTP endpoint
//	http://host           SSE endpoint
//	server.py, server.js  script launched with python or node
//	cmd args              stdio command
func ParseTransport(spec string) (*TransportSpec, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("transport spec is empty")
	}

	lowered := strings.ToLower(spec)
	switch {
	case strings.HasPrefix(lowered, stdioSchemePrefix):
		return parseCommand(spec[len(stdioSchemePrefix):])
	case strings.HasPrefix(lowered, sseSchemePrefix):
		endpoint, err := normalizeHTTPURL(spec[len(sseSchemePrefix):], true)
		if err != nil {
			return nil, errors.WithMessage(err, "invalid SSE endpoint")
		}
		return &TransportSpec{Kind: TransportSSE, Endpoint: endpoint}, nil
	}

	if ts, matched, err := parseHTTPFamily(spec); err != nil {
		return nil, err
	} else if matched {
		return ts, nil
	}

	if strings.HasPrefix(lowered, "http://") || strings.HasPrefix(lowered, "https://") {
		endpoint, err := normalizeHTTPURL(spec, false)
		if err != nil {
			return nil, errors.WithMessage(err, "invalid SSE endpoint")
		}
		return &TransportSpec{Kind: TransportSSE, Endpoint: endpoint}, nil
	}

	return parseCommand(spec)
}

func parseCommand(cmd string) (*TransportSpec, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return nil, errors.New("stdio command is empty")
	}
	ts := &TransportSpec{
		Kind:    TransportStdio,
		Command: parts[0],
		Args:    parts[1:],
	}
	if interp, ok := Interpreters[strings.ToLower(filepath.Ext(parts[0]))]; ok {
		ts.Command = interp
		ts.Args = parts
	}
	return ts, nil
}

func parseHTTPFamily(spec string) (*TransportSpec, bool, error) {
	u, err := url.Parse(spec)
	if err != nil || u.Scheme == "" {
		return nil, false, nil
	}
	base, hint, ok := strings.Cut(strings.ToLower(u.Scheme), "+")
	if !ok || (base != "http" && base != "https") {
		return nil, false, nil
	}

	var kind TransportKind
	switch hint {
	case "sse":
		kind = TransportSSE
	case "stream", "streamable", "http":
		kind = TransportStreamable
	default:
		return nil, true, errors.Errorf("unsupported HTTP transport hint %q", hint)
	}

	normalized := *u
	normalized.Scheme = base
	endpoint, err := normalizeHTTPURL(normalized.String(), false)
	if err != nil {
		return nil, true, errors.WithMessagef(err, "invalid %s endpoint", kind)
	}
	return &TransportSpec{Kind: kind, Endpoint: endpoint}, true, nil
}

func normalizeHTTPURL(raw string, guessScheme bool) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("endpoint is empty")
	}
	if guessScheme && !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", errors.WithStack(err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", errors.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", errors.New("missing host")
	}
	parsed.Scheme = scheme
	return parsed.String(), nil
}

// Transport returns the go-sdk transport for the spec.
// A stdio server process lives until the session is closed.
func (ts *TransportSpec) Transport(httpClient *http.Client) mcp.Transport {
	switch ts.Kind {
	case TransportSSE:
		return &mcp.SSEClientTransport{Endpoint: ts.Endpoint, HTTPClient: httpClient}
	case TransportStreamable:
		return &mcp.StreamableClientTransport{Endpoint: ts.Endpoint, HTTPClient: httpClient}
	default:
		// #nosec G204 -- the command comes from the operator configuration
		cmd := exec.Command(ts.Command, ts.Args...)
		return &mcp.CommandTransport{Command: cmd}
	}
}

func (ts *TransportSpec) String() string {
	if ts.Kind == TransportStdio {
		return string(ts.Kind) + "://" + strings.Join(append([]string{ts.Command}, ts.Args...), " ")
	}
	return string(ts.Kind) + "+" + ts.Endpoint
}
