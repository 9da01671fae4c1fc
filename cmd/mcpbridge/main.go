// Command mcpbridge is an interactive chat shell over an MCP tool server.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/callbacks"
	"github.com/effective-security/mcpbridge/chatmodel"
	"github.com/effective-security/mcpbridge/conversation"
	"github.com/effective-security/mcpbridge/pkg/config"
	"github.com/effective-security/mcpbridge/pkg/llmfactory"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/mcpsession"
	"github.com/effective-security/mcpbridge/pkg/toolcatalog"
	"github.com/effective-security/mcpbridge/pkg/turnlog"
	"github.com/effective-security/mcpbridge/store"
	"github.com/effective-security/mcpbridge/tools"
	"github.com/effective-security/mcpbridge/tools/clock"
	"github.com/effective-security/mcpbridge/tools/tavily"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge/cmd", "mcpbridge")

// Version is set at build time.
var Version = "dev"

type flags struct {
	config   string
	provider string
	server   string
	model    string
	chatID   string
	verbose  bool
}

func main() {
	var f flags
	flag.StringVar(&f.config, "config", "", "path to the configuration file")
	flag.StringVar(&f.provider, "provider", "", "provider name or type: anthropic, openai, deepseek")
	flag.StringVar(&f.server, "server", "", "MCP server: a command line, an http(s) or sse+ URL, or builtin")
	flag.StringVar(&f.model, "model", "", "model name, the provider default when empty")
	flag.StringVar(&f.chatID, "chat", "", "chat ID to resume")
	flag.BoolVar(&f.verbose, "verbose", false, "print loop events and debug logs")
	flag.Parse()

	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	if f.verbose {
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	} else {
		xlog.SetGlobalLogLevel(xlog.ERROR)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, f, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "mcpbridge: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, f flags, in io.Reader, out io.Writer) error {
	cfg, err := config.Load(f.config)
	if err != nil {
		return err
	}
	cfg.Provider = values.StringsCoalesce(f.provider, cfg.Provider)
	cfg.Model = values.StringsCoalesce(f.model, cfg.Model)
	cfg.Server = values.StringsCoalesce(f.server, cfg.Server)

	adapter, err := newAdapter(cfg)
	if err != nil {
		return err
	}

	session, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	st, err := newStore(cfg)
	if err != nil {
		return err
	}

	chatCtx := chatmodel.NewChatContext(cfg.TenantID, f.chatID, nil)
	ctx = chatmodel.WithChatContext(ctx, chatCtx)

	opts := []conversation.Option{
		conversation.WithChatContext(chatCtx),
		conversation.WithStepBudget(cfg.StepBudget),
		conversation.WithParallelTools(cfg.ParallelTools),
		conversation.WithRetryPolicy(cfg.Retry),
		conversation.WithStore(st),
		conversation.WithSystemPromptFunc(func(c *toolcatalog.Catalog) (string, error) {
			return cfg.SystemPrompt.Render(c, time.Now())
		}),
	}

	if cfg.TurnLog != "-" {
		tl, err := turnlog.Open(cfg.TurnLog)
		if err != nil {
			return err
		}
		defer tl.Close()
		opts = append(opts, conversation.WithTurnLog(tl))
	}

	cb := callbacks.NewFanout(callbacks.NewPackageLogger(logger))
	var scratchpad *callbacks.Scratchpad
	if f.verbose {
		scratchpad = callbacks.NewScratchpad(callbacks.ModeVerbose)
		cb.Add(callbacks.NewPrinter(os.Stderr, callbacks.ModeDefault))
		cb.Add(scratchpad)
	}
	opts = append(opts, conversation.WithCallback(cb))

	loop, err := conversation.New(ctx, adapter, session, opts...)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Connected to %s, %d tools, %s %s, chat %s\n",
		cfg.Server,
		len(loop.Catalog().Describe()),
		adapter.GetProviderType(),
		loop.Model(),
		chatCtx.GetChatID())
	fmt.Fprintln(out, "Type 'quit' to exit.")

	sh := &shell{loop: loop, in: in, out: out}
	err = sh.run(ctx)

	if scratchpad != nil {
		if _, transcript := scratchpad.EndRun(ctx); len(transcript) > 0 {
			_, _ = os.Stderr.Write(transcript)
		}
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// newAdapter returns the adapter of the configured provider,
// the provider is matched by name, then by type.
func newAdapter(cfg *config.Config) (llms.Adapter, error) {
	if cfg.Provider == "" {
		f := llmfactory.New(&cfg.LLM)
		if cfg.Model != "" {
			return f.AdapterByName(cfg.Model)
		}
		return f.DefaultAdapter()
	}

	var provider *llmfactory.ProviderConfig
	for _, p := range cfg.LLM.Providers {
		if strings.EqualFold(p.Name, cfg.Provider) {
			provider = p
			break
		}
	}
	if provider == nil {
		for _, p := range cfg.LLM.Providers {
			if strings.EqualFold(p.Type, cfg.Provider) {
				provider = p
				break
			}
		}
	}
	if provider == nil {
		return nil, errors.Errorf("provider not configured: %s", cfg.Provider)
	}

	pc := *provider
	if cfg.Model != "" {
		pc.DefaultModel = cfg.Model
	}
	return llmfactory.NewAdapter(&pc)
}

// connect opens the tool server session.
// The builtin server hosts get_time, and web_search when TAVILY_API_KEY is set.
func connect(ctx context.Context, cfg *config.Config) (*mcpsession.Client, error) {
	opts := []mcpsession.Option{
		mcpsession.WithCallTimeout(cfg.ToolTimeout),
		mcpsession.WithHandshakeTimeout(cfg.HandshakeTimeout),
	}

	if cfg.Server == config.BuiltinServer {
		list, err := builtinTools()
		if err != nil {
			return nil, err
		}
		transport, err := tools.InProcess(ctx, tools.NewServer("mcpbridge", Version, list...))
		if err != nil {
			return nil, err
		}
		opts = append(opts, mcpsession.WithTransport(transport))
	}

	return mcpsession.Connect(ctx, cfg.Server, opts...)
}

func builtinTools() ([]tools.ITool, error) {
	getTime, err := clock.New(time.Now)
	if err != nil {
		return nil, err
	}
	list := []tools.ITool{getTime}

	if search, err := tavily.New(); err == nil {
		list = append(list, search)
	} else {
		logger.KV(xlog.DEBUG, "status", "web_search_disabled", "reason", err.Error())
	}
	return list, nil
}

func newStore(cfg *config.Config) (store.MessageStore, error) {
	if cfg.Store.Kind != config.StoreRedis {
		return store.NewMemoryStore(), nil
	}
	opts, err := redis.ParseURL(cfg.Store.RedisURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid redis URL")
	}
	return store.NewRedisStore(redis.NewClient(opts), cfg.Store.Prefix), nil
}
