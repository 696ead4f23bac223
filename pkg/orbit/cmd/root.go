package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/orbit-cli/orbit/pkg/conversation"
	"github.com/orbit-cli/orbit/pkg/orbit/auth"
	"github.com/orbit-cli/orbit/pkg/orbit/client"
	"github.com/orbit-cli/orbit/pkg/orbit/config"
	"github.com/orbit-cli/orbit/pkg/orbit/output"
	"github.com/orbit-cli/orbit/pkg/version"
)

// ModePicker asks the user which conversation mode to start in.
type ModePicker func(ctx context.Context) (conversation.Mode, error)

type Config struct {
	Context        context.Context
	ConfigPath     string
	CredentialPath string
	OutputWriter   io.Writer
	Input          io.Reader
	// Clock drives the login poll loop; nil means wall-clock time.
	Clock    auth.Clock
	PickMode ModePicker
}

type runtimeState struct {
	configPath           string
	credentialPath       string
	cfg                  *config.Config
	outputFormat         string
	serverOverride       string
	tokenOverride        string
	tokenStorageOverride string
	nonInteractive       bool
	verbose              bool
	writer               io.Writer
	input                io.Reader
	clock                auth.Clock
	pickMode             ModePicker
	log                  *zap.SugaredLogger
	http                 *resty.Client
}

type runtimeKey struct{}

func DefaultConfig() Config {
	return Config{
		ConfigPath:     config.DefaultConfigPath(),
		CredentialPath: config.DefaultCredentialPath(),
		OutputWriter:   os.Stdout,
		Input:          os.Stdin,
		PickMode:       pickModeInteractively,
	}
}

func NewRootCommand(cfg Config) *cobra.Command {
	rt := &runtimeState{
		configPath:     cfg.ConfigPath,
		credentialPath: cfg.CredentialPath,
		writer:         cfg.OutputWriter,
		input:          cfg.Input,
		clock:          cfg.Clock,
		pickMode:       cfg.PickMode,
		log:            zap.NewNop().Sugar(),
	}

	root := &cobra.Command{
		Use:           "orbit",
		Short:         "Chat with AI from your terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if rt.writer == nil {
				rt.writer = os.Stdout
			}
			if rt.input == nil {
				rt.input = os.Stdin
			}
			if rt.configPath == "" {
				rt.configPath = config.DefaultConfigPath()
			}
			if rt.credentialPath == "" {
				rt.credentialPath = config.DefaultCredentialPath()
			}
			if rt.outputFormat == "" {
				rt.outputFormat = os.Getenv("ORBIT_OUTPUT")
			}
			if rt.serverOverride == "" {
				rt.serverOverride = os.Getenv("ORBIT_SERVER")
			}
			if rt.tokenOverride == "" {
				rt.tokenOverride = os.Getenv("ORBIT_TOKEN")
			}
			if rt.tokenStorageOverride == "" {
				rt.tokenStorageOverride = os.Getenv("ORBIT_TOKEN_STORAGE")
			}
			if !rt.nonInteractive {
				rt.nonInteractive = strings.EqualFold(os.Getenv("ORBIT_NON_INTERACTIVE"), "true")
			}
			if !rt.verbose {
				rt.verbose = strings.EqualFold(os.Getenv("ORBIT_VERBOSE"), "true")
			}
			if rt.verbose {
				logger, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				rt.log = logger.Sugar()
			}

			if cmd.Name() == "version" || cmd.Name() == "completion" {
				return nil
			}
			return rt.EnsureConfigLoaded()
		},
	}

	root.PersistentFlags().StringVar(&rt.configPath, "config", rt.configPath, "Path to config file")
	root.PersistentFlags().StringVarP(&rt.outputFormat, "output", "o", "", "Output format: table, json, yaml")
	root.PersistentFlags().StringVar(&rt.serverOverride, "server", "", "orbit-server URL override")
	root.PersistentFlags().StringVar(&rt.tokenOverride, "token", "", "Bearer token override (skips the stored credential)")
	root.PersistentFlags().StringVar(&rt.tokenStorageOverride, "token-storage", "", "Token storage backend: keychain or file")
	root.PersistentFlags().BoolVar(&rt.nonInteractive, "non-interactive", false, "Never prompt or open a browser")
	root.PersistentFlags().BoolVarP(&rt.verbose, "verbose", "v", false, "Log HTTP and login details to stderr")

	base := cfg.Context
	if base == nil {
		base = context.Background()
	}
	root.SetContext(context.WithValue(base, runtimeKey{}, rt))

	root.AddCommand(
		NewLoginCommand(),
		NewLogoutCommand(),
		NewWhoAmICommand(),
		NewWakeupCommand(),
		NewChatCommand(),
		NewConversationsCommand(),
		NewCompletionCommand(),
		NewVersionCommand(),
	)

	return root
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

func (rt *runtimeState) EnsureConfigLoaded() error {
	if rt.cfg != nil {
		return nil
	}
	cfg, err := config.Load(rt.configPath)
	if err != nil {
		return err
	}
	rt.cfg = cfg
	return nil
}

func (rt *runtimeState) config() *config.Config {
	if rt.cfg == nil {
		cfg := config.DefaultConfig()
		rt.cfg = &cfg
	}
	return rt.cfg
}

func (rt *runtimeState) Server() string {
	if rt.serverOverride != "" {
		return rt.serverOverride
	}
	if s := rt.config().Server; s != "" {
		return s
	}
	return config.DefaultServer
}

func (rt *runtimeState) OutputFormat() (output.Format, error) {
	if rt.outputFormat != "" {
		return output.ParseFormat(rt.outputFormat)
	}
	return output.ParseFormat(rt.config().Settings.OutputFormat)
}

func (rt *runtimeState) TokenStorage() string {
	if rt.tokenStorageOverride != "" {
		return rt.tokenStorageOverride
	}
	return rt.config().Settings.TokenStorage
}

func (rt *runtimeState) DefaultMode() conversation.Mode {
	if m, err := conversation.ParseMode(rt.config().Settings.DefaultMode); err == nil {
		return m
	}
	return conversation.ModeChat
}

func (rt *runtimeState) Writer() io.Writer {
	if rt.writer != nil {
		return rt.writer
	}
	return os.Stdout
}

func (rt *runtimeState) TokenStore() (auth.TokenStore, error) {
	return auth.NewTokenStore(auth.StorageMode(rt.TokenStorage()), rt.credentialPath)
}

// HTTPClient is shared by the login flow and the REST client.
func (rt *runtimeState) HTTPClient() (*resty.Client, error) {
	if rt.http != nil {
		return rt.http, nil
	}
	a := rt.config().Auth
	hc, err := auth.NewHTTPClient(a.CAFile, a.InsecureSkipTLSVerify)
	if err != nil {
		return nil, err
	}
	hc.SetHeader("User-Agent", version.UserAgent("orbit"))
	if rt.verbose {
		hc.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
			rt.log.Debugw("HTTP request", "method", resp.Request.Method, "url", resp.Request.URL,
				"status", resp.StatusCode(), "duration", resp.Time())
			return nil
		})
	}
	rt.http = hc
	return hc, nil
}

// APIClient talks to orbit-server, authenticated when token is non-empty.
func (rt *runtimeState) APIClient(token string) (*client.Client, error) {
	hc, err := rt.HTTPClient()
	if err != nil {
		return nil, err
	}
	return client.New(
		client.WithServer(rt.Server()),
		client.WithHTTPClient(hc),
		client.WithToken(token),
		client.WithUserAgent(version.UserAgent("orbit")),
	)
}

// AuthClient builds the device flow client. discover is only needed by login:
// without it the endpoints come from config or the server layout, so commands
// that never start a grant make no discovery request.
func (rt *runtimeState) AuthClient(ctx context.Context, discover bool) (*auth.DeviceAuthClient, error) {
	hc, err := rt.HTTPClient()
	if err != nil {
		return nil, err
	}
	store, err := rt.TokenStore()
	if err != nil {
		return nil, err
	}
	a := rt.config().Auth
	epCfg := auth.EndpointConfig{
		Server:                      rt.Server(),
		DeviceAuthorizationEndpoint: a.DeviceAuthorizationEndpoint,
		TokenEndpoint:               a.TokenEndpoint,
	}
	if discover {
		epCfg.Authority = a.Authority
	}
	endpoints, err := auth.ResolveEndpoints(ctx, epCfg, hc.GetClient())
	if err != nil {
		return nil, err
	}
	lookup, err := rt.APIClient("")
	if err != nil {
		return nil, err
	}
	opts := []auth.Option{
		auth.WithHTTPClient(hc),
		auth.WithOutput(rt.Writer()),
		auth.WithSessionLookup(lookup),
		auth.WithLogger(rt.log),
	}
	if rt.clock != nil {
		opts = append(opts, auth.WithClock(rt.clock))
	}
	if rt.nonInteractive {
		opts = append(opts, auth.NonInteractive())
	}
	return auth.NewDeviceAuthClient(auth.DeviceConfig{
		ClientID:  a.ClientID,
		Scopes:    a.Scopes,
		Endpoints: endpoints,
	}, store, opts...)
}

// AccessToken returns the bearer token for API calls: the override if given,
// else the stored credential, refreshed first when it is about to expire.
func (rt *runtimeState) AccessToken(ctx context.Context) (string, error) {
	if rt.tokenOverride != "" {
		return rt.tokenOverride, nil
	}
	store, err := rt.TokenStore()
	if err != nil {
		return "", err
	}
	mgr := &auth.TokenManager{Store: store, Clock: rt.clock}
	cred, ok, err := mgr.Current()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", auth.ErrUnauthenticated
	}
	if !mgr.Due(cred) {
		return cred.AccessToken, nil
	}
	ac, err := rt.AuthClient(ctx, true)
	if err != nil {
		return "", err
	}
	cred, refreshed, err := mgr.RefreshIfNeeded(ac.HTTPContext(ctx), ac.OAuthConfig())
	if err != nil {
		return "", err
	}
	rt.log.Debugw("Credential checked", "refreshed", refreshed)
	return cred.AccessToken, nil
}

// Conversations is the authenticated conversation API.
func (rt *runtimeState) Conversations(ctx context.Context) (*client.ConversationService, error) {
	token, err := rt.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	c, err := rt.APIClient(token)
	if err != nil {
		return nil, err
	}
	return c.Conversations(), nil
}
