// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/modelsmith-dev/modelsmith/internal/config"
	"github.com/modelsmith-dev/modelsmith/internal/provider"
	"github.com/modelsmith-dev/modelsmith/internal/secrets"
	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

// initHTTPClient is used for provider key validation. Tests replace it.
var initHTTPClient = &http.Client{Timeout: 10 * time.Second}

// configPathForWrite returns where init writes when --config is not given.
var configPathForWrite = config.DefaultConfigPath

type initWizardStep int

const (
	stepProvider    initWizardStep = iota // select provider
	stepAPIKey                            // enter API key
	stepValidateKey                       // validating key (spinner)
	stepHost                              // select repository host
	stepRepo                              // owner/name or local path
	stepToken                             // github token
	stepDone
	stepError
)

const (
	hostGitHub = "github"
	hostLocal  = "local"
)

var supportedProviders = []provider.ProviderName{
	provider.ProviderAnthropic,
	provider.ProviderOpenAI,
	provider.ProviderGoogle,
	provider.ProviderOpenRouter,
}

var supportedHosts = []string{hostGitHub, hostLocal}

// initResult is what the wizard collected.
type initResult struct {
	Provider   provider.ProviderName
	APIKey     string
	Host       string
	Owner      string
	Name       string
	LocalPath  string
	Token      string
	SessionsDB string // sqlite file; empty keeps sessions in memory
}

type (
	keyValidMsg      struct{}
	keyInvalidMsg    struct{ err error }
	configWrittenMsg struct{ path string }
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
)

// initModel is the bubbletea model for the init wizard.
type initModel struct {
	step        initWizardStep
	providerIdx int
	hostIdx     int
	apiKeyInput textinput.Model
	repoInput   textinput.Model
	tokenInput  textinput.Model
	spinner     spinner.Model
	result      initResult
	inputErr    string
	configPath  string
	secretStore secrets.Store
	errFinal    error
	skipVerify  bool
	force       bool
}

func newInitModel(store secrets.Store, configPath string) initModel {
	apiKey := textinput.New()
	apiKey.Placeholder = "paste API key here"
	apiKey.EchoMode = textinput.EchoPassword
	apiKey.EchoCharacter = '•'

	repo := textinput.New()

	token := textinput.New()
	token.Placeholder = "paste a token with contents and pull request write access"
	token.EchoMode = textinput.EchoPassword
	token.EchoCharacter = '•'

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return initModel{
		step:        stepProvider,
		apiKeyInput: apiKey,
		repoInput:   repo,
		tokenInput:  token,
		spinner:     sp,
		secretStore: store,
		configPath:  configPath,
	}
}

func (m initModel) Init() tea.Cmd {
	return nil
}

func (m initModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case keyValidMsg:
		m.step = stepHost
		return m, nil

	case keyInvalidMsg:
		m.inputErr = msg.err.Error()
		m.step = stepAPIKey
		m.apiKeyInput.Focus()
		return m, nil

	case configWrittenMsg:
		m.step = stepDone
		m.configPath = msg.path
		return m, tea.Quit

	case error:
		m.step = stepError
		m.errFinal = msg
		return m, tea.Quit
	}
	return m, nil
}

func (m initModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	switch m.step {
	case stepProvider:
		return m.handleProviderKey(msg)
	case stepAPIKey:
		return m.handleAPIKeyInput(msg)
	case stepHost:
		return m.handleHostKey(msg)
	case stepRepo:
		return m.handleRepoInput(msg)
	case stepToken:
		return m.handleTokenInput(msg)
	}
	return m, nil
}

func (m initModel) handleProviderKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.providerIdx > 0 {
			m.providerIdx--
		}
	case "down", "j":
		if m.providerIdx < len(supportedProviders)-1 {
			m.providerIdx++
		}
	case "enter":
		m.result.Provider = supportedProviders[m.providerIdx]
		m.step = stepAPIKey
		m.inputErr = ""
		m.apiKeyInput.SetValue("")
		m.apiKeyInput.Focus()
		return m, textinput.Blink
	case "q":
		return m, tea.Quit
	}
	return m, nil
}

func (m initModel) handleAPIKeyInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() != "enter" {
		var cmd tea.Cmd
		m.apiKeyInput, cmd = m.apiKeyInput.Update(msg)
		return m, cmd
	}

	key := strings.TrimSpace(m.apiKeyInput.Value())
	if key == "" {
		m.inputErr = "API key must not be empty"
		return m, nil
	}
	m.result.APIKey = key
	m.inputErr = ""
	m.apiKeyInput.Blur()
	if m.skipVerify {
		m.step = stepHost
		return m, nil
	}
	m.step = stepValidateKey
	return m, tea.Batch(m.spinner.Tick, validateProviderKeyCmd(m.result.Provider, key))
}

func (m initModel) handleHostKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.hostIdx > 0 {
			m.hostIdx--
		}
	case "down", "j":
		if m.hostIdx < len(supportedHosts)-1 {
			m.hostIdx++
		}
	case "enter":
		m.result.Host = supportedHosts[m.hostIdx]
		m.step = stepRepo
		m.inputErr = ""
		m.repoInput.SetValue("")
		if m.result.Host == hostGitHub {
			m.repoInput.Placeholder = "owner/repository"
		} else {
			m.repoInput.Placeholder = "/path/to/analytics-repo"
		}
		m.repoInput.Focus()
		return m, textinput.Blink
	case "q":
		return m, tea.Quit
	}
	return m, nil
}

func (m initModel) handleRepoInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() != "enter" {
		var cmd tea.Cmd
		m.repoInput, cmd = m.repoInput.Update(msg)
		return m, cmd
	}

	value := strings.TrimSpace(m.repoInput.Value())
	if m.result.Host == hostLocal {
		path, err := checkLocalRepo(value)
		if err != nil {
			m.inputErr = err.Error()
			return m, nil
		}
		m.result.LocalPath = path
		m.inputErr = ""
		m.repoInput.Blur()
		return m, writeConfigCmd(m.result, m.secretStore, m.configPath, m.force)
	}

	owner, name, ok := strings.Cut(value, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		m.inputErr = "enter the repository as owner/name"
		return m, nil
	}
	m.result.Owner, m.result.Name = owner, name
	m.inputErr = ""
	m.repoInput.Blur()
	m.step = stepToken
	m.tokenInput.SetValue("")
	m.tokenInput.Focus()
	return m, textinput.Blink
}

func (m initModel) handleTokenInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() != "enter" {
		var cmd tea.Cmd
		m.tokenInput, cmd = m.tokenInput.Update(msg)
		return m, cmd
	}

	token := strings.TrimSpace(m.tokenInput.Value())
	if token == "" {
		m.inputErr = "token must not be empty"
		return m, nil
	}
	m.result.Token = token
	m.inputErr = ""
	m.tokenInput.Blur()
	return m, writeConfigCmd(m.result, m.secretStore, m.configPath, m.force)
}

func (m initModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("  modelsmith setup  ") + "\n\n")

	switch m.step {
	case stepProvider:
		b.WriteString(promptStyle.Render("Step 1/3: Choose a model provider") + "\n\n")
		for i, p := range supportedProviders {
			b.WriteString(menuLine(string(p), i == m.providerIdx))
		}
		b.WriteString("\n" + dimStyle.Render("↑/↓ to navigate  enter to select  q to quit"))

	case stepAPIKey:
		b.WriteString(promptStyle.Render("Step 1/3: "+string(m.result.Provider)+" API key") + "\n\n")
		b.WriteString(m.apiKeyInput.View() + "\n")
		b.WriteString(m.errorLine())
		b.WriteString("\n" + dimStyle.Render("enter to continue  ctrl+c to quit"))

	case stepValidateKey:
		b.WriteString(m.spinner.View() + " Validating " + string(m.result.Provider) + " API key…\n")

	case stepHost:
		b.WriteString(promptStyle.Render("Step 2/3: Where does the analytics repository live?") + "\n\n")
		for i, h := range supportedHosts {
			b.WriteString(menuLine(h, i == m.hostIdx))
		}
		b.WriteString("\n" + dimStyle.Render("↑/↓ to navigate  enter to select  q to quit"))

	case stepRepo:
		label := "GitHub repository"
		if m.result.Host == hostLocal {
			label = "Local git repository path"
		}
		b.WriteString(promptStyle.Render("Step 3/3: "+label) + "\n\n")
		b.WriteString(m.repoInput.View() + "\n")
		b.WriteString(m.errorLine())
		b.WriteString("\n" + dimStyle.Render("enter to continue  ctrl+c to quit"))

	case stepToken:
		b.WriteString(promptStyle.Render("Step 3/3: GitHub token for "+m.result.Owner+"/"+m.result.Name) + "\n\n")
		b.WriteString(m.tokenInput.View() + "\n")
		b.WriteString(m.errorLine())
		b.WriteString("\n" + dimStyle.Render("enter to finish  ctrl+c to quit"))

	case stepDone:
		b.WriteString(successStyle.Render("  Setup complete!  ") + "\n\n")
		if m.configPath != "" {
			b.WriteString(dimStyle.Render("Config written to: "+m.configPath) + "\n\n")
		}
		b.WriteString("Run " + promptStyle.Render("modelsmith serve") + " to start the server.\n")
		b.WriteString("Run " + promptStyle.Render("modelsmith doctor") + " to verify setup.\n")

	case stepError:
		b.WriteString(errorStyle.Render("Setup failed: "+m.errFinal.Error()) + "\n")
	}

	return boxStyle.Render(b.String())
}

func (m initModel) errorLine() string {
	if m.inputErr == "" {
		return ""
	}
	return "\n" + errorStyle.Render("  "+m.inputErr) + "\n"
}

func menuLine(label string, selected bool) string {
	if selected {
		return selectedStyle.Render("  > "+label) + "\n"
	}
	return dimStyle.Render("    "+label) + "\n"
}

func validateProviderKeyCmd(p provider.ProviderName, key string) tea.Cmd {
	return func() tea.Msg {
		if err := provider.ValidateKey(context.Background(), initHTTPClient, p, key); err != nil {
			return keyInvalidMsg{err: err}
		}
		return keyValidMsg{}
	}
}

func writeConfigCmd(result initResult, store secrets.Store, path string, force bool) tea.Cmd {
	return func() tea.Msg {
		written, err := storeSecretsAndWriteConfig(result, store, path, force)
		if err != nil {
			return err
		}
		return configWrittenMsg{path: written}
	}
}

// checkLocalRepo resolves path to an absolute directory holding a git
// repository.
func checkLocalRepo(path string) (string, error) {
	if path == "" {
		return "", mserr.New(mserr.CodeCLIInputInvalid, "path must not be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", mserr.Errorf(mserr.CodeCLIInputInvalid, "resolving %s: %w", path, err)
	}
	if _, err := os.Stat(filepath.Join(abs, ".git")); err != nil {
		return "", mserr.Errorf(mserr.CodeCLIInputInvalid, "%s is not a git repository", abs)
	}
	return abs, nil
}

// initConfig is the subset of modelsmith.yaml the wizard writes. Everything
// else keeps its default.
type initConfig struct {
	Repository initRepository          `yaml:"repository"`
	Providers  map[string]initProvider `yaml:"providers"`
	Models     initModels              `yaml:"models"`
	Storage    initStorage             `yaml:"storage"`
}

type initRepository struct {
	Host      string `yaml:"host"`
	Owner     string `yaml:"owner,omitempty"`
	Name      string `yaml:"name,omitempty"`
	Token     string `yaml:"token,omitempty"`
	LocalPath string `yaml:"local_path,omitempty"`
}

type initProvider struct {
	APIKey string `yaml:"api_key"`
}

type initModels struct {
	Default string `yaml:"default"`
}

type initStorage struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path,omitempty"`
}

// GenerateConfigYAML renders the wizard result. Secrets appear only as
// keyring:// references.
func GenerateConfigYAML(result initResult) (string, error) {
	cfg := initConfig{
		Repository: initRepository{Host: result.Host},
		Providers: map[string]initProvider{
			string(result.Provider): {
				APIKey: secrets.KeyringURI(secrets.DefaultService, secrets.ProviderKey(string(result.Provider))),
			},
		},
		Models:  initModels{Default: defaultModelForProvider(result.Provider)},
		Storage: initStorage{Backend: "memory"},
	}
	if result.SessionsDB != "" {
		cfg.Storage = initStorage{Backend: "sqlite", Path: result.SessionsDB}
	}
	switch result.Host {
	case hostGitHub:
		cfg.Repository.Owner = result.Owner
		cfg.Repository.Name = result.Name
		cfg.Repository.Token = secrets.KeyringURI(secrets.DefaultService, secrets.HostingTokenKey)
	case hostLocal:
		cfg.Repository.LocalPath = result.LocalPath
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return "", mserr.Errorf(mserr.CodeCLISetupFailure, "rendering config: %w", err)
	}
	return "# modelsmith configuration, generated by modelsmith init\n" +
		"# See modelsmith.yaml.default for every option.\n\n" + string(out), nil
}

func defaultModelForProvider(p provider.ProviderName) string {
	switch p {
	case provider.ProviderAnthropic:
		return "anthropic/claude-sonnet-4-5"
	case provider.ProviderOpenAI:
		return "openai/gpt-4.1"
	case provider.ProviderGoogle:
		return "google/gemini-2.5-flash"
	case provider.ProviderOpenRouter:
		return "openrouter/anthropic/claude-sonnet-4-5"
	default:
		return string(p) + "/default"
	}
}

// storeSecretsAndWriteConfig saves the API key and repository token to the
// keyring and writes the config to path (the default path when empty). An
// existing file is only replaced with force. Secrets already stored are not
// rolled back when the write fails; a rerun overwrites them.
func storeSecretsAndWriteConfig(result initResult, store secrets.Store, path string, force bool) (string, error) {
	if path == "" {
		p, err := configPathForWrite()
		if err != nil {
			return "", err
		}
		path = p
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", mserr.Errorf(mserr.CodeConfigAlreadyExists,
				"config file already exists at %s; use --force to overwrite", path)
		}
	}

	if err := store.Set(secrets.ProviderKey(string(result.Provider)), result.APIKey); err != nil {
		return "", mserr.Wrapf(err, mserr.CodeSecretBackendFailure, "storing %s API key", result.Provider)
	}
	if result.Token != "" {
		if err := store.Set(secrets.HostingTokenKey, result.Token); err != nil {
			return "", mserr.Wrapf(err, mserr.CodeSecretBackendFailure, "storing repository token")
		}
	}

	result.SessionsDB = filepath.Join(filepath.Dir(path), "sessions.db")
	content, err := GenerateConfigYAML(result)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", mserr.Errorf(mserr.CodeConfigLoadReadFailure, "creating config directory: %w", err)
	}
	// The file references secrets only, but keep it private anyway.
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", mserr.Errorf(mserr.CodeConfigLoadReadFailure, "writing config to %s: %w", path, err)
	}
	return path, nil
}

func newInitCmd(_ *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard",
		Long: `Walk through choosing a model provider and the analytics repository.

API keys and tokens are stored in the OS keyring and referenced from the
config file with keyring:// URIs. No secret is written in plain text.

After completion, run:
  modelsmith serve    start the server
  modelsmith doctor   verify your setup`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoConfig: "true"},
		RunE:        runInit,
	}
	cmd.Flags().Bool("force", false, "overwrite an existing config file")
	cmd.Flags().Bool("skip-verify", false, "do not call the provider API to check the key")
	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !isTerminal(f) {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(),
			"modelsmith init requires an interactive terminal.\n"+
				"To configure modelsmith non-interactively, copy modelsmith.yaml.default and edit it.")
		return mserr.New(mserr.CodeCLISetupFailure, "modelsmith init: not an interactive terminal")
	}

	path, _ := cmd.Flags().GetString("config")
	m := newInitModel(secretStoreFactory(), path)
	m.force, _ = cmd.Flags().GetBool("force")
	m.skipVerify, _ = cmd.Flags().GetBool("skip-verify")

	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return mserr.Errorf(mserr.CodeCLISetupFailure, "init wizard: %w", err)
	}
	fm, ok := final.(initModel)
	if !ok {
		return mserr.New(mserr.CodeCLISetupFailure, "unexpected model type after wizard")
	}
	if fm.errFinal != nil {
		return mserr.Wrap(fm.errFinal, mserr.CodeCLISetupFailure, "init failed")
	}
	if fm.step == stepDone {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", fm.configPath)
	}
	return nil
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
