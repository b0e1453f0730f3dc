package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/gobike/internal/health"
	"github.com/joshp123/gobike/mysmartbike"
)

// Provider is the blob/metrics key for the MySmartBike session.
const Provider = "mysmartbike"

const DefaultRefreshInterval = 6 * time.Hour

// Config defines the session manager runtime.
type Config struct {
	BaseURL    string
	StatePath  string
	HTTPClient *http.Client
}

type loginFunc func(ctx context.Context, httpClient *http.Client, baseURL, email, password string) (string, error)

// Manager holds the bearer token obtained from a credential login and
// re-runs the login when the token goes stale. MySmartBike has no
// refresh grant; the password is the refresh token.
type Manager struct {
	cfg        Config
	blobStore  BlobStore
	httpClient *http.Client
	login      loginFunc

	mu              sync.Mutex
	email           string
	password        string
	token           string
	obtainedAt      time.Time
	refreshInFlight bool
	status          health.Status
	statusMessage   string
}

func NewManager(cfg Config, bootstrapPath string, blobStore BlobStore) (*Manager, error) {
	if bootstrapPath == "" {
		return nil, fmt.Errorf("bootstrap path is required")
	}
	bootstrap, err := LoadBootstrap(bootstrapPath)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return NewManagerFromBootstrap(cfg, bootstrap, blobStore)
}

// NewManagerFromBootstrap creates a session manager from an inline Bootstrap (no file needed).
func NewManagerFromBootstrap(cfg Config, bootstrap Bootstrap, blobStore BlobStore) (*Manager, error) {
	if cfg.StatePath == "" {
		return nil, fmt.Errorf("statePath is required")
	}
	if !filepath.IsAbs(cfg.StatePath) {
		return nil, fmt.Errorf("statePath must be absolute")
	}
	if err := bootstrap.Validate(); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	m := &Manager{
		cfg:        cfg,
		blobStore:  blobStore,
		httpClient: httpClient,
		login:      mysmartbike.Login,
		email:      bootstrap.Email,
		password:   bootstrap.Password,
		status:     health.StatusError,
	}

	state, err := m.loadInitialState(bootstrap)
	if err != nil {
		return nil, err
	}

	m.token = state.Token
	m.obtainedAt = state.ObtainedAt
	m.status = health.StatusHealthy
	tokenValid.WithLabelValues(Provider).Set(1)

	return m, nil
}

func (m *Manager) Start(ctx context.Context) {
	m.StartWithInterval(ctx, DefaultRefreshInterval)
}

// StartWithInterval re-logs in whenever the token is older than the
// interval, checking on a ticker. interval <= 0 disables the loop.
func (m *Manager) StartWithInterval(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	threshold := interval
	if threshold < 30*time.Second {
		threshold = 30 * time.Second
	}
	m.refreshIfNeeded(ctx, threshold)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.refreshIfNeeded(ctx, threshold)
			}
		}
	}()
}

func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" {
		return m.token, nil
	}

	tokenValid.WithLabelValues(Provider).Set(0)
	return "", fmt.Errorf("session token unavailable")
}

// TriggerRefresh re-logs in asynchronously. Called by the API client
// when the cloud answers 401 on a bearer token.
func (m *Manager) TriggerRefresh(ctx context.Context) {
	m.mu.Lock()
	if m.refreshInFlight {
		m.mu.Unlock()
		return
	}
	m.refreshInFlight = true
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			m.refreshInFlight = false
			m.mu.Unlock()
		}()
		_ = m.refresh(ctx)
	}()
}

func (m *Manager) refreshIfNeeded(ctx context.Context, threshold time.Duration) {
	m.mu.Lock()
	need := m.token == "" || time.Since(m.obtainedAt) >= threshold
	if !need || m.refreshInFlight {
		m.mu.Unlock()
		return
	}
	m.refreshInFlight = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.refreshInFlight = false
		m.mu.Unlock()
	}()

	_ = m.refresh(ctx)
}

func (m *Manager) refresh(ctx context.Context) error {
	m.mu.Lock()
	email, password := m.email, m.password
	m.mu.Unlock()

	token, err := m.login(ctx, m.httpClient, m.cfg.BaseURL, email, password)
	if err != nil {
		loginFailure.WithLabelValues(Provider).Inc()
		tokenValid.WithLabelValues(Provider).Set(0)

		m.mu.Lock()
		var authErr mysmartbike.AuthError
		if errors.As(err, &authErr) {
			// Bad credentials don't self-heal.
			m.status = health.StatusError
		} else {
			m.status = health.StatusDegraded
		}
		m.statusMessage = err.Error()
		m.mu.Unlock()
		return err
	}

	obtainedAt := time.Now().UTC()
	m.mu.Lock()
	m.token = token
	m.obtainedAt = obtainedAt
	m.status = health.StatusHealthy
	m.statusMessage = ""
	m.mu.Unlock()

	state := State{
		SchemaVersion: SchemaVersion,
		Email:         email,
		Token:         token,
		ObtainedAt:    obtainedAt,
	}

	if err := WriteState(m.cfg.StatePath, state); err != nil {
		loginFailure.WithLabelValues(Provider).Inc()
		return fmt.Errorf("persist state: %w", err)
	}
	if err := m.persistBlob(ctx, state); err != nil {
		remotePersistOK.WithLabelValues(Provider).Set(0)
	} else {
		remotePersistOK.WithLabelValues(Provider).Set(1)
	}

	loginSuccess.WithLabelValues(Provider).Inc()
	tokenValid.WithLabelValues(Provider).Set(1)
	return nil
}

// loadInitialState resolves the starting token: local state file,
// then the blob mirror, then a fresh login. Whichever source wins is
// persisted back to both.
func (m *Manager) loadInitialState(bootstrap Bootstrap) (State, error) {
	local, localErr := LoadState(m.cfg.StatePath)
	if localErr == nil && local.Email == bootstrap.Email {
		if err := checkStateFile(m.cfg.StatePath); err != nil {
			return State{}, err
		}
		m.syncBlob(local)
		return local, nil
	}
	if localErr != nil && !errors.Is(localErr, ErrStateNotFound) {
		return State{}, localErr
	}

	if m.blobStore != nil {
		blob, blobErr := m.loadFromBlob(context.Background())
		if blobErr == nil && blob.Email == bootstrap.Email {
			if err := WriteState(m.cfg.StatePath, blob); err != nil {
				return State{}, err
			}
			m.syncBlob(blob)
			return blob, nil
		}
		if blobErr != nil && !errors.Is(blobErr, ErrBlobNotFound) {
			return State{}, blobErr
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	token, err := m.login(ctx, m.httpClient, m.cfg.BaseURL, bootstrap.Email, bootstrap.Password)
	if err != nil {
		loginFailure.WithLabelValues(Provider).Inc()
		return State{}, fmt.Errorf("initial login: %w", err)
	}
	loginSuccess.WithLabelValues(Provider).Inc()

	state := State{
		SchemaVersion: SchemaVersion,
		Email:         bootstrap.Email,
		Token:         token,
		ObtainedAt:    time.Now().UTC(),
	}
	if err := WriteState(m.cfg.StatePath, state); err != nil {
		return State{}, err
	}
	m.syncBlob(state)

	return state, nil
}

func (m *Manager) syncBlob(state State) {
	if m.blobStore == nil {
		return
	}
	if err := m.persistBlob(context.Background(), state); err != nil {
		remotePersistOK.WithLabelValues(Provider).Set(0)
	} else {
		remotePersistOK.WithLabelValues(Provider).Set(1)
	}
}

func (m *Manager) loadFromBlob(ctx context.Context) (State, error) {
	data, err := m.blobStore.Load(ctx, Provider)
	if err != nil {
		return State{}, err
	}
	return DecodeState(data)
}

func (m *Manager) persistBlob(ctx context.Context, state State) error {
	if m.blobStore == nil {
		return nil
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return m.blobStore.Save(ctx, Provider, data)
}

func (m *Manager) ID() string {
	return "session"
}

func (m *Manager) Health() health.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Manager) HealthMessage() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusMessage
}

func (m *Manager) Collectors() []prometheus.Collector {
	return nil
}

func checkStateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm() != 0o600 {
		return fmt.Errorf("state file %s must have 0600 permissions", path)
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		if int(stat.Uid) != os.Geteuid() {
			return fmt.Errorf("state file %s must be owned by uid %d", path, os.Geteuid())
		}
	}
	return nil
}
